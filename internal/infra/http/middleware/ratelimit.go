package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/taskforge/api/internal/config"
	"github.com/taskforge/api/internal/infra/redis"
	"github.com/taskforge/api/pkg/apierror"
	"github.com/taskforge/api/pkg/logger"
)

// visitor tracks a rate limiter per client.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter implements per-client in-memory rate limiting. Each API
// replica enforces its own cap; use DistributedRateLimit for endpoints
// where the cap must hold across replicas.
type RateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	logger   *logger.Logger

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a rate limiter allowing rps requests per second
// with the given burst per client. cleanupInterval bounds how long idle
// client entries survive.
func NewRateLimiter(rps float64, burst int, cleanupInterval time.Duration, log *logger.Logger) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
		logger:   log,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	go rl.cleanupVisitors(cleanupInterval)

	return rl
}

// Stop terminates the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.done)
		<-rl.stopped
	})
}

// cleanupVisitors drops clients not seen for three cleanup intervals.
func (rl *RateLimiter) cleanupVisitors(interval time.Duration) {
	defer close(rl.stopped)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-3 * interval)
			rl.mu.Lock()
			for key, v := range rl.visitors {
				if v.lastSeen.Before(cutoff) {
					delete(rl.visitors, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// getVisitor returns the limiter for a client, creating it on first sight.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// Middleware enforces the per-client limit keyed by client IP and exposes
// the standard X-RateLimit headers.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := getClientIP(r)
			limiter := rl.getVisitor(key)

			remaining := int(limiter.Tokens())
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.burst))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !limiter.Allow() {
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", "1")
				rl.logger.Warn("rate limit exceeded",
					"client_ip", key,
					"path", r.URL.Path,
				)
				apierror.RateLimitExceeded().WriteJSON(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitWithStop builds the global rate limit middleware from config and
// returns it with a stop function for the cleanup goroutine. Disabled
// config yields a pass-through middleware and a no-op stop.
func RateLimitWithStop(cfg *config.RateLimitConfig, log *logger.Logger) (func(http.Handler) http.Handler, func()) {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }, func() {}
	}

	rl := NewRateLimiter(cfg.RequestsPerSec, cfg.Burst, cfg.CleanupInterval, log)
	return rl.Middleware(), rl.Stop
}

// DistributedRateLimit enforces a cap shared across API replicas, keyed by
// client IP. It backs the unauthenticated invitation endpoints where a
// per-replica in-memory cap would multiply with the replica count.
//
// Fails open: when Redis is unreachable the request proceeds.
func DistributedRateLimit(limiter *redis.RateLimiter, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := getClientIP(r)

			result, err := limiter.Allow(r.Context(), key)
			if err != nil {
				log.Error("distributed rate limit check failed",
					"client_ip", key,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				retryAfter := int(time.Until(result.RetryAt).Seconds()) + 1
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				log.Warn("distributed rate limit exceeded",
					"client_ip", key,
					"path", r.URL.Path,
				)
				apierror.RateLimitExceeded().WriteJSON(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP extracts the client IP, preferring proxy headers. Priority:
// X-Real-IP, first entry of X-Forwarded-For, then RemoteAddr.
func getClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
