package middleware

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/api/internal/config"
	"github.com/taskforge/api/pkg/logger"
)

// RequestIDKey aliases the logger package's key so every log line in the
// request's lifetime picks the ID up automatically.
const RequestIDKey = logger.ContextKeyRequestID

// RequestID tags each request with an ID, either the caller's X-Request-ID
// or a fresh UUID, and echoes it back in the response header.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = uuid.New().String()
			}
			w.Header().Set("X-Request-ID", id)

			ctx := context.WithValue(r.Context(), RequestIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRequestID returns the request ID stored by RequestID, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(logger.ContextKeyRequestID).(string)
	return id
}

// responseWriter records the status code a handler wrote.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack passes websocket upgrades through to the wrapped writer; the
// activity feed endpoint needs it.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("responseWriter: underlying ResponseWriter does not implement http.Hijacker")
	}
	return h.Hijack()
}

// LoggerConfig tunes the request log.
type LoggerConfig struct {
	// SkipPaths lists endpoints whose requests are never logged, such as
	// health probes.
	SkipPaths []string

	// SkipSuccessful drops 2xx responses from the log.
	SkipSuccessful bool

	// SlowRequestThreshold upgrades requests slower than this to warnings.
	// Zero disables the check.
	SlowRequestThreshold time.Duration
}

// DefaultLoggerConfig skips probe endpoints and flags requests over five
// seconds. The websocket path is skipped because the wrapped writer would
// otherwise interfere with the upgrade.
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		SkipPaths: []string{
			"/health",
			"/health/ready",
			"/metrics",
			"/api/v1/ws/activity",
		},
		SlowRequestThreshold: 5 * time.Second,
	}
}

// Logger is LoggerWithConfig with the defaults.
func Logger(log *logger.Logger) func(http.Handler) http.Handler {
	return LoggerWithConfig(log, DefaultLoggerConfig())
}

// LoggerWithConfig writes one log line per request. Severity follows the
// response: 5xx logs as error, 4xx as warning, slow requests as warning,
// everything else as info.
func LoggerWithConfig(log *logger.Logger, cfg LoggerConfig) func(http.Handler) http.Handler {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)

			if cfg.SkipSuccessful && ww.statusCode >= 200 && ww.statusCode < 300 {
				return
			}

			fields := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.statusCode,
				"duration", elapsed,
				"request_id", GetRequestID(r.Context()),
				"remote_addr", r.RemoteAddr,
			}

			switch {
			case ww.statusCode >= 500:
				log.Error("http request", fields...)
			case ww.statusCode >= 400:
				log.Warn("http request", fields...)
			case cfg.SlowRequestThreshold > 0 && elapsed > cfg.SlowRequestThreshold:
				log.Warn("slow http request", fields...)
			default:
				log.Info("http request", fields...)
			}
		})
	}
}

// Recovery converts handler panics into plain 500 responses.
func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return RecoveryWithConfig(log, false)
}

// RecoveryWithConfig logs recovered panics; outside production the log
// line carries the stack trace.
func RecoveryWithConfig(log *logger.Logger, isProduction bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}

				fields := []any{
					"error", rec,
					"request_id", GetRequestID(r.Context()),
				}
				if !isProduction {
					fields = append(fields, "stack", string(debug.Stack()))
				}
				log.Error("panic recovered", fields...)

				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// CORS answers preflight requests and stamps the configured CORS headers
// on every response.
func CORS(cfg *config.CORSConfig) func(http.Handler) http.Handler {
	wildcard := false
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = struct{}{}
	}

	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	maxAge := strconv.Itoa(cfg.MaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if wildcard {
				// The wildcard origin must not be paired with credentials.
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if _, ok := allowed[origin]; ok && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", methods)
			w.Header().Set("Access-Control-Allow-Headers", headers)
			w.Header().Set("Access-Control-Max-Age", maxAge)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
