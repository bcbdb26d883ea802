package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/taskforge/api/pkg/logger"
)

// The limiter keeps a sliding window log per key in a sorted set. Both
// scripts are registered once and run server side so trim, count and
// insert happen atomically even with many API replicas hitting the same
// Redis.
var (
	takeScript = redis.NewScript(`
		local key = KEYS[1]
		local now = tonumber(ARGV[1])
		local floor = tonumber(ARGV[2])
		local win = tonumber(ARGV[3])
		local max = tonumber(ARGV[4])
		local member = ARGV[5]

		redis.call('ZREMRANGEBYSCORE', key, '-inf', floor)
		local used = redis.call('ZCARD', key)

		if used >= max then
			local head = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
			local retry = now + win
			if head[2] then
				retry = tonumber(head[2]) + win
			end
			return {0, 0, retry}
		end

		redis.call('ZADD', key, now, member)
		redis.call('PEXPIRE', key, win)
		return {1, max - used - 1, now + win}
	`)

	peekScript = redis.NewScript(`
		local key = KEYS[1]
		local now = tonumber(ARGV[1])
		local floor = tonumber(ARGV[2])
		local win = tonumber(ARGV[3])
		local max = tonumber(ARGV[4])

		redis.call('ZREMRANGEBYSCORE', key, '-inf', floor)
		local used = redis.call('ZCARD', key)

		local ttl = redis.call('PTTL', key)
		if ttl < 0 then
			ttl = win
		end

		local left = max - used
		if left < 0 then
			left = 0
		end

		local ok = 0
		if used < max then
			ok = 1
		end

		return {ok, left, now + ttl}
	`)
)

// RateLimiter enforces a shared request cap across all API replicas.
// Anonymous surfaces like the invitation preview endpoint rely on it,
// since a per-process token bucket would multiply the effective limit
// by the replica count.
type RateLimiter struct {
	client    *Client
	keyPrefix string
	limit     int
	window    time.Duration
	logger    *logger.Logger
}

// RateLimitResult reports the outcome of one limiter call.
type RateLimitResult struct {
	// Allowed is false once the key has used up its window.
	Allowed bool

	// Remaining counts the requests still available in the window.
	Remaining int

	// ResetAt is when the current window expires.
	ResetAt time.Time

	// RetryAt is the earliest useful retry time, set only on denial.
	RetryAt time.Time
}

// NewRateLimiter builds a limiter that admits at most limit requests per
// window for each key, namespaced under prefix.
func NewRateLimiter(client *Client, prefix string, limit int, window time.Duration, log *logger.Logger) (*RateLimiter, error) {
	switch {
	case client == nil:
		return nil, errors.New("redis client is required")
	case prefix == "":
		return nil, errors.New("key prefix is required")
	case limit <= 0:
		return nil, errors.New("limit must be positive")
	case window <= 0:
		return nil, errors.New("window must be positive")
	case log == nil:
		return nil, errors.New("logger is required")
	}

	return &RateLimiter{
		client:    client,
		keyPrefix: prefix,
		limit:     limit,
		window:    window,
		logger:    log,
	}, nil
}

// MustNewRateLimiter is NewRateLimiter for wiring code that cannot
// recover from a bad configuration.
func MustNewRateLimiter(client *Client, prefix string, limit int, window time.Duration, log *logger.Logger) *RateLimiter {
	rl, err := NewRateLimiter(client, prefix, limit, window, log)
	if err != nil {
		panic(fmt.Sprintf("rate limiter: %v", err))
	}
	return rl
}

// windowArgs returns the script arguments shared by both Lua programs:
// the current instant, the window floor and the window length, all in
// Unix milliseconds to match the sorted set scores.
func (rl *RateLimiter) windowArgs(now time.Time) (int64, int64, int64) {
	return now.UnixMilli(), now.Add(-rl.window).UnixMilli(), rl.window.Milliseconds()
}

func (rl *RateLimiter) key(k string) string {
	return rl.keyPrefix + ":" + k
}

// decodeReply unpacks the {allowed, remaining, reset_ms} triple every
// script returns.
func decodeReply(reply []interface{}) (bool, int, time.Time) {
	allowed := reply[0].(int64) == 1
	remaining := int(reply[1].(int64))
	resetAt := time.UnixMilli(reply[2].(int64))
	return allowed, remaining, resetAt
}

// Allow consumes one slot for key if the window still has capacity.
// The returned result always carries the remaining count and window
// reset time, and RetryAt when the request was denied.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (*RateLimitResult, error) {
	if key == "" {
		return nil, errors.New("key is required")
	}

	started := time.Now()
	nowMs, floorMs, winMs := rl.windowArgs(started)

	reply, err := takeScript.Run(ctx, rl.client.client, []string{rl.key(key)},
		nowMs, floorMs, winMs, rl.limit, uuid.New().String()).Slice()
	if err != nil {
		DefaultMetrics.ObserveOperation("ratelimit_allow", time.Since(started), err)
		return nil, fmt.Errorf("rate limit check: %w", err)
	}

	allowed, remaining, resetAt := decodeReply(reply)

	DefaultMetrics.RecordRateLimitResult(rl.keyPrefix, allowed)
	DefaultMetrics.ObserveOperation("ratelimit_allow", time.Since(started), nil)

	out := &RateLimitResult{Allowed: allowed, Remaining: remaining, ResetAt: resetAt}
	if !allowed {
		out.RetryAt = resetAt
		rl.logger.Debug("rate limit exceeded",
			"key", key,
			"retry_at", resetAt,
		)
	}
	return out, nil
}

// Status reports the window state for key without consuming a slot.
// It runs server side for the same reason Allow does: trimming expired
// entries and counting must not race.
func (rl *RateLimiter) Status(ctx context.Context, key string) (*RateLimitResult, error) {
	if key == "" {
		return nil, errors.New("key is required")
	}

	nowMs, floorMs, winMs := rl.windowArgs(time.Now())

	reply, err := peekScript.Run(ctx, rl.client.client, []string{rl.key(key)},
		nowMs, floorMs, winMs, rl.limit).Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit status: %w", err)
	}

	allowed, remaining, resetAt := decodeReply(reply)
	return &RateLimitResult{Allowed: allowed, Remaining: remaining, ResetAt: resetAt}, nil
}

// Reset drops the window for key entirely. Operators use this to unblock
// a client that was limited by mistake.
func (rl *RateLimiter) Reset(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("key is required")
	}
	if err := rl.client.Del(ctx, rl.key(key)); err != nil {
		return fmt.Errorf("rate limit reset: %w", err)
	}
	rl.logger.Debug("rate limit reset", "key", key)
	return nil
}

// Limit is the configured cap per window.
func (rl *RateLimiter) Limit() int { return rl.limit }

// Window is the configured window length.
func (rl *RateLimiter) Window() time.Duration { return rl.window }
