// Package redis provides the Redis integration for the TaskForge API.
//
// # Overview
//
// This package provides three components:
//   - Client: connection management with TLS, pooling, and retry logic
//   - RateLimiter: distributed rate limiting using a sliding window log
//   - SocketTicketStore: single-use tickets for websocket handshakes
//
// # Quick Start
//
// Initialize the Redis client:
//
//	client, err := redis.New(&cfg.Redis, log)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
// # Rate Limiting
//
// The rate limiter counts requests in Redis so the configured cap holds
// across every API replica. It guards the unauthenticated invitation
// preview endpoint:
//
//	rl := redis.MustNewRateLimiter(client, "ratelimit:invite_preview", 20, time.Minute, log)
//
//	result, err := rl.Allow(ctx, clientIP)
//	if err != nil {
//		// Redis error - decide on fallback strategy
//	}
//	if !result.Allowed {
//		w.Header().Set("Retry-After", result.RetryAt.Format(time.RFC1123))
//		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
//		return
//	}
//
// # Websocket Tickets
//
// Browsers cannot set an Authorization header on a websocket dial, so the
// activity feed authenticates with short-lived single-use tickets:
//
//	ticket, err := store.Issue(ctx, userID, orgID)   // authenticated endpoint
//	identity, err := store.Consume(ctx, ticket)       // websocket handshake
//
// Consume deletes the ticket in the same atomic operation that reads it.
//
// # Health Checks
//
// Use the Ping method for readiness probes:
//
//	if err := client.Ping(ctx); err != nil {
//		http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
//		return
//	}
//
// # Thread Safety
//
// All components are safe for concurrent use. The underlying go-redis client
// manages connection pooling automatically.
package redis
