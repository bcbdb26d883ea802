package redis

import "errors"

// Redis-specific errors.
var (
	// ErrKeyNotFound is returned when a key does not exist.
	ErrKeyNotFound = errors.New("redis: key not found")

	// ErrTicketNotFound is returned when a websocket ticket is missing,
	// expired, or was already consumed.
	ErrTicketNotFound = errors.New("redis: ticket not found")
)
