package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/logger"
)

const (
	ticketKeyPrefix = "wsticket"

	// defaultTicketTTL bounds the gap between issuing a ticket over the
	// authenticated API and redeeming it on the websocket handshake.
	defaultTicketTTL = 30 * time.Second

	ticketBytes = 16
)

// SocketTicket is the identity bound to a single-use websocket ticket.
//
// Browsers cannot attach an Authorization header to a websocket handshake,
// so clients first call the authenticated ticket endpoint and then dial
// the activity feed with the ticket as a query parameter. Each ticket is
// redeemable exactly once.
type SocketTicket struct {
	UserID         shared.ID `json:"user_id"`
	OrganizationID shared.ID `json:"organization_id"`
}

// SocketTicketStore issues and redeems single-use websocket tickets
// backed by Redis, so a ticket issued by one API replica can be redeemed
// on any other.
type SocketTicketStore struct {
	client *Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewSocketTicketStore creates a ticket store on the given client. A zero
// ttl falls back to 30 seconds.
func NewSocketTicketStore(client *Client, ttl time.Duration, log *logger.Logger) (*SocketTicketStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if ttl <= 0 {
		ttl = defaultTicketTTL
	}
	return &SocketTicketStore{client: client, ttl: ttl, logger: log}, nil
}

// TTL returns the lifetime applied to issued tickets.
func (s *SocketTicketStore) TTL() time.Duration {
	return s.ttl
}

func (s *SocketTicketStore) buildKey(ticket string) string {
	return fmt.Sprintf("%s:%s", ticketKeyPrefix, ticket)
}

// Issue creates a ticket for the given user and organization and stores it
// with a short TTL. Returns the opaque ticket string to hand to the client.
func (s *SocketTicketStore) Issue(ctx context.Context, userID, organizationID shared.ID) (string, error) {
	if userID.IsZero() || organizationID.IsZero() {
		return "", errors.New("user id and organization id are required")
	}

	buf := make([]byte, ticketBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate ticket: %w", err)
	}
	ticket := hex.EncodeToString(buf)

	payload, err := json.Marshal(SocketTicket{
		UserID:         userID,
		OrganizationID: organizationID,
	})
	if err != nil {
		return "", fmt.Errorf("encode ticket: %w", err)
	}

	if err := s.client.Set(ctx, s.buildKey(ticket), string(payload), s.ttl); err != nil {
		return "", fmt.Errorf("store ticket: %w", err)
	}

	s.logger.Debug("websocket ticket issued",
		"user_id", userID,
		"organization_id", organizationID,
	)
	return ticket, nil
}

// Consume redeems a ticket atomically. The ticket is deleted in the same
// operation that reads it, so a concurrent second redeem loses and gets
// ErrTicketNotFound.
func (s *SocketTicketStore) Consume(ctx context.Context, ticket string) (*SocketTicket, error) {
	if ticket == "" {
		return nil, ErrTicketNotFound
	}

	raw, err := s.client.GetDel(ctx, s.buildKey(ticket))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redeem ticket: %w", err)
	}

	var t SocketTicket
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("decode ticket: %w", err)
	}
	return &t, nil
}
