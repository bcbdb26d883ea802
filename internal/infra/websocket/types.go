// Package websocket delivers the real-time activity feed. Every connection
// is bound to a single organization; clients may additionally follow team
// and project rooms inside that organization.
package websocket

import (
	"encoding/json"
	"strings"
	"time"
)

// MessageType discriminates the frames on the wire.
type MessageType string

// Client to server.
const (
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypePing        MessageType = "ping"
)

// Server to client.
const (
	MessageTypePong         MessageType = "pong"
	MessageTypeSubscribed   MessageType = "subscribed"
	MessageTypeUnsubscribed MessageType = "unsubscribed"
	MessageTypeEvent        MessageType = "event"
	MessageTypeError        MessageType = "error"
)

// Message is the frame format in both directions.
type Message struct {
	Type      MessageType     `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
	RequestID string          `json:"request_id,omitempty"`
}

// NewMessage starts a frame of the given type, stamped with the current
// time in Unix milliseconds.
func NewMessage(msgType MessageType) *Message {
	return &Message{Type: msgType, Timestamp: time.Now().UnixMilli()}
}

// WithChannel sets the room the frame refers to.
func (m *Message) WithChannel(channel string) *Message {
	m.Channel = channel
	return m
}

// WithData attaches a JSON payload. Marshal failures leave Data empty
// rather than failing the frame.
func (m *Message) WithData(data any) *Message {
	if data == nil {
		return m
	}
	if raw, err := json.Marshal(data); err == nil {
		m.Data = raw
	}
	return m
}

// WithRequestID echoes the client's correlation ID.
func (m *Message) WithRequestID(id string) *Message {
	m.RequestID = id
	return m
}

// roomRequest is the payload of subscribe and unsubscribe frames. Older
// clients put the channel on the frame itself, which the handlers accept
// as a fallback.
type roomRequest struct {
	Channel   string `json:"channel"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorData is the payload of error frames.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ActivityPayload is the payload of event frames. It mirrors the audit
// entry recorded for the change.
type ActivityPayload struct {
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	ActorID      string    `json:"actor_id,omitempty"`
	TeamID       string    `json:"team_id,omitempty"`
	ProjectID    string    `json:"project_id,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// ChannelType names the three room scopes.
type ChannelType string

const (
	// ChannelTypeOrganization rooms ("organization:{id}") carry everything
	// that happens in the organization.
	ChannelTypeOrganization ChannelType = "organization"
	// ChannelTypeTeam rooms ("team:{id}") carry one team and its projects.
	ChannelTypeTeam ChannelType = "team"
	// ChannelTypeProject rooms ("project:{id}") carry one project and its
	// tasks.
	ChannelTypeProject ChannelType = "project"
)

// ParseChannel splits "{type}:{id}". A string without a separator comes
// back with an empty type.
func ParseChannel(channel string) (ChannelType, string) {
	kind, id, ok := strings.Cut(channel, ":")
	if !ok {
		return "", channel
	}
	return ChannelType(kind), id
}

// MakeChannel joins a room type and ID into the wire form.
func MakeChannel(channelType ChannelType, id string) string {
	return string(channelType) + ":" + id
}
