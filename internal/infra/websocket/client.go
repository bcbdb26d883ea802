package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/taskforge/api/internal/metrics"
	"github.com/taskforge/api/pkg/logger"
)

// Rooms one connection may follow at once.
const maxSubscriptionsPerClient = 32

// Client is one upgraded connection. Its identity comes from the redeemed
// connection ticket, never from anything the peer sends after the
// handshake.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *logger.Logger

	ID             string
	UserID         string
	OrganizationID string
	RemoteIP       string

	roomsMu sync.RWMutex
	rooms   map[string]struct{}

	closeMu sync.Mutex
	closed  bool
}

// NewClient wraps an upgraded connection for the hub.
func NewClient(hub *Hub, conn *websocket.Conn, userID, organizationID, remoteIP string, log *logger.Logger) *Client {
	return &Client{
		hub:            hub,
		conn:           conn,
		send:           make(chan []byte, hub.cfg.SendBufferSize),
		logger:         log,
		ID:             uuid.NewString(),
		UserID:         userID,
		OrganizationID: organizationID,
		RemoteIP:       remoteIP,
		rooms:          make(map[string]struct{}),
	}
}

// Subscribe records a room membership on the client. It reports false when
// the client already follows the room or has hit the room cap.
func (c *Client) Subscribe(channel string) bool {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()

	if _, ok := c.rooms[channel]; ok {
		return false
	}
	if len(c.rooms) >= maxSubscriptionsPerClient {
		c.logger.Warn("subscription limit exceeded",
			"client_id", c.ID,
			"user_id", c.UserID,
			"current", len(c.rooms),
			"max", maxSubscriptionsPerClient,
		)
		return false
	}

	c.rooms[channel] = struct{}{}
	return true
}

// Unsubscribe drops a room membership, reporting whether it existed.
func (c *Client) Unsubscribe(channel string) bool {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()

	if _, ok := c.rooms[channel]; !ok {
		return false
	}
	delete(c.rooms, channel)
	return true
}

// SendMessage queues a frame for delivery. A slow consumer loses frames
// rather than stalling the hub.
func (c *Client) SendMessage(msg *Message) error {
	c.closeMu.Lock()
	closed := c.closed
	c.closeMu.Unlock()
	if closed {
		return nil
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		if msg.Type == MessageTypeEvent {
			metrics.RecordWebsocketEvent("delivered")
		}
	default:
		if msg.Type == MessageTypeEvent {
			metrics.RecordWebsocketEvent("dropped")
		}
		c.logger.Warn("client send buffer full, dropping message",
			"client_id", c.ID,
			"user_id", c.UserID,
		)
	}
	return nil
}

// Close tears the connection down once; later calls are no-ops.
func (c *Client) Close() {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return
	}
	c.closed = true
	c.closeMu.Unlock()

	close(c.send)
	c.conn.Close()
}

// ReadPump consumes frames from the peer until the connection dies, then
// unregisters the client. The read deadline advances on every pong, so a
// silent peer is cut off after pongWait.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.Close()
	}()

	wait := c.hub.pongWait()
	c.conn.SetReadLimit(c.hub.cfg.ReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error",
					"client_id", c.ID,
					"error", err,
				)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("invalid websocket message",
				"client_id", c.ID,
				"error", err,
			)
			c.replyError("INVALID_MESSAGE", "Invalid message format", "")
			continue
		}
		c.dispatch(&msg)
	}
}

// WritePump drains the send queue onto the wire and keeps the connection
// alive with pings. One frame per write so the client can json.Parse each
// one on its own.
func (c *Client) WritePump() {
	ping := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ping.Stop()
		c.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) dispatch(msg *Message) {
	switch msg.Type {
	case MessageTypeSubscribe:
		c.handleSubscribe(msg)
	case MessageTypeUnsubscribe:
		c.handleUnsubscribe(msg)
	case MessageTypePing:
		c.SendMessage(NewMessage(MessageTypePong))
	default:
		c.replyError("UNKNOWN_MESSAGE_TYPE", "Unknown message type: "+string(msg.Type), "")
	}
}

// roomRequestFrom decodes the frame payload, falling back to the frame's
// own channel field for clients that put it there.
func roomRequestFrom(msg *Message) roomRequest {
	var req roomRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		req = roomRequest{Channel: msg.Channel, RequestID: msg.RequestID}
	}
	return req
}

func (c *Client) handleSubscribe(msg *Message) {
	req := roomRequestFrom(msg)
	if req.Channel == "" {
		c.replyError("INVALID_CHANNEL", "Channel is required", req.RequestID)
		return
	}

	if !c.hub.mayJoin(c, req.Channel) {
		c.replyError("FORBIDDEN", "Access denied to channel", req.RequestID)
		return
	}

	if c.Subscribe(req.Channel) {
		c.hub.joinRoom(c, req.Channel)
		c.logger.Debug("client subscribed",
			"client_id", c.ID,
			"channel", req.Channel,
		)
	}

	c.SendMessage(NewMessage(MessageTypeSubscribed).
		WithChannel(req.Channel).
		WithRequestID(req.RequestID))
}

func (c *Client) handleUnsubscribe(msg *Message) {
	req := roomRequestFrom(msg)
	if req.Channel == "" {
		c.replyError("INVALID_CHANNEL", "Channel is required", req.RequestID)
		return
	}

	if c.Unsubscribe(req.Channel) {
		c.hub.leaveRoom(c, req.Channel)
		c.logger.Debug("client unsubscribed",
			"client_id", c.ID,
			"channel", req.Channel,
		)
	}

	c.SendMessage(NewMessage(MessageTypeUnsubscribed).
		WithChannel(req.Channel).
		WithRequestID(req.RequestID))
}

func (c *Client) replyError(code, message, requestID string) {
	c.SendMessage(NewMessage(MessageTypeError).
		WithData(ErrorData{Code: code, Message: message}).
		WithRequestID(requestID))
}
