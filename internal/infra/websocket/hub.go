package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/taskforge/api/internal/config"
	"github.com/taskforge/api/internal/metrics"
	"github.com/taskforge/api/pkg/logger"
)

const broadcastBufferSize = 256

// Hub tracks the connected clients and fans activity out to them. Every
// client lands in its organization room on registration; team and project
// rooms are joined on request, subject to the authorization policy.
type Hub struct {
	cfg config.WebsocketConfig

	mu           sync.RWMutex
	clients      map[*Client]struct{}
	ipConnCounts map[string]int
	rooms        map[string]map[*Client]struct{}

	broadcast  chan *BroadcastMessage
	register   chan *Client
	unregister chan *Client

	authorizeFn AuthorizeFunc

	logger *logger.Logger
}

// BroadcastMessage is one fan-out request.
type BroadcastMessage struct {
	Channel string
	Message *Message

	// OrganizationID, when set, restricts delivery to clients of that
	// organization even inside the room.
	OrganizationID string
}

// AuthorizeFunc decides whether a client may join a room.
type AuthorizeFunc func(client *Client, channel string) bool

// NewHub builds a hub. Zero config fields fall back to the same defaults
// the environment loader applies.
func NewHub(cfg config.WebsocketConfig, log *logger.Logger) *Hub {
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = 64
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 4096
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}

	return &Hub{
		cfg:          cfg,
		clients:      make(map[*Client]struct{}),
		ipConnCounts: make(map[string]int),
		rooms:        make(map[string]map[*Client]struct{}),
		broadcast:    make(chan *BroadcastMessage, broadcastBufferSize),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		authorizeFn:  defaultAuthorize,
		logger:       log,
	}
}

// pongWait is how long a connection may stay silent before the read side
// gives up. Two ping intervals tolerates one lost pong.
func (h *Hub) pongWait() time.Duration {
	return 2 * h.cfg.PingInterval
}

// defaultAuthorize admits a client only to its own organization room. Team
// and project rooms need membership checks the hub cannot perform, so they
// stay closed until SetAuthorizeFunc installs a policy backed by the
// authorization service.
func defaultAuthorize(client *Client, channel string) bool {
	kind, id := ParseChannel(channel)
	return kind == ChannelTypeOrganization && id != "" && client.OrganizationID == id
}

// SetAuthorizeFunc replaces the room admission policy. Call before Run.
func (h *Hub) SetAuthorizeFunc(fn AuthorizeFunc) {
	h.authorizeFn = fn
}

// Run processes registrations and broadcasts until ctx ends, then closes
// every connection.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("websocket hub started")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("websocket hub stopping")
			h.closeAll()
			return
		case client := <-h.register:
			h.admit(client)
		case client := <-h.unregister:
			h.drop(client)
		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

// admit accepts a new client unless its IP is at the connection cap, and
// places it in its organization room.
func (h *Hub) admit(client *Client) {
	h.mu.Lock()
	if h.cfg.MaxSocketsPerIP > 0 && client.RemoteIP != "" {
		count := h.ipConnCounts[client.RemoteIP]
		if count >= h.cfg.MaxSocketsPerIP {
			h.mu.Unlock()
			h.logger.Warn("connection limit exceeded",
				"remote_ip", client.RemoteIP,
				"current", count,
				"max", h.cfg.MaxSocketsPerIP,
			)
			client.Close()
			return
		}
		h.ipConnCounts[client.RemoteIP] = count + 1
	}
	h.clients[client] = struct{}{}

	orgRoom := MakeChannel(ChannelTypeOrganization, client.OrganizationID)
	client.Subscribe(orgRoom)
	if h.rooms[orgRoom] == nil {
		h.rooms[orgRoom] = make(map[*Client]struct{})
	}
	h.rooms[orgRoom][client] = struct{}{}
	h.mu.Unlock()

	metrics.WebsocketConnectionOpened()
	h.logger.Debug("client registered",
		"client_id", client.ID,
		"user_id", client.UserID,
		"organization_id", client.OrganizationID,
	)
}

// drop removes a client from every room and releases its IP slot.
func (h *Hub) drop(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		for room, members := range h.rooms {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
		if client.RemoteIP != "" {
			if count := h.ipConnCounts[client.RemoteIP]; count > 1 {
				h.ipConnCounts[client.RemoteIP] = count - 1
			} else if count == 1 {
				delete(h.ipConnCounts, client.RemoteIP)
			}
		}
		h.mu.Unlock()
		metrics.WebsocketConnectionClosed()
	} else {
		h.mu.Unlock()
	}

	h.logger.Debug("client unregistered",
		"client_id", client.ID,
		"user_id", client.UserID,
	)
}

// RegisterClient hands a new connection to the hub loop.
func (h *Hub) RegisterClient(client *Client) {
	h.register <- client
}

// UnregisterClient removes a connection from the hub loop.
func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

// Broadcast queues a frame for everyone in the room.
func (h *Hub) Broadcast(channel string, msg *Message, organizationID string) {
	h.broadcast <- &BroadcastMessage{
		Channel:        channel,
		Message:        msg,
		OrganizationID: organizationID,
	}
}

// BroadcastEvent queues an event frame carrying data for the room.
func (h *Hub) BroadcastEvent(channel string, data any, organizationID string) {
	h.Broadcast(channel, NewMessage(MessageTypeEvent).WithChannel(channel).WithData(data), organizationID)
}

// joinRoom adds a client to a room's member set.
func (h *Hub) joinRoom(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[channel] == nil {
		h.rooms[channel] = make(map[*Client]struct{})
	}
	h.rooms[channel][client] = struct{}{}
}

// leaveRoom removes a client from a room, dropping the room when empty.
func (h *Hub) leaveRoom(client *Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[channel]
	if !ok {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(h.rooms, channel)
	}
}

// mayJoin consults the admission policy.
func (h *Hub) mayJoin(client *Client, channel string) bool {
	return h.authorizeFn != nil && h.authorizeFn(client, channel)
}

// fanOut delivers one frame to a room. The member list is copied under the
// read lock; sends happen without it so one slow client cannot block the
// loop.
func (h *Hub) fanOut(msg *BroadcastMessage) {
	h.mu.RLock()
	members, ok := h.rooms[msg.Channel]
	if !ok || len(members) == 0 {
		h.mu.RUnlock()
		return
	}
	recipients := make([]*Client, 0, len(members))
	for client := range members {
		if msg.OrganizationID != "" && client.OrganizationID != msg.OrganizationID {
			continue
		}
		recipients = append(recipients, client)
	}
	h.mu.RUnlock()

	for _, client := range recipients {
		if err := client.SendMessage(msg.Message); err != nil {
			h.logger.Debug("failed to send message to client",
				"client_id", client.ID,
				"channel", msg.Channel,
				"error", err,
			)
		}
	}

	h.logger.Debug("broadcast message",
		"channel", msg.Channel,
		"recipients", len(recipients),
	)
}

// closeAll closes every connection and resets the hub's state.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
	h.rooms = make(map[string]map[*Client]struct{})
	h.ipConnCounts = make(map[string]int)
}
