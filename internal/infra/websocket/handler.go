package websocket

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/taskforge/api/internal/config"
	"github.com/taskforge/api/internal/infra/redis"
	"github.com/taskforge/api/pkg/apierror"
	"github.com/taskforge/api/pkg/logger"
)

// Handler upgrades activity feed connections.
//
// Browsers cannot attach an Authorization header to a websocket dial, so the
// handshake redeems a single-use ticket minted by the HTTP API instead:
//
//	GET /api/v1/ws/activity?ticket=<hex>
type Handler struct {
	hub      *Hub
	tickets  *redis.SocketTicketStore
	logger   *logger.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler.
func NewHandler(hub *Hub, tickets *redis.SocketTicketStore, cfg config.WebsocketConfig, log *logger.Logger) *Handler {
	return &Handler{
		hub:     hub,
		tickets: tickets,
		logger:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}
}

// originChecker matches the Origin header against the configured allow
// list. Requests without an Origin header (non-browser clients) pass.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// ServeWS handles WebSocket upgrade requests.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		apierror.Unauthorized("websocket ticket required").WriteJSON(w)
		return
	}

	claims, err := h.tickets.Consume(r.Context(), ticket)
	if err != nil {
		if errors.Is(err, redis.ErrTicketNotFound) {
			h.logger.Warn("websocket ticket rejected",
				"remote_addr", r.RemoteAddr,
			)
			apierror.Unauthorized("invalid or expired websocket ticket").WriteJSON(w)
			return
		}
		h.logger.Error("websocket ticket lookup failed", "error", err)
		apierror.InternalError(err).WriteJSON(w)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.Error("websocket upgrade failed",
			"user_id", claims.UserID.String(),
			"error", err,
		)
		return
	}

	client := NewClient(h.hub, conn, claims.UserID.String(), claims.OrganizationID.String(), remoteIP(r.RemoteAddr), h.logger)
	h.hub.RegisterClient(client)

	h.logger.Info("websocket client connected",
		"client_id", client.ID,
		"user_id", client.UserID,
		"organization_id", client.OrganizationID,
		"remote_addr", r.RemoteAddr,
	)

	go client.WritePump()
	go client.ReadPump()
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
