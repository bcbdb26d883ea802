package routes

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taskforge/api/internal/infra/http/handler"
	"github.com/taskforge/api/internal/infra/http/middleware"
	"github.com/taskforge/api/internal/infra/websocket"
	"github.com/taskforge/api/pkg/domain/organization"
)

// registerHealthRoutes registers the liveness and readiness probes.
func registerHealthRoutes(router Router, h *handler.HealthHandler) {
	router.GET("/health", h.Health)
	router.GET("/health/ready", h.Ready)
}

// registerMetricsRoute exposes the Prometheus scrape endpoint.
func registerMetricsRoute(router Router) {
	router.GET("/metrics", promhttp.Handler().ServeHTTP)
}

// registerAuditRoutes registers the audit log listing, an org-admin view.
func registerAuditRoutes(
	router Router,
	h *handler.AuditHandler,
	base []Middleware,
	tenant *middleware.Tenant,
) {
	guards := append(chainScoped(base, tenant), tenant.RequireOrgRole(organization.RoleAdmin))
	router.GET("/api/v1/audit-logs", h.List, guards...)
}

// registerWebsocketRoutes registers the activity feed endpoint. The bearer
// middleware is deliberately absent: browsers cannot set an Authorization
// header on a websocket dial, so the handler consumes a single-use ticket
// from the query string instead.
func registerWebsocketRoutes(router Router, ws *websocket.Handler) {
	router.GET("/api/v1/ws/activity", ws.ServeWS)
}
