package routes

import (
	"github.com/taskforge/api/internal/infra/http/handler"
	"github.com/taskforge/api/internal/infra/http/middleware"
	"github.com/taskforge/api/internal/infra/redis"
	"github.com/taskforge/api/pkg/domain/organization"
	"github.com/taskforge/api/pkg/logger"
)

// registerInvitationRoutes registers invitation endpoints. The group mixes
// three access levels, so middleware is attached per route instead of at the
// group: token preview is public, accepting needs only a bearer token, and
// managing invitations is org-admin work.
func registerInvitationRoutes(
	router Router,
	h *handler.InvitationHandler,
	base []Middleware,
	tenant *middleware.Tenant,
	previewLimiter *redis.RateLimiter,
	log *logger.Logger,
) {
	manage := append(chainScoped(base, tenant), tenant.RequireOrgRole(organization.RoleAdmin))

	var preview []Middleware
	if previewLimiter != nil {
		// The shared limiter slows token enumeration across all instances.
		preview = append(preview, middleware.DistributedRateLimit(previewLimiter, log))
	}

	router.Group("/api/v1/invitations", func(r Router) {
		r.GET("/{token}", h.Preview, preview...)
		r.POST("/{token}/accept", h.Accept, base...)

		r.POST("/", h.Create, manage...)
		r.GET("/", h.List, manage...)
		r.DELETE("/{invitationID}", h.Revoke, manage...)
	})
}
