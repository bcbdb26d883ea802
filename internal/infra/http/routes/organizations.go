package routes

import (
	"github.com/taskforge/api/internal/infra/http/handler"
	"github.com/taskforge/api/internal/infra/http/middleware"
	"github.com/taskforge/api/pkg/domain/organization"
)

// registerOrganizationRoutes registers organization lifecycle and
// membership endpoints.
func registerOrganizationRoutes(
	router Router,
	h *handler.OrganizationHandler,
	base []Middleware,
	tenant *middleware.Tenant,
) {
	active := tenant.RequireActiveOrganization()
	admin := tenant.RequireOrgRole(organization.RoleAdmin)
	owner := tenant.RequireOrgRole(organization.RoleOwner)

	router.Group("/api/v1/organizations", func(r Router) {
		// Bootstrap and the caller's org listing need a bearer token but
		// no organization scope.
		r.POST("/", h.Create)
		r.GET("/", h.ListMine)
		r.GET("/by-slug/{slug}", h.GetBySlug)

		// Everything under /current resolves the organization from the
		// token's org claim and re-validates membership. GetCurrent and
		// Recover stay reachable while the organization is soft-deleted;
		// the rest requires it active.
		r.Group("/current", func(cur Router) {
			cur.GET("/", h.GetCurrent)
			cur.POST("/recover", h.Recover, owner)

			cur.PUT("/", h.Update, active, admin)
			cur.DELETE("/", h.SoftDelete, active, owner)
			cur.GET("/overview", h.Overview, active)
			cur.POST("/ws-ticket", h.IssueSocketTicket, active)

			cur.GET("/members", h.ListMembers, active)
			cur.POST("/members", h.AddMember, active, admin)
			cur.DELETE("/members/{userID}", h.RemoveMember, active, admin)
			cur.PUT("/members/{userID}/role", h.UpdateMemberRole, active, admin)
		}, tenant.OrganizationContext())
	}, base...)
}
