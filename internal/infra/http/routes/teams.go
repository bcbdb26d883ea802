package routes

import (
	"github.com/taskforge/api/internal/infra/http/handler"
	"github.com/taskforge/api/internal/infra/http/middleware"
	"github.com/taskforge/api/pkg/domain/organization"
	"github.com/taskforge/api/pkg/domain/team"
)

// registerTeamRoutes registers team CRUD and membership endpoints. Project
// creation also lives here: a project is always born under a team, so the
// create route is addressed through the owning team.
func registerTeamRoutes(
	router Router,
	h *handler.TeamHandler,
	projects *handler.ProjectHandler,
	base []Middleware,
	tenant *middleware.Tenant,
) {
	orgAdmin := tenant.RequireOrgRole(organization.RoleAdmin)
	lead := tenant.RequireTeamRole(team.RoleLead)

	router.Group("/api/v1/teams", func(r Router) {
		r.POST("/", h.Create, orgAdmin)
		r.GET("/", h.List)

		// The {teamID} scope collapses cross-tenant and malformed IDs to
		// not-found before any handler runs.
		r.Group("/{teamID}", func(tr Router) {
			tr.GET("/", h.Get)
			tr.PUT("/", h.Update, lead)
			tr.DELETE("/", h.SoftDelete, lead)
			tr.POST("/recover", h.Recover, lead)

			tr.GET("/members", h.ListMembers)
			tr.POST("/members", h.AddMember, lead)
			tr.DELETE("/members/{userID}", h.RemoveMember, lead)
			tr.PUT("/members/{userID}/role", h.UpdateMemberRole, lead)

			tr.POST("/projects", projects.Create, lead)
		}, tenant.TeamScope())
	}, chainScoped(base, tenant)...)
}
