package routes

import (
	"github.com/taskforge/api/internal/infra/http/handler"
	"github.com/taskforge/api/internal/infra/http/middleware"
	"github.com/taskforge/api/pkg/domain/project"
)

// registerProjectRoutes registers project CRUD, project membership and the
// task endpoints nested under each project.
func registerProjectRoutes(
	router Router,
	h *handler.ProjectHandler,
	tasks *handler.TaskHandler,
	base []Middleware,
	tenant *middleware.Tenant,
) {
	manager := tenant.RequireProjectRole(project.RoleManager)
	contributor := tenant.RequireProjectRole(project.RoleContributor)
	viewer := tenant.RequireProjectRole(project.RoleViewer)

	router.Group("/api/v1/projects", func(r Router) {
		r.GET("/", h.List)

		r.Group("/{projectID}", func(pr Router) {
			pr.GET("/", h.Get)
			pr.PUT("/", h.Update, manager)
			pr.DELETE("/", h.SoftDelete, manager)
			pr.POST("/recover", h.Recover, manager)

			pr.GET("/members", h.ListMembers)
			pr.POST("/members", h.AddMember, manager)
			pr.DELETE("/members/{userID}", h.RemoveMember, manager)
			pr.PUT("/members/{userID}/role", h.UpdateMemberRole, manager)

			// Tasks only exist inside a project, so the task routes ride
			// on the already-resolved project scope.
			pr.POST("/tasks", tasks.Create, contributor)
			pr.GET("/tasks", tasks.List, viewer)
			pr.GET("/tasks/{taskID}", tasks.Get, viewer)
			pr.PUT("/tasks/{taskID}", tasks.Update, contributor)
			pr.DELETE("/tasks/{taskID}", tasks.SoftDelete, manager)
			pr.POST("/tasks/{taskID}/recover", tasks.Recover, manager)
		}, tenant.ProjectScope())
	}, chainScoped(base, tenant)...)
}
