// Package routes registers all HTTP routes for the API.
// Routes are organized by domain for maintainability.
package routes

import (
	infrahttp "github.com/taskforge/api/internal/infra/http"
	"github.com/taskforge/api/internal/infra/http/handler"
	"github.com/taskforge/api/internal/infra/http/middleware"
	"github.com/taskforge/api/internal/infra/redis"
	"github.com/taskforge/api/internal/infra/websocket"
	"github.com/taskforge/api/pkg/logger"
)

// Middleware is an alias to the http package's Middleware type.
type Middleware = infrahttp.Middleware

// Router is an alias to the http package's Router interface.
type Router = infrahttp.Router

// Handlers holds all HTTP handlers for route registration.
type Handlers struct {
	Health       *handler.HealthHandler
	Organization *handler.OrganizationHandler
	Team         *handler.TeamHandler
	Project      *handler.ProjectHandler
	Task         *handler.TaskHandler
	Invitation   *handler.InvitationHandler
	Audit        *handler.AuditHandler

	// WebSocket serves the activity feed. It authenticates the handshake
	// with a single-use ticket, not the bearer middleware.
	WebSocket *websocket.Handler
}

// Register wires every route. This keeps route definitions in the
// infrastructure layer, not in main.
//
// Routes are organized across multiple files by domain:
//   - organizations.go: bootstrap, current-organization, org membership
//   - teams.go: team CRUD, team membership, nested project creation
//   - projects.go: project CRUD, project membership, nested tasks
//   - invitations.go: issue, preview, accept, revoke, list
//   - misc.go: health, metrics, audit log, websocket
func Register(
	router Router,
	h Handlers,
	log *logger.Logger,
	tokens middleware.TokenValidator,
	users middleware.UserSyncer,
	tenant *middleware.Tenant,
	previewLimiter *redis.RateLimiter,
) {
	registerHealthRoutes(router, h.Health)
	registerMetricsRoute(router)

	// Every authenticated route starts with bearer validation and the
	// first-sight user upsert.
	base := []Middleware{
		middleware.Auth(tokens, log),
		middleware.UserSync(users, log),
	}

	registerOrganizationRoutes(router, h.Organization, base, tenant)
	registerTeamRoutes(router, h.Team, h.Project, base, tenant)
	registerProjectRoutes(router, h.Project, h.Task, base, tenant)
	registerInvitationRoutes(router, h.Invitation, base, tenant, previewLimiter, log)
	registerAuditRoutes(router, h.Audit, base, tenant)
	registerWebsocketRoutes(router, h.WebSocket)
}

// chainScoped extends the base chain with organization resolution and the
// active-organization guard, the default footing for org-scoped route
// groups.
func chainScoped(base []Middleware, tenant *middleware.Tenant) []Middleware {
	scoped := make([]Middleware, 0, len(base)+2)
	scoped = append(scoped, base...)
	scoped = append(scoped, tenant.OrganizationContext(), tenant.RequireActiveOrganization())
	return scoped
}
