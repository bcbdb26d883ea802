package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/taskforge/api/internal/metrics"
	"github.com/taskforge/api/pkg/apierror"
	"github.com/taskforge/api/pkg/domain/accesscontrol"
	"github.com/taskforge/api/pkg/domain/organization"
	"github.com/taskforge/api/pkg/domain/project"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/domain/team"
	"github.com/taskforge/api/pkg/logger"
)

// Tenant-related context keys.
const (
	// TenantContextKey stores the resolved accesscontrol.TenantContext.
	TenantContextKey logger.ContextKey = "tenant_context"
	// OrganizationKey stores the loaded organization row, soft-deleted or not.
	OrganizationKey logger.ContextKey = "organization"
	// TeamKey stores the team loaded by TeamScope.
	TeamKey logger.ContextKey = "team"
	// ProjectKey stores the project loaded by ProjectScope.
	ProjectKey logger.ContextKey = "project"
)

// TenantResolver builds the caller's tenant context for one request.
// *app.TenantContextService implements this.
type TenantResolver interface {
	ResolveOrganization(ctx context.Context, userID, organizationID shared.ID) (accesscontrol.TenantContext, *organization.Organization, error)
	WithTeamScope(ctx context.Context, tc accesscontrol.TenantContext, teamID shared.ID) (accesscontrol.TenantContext, *team.Team, error)
	WithProjectScope(ctx context.Context, tc accesscontrol.TenantContext, projectID shared.ID) (accesscontrol.TenantContext, *project.Project, error)
}

// Tenant provides the middleware that scopes requests to an organization
// and, further down the tree, to a team or project. Role guards live here
// too so route registrations read as an authorization table.
type Tenant struct {
	resolver TenantResolver
	authz    *accesscontrol.Resolver
	logger   *logger.Logger
}

// NewTenant creates tenant middleware around the given resolver.
func NewTenant(resolver TenantResolver, log *logger.Logger) *Tenant {
	return &Tenant{
		resolver: resolver,
		authz:    accesscontrol.NewResolver(),
		logger:   log.With("middleware", "tenant"),
	}
}

// OrganizationContext resolves the organization named by the token claim
// and re-validates the caller's membership against storage. The loaded row
// includes soft-deleted organizations so that recovery stays reachable;
// RequireActiveOrganization fences everything else.
func (t *Tenant) OrganizationContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetClaims(r.Context())
			if !ok {
				apierror.Unauthorized("authentication required").WriteJSON(w)
				return
			}
			userID, _ := GetAuthUserID(r.Context())

			if claims.OrganizationID == "" {
				metrics.RecordTenantContextFailure("missing_org")
				apierror.MissingTenantContext().WriteJSON(w)
				return
			}

			orgID, err := shared.ParseID(claims.OrganizationID)
			if err != nil {
				metrics.RecordTenantContextFailure("not_a_member")
				apierror.InvalidTenantContext().WriteJSON(w)
				return
			}

			tc, org, err := t.resolver.ResolveOrganization(r.Context(), userID, orgID)
			if err != nil {
				t.respondResolveError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), TenantContextKey, tc)
			ctx = context.WithValue(ctx, OrganizationKey, org)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireActiveOrganization refuses requests whose organization is
// soft-deleted. Routes that must work on a deleted organization, reading
// it and recovering it, mount without this guard.
func (t *Tenant) RequireActiveOrganization() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			org, ok := GetOrganization(r.Context())
			if !ok {
				apierror.MissingTenantContext().WriteJSON(w)
				return
			}
			if org.IsDeleted() {
				apierror.AlreadyDeleted("organization").WriteJSON(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TeamScope narrows the tenant context to the team named by the {teamID}
// path parameter. Ids that are malformed, absent, or belong to another
// organization all read as not found.
func (t *Tenant) TeamScope() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, ok := GetTenantContext(r.Context())
			if !ok {
				apierror.MissingTenantContext().WriteJSON(w)
				return
			}

			teamID, err := shared.ParseID(r.PathValue("teamID"))
			if err != nil {
				metrics.RecordTenantContextFailure("cross_tenant")
				apierror.NotFound("team").WriteJSON(w)
				return
			}

			scoped, tm, err := t.resolver.WithTeamScope(r.Context(), tc, teamID)
			if err != nil {
				if shared.IsNotFound(err) {
					metrics.RecordTenantContextFailure("cross_tenant")
					apierror.NotFound("team").WriteJSON(w)
					return
				}
				t.logger.Error("team scope resolution failed", "error", err,
					"request_id", GetRequestID(r.Context()))
				apierror.InternalError(err).WriteJSON(w)
				return
			}

			ctx := context.WithValue(r.Context(), TenantContextKey, scoped)
			ctx = context.WithValue(ctx, TeamKey, tm)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ProjectScope narrows the tenant context to the project named by the
// {projectID} path parameter, resolving the caller's project role and the
// caller's role in the owning team in one pass.
func (t *Tenant) ProjectScope() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, ok := GetTenantContext(r.Context())
			if !ok {
				apierror.MissingTenantContext().WriteJSON(w)
				return
			}

			projectID, err := shared.ParseID(r.PathValue("projectID"))
			if err != nil {
				metrics.RecordTenantContextFailure("cross_tenant")
				apierror.NotFound("project").WriteJSON(w)
				return
			}

			scoped, p, err := t.resolver.WithProjectScope(r.Context(), tc, projectID)
			if err != nil {
				if shared.IsNotFound(err) {
					metrics.RecordTenantContextFailure("cross_tenant")
					apierror.NotFound("project").WriteJSON(w)
					return
				}
				t.logger.Error("project scope resolution failed", "error", err,
					"request_id", GetRequestID(r.Context()))
				apierror.InternalError(err).WriteJSON(w)
				return
			}

			ctx := context.WithValue(r.Context(), TenantContextKey, scoped)
			ctx = context.WithValue(ctx, ProjectKey, p)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireOrgRole denies the request unless the caller's organization role
// meets min.
func (t *Tenant) RequireOrgRole(min organization.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, ok := GetTenantContext(r.Context())
			if !ok {
				apierror.MissingTenantContext().WriteJSON(w)
				return
			}
			if err := t.authz.AuthorizeOrg(tc, min); err != nil {
				t.respondAuthzError(w, "organization", err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireTeamRole denies the request unless the caller's team role meets
// min. Organization owners and admins pass by inheritance.
func (t *Tenant) RequireTeamRole(min team.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, ok := GetTenantContext(r.Context())
			if !ok {
				apierror.MissingTenantContext().WriteJSON(w)
				return
			}
			if err := t.authz.AuthorizeTeam(tc, min); err != nil {
				t.respondAuthzError(w, "team", err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireProjectRole denies the request unless the caller's project role
// meets min. Organization owners and admins pass outright; a lead of the
// owning team passes through the inheritance chain.
func (t *Tenant) RequireProjectRole(min project.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, ok := GetTenantContext(r.Context())
			if !ok {
				apierror.MissingTenantContext().WriteJSON(w)
				return
			}
			if err := t.authz.AuthorizeProject(tc, min); err != nil {
				t.respondAuthzError(w, "project", err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// respondResolveError maps organization resolution failures. Metrics here
// count requests that never reached a role check.
func (t *Tenant) respondResolveError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shared.ErrMissingTenantContext):
		metrics.RecordTenantContextFailure("missing_org")
		apierror.MissingTenantContext().WriteJSON(w)
	case errors.Is(err, shared.ErrInvalidTenantContext):
		metrics.RecordTenantContextFailure("not_a_member")
		apierror.InvalidTenantContext().WriteJSON(w)
	default:
		t.logger.Error("tenant resolution failed", "error", err,
			"request_id", GetRequestID(r.Context()))
		apierror.InternalError(err).WriteJSON(w)
	}
}

// respondAuthzError maps role check failures to API errors. Denials are
// recorded here because a request stopped by a route guard never reaches
// the service-layer check.
func (t *Tenant) respondAuthzError(w http.ResponseWriter, scope string, err error) {
	var denied *shared.PermissionDeniedError
	switch {
	case errors.As(err, &denied):
		metrics.RecordAuthzDenied(scope, denied.RequiredRole)
		apierror.PermissionDenied(denied.Resource, denied.RequiredRole).WriteJSON(w)
	case errors.Is(err, shared.ErrMissingTenantContext):
		metrics.RecordTenantContextFailure("missing_org")
		apierror.MissingTenantContext().WriteJSON(w)
	case errors.Is(err, shared.ErrInvalidTenantContext):
		metrics.RecordTenantContextFailure("not_a_member")
		apierror.InvalidTenantContext().WriteJSON(w)
	case errors.Is(err, shared.ErrMissingTeamContext):
		metrics.RecordTenantContextFailure("missing_team")
		apierror.MissingTeamContext().WriteJSON(w)
	case errors.Is(err, shared.ErrMissingProjectContext):
		metrics.RecordTenantContextFailure("missing_project")
		apierror.MissingProjectContext().WriteJSON(w)
	default:
		apierror.InternalError(err).WriteJSON(w)
	}
}

// GetTenantContext extracts the resolved tenant context from context.
func GetTenantContext(ctx context.Context) (accesscontrol.TenantContext, bool) {
	tc, ok := ctx.Value(TenantContextKey).(accesscontrol.TenantContext)
	return tc, ok
}

// GetOrganization extracts the loaded organization from context.
func GetOrganization(ctx context.Context) (*organization.Organization, bool) {
	org, ok := ctx.Value(OrganizationKey).(*organization.Organization)
	return org, ok
}

// GetTeam extracts the team loaded by TeamScope from context.
func GetTeam(ctx context.Context) (*team.Team, bool) {
	tm, ok := ctx.Value(TeamKey).(*team.Team)
	return tm, ok
}

// GetProject extracts the project loaded by ProjectScope from context.
func GetProject(ctx context.Context) (*project.Project, bool) {
	p, ok := ctx.Value(ProjectKey).(*project.Project)
	return p, ok
}
