package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/taskforge/api/pkg/apierror"
	"github.com/taskforge/api/pkg/domain/accesscontrol"
	"github.com/taskforge/api/pkg/domain/organization"
	"github.com/taskforge/api/pkg/domain/project"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/domain/team"
	"github.com/taskforge/api/pkg/jwt"
	"github.com/taskforge/api/pkg/logger"
)

type fakeTenantResolver struct {
	resolveOrg   func(ctx context.Context, userID, organizationID shared.ID) (accesscontrol.TenantContext, *organization.Organization, error)
	teamScope    func(ctx context.Context, tc accesscontrol.TenantContext, teamID shared.ID) (accesscontrol.TenantContext, *team.Team, error)
	projectScope func(ctx context.Context, tc accesscontrol.TenantContext, projectID shared.ID) (accesscontrol.TenantContext, *project.Project, error)
}

func (f fakeTenantResolver) ResolveOrganization(ctx context.Context, userID, organizationID shared.ID) (accesscontrol.TenantContext, *organization.Organization, error) {
	return f.resolveOrg(ctx, userID, organizationID)
}

func (f fakeTenantResolver) WithTeamScope(ctx context.Context, tc accesscontrol.TenantContext, teamID shared.ID) (accesscontrol.TenantContext, *team.Team, error) {
	return f.teamScope(ctx, tc, teamID)
}

func (f fakeTenantResolver) WithProjectScope(ctx context.Context, tc accesscontrol.TenantContext, projectID shared.ID) (accesscontrol.TenantContext, *project.Project, error) {
	return f.projectScope(ctx, tc, projectID)
}

// scopedRequest builds a request whose tenant context is already resolved.
func scopedRequest(tc accesscontrol.TenantContext) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return req.WithContext(context.WithValue(req.Context(), TenantContextKey, tc))
}

func TestTenantOrganizationContext(t *testing.T) {
	log := logger.NewNop()
	userID := shared.NewID()
	org, err := organization.NewOrganization("Acme", "acme", userID)
	assert.NoError(t, err)

	memberCtx := accesscontrol.TenantContext{
		UserID:         userID,
		OrganizationID: org.ID(),
		OrgRole:        organization.RoleMember,
	}

	tests := []struct {
		name       string
		request    func() *http.Request
		resolve    func(ctx context.Context, userID, organizationID shared.ID) (accesscontrol.TenantContext, *organization.Organization, error)
		wantStatus int
		wantCode   apierror.Code
	}{
		{
			name: "no verified claims",
			request: func() *http.Request {
				return httptest.NewRequest(http.MethodGet, "/", nil)
			},
			wantStatus: http.StatusUnauthorized,
			wantCode:   apierror.CodeUnauthorized,
		},
		{
			name: "token without organization claim",
			request: func() *http.Request {
				return authedRequest(http.MethodGet, "/", &jwt.Claims{UserID: userID.String()})
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   apierror.CodeMissingTenantContext,
		},
		{
			name: "organization claim is not an id",
			request: func() *http.Request {
				return authedRequest(http.MethodGet, "/", &jwt.Claims{UserID: userID.String(), OrganizationID: "not-an-id"})
			},
			wantStatus: http.StatusForbidden,
			wantCode:   apierror.CodeInvalidTenantContext,
		},
		{
			name: "caller is not a member",
			request: func() *http.Request {
				return authedRequest(http.MethodGet, "/", &jwt.Claims{UserID: userID.String(), OrganizationID: org.ID().String()})
			},
			resolve: func(context.Context, shared.ID, shared.ID) (accesscontrol.TenantContext, *organization.Organization, error) {
				return accesscontrol.TenantContext{}, nil, shared.ErrInvalidTenantContext
			},
			wantStatus: http.StatusForbidden,
			wantCode:   apierror.CodeInvalidTenantContext,
		},
		{
			name: "storage failure",
			request: func() *http.Request {
				return authedRequest(http.MethodGet, "/", &jwt.Claims{UserID: userID.String(), OrganizationID: org.ID().String()})
			},
			resolve: func(context.Context, shared.ID, shared.ID) (accesscontrol.TenantContext, *organization.Organization, error) {
				return accesscontrol.TenantContext{}, nil, errors.New("connection reset")
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   apierror.CodeInternalError,
		},
		{
			name: "membership resolved",
			request: func() *http.Request {
				return authedRequest(http.MethodGet, "/", &jwt.Claims{UserID: userID.String(), OrganizationID: org.ID().String()})
			},
			resolve: func(_ context.Context, gotUser, gotOrg shared.ID) (accesscontrol.TenantContext, *organization.Organization, error) {
				assert.Equal(t, userID, gotUser)
				assert.Equal(t, org.ID(), gotOrg)
				return memberCtx, org, nil
			},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotTC accesscontrol.TenantContext
			var gotOrg *organization.Organization
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotTC, _ = GetTenantContext(r.Context())
				gotOrg, _ = GetOrganization(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			mw := NewTenant(fakeTenantResolver{resolveOrg: tt.resolve}, log)
			wrapped := mw.OrganizationContext()(handler)

			rec := httptest.NewRecorder()
			wrapped.ServeHTTP(rec, tt.request())

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, memberCtx, gotTC)
				assert.Equal(t, org, gotOrg)
			} else {
				assert.Equal(t, string(tt.wantCode), decodeErrorCode(t, rec))
			}
		})
	}
}

func TestTenantRequireActiveOrganization(t *testing.T) {
	log := logger.NewNop()
	wrapped := NewTenant(fakeTenantResolver{}, log).RequireActiveOrganization()(okHandler())

	orgRequest := func(org *organization.Organization) *http.Request {
		req := httptest.NewRequest(http.MethodDelete, "/", nil)
		return req.WithContext(context.WithValue(req.Context(), OrganizationKey, org))
	}

	t.Run("active organization passes", func(t *testing.T) {
		org, err := organization.NewOrganization("Acme", "acme", shared.NewID())
		assert.NoError(t, err)

		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, orgRequest(org))

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("soft-deleted organization is fenced", func(t *testing.T) {
		org, err := organization.NewOrganization("Acme", "acme", shared.NewID())
		assert.NoError(t, err)
		assert.NoError(t, org.SoftDelete(time.Now()))

		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, orgRequest(org))

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, string(apierror.CodeAlreadyDeleted), decodeErrorCode(t, rec))
	})

	t.Run("missing organization context", func(t *testing.T) {
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, string(apierror.CodeMissingTenantContext), decodeErrorCode(t, rec))
	})
}

func TestTenantTeamScope(t *testing.T) {
	log := logger.NewNop()
	userID := shared.NewID()
	orgID := shared.NewID()

	base := accesscontrol.TenantContext{UserID: userID, OrganizationID: orgID, OrgRole: organization.RoleMember}
	tm, err := team.NewTeam(orgID, "Platform", "", userID)
	assert.NoError(t, err)

	teamRequest := func(tc accesscontrol.TenantContext, pathID string) *http.Request {
		req := scopedRequest(tc)
		req.SetPathValue("teamID", pathID)
		return req
	}

	t.Run("missing tenant context", func(t *testing.T) {
		wrapped := NewTenant(fakeTenantResolver{}, log).TeamScope()(okHandler())

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.SetPathValue("teamID", tm.ID().String())
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, string(apierror.CodeMissingTenantContext), decodeErrorCode(t, rec))
	})

	t.Run("malformed id reads as not found", func(t *testing.T) {
		wrapped := NewTenant(fakeTenantResolver{}, log).TeamScope()(okHandler())

		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, teamRequest(base, "not-an-id"))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, string(apierror.CodeNotFound), decodeErrorCode(t, rec))
	})

	t.Run("team of another organization reads as not found", func(t *testing.T) {
		resolver := fakeTenantResolver{teamScope: func(context.Context, accesscontrol.TenantContext, shared.ID) (accesscontrol.TenantContext, *team.Team, error) {
			return accesscontrol.TenantContext{}, nil, shared.ErrNotFound
		}}
		wrapped := NewTenant(resolver, log).TeamScope()(okHandler())

		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, teamRequest(base, shared.NewID().String()))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, string(apierror.CodeNotFound), decodeErrorCode(t, rec))
	})

	t.Run("resolution failure", func(t *testing.T) {
		resolver := fakeTenantResolver{teamScope: func(context.Context, accesscontrol.TenantContext, shared.ID) (accesscontrol.TenantContext, *team.Team, error) {
			return accesscontrol.TenantContext{}, nil, errors.New("connection reset")
		}}
		wrapped := NewTenant(resolver, log).TeamScope()(okHandler())

		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, teamRequest(base, tm.ID().String()))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("narrows the context", func(t *testing.T) {
		scoped := base.WithTeam(tm.ID(), team.RoleLead)
		resolver := fakeTenantResolver{teamScope: func(_ context.Context, tc accesscontrol.TenantContext, teamID shared.ID) (accesscontrol.TenantContext, *team.Team, error) {
			assert.Equal(t, base, tc)
			assert.Equal(t, tm.ID(), teamID)
			return scoped, tm, nil
		}}

		var gotTC accesscontrol.TenantContext
		var gotTeam *team.Team
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotTC, _ = GetTenantContext(r.Context())
			gotTeam, _ = GetTeam(r.Context())
			w.WriteHeader(http.StatusOK)
		})

		wrapped := NewTenant(resolver, log).TeamScope()(handler)
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, teamRequest(base, tm.ID().String()))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, scoped, gotTC)
		assert.Equal(t, tm, gotTeam)
	})
}

func TestTenantProjectScope(t *testing.T) {
	log := logger.NewNop()
	userID := shared.NewID()
	orgID := shared.NewID()
	teamID := shared.NewID()

	base := accesscontrol.TenantContext{UserID: userID, OrganizationID: orgID, OrgRole: organization.RoleMember}
	p, err := project.NewProject(teamID, orgID, "Launch", "", userID)
	assert.NoError(t, err)

	projectRequest := func(tc accesscontrol.TenantContext, pathID string) *http.Request {
		req := scopedRequest(tc)
		req.SetPathValue("projectID", pathID)
		return req
	}

	t.Run("malformed id reads as not found", func(t *testing.T) {
		wrapped := NewTenant(fakeTenantResolver{}, log).ProjectScope()(okHandler())

		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, projectRequest(base, "not-an-id"))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, string(apierror.CodeNotFound), decodeErrorCode(t, rec))
	})

	t.Run("project of another organization reads as not found", func(t *testing.T) {
		resolver := fakeTenantResolver{projectScope: func(context.Context, accesscontrol.TenantContext, shared.ID) (accesscontrol.TenantContext, *project.Project, error) {
			return accesscontrol.TenantContext{}, nil, shared.ErrNotFound
		}}
		wrapped := NewTenant(resolver, log).ProjectScope()(okHandler())

		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, projectRequest(base, shared.NewID().String()))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("narrows the context", func(t *testing.T) {
		scoped := base.WithProject(p.ID(), project.RoleContributor, team.RoleLead)
		resolver := fakeTenantResolver{projectScope: func(_ context.Context, tc accesscontrol.TenantContext, projectID shared.ID) (accesscontrol.TenantContext, *project.Project, error) {
			assert.Equal(t, base, tc)
			assert.Equal(t, p.ID(), projectID)
			return scoped, p, nil
		}}

		var gotTC accesscontrol.TenantContext
		var gotProject *project.Project
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotTC, _ = GetTenantContext(r.Context())
			gotProject, _ = GetProject(r.Context())
			w.WriteHeader(http.StatusOK)
		})

		wrapped := NewTenant(resolver, log).ProjectScope()(handler)
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, projectRequest(base, p.ID().String()))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, scoped, gotTC)
		assert.Equal(t, p, gotProject)
		assert.Equal(t, team.RoleLead, gotTC.ProjectTeamRole)
	})
}

func TestTenantRequireOrgRole(t *testing.T) {
	log := logger.NewNop()
	mw := NewTenant(fakeTenantResolver{}, log)
	base := accesscontrol.TenantContext{UserID: shared.NewID(), OrganizationID: shared.NewID()}

	tests := []struct {
		name       string
		role       organization.Role
		min        organization.Role
		wantStatus int
	}{
		{"owner meets admin", organization.RoleOwner, organization.RoleAdmin, http.StatusOK},
		{"admin meets admin", organization.RoleAdmin, organization.RoleAdmin, http.StatusOK},
		{"member meets member", organization.RoleMember, organization.RoleMember, http.StatusOK},
		{"member denied admin", organization.RoleMember, organization.RoleAdmin, http.StatusForbidden},
		{"admin denied owner", organization.RoleAdmin, organization.RoleOwner, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := base
			tc.OrgRole = tt.role
			wrapped := mw.RequireOrgRole(tt.min)(okHandler())

			rec := httptest.NewRecorder()
			wrapped.ServeHTTP(rec, scopedRequest(tc))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusForbidden {
				assert.Equal(t, string(apierror.CodeForbidden), decodeErrorCode(t, rec))
			}
		})
	}

	t.Run("no tenant context", func(t *testing.T) {
		wrapped := mw.RequireOrgRole(organization.RoleMember)(okHandler())

		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, string(apierror.CodeMissingTenantContext), decodeErrorCode(t, rec))
	})
}

func TestTenantRequireTeamRole(t *testing.T) {
	log := logger.NewNop()
	mw := NewTenant(fakeTenantResolver{}, log)
	teamID := shared.NewID()

	member := accesscontrol.TenantContext{
		UserID:         shared.NewID(),
		OrganizationID: shared.NewID(),
		OrgRole:        organization.RoleMember,
	}
	admin := member
	admin.OrgRole = organization.RoleAdmin

	tests := []struct {
		name       string
		tc         accesscontrol.TenantContext
		min        team.Role
		wantStatus int
		wantCode   apierror.Code
	}{
		{
			name:       "org admin passes without team membership",
			tc:         admin,
			min:        team.RoleLead,
			wantStatus: http.StatusOK,
		},
		{
			name:       "team lead meets lead",
			tc:         member.WithTeam(teamID, team.RoleLead),
			min:        team.RoleLead,
			wantStatus: http.StatusOK,
		},
		{
			name:       "team member denied lead",
			tc:         member.WithTeam(teamID, team.RoleMember),
			min:        team.RoleLead,
			wantStatus: http.StatusForbidden,
			wantCode:   apierror.CodeForbidden,
		},
		{
			name:       "member without team scope",
			tc:         member,
			min:        team.RoleMember,
			wantStatus: http.StatusBadRequest,
			wantCode:   apierror.CodeMissingTeamContext,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := mw.RequireTeamRole(tt.min)(okHandler())

			rec := httptest.NewRecorder()
			wrapped.ServeHTTP(rec, scopedRequest(tt.tc))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				assert.Equal(t, string(tt.wantCode), decodeErrorCode(t, rec))
			}
		})
	}
}

func TestTenantRequireProjectRole(t *testing.T) {
	log := logger.NewNop()
	mw := NewTenant(fakeTenantResolver{}, log)
	projectID := shared.NewID()

	member := accesscontrol.TenantContext{
		UserID:         shared.NewID(),
		OrganizationID: shared.NewID(),
		OrgRole:        organization.RoleMember,
	}
	admin := member
	admin.OrgRole = organization.RoleAdmin

	tests := []struct {
		name       string
		tc         accesscontrol.TenantContext
		min        project.Role
		wantStatus int
		wantCode   apierror.Code
	}{
		{
			name:       "org admin passes outright",
			tc:         admin,
			min:        project.RoleManager,
			wantStatus: http.StatusOK,
		},
		{
			name:       "manager meets contributor",
			tc:         member.WithProject(projectID, project.RoleManager, team.RoleMember),
			min:        project.RoleContributor,
			wantStatus: http.StatusOK,
		},
		{
			name:       "lead of owning team passes without project membership",
			tc:         member.WithProject(projectID, "", team.RoleLead),
			min:        project.RoleManager,
			wantStatus: http.StatusOK,
		},
		{
			name:       "viewer denied contributor",
			tc:         member.WithProject(projectID, project.RoleViewer, team.RoleMember),
			min:        project.RoleContributor,
			wantStatus: http.StatusForbidden,
			wantCode:   apierror.CodeForbidden,
		},
		{
			name:       "member without project scope",
			tc:         member,
			min:        project.RoleViewer,
			wantStatus: http.StatusBadRequest,
			wantCode:   apierror.CodeMissingProjectContext,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := mw.RequireProjectRole(tt.min)(okHandler())

			rec := httptest.NewRecorder()
			wrapped.ServeHTTP(rec, scopedRequest(tt.tc))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				assert.Equal(t, string(tt.wantCode), decodeErrorCode(t, rec))
			}
		})
	}
}
