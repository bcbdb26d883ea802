package accesscontrol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskforge/api/pkg/domain/organization"
	"github.com/taskforge/api/pkg/domain/project"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/domain/team"
)

func memberContext(orgRole organization.Role) TenantContext {
	return TenantContext{
		UserID:         shared.NewID(),
		OrganizationID: shared.NewID(),
		OrgRole:        orgRole,
	}
}

func TestResolver_AuthorizeOrg(t *testing.T) {
	r := NewResolver()

	t.Run("no organization scope", func(t *testing.T) {
		err := r.AuthorizeOrg(TenantContext{UserID: shared.NewID()}, organization.RoleMember)
		assert.ErrorIs(t, err, shared.ErrMissingTenantContext)
	})

	t.Run("not a member", func(t *testing.T) {
		tc := TenantContext{UserID: shared.NewID(), OrganizationID: shared.NewID()}
		err := r.AuthorizeOrg(tc, organization.RoleMember)
		assert.ErrorIs(t, err, shared.ErrInvalidTenantContext)
	})

	t.Run("member below admin", func(t *testing.T) {
		err := r.AuthorizeOrg(memberContext(organization.RoleMember), organization.RoleAdmin)
		assert.ErrorIs(t, err, shared.ErrPermissionDenied)
	})

	t.Run("admin below owner", func(t *testing.T) {
		err := r.AuthorizeOrg(memberContext(organization.RoleAdmin), organization.RoleOwner)
		assert.ErrorIs(t, err, shared.ErrPermissionDenied)
	})

	t.Run("owner passes everything", func(t *testing.T) {
		tc := memberContext(organization.RoleOwner)
		for _, min := range organization.Roles() {
			assert.NoError(t, r.AuthorizeOrg(tc, min))
		}
	})
}

// Org owners and admins do team-level work without team membership rows.
func TestResolver_AuthorizeTeam_OrgInheritance(t *testing.T) {
	r := NewResolver()

	for _, role := range []organization.Role{organization.RoleOwner, organization.RoleAdmin} {
		t.Run(role.String(), func(t *testing.T) {
			tc := memberContext(role)
			assert.NoError(t, r.AuthorizeTeam(tc, team.RoleLead))
			assert.NoError(t, r.AuthorizeTeam(tc, team.RoleMember))
		})
	}

	t.Run("plain member needs team scope", func(t *testing.T) {
		tc := memberContext(organization.RoleMember)
		err := r.AuthorizeTeam(tc, team.RoleMember)
		assert.ErrorIs(t, err, shared.ErrMissingTeamContext)
	})

	t.Run("team member below lead", func(t *testing.T) {
		tc := memberContext(organization.RoleMember).WithTeam(shared.NewID(), team.RoleMember)
		err := r.AuthorizeTeam(tc, team.RoleLead)
		assert.ErrorIs(t, err, shared.ErrPermissionDenied)
	})

	t.Run("team lead passes", func(t *testing.T) {
		tc := memberContext(organization.RoleMember).WithTeam(shared.NewID(), team.RoleLead)
		assert.NoError(t, r.AuthorizeTeam(tc, team.RoleLead))
	})

	t.Run("non-member never reaches the team check", func(t *testing.T) {
		tc := TenantContext{UserID: shared.NewID(), OrganizationID: shared.NewID()}
		tc = tc.WithTeam(shared.NewID(), team.RoleLead)
		err := r.AuthorizeTeam(tc, team.RoleMember)
		assert.ErrorIs(t, err, shared.ErrInvalidTenantContext)
	})
}

func TestResolver_AuthorizeProject_Inheritance(t *testing.T) {
	r := NewResolver()

	t.Run("org owner without any membership rows", func(t *testing.T) {
		tc := memberContext(organization.RoleOwner)
		assert.NoError(t, r.AuthorizeProject(tc, project.RoleManager))
	})

	t.Run("org admin without any membership rows", func(t *testing.T) {
		tc := memberContext(organization.RoleAdmin)
		assert.NoError(t, r.AuthorizeProject(tc, project.RoleManager))
	})

	t.Run("lead of the owning team chains through", func(t *testing.T) {
		tc := memberContext(organization.RoleMember).
			WithProject(shared.NewID(), "", team.RoleLead)
		assert.NoError(t, r.AuthorizeProject(tc, project.RoleManager))
	})

	t.Run("member of the owning team does not chain", func(t *testing.T) {
		tc := memberContext(organization.RoleMember).
			WithProject(shared.NewID(), "", team.RoleMember)
		err := r.AuthorizeProject(tc, project.RoleViewer)
		assert.ErrorIs(t, err, shared.ErrPermissionDenied)
	})

	t.Run("plain member needs project scope", func(t *testing.T) {
		tc := memberContext(organization.RoleMember)
		err := r.AuthorizeProject(tc, project.RoleViewer)
		assert.ErrorIs(t, err, shared.ErrMissingProjectContext)
	})

	t.Run("contributor below manager", func(t *testing.T) {
		tc := memberContext(organization.RoleMember).
			WithProject(shared.NewID(), project.RoleContributor, "")
		err := r.AuthorizeProject(tc, project.RoleManager)
		assert.ErrorIs(t, err, shared.ErrPermissionDenied)
	})

	t.Run("manager passes", func(t *testing.T) {
		tc := memberContext(organization.RoleMember).
			WithProject(shared.NewID(), project.RoleManager, "")
		assert.NoError(t, r.AuthorizeProject(tc, project.RoleManager))
	})
}

// Granting a higher role never loses access a lower role had.
func TestResolver_RoleMonotonicity(t *testing.T) {
	r := NewResolver()

	t.Run("organization", func(t *testing.T) {
		for _, min := range organization.Roles() {
			allowed := false
			// Roles() is ordered highest first; walk lowest to highest.
			roles := organization.Roles()
			for i := len(roles) - 1; i >= 0; i-- {
				err := r.AuthorizeOrg(memberContext(roles[i]), min)
				if err == nil {
					allowed = true
				}
				if allowed {
					assert.NoError(t, err, "role %s lost access to min %s held by a lower role", roles[i], min)
				}
			}
		}
	})

	t.Run("project", func(t *testing.T) {
		for _, min := range project.Roles() {
			allowed := false
			roles := project.Roles()
			for i := len(roles) - 1; i >= 0; i-- {
				tc := memberContext(organization.RoleMember).
					WithProject(shared.NewID(), roles[i], "")
				err := r.AuthorizeProject(tc, min)
				if err == nil {
					allowed = true
				}
				if allowed {
					assert.NoError(t, err, "role %s lost access to min %s held by a lower role", roles[i], min)
				}
			}
		}
	})
}

// Denials name the minimum required role, never the caller's actual role.
func TestResolver_DenialCarriesRequiredRoleOnly(t *testing.T) {
	r := NewResolver()

	tc := memberContext(organization.RoleMember).WithTeam(shared.NewID(), team.RoleMember)
	err := r.AuthorizeTeam(tc, team.RoleLead)
	require.Error(t, err)

	var denied *shared.PermissionDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, "team", denied.Resource)
	assert.Equal(t, "lead", denied.RequiredRole)
	assert.NotContains(t, err.Error(), "member")
}
