package accesscontrol

import (
	"fmt"

	"github.com/taskforge/api/pkg/domain/organization"
	"github.com/taskforge/api/pkg/domain/project"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/domain/team"
)

// Resolver decides authorization over a resolved TenantContext. Checks run
// top-down, organization before team before project, and the first grant
// short-circuits. Denials carry the minimum required role and never the
// caller's actual role.
type Resolver struct{}

// NewResolver creates a new Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// AuthorizeOrg requires an organization membership of at least min.
func (r *Resolver) AuthorizeOrg(tc TenantContext, min organization.Role) error {
	if !tc.HasOrg() {
		return fmt.Errorf("%w: request carries no organization scope", shared.ErrMissingTenantContext)
	}
	if tc.OrgRole == "" {
		return fmt.Errorf("%w: caller is not a member of the organization", shared.ErrInvalidTenantContext)
	}
	if tc.OrgRole.Meets(min) {
		return nil
	}
	return shared.DeniedPermission("organization", min.String())
}

// AuthorizeTeam requires a team membership of at least min. Organization
// owners and admins pass without a team membership row.
func (r *Resolver) AuthorizeTeam(tc TenantContext, min team.Role) error {
	if err := r.AuthorizeOrg(tc, organization.RoleMember); err != nil {
		return err
	}
	if tc.OrgRole.InheritsTeamAccess() {
		return nil
	}
	if !tc.HasTeam() {
		return fmt.Errorf("%w: request carries no team scope", shared.ErrMissingTeamContext)
	}
	if tc.TeamRole.Meets(min) {
		return nil
	}
	return shared.DeniedPermission("team", min.String())
}

// AuthorizeProject requires a project membership of at least min.
// Organization owners and admins pass outright; a lead of the project's
// owning team passes through the two-level inheritance chain.
func (r *Resolver) AuthorizeProject(tc TenantContext, min project.Role) error {
	if err := r.AuthorizeOrg(tc, organization.RoleMember); err != nil {
		return err
	}
	if tc.OrgRole.InheritsTeamAccess() {
		return nil
	}
	if !tc.HasProject() {
		return fmt.Errorf("%w: request carries no project scope", shared.ErrMissingProjectContext)
	}
	if tc.ProjectTeamRole == team.RoleLead {
		return nil
	}
	if tc.ProjectRole.Meets(min) {
		return nil
	}
	return shared.DeniedPermission("project", min.String())
}
