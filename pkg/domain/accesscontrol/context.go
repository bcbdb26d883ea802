// Package accesscontrol resolves what a caller may do inside an
// organization. The resolver is pure: membership lookups happen at the edge,
// the decision over the resolved roles happens here, and both the transport
// middleware and the services run the same decision.
package accesscontrol

import (
	"github.com/taskforge/api/pkg/domain/organization"
	"github.com/taskforge/api/pkg/domain/project"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/domain/team"
)

// TenantContext is the resolved identity of one request: the caller, the
// organization the request runs in, and the caller's roles at every scope the
// request touches. Zero IDs mean the scope is absent from the request; empty
// roles mean no membership at that scope.
type TenantContext struct {
	UserID shared.ID

	OrganizationID shared.ID
	OrgRole        organization.Role

	TeamID   shared.ID
	TeamRole team.Role

	ProjectID   shared.ID
	ProjectRole project.Role

	// ProjectTeamRole is the caller's role in the team owning ProjectID.
	// It feeds the lead-of-owning-team inheritance and is resolved together
	// with the project scope.
	ProjectTeamRole team.Role
}

// HasOrg reports whether the request carries an organization scope.
func (tc TenantContext) HasOrg() bool {
	return !tc.OrganizationID.IsZero()
}

// HasTeam reports whether the request carries a team scope.
func (tc TenantContext) HasTeam() bool {
	return !tc.TeamID.IsZero()
}

// HasProject reports whether the request carries a project scope.
func (tc TenantContext) HasProject() bool {
	return !tc.ProjectID.IsZero()
}

// WithTeam returns a copy scoped to the given team.
func (tc TenantContext) WithTeam(teamID shared.ID, role team.Role) TenantContext {
	tc.TeamID = teamID
	tc.TeamRole = role
	return tc
}

// WithProject returns a copy scoped to the given project. owningTeamRole is
// the caller's role in the project's owning team.
func (tc TenantContext) WithProject(projectID shared.ID, role project.Role, owningTeamRole team.Role) TenantContext {
	tc.ProjectID = projectID
	tc.ProjectRole = role
	tc.ProjectTeamRole = owningTeamRole
	return tc
}
