package app

import (
	"context"
	"fmt"

	"github.com/taskforge/api/pkg/domain/accesscontrol"
	"github.com/taskforge/api/pkg/domain/organization"
	"github.com/taskforge/api/pkg/domain/project"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/domain/team"
	"github.com/taskforge/api/pkg/logger"
)

// TenantContextService resolves the caller's scopes for one request. The
// token's organization claim is a hint, not a trust anchor: the organization
// row and every membership are re-read from storage on each request, and
// nothing is cached across requests.
type TenantContextService struct {
	orgs     organization.Repository
	teams    team.Repository
	projects project.Repository
	logger   *logger.Logger
}

// NewTenantContextService creates a new TenantContextService.
func NewTenantContextService(
	orgs organization.Repository,
	teams team.Repository,
	projects project.Repository,
	log *logger.Logger,
) *TenantContextService {
	return &TenantContextService{
		orgs:     orgs,
		teams:    teams,
		projects: projects,
		logger:   log.With("service", "tenant_context"),
	}
}

// ResolveOrganization builds the TenantContext for a request. The
// organization row is loaded including soft-deleted state so that an Owner
// can still reach recovery; callers enforce the active-organization rule
// where it applies. A missing organization and a caller who is not a member
// both resolve to ErrInvalidTenantContext.
func (s *TenantContextService) ResolveOrganization(ctx context.Context, userID, organizationID shared.ID) (accesscontrol.TenantContext, *organization.Organization, error) {
	tc := accesscontrol.TenantContext{UserID: userID}

	if organizationID.IsZero() {
		return tc, nil, fmt.Errorf("%w: token carries no organization", shared.ErrMissingTenantContext)
	}

	org, err := s.orgs.GetByID(ctx, organizationID, true)
	if err != nil {
		if shared.IsNotFound(err) {
			return tc, nil, fmt.Errorf("%w: organization %s", shared.ErrInvalidTenantContext, organizationID)
		}
		return tc, nil, fmt.Errorf("failed to load organization: %w", err)
	}

	member, err := s.orgs.GetMember(ctx, organizationID, userID)
	if err != nil {
		if shared.IsNotFound(err) {
			return tc, nil, fmt.Errorf("%w: caller is not a member of organization %s", shared.ErrInvalidTenantContext, organizationID)
		}
		return tc, nil, fmt.Errorf("failed to load organization membership: %w", err)
	}

	tc.OrganizationID = organizationID
	tc.OrgRole = member.Role()
	return tc, org, nil
}

// WithTeamScope narrows the context to one team from a URL path id. A team
// id belonging to another organization collapses to ErrNotFound in the
// repository. An absent membership leaves the team role empty; the resolver
// decides what that means per operation.
func (s *TenantContextService) WithTeamScope(ctx context.Context, tc accesscontrol.TenantContext, teamID shared.ID) (accesscontrol.TenantContext, *team.Team, error) {
	t, err := s.teams.GetByID(ctx, tc.OrganizationID, teamID, true)
	if err != nil {
		return tc, nil, err
	}

	role := team.Role("")
	m, err := s.teams.GetMember(ctx, teamID, tc.UserID)
	switch {
	case err == nil:
		role = m.Role()
	case !shared.IsNotFound(err):
		return tc, nil, fmt.Errorf("failed to load team membership: %w", err)
	}

	return tc.WithTeam(teamID, role), t, nil
}

// WithProjectScope narrows the context to one project from a URL path id,
// resolving both the caller's project role and the caller's role in the
// project's owning team so the lead-of-owning-team inheritance needs no
// further I/O.
func (s *TenantContextService) WithProjectScope(ctx context.Context, tc accesscontrol.TenantContext, projectID shared.ID) (accesscontrol.TenantContext, *project.Project, error) {
	p, err := s.projects.GetByID(ctx, tc.OrganizationID, projectID, true)
	if err != nil {
		return tc, nil, err
	}

	projectRole := project.Role("")
	pm, err := s.projects.GetMember(ctx, projectID, tc.UserID)
	switch {
	case err == nil:
		projectRole = pm.Role()
	case !shared.IsNotFound(err):
		return tc, nil, fmt.Errorf("failed to load project membership: %w", err)
	}

	owningTeamRole := team.Role("")
	tm, err := s.teams.GetMember(ctx, p.TeamID(), tc.UserID)
	switch {
	case err == nil:
		owningTeamRole = tm.Role()
	case !shared.IsNotFound(err):
		return tc, nil, fmt.Errorf("failed to load owning team membership: %w", err)
	}

	return tc.WithProject(projectID, projectRole, owningTeamRole), p, nil
}
