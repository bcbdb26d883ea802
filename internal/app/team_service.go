package app

import (
	"context"
	"fmt"
	"time"

	"github.com/taskforge/api/internal/metrics"
	"github.com/taskforge/api/pkg/domain/accesscontrol"
	"github.com/taskforge/api/pkg/domain/audit"
	"github.com/taskforge/api/pkg/domain/organization"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/domain/team"
	"github.com/taskforge/api/pkg/domain/user"
	"github.com/taskforge/api/pkg/logger"
	"github.com/taskforge/api/pkg/validator"
)

// TeamService handles team lifecycle and team membership.
type TeamService struct {
	teams       team.Repository
	orgs        organization.Repository
	users       user.Repository
	resolver    *accesscontrol.Resolver
	validate    *validator.Validator
	broadcaster ActivityBroadcaster
	logger      *logger.Logger
}

// NewTeamService creates a new TeamService.
func NewTeamService(
	teams team.Repository,
	orgs organization.Repository,
	users user.Repository,
	log *logger.Logger,
	opts ...TeamServiceOption,
) *TeamService {
	s := &TeamService{
		teams:       teams,
		orgs:        orgs,
		users:       users,
		resolver:    accesscontrol.NewResolver(),
		validate:    validator.New(),
		broadcaster: NoOpActivityBroadcaster{},
		logger:      log.With("service", "team"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TeamServiceOption is a functional option for TeamService.
type TeamServiceOption func(*TeamService)

// WithTeamBroadcaster sets the activity broadcaster.
func WithTeamBroadcaster(b ActivityBroadcaster) TeamServiceOption {
	return func(s *TeamService) {
		s.broadcaster = b
	}
}

// CreateTeamInput carries a team creation request.
type CreateTeamInput struct {
	Name        string `json:"name" validate:"required,min=2,max=100"`
	Description string `json:"description" validate:"omitempty,max=500"`
}

// Create adds a team to the organization. Requires org Admin. The creator
// gets no TeamMember row; org-level inheritance already covers them.
func (s *TeamService) Create(ctx context.Context, tc accesscontrol.TenantContext, input CreateTeamInput) (*team.Team, error) {
	if err := s.validate.Validate(input); err != nil {
		return nil, err
	}
	if err := checked("organization", s.resolver.AuthorizeOrg(tc, organization.RoleAdmin)); err != nil {
		return nil, err
	}

	t, err := team.NewTeam(tc.OrganizationID, input.Name, input.Description, tc.UserID)
	if err != nil {
		return nil, err
	}

	entry, err := audit.NewEntry(tc.OrganizationID, audit.ActionCreate, audit.ResourceTeam, t.ID().String())
	if err != nil {
		return nil, err
	}
	entry.WithActor(tc.UserID).WithContext("name", t.Name())

	if err := s.teams.Create(ctx, t, entry); err != nil {
		return nil, fmt.Errorf("failed to create team: %w", err)
	}

	s.logger.Info("team created",
		"organization_id", tc.OrganizationID.String(),
		"team_id", t.ID().String(),
		"name", t.Name(),
	)
	teamID := t.ID()
	publish(s.broadcaster, entry, &teamID, nil)
	return t, nil
}

// Get returns one team. Any organization member may read it.
func (s *TeamService) Get(ctx context.Context, tc accesscontrol.TenantContext, teamID shared.ID, includeDeleted bool) (*team.Team, error) {
	if err := checked("organization", s.resolver.AuthorizeOrg(tc, organization.RoleMember)); err != nil {
		return nil, err
	}
	return s.teams.GetByID(ctx, tc.OrganizationID, teamID, includeDeleted)
}

// List returns the organization's teams, newest first.
func (s *TeamService) List(ctx context.Context, tc accesscontrol.TenantContext, includeDeleted bool) ([]*team.Team, error) {
	if err := checked("organization", s.resolver.AuthorizeOrg(tc, organization.RoleMember)); err != nil {
		return nil, err
	}
	teams, err := s.teams.List(ctx, tc.OrganizationID, includeDeleted)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	return teams, nil
}

// UpdateTeamInput carries partial updates; nil fields stay as they are.
type UpdateTeamInput struct {
	Name        *string `json:"name" validate:"omitempty,min=2,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

// Update renames or redescribes the team scoped by the context. Requires
// team Lead or an inheriting org role.
func (s *TeamService) Update(ctx context.Context, tc accesscontrol.TenantContext, input UpdateTeamInput) (*team.Team, error) {
	if err := s.validate.Validate(input); err != nil {
		return nil, err
	}
	if err := checked("team", s.resolver.AuthorizeTeam(tc, team.RoleLead)); err != nil {
		return nil, err
	}

	t, err := s.teams.GetByID(ctx, tc.OrganizationID, tc.TeamID, false)
	if err != nil {
		return nil, err
	}

	entry, err := audit.NewEntry(tc.OrganizationID, audit.ActionUpdate, audit.ResourceTeam, t.ID().String())
	if err != nil {
		return nil, err
	}
	entry.WithActor(tc.UserID)

	changed := false
	if input.Name != nil && *input.Name != t.Name() {
		if err := t.UpdateName(*input.Name); err != nil {
			return nil, err
		}
		entry.WithContext("name", t.Name())
		changed = true
	}
	if input.Description != nil && *input.Description != t.Description() {
		t.UpdateDescription(*input.Description)
		entry.WithContext("description", t.Description())
		changed = true
	}
	if !changed {
		return t, nil
	}

	if err := s.teams.Update(ctx, t, entry); err != nil {
		return nil, fmt.Errorf("failed to update team: %w", err)
	}
	teamID := t.ID()
	publish(s.broadcaster, entry, &teamID, nil)
	return t, nil
}

// SoftDelete stamps the team and cascades the same stamp to its live
// projects and their live tasks, all in one transaction. Requires team Lead
// or an inheriting org role.
func (s *TeamService) SoftDelete(ctx context.Context, tc accesscontrol.TenantContext) (*team.CascadeResult, error) {
	if err := checked("team", s.resolver.AuthorizeTeam(tc, team.RoleLead)); err != nil {
		return nil, err
	}

	deletedAt := time.Now().UTC()
	entry, err := audit.NewEntry(tc.OrganizationID, audit.ActionSoftDelete, audit.ResourceTeam, tc.TeamID.String())
	if err != nil {
		return nil, err
	}
	entry.WithActor(tc.UserID).WithContext("deleted_at", deletedAt.Format(time.RFC3339Nano))

	result, err := s.teams.SoftDeleteCascade(ctx, tc.OrganizationID, tc.TeamID, deletedAt, entry)
	if err != nil {
		return nil, err
	}

	metrics.RecordCascade("team", "soft_delete", result.Projects+result.Tasks)
	s.logger.Info("team soft-deleted",
		"organization_id", tc.OrganizationID.String(),
		"team_id", tc.TeamID.String(),
		"cascaded_projects", result.Projects,
		"cascaded_tasks", result.Tasks,
	)
	teamID := tc.TeamID
	publish(s.broadcaster, entry, &teamID, nil)
	return result, nil
}

// Recover clears the team's stamp and the stamps of exactly the children the
// team's own deletion cascaded to. Requires team Lead or an inheriting org
// role.
func (s *TeamService) Recover(ctx context.Context, tc accesscontrol.TenantContext) (*team.CascadeResult, error) {
	if err := checked("team", s.resolver.AuthorizeTeam(tc, team.RoleLead)); err != nil {
		return nil, err
	}

	entry, err := audit.NewEntry(tc.OrganizationID, audit.ActionRecover, audit.ResourceTeam, tc.TeamID.String())
	if err != nil {
		return nil, err
	}
	entry.WithActor(tc.UserID)

	result, err := s.teams.RecoverCascade(ctx, tc.OrganizationID, tc.TeamID, entry)
	if err != nil {
		return nil, err
	}

	metrics.RecordCascade("team", "recover", result.Projects+result.Tasks)
	s.logger.Info("team recovered",
		"organization_id", tc.OrganizationID.String(),
		"team_id", tc.TeamID.String(),
		"recovered_projects", result.Projects,
		"recovered_tasks", result.Tasks,
	)
	teamID := tc.TeamID
	publish(s.broadcaster, entry, &teamID, nil)
	return result, nil
}

// ListMembers returns the team's members with user details.
func (s *TeamService) ListMembers(ctx context.Context, tc accesscontrol.TenantContext) ([]*team.MemberWithUser, error) {
	if err := checked("organization", s.resolver.AuthorizeOrg(tc, organization.RoleMember)); err != nil {
		return nil, err
	}
	members, err := s.teams.ListMembers(ctx, tc.TeamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	return members, nil
}

// AddTeamMemberInput grants an organization member a role in the team.
type AddTeamMemberInput struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	Role   string `json:"role" validate:"required,team_role"`
}

// AddMember grants a team membership. Requires team Lead or an inheriting
// org role, and the user must already be an organization member.
func (s *TeamService) AddMember(ctx context.Context, tc accesscontrol.TenantContext, input AddTeamMemberInput) (*team.Member, error) {
	if err := s.validate.Validate(input); err != nil {
		return nil, err
	}
	if err := checked("team", s.resolver.AuthorizeTeam(tc, team.RoleLead)); err != nil {
		return nil, err
	}

	userID, err := shared.ParseID(input.UserID)
	if err != nil {
		return nil, err
	}
	if _, err := s.orgs.GetMember(ctx, tc.OrganizationID, userID); err != nil {
		if shared.IsNotFound(err) {
			return nil, fmt.Errorf("%w: user %s is not a member of the organization", shared.ErrPrerequisiteMembership, userID)
		}
		return nil, fmt.Errorf("failed to check organization membership: %w", err)
	}

	role, _ := team.ParseRole(input.Role)
	member, err := team.NewMember(tc.TeamID, tc.OrganizationID, userID, role, &tc.UserID)
	if err != nil {
		return nil, err
	}

	entry, err := audit.NewEntry(tc.OrganizationID, audit.ActionAddMember, audit.ResourceMembership, member.ID().String())
	if err != nil {
		return nil, err
	}
	entry.WithActor(tc.UserID).
		WithContext("level", "team").
		WithContext("team_id", tc.TeamID.String()).
		WithContext("user_id", userID.String()).
		WithContext("role", role.String())

	if err := s.teams.AddMember(ctx, member, entry); err != nil {
		return nil, err
	}

	metrics.RecordMembershipChange("team", "add")
	teamID := tc.TeamID
	publish(s.broadcaster, entry, &teamID, nil)
	return member, nil
}

// RemoveMember revokes a team membership. Requires team Lead or an
// inheriting org role.
func (s *TeamService) RemoveMember(ctx context.Context, tc accesscontrol.TenantContext, userID shared.ID) error {
	if err := checked("team", s.resolver.AuthorizeTeam(tc, team.RoleLead)); err != nil {
		return err
	}

	target, err := s.teams.GetMember(ctx, tc.TeamID, userID)
	if err != nil {
		return err
	}

	entry, err := audit.NewEntry(tc.OrganizationID, audit.ActionRemoveMember, audit.ResourceMembership, target.ID().String())
	if err != nil {
		return err
	}
	entry.WithActor(tc.UserID).
		WithContext("level", "team").
		WithContext("team_id", tc.TeamID.String()).
		WithContext("user_id", userID.String()).
		WithContext("role", target.Role().String())

	if err := s.teams.RemoveMember(ctx, tc.TeamID, userID, entry); err != nil {
		return err
	}

	metrics.RecordMembershipChange("team", "remove")
	teamID := tc.TeamID
	publish(s.broadcaster, entry, &teamID, nil)
	return nil
}

// UpdateTeamMemberRoleInput changes an existing member's role.
type UpdateTeamMemberRoleInput struct {
	Role string `json:"role" validate:"required,team_role"`
}

// UpdateMemberRole changes a team member's role. Requires team Lead or an
// inheriting org role.
func (s *TeamService) UpdateMemberRole(ctx context.Context, tc accesscontrol.TenantContext, userID shared.ID, input UpdateTeamMemberRoleInput) (*team.Member, error) {
	if err := s.validate.Validate(input); err != nil {
		return nil, err
	}
	if err := checked("team", s.resolver.AuthorizeTeam(tc, team.RoleLead)); err != nil {
		return nil, err
	}

	target, err := s.teams.GetMember(ctx, tc.TeamID, userID)
	if err != nil {
		return nil, err
	}

	role, _ := team.ParseRole(input.Role)
	previous := target.Role()
	if previous == role {
		return target, nil
	}
	if err := target.UpdateRole(role); err != nil {
		return nil, err
	}

	entry, err := audit.NewEntry(tc.OrganizationID, audit.ActionUpdateMemberRole, audit.ResourceMembership, target.ID().String())
	if err != nil {
		return nil, err
	}
	entry.WithActor(tc.UserID).
		WithContext("level", "team").
		WithContext("team_id", tc.TeamID.String()).
		WithContext("user_id", userID.String()).
		WithContext("role", role.String()).
		WithContext("previous_role", previous.String())

	if err := s.teams.UpdateMemberRole(ctx, target, entry); err != nil {
		return nil, err
	}

	metrics.RecordMembershipChange("team", "update_role")
	teamID := tc.TeamID
	publish(s.broadcaster, entry, &teamID, nil)
	return target, nil
}
