package app

import (
	"context"
	"fmt"
	"time"

	"github.com/taskforge/api/internal/metrics"
	"github.com/taskforge/api/pkg/domain/accesscontrol"
	"github.com/taskforge/api/pkg/domain/audit"
	"github.com/taskforge/api/pkg/domain/organization"
	"github.com/taskforge/api/pkg/domain/project"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/domain/team"
	"github.com/taskforge/api/pkg/logger"
	"github.com/taskforge/api/pkg/validator"
)

// ProjectService handles project lifecycle and project membership.
type ProjectService struct {
	projects    project.Repository
	teams       team.Repository
	resolver    *accesscontrol.Resolver
	validate    *validator.Validator
	broadcaster ActivityBroadcaster
	logger      *logger.Logger
}

// NewProjectService creates a new ProjectService.
func NewProjectService(
	projects project.Repository,
	teams team.Repository,
	log *logger.Logger,
	opts ...ProjectServiceOption,
) *ProjectService {
	s := &ProjectService{
		projects:    projects,
		teams:       teams,
		resolver:    accesscontrol.NewResolver(),
		validate:    validator.New(),
		broadcaster: NoOpActivityBroadcaster{},
		logger:      log.With("service", "project"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProjectServiceOption is a functional option for ProjectService.
type ProjectServiceOption func(*ProjectService)

// WithProjectBroadcaster sets the activity broadcaster.
func WithProjectBroadcaster(b ActivityBroadcaster) ProjectServiceOption {
	return func(s *ProjectService) {
		s.broadcaster = b
	}
}

// CreateProjectInput carries a project creation request. The owning team
// comes from the request scope, not the body.
type CreateProjectInput struct {
	Name        string `json:"name" validate:"required,min=2,max=100"`
	Description string `json:"description" validate:"omitempty,max=500"`
}

// Create adds a project under the team in scope. Requires team Lead or an
// inheriting org role. The creator gets no ProjectMember row.
func (s *ProjectService) Create(ctx context.Context, tc accesscontrol.TenantContext, input CreateProjectInput) (*project.Project, error) {
	if err := s.validate.Validate(input); err != nil {
		return nil, err
	}
	if err := checked("team", s.resolver.AuthorizeTeam(tc, team.RoleLead)); err != nil {
		return nil, err
	}

	// No new projects under a soft-deleted team.
	if _, err := s.teams.GetByID(ctx, tc.OrganizationID, tc.TeamID, false); err != nil {
		return nil, err
	}

	p, err := project.NewProject(tc.TeamID, tc.OrganizationID, input.Name, input.Description, tc.UserID)
	if err != nil {
		return nil, err
	}

	entry, err := audit.NewEntry(tc.OrganizationID, audit.ActionCreate, audit.ResourceProject, p.ID().String())
	if err != nil {
		return nil, err
	}
	entry.WithActor(tc.UserID).
		WithContext("team_id", tc.TeamID.String()).
		WithContext("name", p.Name())

	if err := s.projects.Create(ctx, p, entry); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	s.logger.Info("project created",
		"organization_id", tc.OrganizationID.String(),
		"team_id", tc.TeamID.String(),
		"project_id", p.ID().String(),
		"name", p.Name(),
	)
	teamID, projectID := tc.TeamID, p.ID()
	publish(s.broadcaster, entry, &teamID, &projectID)
	return p, nil
}

// Get returns one project. Any organization member may read it.
func (s *ProjectService) Get(ctx context.Context, tc accesscontrol.TenantContext, projectID shared.ID, includeDeleted bool) (*project.Project, error) {
	if err := checked("organization", s.resolver.AuthorizeOrg(tc, organization.RoleMember)); err != nil {
		return nil, err
	}
	return s.projects.GetByID(ctx, tc.OrganizationID, projectID, includeDeleted)
}

// List returns the organization's projects, optionally narrowed to one team.
func (s *ProjectService) List(ctx context.Context, tc accesscontrol.TenantContext, filter project.Filter) ([]*project.Project, error) {
	if err := checked("organization", s.resolver.AuthorizeOrg(tc, organization.RoleMember)); err != nil {
		return nil, err
	}
	projects, err := s.projects.List(ctx, tc.OrganizationID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// UpdateProjectInput carries partial updates; nil fields stay as they are.
type UpdateProjectInput struct {
	Name        *string `json:"name" validate:"omitempty,min=2,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

// Update renames or redescribes the project in scope. Requires project
// Manager, lead of the owning team, or an inheriting org role.
func (s *ProjectService) Update(ctx context.Context, tc accesscontrol.TenantContext, input UpdateProjectInput) (*project.Project, error) {
	if err := s.validate.Validate(input); err != nil {
		return nil, err
	}
	if err := checked("project", s.resolver.AuthorizeProject(tc, project.RoleManager)); err != nil {
		return nil, err
	}

	p, err := s.projects.GetByID(ctx, tc.OrganizationID, tc.ProjectID, false)
	if err != nil {
		return nil, err
	}

	entry, err := audit.NewEntry(tc.OrganizationID, audit.ActionUpdate, audit.ResourceProject, p.ID().String())
	if err != nil {
		return nil, err
	}
	entry.WithActor(tc.UserID)

	changed := false
	if input.Name != nil && *input.Name != p.Name() {
		if err := p.UpdateName(*input.Name); err != nil {
			return nil, err
		}
		entry.WithContext("name", p.Name())
		changed = true
	}
	if input.Description != nil && *input.Description != p.Description() {
		p.UpdateDescription(*input.Description)
		entry.WithContext("description", p.Description())
		changed = true
	}
	if !changed {
		return p, nil
	}

	if err := s.projects.Update(ctx, p, entry); err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	teamID, projectID := p.TeamID(), p.ID()
	publish(s.broadcaster, entry, &teamID, &projectID)
	return p, nil
}

// SoftDelete stamps the project and cascades the same stamp to its live
// tasks in one transaction. Returns the number of cascaded tasks. Requires
// project Manager, lead of the owning team, or an inheriting org role.
func (s *ProjectService) SoftDelete(ctx context.Context, tc accesscontrol.TenantContext) (int64, error) {
	if err := checked("project", s.resolver.AuthorizeProject(tc, project.RoleManager)); err != nil {
		return 0, err
	}

	deletedAt := time.Now().UTC()
	entry, err := audit.NewEntry(tc.OrganizationID, audit.ActionSoftDelete, audit.ResourceProject, tc.ProjectID.String())
	if err != nil {
		return 0, err
	}
	entry.WithActor(tc.UserID).WithContext("deleted_at", deletedAt.Format(time.RFC3339Nano))

	tasks, err := s.projects.SoftDeleteCascade(ctx, tc.OrganizationID, tc.ProjectID, deletedAt, entry)
	if err != nil {
		return 0, err
	}

	metrics.RecordCascade("project", "soft_delete", tasks)
	s.logger.Info("project soft-deleted",
		"organization_id", tc.OrganizationID.String(),
		"project_id", tc.ProjectID.String(),
		"cascaded_tasks", tasks,
	)
	projectID := tc.ProjectID
	publish(s.broadcaster, entry, nil, &projectID)
	return tasks, nil
}

// Recover clears the project's stamp and the stamps of exactly the tasks its
// own deletion cascaded to. Returns the number of recovered tasks.
func (s *ProjectService) Recover(ctx context.Context, tc accesscontrol.TenantContext) (int64, error) {
	if err := checked("project", s.resolver.AuthorizeProject(tc, project.RoleManager)); err != nil {
		return 0, err
	}

	entry, err := audit.NewEntry(tc.OrganizationID, audit.ActionRecover, audit.ResourceProject, tc.ProjectID.String())
	if err != nil {
		return 0, err
	}
	entry.WithActor(tc.UserID)

	tasks, err := s.projects.RecoverCascade(ctx, tc.OrganizationID, tc.ProjectID, entry)
	if err != nil {
		return 0, err
	}

	metrics.RecordCascade("project", "recover", tasks)
	s.logger.Info("project recovered",
		"organization_id", tc.OrganizationID.String(),
		"project_id", tc.ProjectID.String(),
		"recovered_tasks", tasks,
	)
	projectID := tc.ProjectID
	publish(s.broadcaster, entry, nil, &projectID)
	return tasks, nil
}

// ListMembers returns the project's members with user details.
func (s *ProjectService) ListMembers(ctx context.Context, tc accesscontrol.TenantContext) ([]*project.MemberWithUser, error) {
	if err := checked("organization", s.resolver.AuthorizeOrg(tc, organization.RoleMember)); err != nil {
		return nil, err
	}
	members, err := s.projects.ListMembers(ctx, tc.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list project members: %w", err)
	}
	return members, nil
}

// AddProjectMemberInput grants a team member a role in the project.
type AddProjectMemberInput struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	Role   string `json:"role" validate:"required,project_role"`
}

// AddMember grants a project membership. Requires project Manager (or
// inheritance), and the user must already belong to the project's owning
// team.
func (s *ProjectService) AddMember(ctx context.Context, tc accesscontrol.TenantContext, input AddProjectMemberInput) (*project.Member, error) {
	if err := s.validate.Validate(input); err != nil {
		return nil, err
	}
	if err := checked("project", s.resolver.AuthorizeProject(tc, project.RoleManager)); err != nil {
		return nil, err
	}

	userID, err := shared.ParseID(input.UserID)
	if err != nil {
		return nil, err
	}

	p, err := s.projects.GetByID(ctx, tc.OrganizationID, tc.ProjectID, false)
	if err != nil {
		return nil, err
	}
	if _, err := s.teams.GetMember(ctx, p.TeamID(), userID); err != nil {
		if shared.IsNotFound(err) {
			return nil, fmt.Errorf("%w: user %s is not a member of the owning team", shared.ErrPrerequisiteMembership, userID)
		}
		return nil, fmt.Errorf("failed to check team membership: %w", err)
	}

	role, _ := project.ParseRole(input.Role)
	member, err := project.NewMember(tc.ProjectID, tc.OrganizationID, userID, role, &tc.UserID)
	if err != nil {
		return nil, err
	}

	entry, err := audit.NewEntry(tc.OrganizationID, audit.ActionAddMember, audit.ResourceMembership, member.ID().String())
	if err != nil {
		return nil, err
	}
	entry.WithActor(tc.UserID).
		WithContext("level", "project").
		WithContext("project_id", tc.ProjectID.String()).
		WithContext("user_id", userID.String()).
		WithContext("role", role.String())

	if err := s.projects.AddMember(ctx, member, entry); err != nil {
		return nil, err
	}

	metrics.RecordMembershipChange("project", "add")
	teamID, projectID := p.TeamID(), tc.ProjectID
	publish(s.broadcaster, entry, &teamID, &projectID)
	return member, nil
}

// RemoveMember revokes a project membership. Requires project Manager or
// inheritance.
func (s *ProjectService) RemoveMember(ctx context.Context, tc accesscontrol.TenantContext, userID shared.ID) error {
	if err := checked("project", s.resolver.AuthorizeProject(tc, project.RoleManager)); err != nil {
		return err
	}

	target, err := s.projects.GetMember(ctx, tc.ProjectID, userID)
	if err != nil {
		return err
	}

	entry, err := audit.NewEntry(tc.OrganizationID, audit.ActionRemoveMember, audit.ResourceMembership, target.ID().String())
	if err != nil {
		return err
	}
	entry.WithActor(tc.UserID).
		WithContext("level", "project").
		WithContext("project_id", tc.ProjectID.String()).
		WithContext("user_id", userID.String()).
		WithContext("role", target.Role().String())

	if err := s.projects.RemoveMember(ctx, tc.ProjectID, userID, entry); err != nil {
		return err
	}

	metrics.RecordMembershipChange("project", "remove")
	projectID := tc.ProjectID
	publish(s.broadcaster, entry, nil, &projectID)
	return nil
}

// UpdateProjectMemberRoleInput changes an existing member's role.
type UpdateProjectMemberRoleInput struct {
	Role string `json:"role" validate:"required,project_role"`
}

// UpdateMemberRole changes a project member's role. Requires project Manager
// or inheritance.
func (s *ProjectService) UpdateMemberRole(ctx context.Context, tc accesscontrol.TenantContext, userID shared.ID, input UpdateProjectMemberRoleInput) (*project.Member, error) {
	if err := s.validate.Validate(input); err != nil {
		return nil, err
	}
	if err := checked("project", s.resolver.AuthorizeProject(tc, project.RoleManager)); err != nil {
		return nil, err
	}

	target, err := s.projects.GetMember(ctx, tc.ProjectID, userID)
	if err != nil {
		return nil, err
	}

	role, _ := project.ParseRole(input.Role)
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
		WithContext("level", "project").
		WithContext("project_id", tc.ProjectID.String()).
		WithContext("user_id", userID.String()).
		WithContext("role", role.String()).
		WithContext("previous_role", previous.String())

	if err := s.projects.UpdateMemberRole(ctx, target, entry); err != nil {
		return nil, err
	}

	metrics.RecordMembershipChange("project", "update_role")
	projectID := tc.ProjectID
	publish(s.broadcaster, entry, nil, &projectID)
	return target, nil
}
