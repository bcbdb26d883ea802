package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taskforge/api/internal/metrics"
	"github.com/taskforge/api/pkg/domain/accesscontrol"
	"github.com/taskforge/api/pkg/domain/audit"
	"github.com/taskforge/api/pkg/domain/organization"
	"github.com/taskforge/api/pkg/domain/project"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/domain/task"
	"github.com/taskforge/api/pkg/domain/team"
	"github.com/taskforge/api/pkg/domain/user"
	"github.com/taskforge/api/pkg/logger"
	"github.com/taskforge/api/pkg/validator"
)

// OrganizationService owns the tenancy root: organization lifecycle,
// membership administration, and the overview aggregation.
type OrganizationService struct {
	orgs        organization.Repository
	teams       team.Repository
	projects    project.Repository
	tasks       task.Repository
	users       user.Repository
	resolver    *accesscontrol.Resolver
	validate    *validator.Validator
	broadcaster ActivityBroadcaster
	logger      *logger.Logger
}

// NewOrganizationService creates a new OrganizationService.
func NewOrganizationService(
	orgs organization.Repository,
	teams team.Repository,
	projects project.Repository,
	tasks task.Repository,
	users user.Repository,
	log *logger.Logger,
	opts ...OrganizationServiceOption,
) *OrganizationService {
	s := &OrganizationService{
		orgs:        orgs,
		teams:       teams,
		projects:    projects,
		tasks:       tasks,
		users:       users,
		resolver:    accesscontrol.NewResolver(),
		validate:    validator.New(),
		broadcaster: NoOpActivityBroadcaster{},
		logger:      log.With("service", "organization"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OrganizationServiceOption is a functional option for OrganizationService.
type OrganizationServiceOption func(*OrganizationService)

// WithOrganizationBroadcaster sets the activity broadcaster.
func WithOrganizationBroadcaster(b ActivityBroadcaster) OrganizationServiceOption {
	return func(s *OrganizationService) {
		s.broadcaster = b
	}
}

// CreateOrganizationInput carries the bootstrap request.
type CreateOrganizationInput struct {
	Name        string `json:"name" validate:"required,min=2,max=100"`
	Slug        string `json:"slug" validate:"omitempty,min=3,max=100,slug"`
	Description string `json:"description" validate:"omitempty,max=500"`
}

// Create bootstraps an organization. The creator becomes its first Owner in
// the same transaction; a taken slug rolls the whole thing back.
func (s *OrganizationService) Create(ctx context.Context, creatorID shared.ID, input CreateOrganizationInput) (*organization.Organization, error) {
	if err := s.validate.Validate(input); err != nil {
		return nil, err
	}

	slug := input.Slug
	if slug == "" {
		slug = organization.GenerateSlug(input.Name)
	}

	org, err := organization.NewOrganization(input.Name, slug, creatorID)
	if err != nil {
		return nil, err
	}
	if input.Description != "" {
		org.UpdateDescription(input.Description)
	}

	owner, err := organization.NewOwnerMember(org.ID(), creatorID)
	if err != nil {
		return nil, err
	}

	entry, err := audit.NewEntry(org.ID(), audit.ActionCreate, audit.ResourceOrganization, org.ID().String())
	if err != nil {
		return nil, err
	}
	entry.WithActor(creatorID).
		WithContext("name", org.Name()).
		WithContext("slug", org.Slug())

	if err := s.orgs.Create(ctx, org, owner, entry); err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	s.logger.Info("organization created",
		"organization_id", org.ID().String(),
		"slug", org.Slug(),
		"created_by", creatorID.String(),
	)
	publish(s.broadcaster, entry, nil, nil)
	return org, nil
}

// GetCurrent returns the caller's organization, including a soft-deleted one
// so members can see the recovery window state.
func (s *OrganizationService) GetCurrent(ctx context.Context, tc accesscontrol.TenantContext) (*organization.Organization, error) {
	if err := checked("organization", s.resolver.AuthorizeOrg(tc, organization.RoleMember)); err != nil {
		return nil, err
	}
	org, err := s.orgs.GetByID(ctx, tc.OrganizationID, true)
	if err != nil {
		return nil, err
	}
	return org, nil
}

// GetBySlug resolves an organization by slug for the caller, together with
// the caller's role in it. A slug the caller holds no membership in answers
// ErrNotFound, the same as a slug that does not exist.
func (s *OrganizationService) GetBySlug(ctx context.Context, userID shared.ID, slug string) (*organization.WithRole, error) {
	org, err := s.orgs.GetBySlug(ctx, slug, false)
	if err != nil {
		return nil, err
	}
	member, err := s.orgs.GetMember(ctx, org.ID(), userID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, fmt.Errorf("%w: organization %q", shared.ErrNotFound, slug)
		}
		return nil, err
	}
	return &organization.WithRole{
		Organization: org,
		Role:         member.Role(),
		JoinedAt:     member.CreatedAt(),
	}, nil
}

// ListMine returns the organizations the user belongs to with the user's
// role in each. No tenant context: this backs the org picker before one is
// chosen.
func (s *OrganizationService) ListMine(ctx context.Context, userID shared.ID) ([]*organization.WithRole, error) {
	orgs, err := s.orgs.ListByUser(ctx, userID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	return orgs, nil
}

// UpdateOrganizationInput carries partial updates; nil fields stay as they are.
type UpdateOrganizationInput struct {
	Name        *string `json:"name" validate:"omitempty,min=2,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

// Update renames or redescribes the organization. Requires Admin.
func (s *OrganizationService) Update(ctx context.Context, tc accesscontrol.TenantContext, input UpdateOrganizationInput) (*organization.Organization, error) {
	if err := s.validate.Validate(input); err != nil {
		return nil, err
	}
	if err := checked("organization", s.resolver.AuthorizeOrg(tc, organization.RoleAdmin)); err != nil {
		return nil, err
	}

	org, err := s.orgs.GetByID(ctx, tc.OrganizationID, true)
	if err != nil {
		return nil, err
	}
	if org.IsDeleted() {
		return nil, fmt.Errorf("%w: organization %s", shared.ErrAlreadyDeleted, org.ID())
	}

	entry, err := audit.NewEntry(org.ID(), audit.ActionUpdate, audit.ResourceOrganization, org.ID().String())
	if err != nil {
		return nil, err
	}
	entry.WithActor(tc.UserID)

	changed := false
	if input.Name != nil && *input.Name != org.Name() {
		if err := org.UpdateName(*input.Name); err != nil {
			return nil, err
		}
		entry.WithContext("name", org.Name())
		changed = true
	}
	if input.Description != nil && *input.Description != org.Description() {
		org.UpdateDescription(*input.Description)
		entry.WithContext("description", org.Description())
		changed = true
	}
	if !changed {
		return org, nil
	}

	if err := s.orgs.Update(ctx, org, entry); err != nil {
		return nil, fmt.Errorf("failed to update organization: %w", err)
	}
	publish(s.broadcaster, entry, nil, nil)
	return org, nil
}

// SoftDelete stamps the organization deleted. Only an Owner may do this; the
// children are not stamped, the tenant is simply unreachable until recover.
func (s *OrganizationService) SoftDelete(ctx context.Context, tc accesscontrol.TenantContext) error {
	if err := checked("organization", s.resolver.AuthorizeOrg(tc, organization.RoleOwner)); err != nil {
		return err
	}

	deletedAt := time.Now().UTC()
	entry, err := audit.NewEntry(tc.OrganizationID, audit.ActionSoftDelete, audit.ResourceOrganization, tc.OrganizationID.String())
	if err != nil {
		return err
	}
	entry.WithActor(tc.UserID).WithContext("deleted_at", deletedAt.Format(time.RFC3339Nano))

	if err := s.orgs.SoftDelete(ctx, tc.OrganizationID, deletedAt, entry); err != nil {
		return err
	}

	s.logger.Info("organization soft-deleted",
		"organization_id", tc.OrganizationID.String(),
		"actor", tc.UserID.String(),
	)
	publish(s.broadcaster, entry, nil, nil)
	return nil
}

// Recover clears the deletion stamp, restoring the whole tenant at once.
// Only an Owner may do this.
func (s *OrganizationService) Recover(ctx context.Context, tc accesscontrol.TenantContext) error {
	if err := checked("organization", s.resolver.AuthorizeOrg(tc, organization.RoleOwner)); err != nil {
		return err
	}

	entry, err := audit.NewEntry(tc.OrganizationID, audit.ActionRecover, audit.ResourceOrganization, tc.OrganizationID.String())
	if err != nil {
		return err
	}
	entry.WithActor(tc.UserID)

	if err := s.orgs.Recover(ctx, tc.OrganizationID, entry); err != nil {
		return err
	}

	s.logger.Info("organization recovered",
		"organization_id", tc.OrganizationID.String(),
		"actor", tc.UserID.String(),
	)
	publish(s.broadcaster, entry, nil, nil)
	return nil
}

// Overview aggregates the member/team/project/task counts for the dashboard.
// The four counts run concurrently; any member may read them.
func (s *OrganizationService) Overview(ctx context.Context, tc accesscontrol.TenantContext) (*organization.Overview, error) {
	if err := checked("organization", s.resolver.AuthorizeOrg(tc, organization.RoleMember)); err != nil {
		return nil, err
	}

	var ov organization.Overview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.orgs.CountMembers(gctx, tc.OrganizationID)
		ov.Members = n
		return err
	})
	g.Go(func() error {
		n, err := s.teams.CountByOrganization(gctx, tc.OrganizationID)
		ov.Teams = n
		return err
	})
	g.Go(func() error {
		n, err := s.projects.CountByOrganization(gctx, tc.OrganizationID)
		ov.Projects = n
		return err
	})
	g.Go(func() error {
		n, err := s.tasks.CountByOrganization(gctx, tc.OrganizationID)
		ov.Tasks = n
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to aggregate organization overview: %w", err)
	}
	return &ov, nil
}

// ListMembers returns the organization's members with user details.
func (s *OrganizationService) ListMembers(ctx context.Context, tc accesscontrol.TenantContext) ([]*organization.MemberWithUser, error) {
	if err := checked("organization", s.resolver.AuthorizeOrg(tc, organization.RoleMember)); err != nil {
		return nil, err
	}
	members, err := s.orgs.ListMembers(ctx, tc.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organization members: %w", err)
	}
	return members, nil
}

// AddOrganizationMemberInput grants an existing user a role in the organization.
type AddOrganizationMemberInput struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	Role   string `json:"role" validate:"required,org_role"`
}

// AddMember grants an organization membership. Admins add members and
// admins; only Owners mint new Owners.
func (s *OrganizationService) AddMember(ctx context.Context, tc accesscontrol.TenantContext, input AddOrganizationMemberInput) (*organization.Member, error) {
	if err := s.validate.Validate(input); err != nil {
		return nil, err
	}

	role, _ := organization.ParseRole(input.Role)
	minRole := organization.RoleAdmin
	if role == organization.RoleOwner {
		minRole = organization.RoleOwner
	}
	if err := checked("organization", s.resolver.AuthorizeOrg(tc, minRole)); err != nil {
		return nil, err
	}

	userID, err := shared.ParseID(input.UserID)
	if err != nil {
		return nil, err
	}
	usr, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	member, err := organization.NewMember(tc.OrganizationID, usr.ID(), role, &tc.UserID)
	if err != nil {
		return nil, err
	}

	entry, err := audit.NewEntry(tc.OrganizationID, audit.ActionAddMember, audit.ResourceMembership, member.ID().String())
	if err != nil {
		return nil, err
	}
	entry.WithActor(tc.UserID).
		WithContext("level", "organization").
		WithContext("user_id", usr.ID().String()).
		WithContext("role", role.String())

	if err := s.orgs.AddMember(ctx, member, entry); err != nil {
		return nil, err
	}

	metrics.RecordMembershipChange("organization", "add")
	publish(s.broadcaster, entry, nil, nil)
	return member, nil
}

// RemoveMember revokes an organization membership. Admins remove members and
// admins; removing an Owner takes an Owner, and the last Owner is protected
// inside the transaction.
func (s *OrganizationService) RemoveMember(ctx context.Context, tc accesscontrol.TenantContext, userID shared.ID) error {
	if err := checked("organization", s.resolver.AuthorizeOrg(tc, organization.RoleAdmin)); err != nil {
		return err
	}

	target, err := s.orgs.GetMember(ctx, tc.OrganizationID, userID)
	if err != nil {
		return err
	}
	if target.IsOwner() {
		if err := checked("organization", s.resolver.AuthorizeOrg(tc, organization.RoleOwner)); err != nil {
			return err
		}
	}

	entry, err := audit.NewEntry(tc.OrganizationID, audit.ActionRemoveMember, audit.ResourceMembership, target.ID().String())
	if err != nil {
		return err
	}
	entry.WithActor(tc.UserID).
		WithContext("level", "organization").
		WithContext("user_id", userID.String()).
		WithContext("role", target.Role().String())

	if err := s.orgs.RemoveMember(ctx, tc.OrganizationID, userID, entry); err != nil {
		return err
	}

	metrics.RecordMembershipChange("organization", "remove")
	publish(s.broadcaster, entry, nil, nil)
	return nil
}

// UpdateOrganizationMemberRoleInput changes an existing member's role.
type UpdateOrganizationMemberRoleInput struct {
	Role string `json:"role" validate:"required,org_role"`
}

// UpdateMemberRole changes a member's role. Touching an Owner row or
// granting Owner takes an Owner; demoting the last Owner is refused inside
// the transaction.
func (s *OrganizationService) UpdateMemberRole(ctx context.Context, tc accesscontrol.TenantContext, userID shared.ID, input UpdateOrganizationMemberRoleInput) (*organization.Member, error) {
	if err := s.validate.Validate(input); err != nil {
		return nil, err
	}
	if err := checked("organization", s.resolver.AuthorizeOrg(tc, organization.RoleAdmin)); err != nil {
		return nil, err
	}

	role, _ := organization.ParseRole(input.Role)
	target, err := s.orgs.GetMember(ctx, tc.OrganizationID, userID)
	if err != nil {
		return nil, err
	}
	if target.IsOwner() || role == organization.RoleOwner {
		if err := checked("organization", s.resolver.AuthorizeOrg(tc, organization.RoleOwner)); err != nil {
			return nil, err
		}
	}

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
		WithContext("level", "organization").
		WithContext("user_id", userID.String()).
		WithContext("role", role.String()).
		WithContext("previous_role", previous.String())

	if err := s.orgs.UpdateMemberRole(ctx, target, entry); err != nil {
		return nil, err
	}

	metrics.RecordMembershipChange("organization", "update_role")
	publish(s.broadcaster, entry, nil, nil)
	return target, nil
}
