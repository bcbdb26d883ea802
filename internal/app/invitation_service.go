package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/taskforge/api/internal/metrics"
	"github.com/taskforge/api/pkg/domain/accesscontrol"
	"github.com/taskforge/api/pkg/domain/audit"
	"github.com/taskforge/api/pkg/domain/invitation"
	"github.com/taskforge/api/pkg/domain/organization"
	"github.com/taskforge/api/pkg/domain/project"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/domain/team"
	"github.com/taskforge/api/pkg/domain/user"
	"github.com/taskforge/api/pkg/logger"
	"github.com/taskforge/api/pkg/pagination"
	"github.com/taskforge/api/pkg/validator"
)

// InvitationService handles inviting users into an organization by email and
// applying the granted memberships on acceptance.
type InvitationService struct {
	invitations invitation.Repository
	orgs        organization.Repository
	teams       team.Repository
	projects    project.Repository
	users       user.Repository
	resolver    *accesscontrol.Resolver
	validate    *validator.Validator
	emails      EmailJobEnqueuer
	broadcaster ActivityBroadcaster
	logger      *logger.Logger
}

// NewInvitationService creates a new InvitationService.
func NewInvitationService(
	invitations invitation.Repository,
	orgs organization.Repository,
	teams team.Repository,
	projects project.Repository,
	users user.Repository,
	log *logger.Logger,
	opts ...InvitationServiceOption,
) *InvitationService {
	s := &InvitationService{
		invitations: invitations,
		orgs:        orgs,
		teams:       teams,
		projects:    projects,
		users:       users,
		resolver:    accesscontrol.NewResolver(),
		validate:    validator.New(),
		emails:      NoOpEmailEnqueuer{},
		broadcaster: NoOpActivityBroadcaster{},
		logger:      log.With("service", "invitation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InvitationServiceOption is a functional option for InvitationService.
type InvitationServiceOption func(*InvitationService)

// WithInvitationEmailEnqueuer sets the email job enqueuer.
func WithInvitationEmailEnqueuer(e EmailJobEnqueuer) InvitationServiceOption {
	return func(s *InvitationService) {
		s.emails = e
	}
}

// WithInvitationBroadcaster sets the activity broadcaster.
func WithInvitationBroadcaster(b ActivityBroadcaster) InvitationServiceOption {
	return func(s *InvitationService) {
		s.broadcaster = b
	}
}

// CreateInvitationInput carries an invitation request. Team and project
// grants are optional; a project grant requires a team grant for the
// project's owning team, mirroring the prerequisite-membership rule the
// grants will satisfy on acceptance.
type CreateInvitationInput struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	OrgRole     string `json:"org_role" validate:"required,org_role"`
	TeamID      string `json:"team_id" validate:"omitempty,uuid"`
	TeamRole    string `json:"team_role" validate:"required_with=TeamID,omitempty,team_role"`
	ProjectID   string `json:"project_id" validate:"omitempty,uuid"`
	ProjectRole string `json:"project_role" validate:"required_with=ProjectID,omitempty,project_role"`
}

// Create issues an invitation. Requires org Admin. Owner cannot be granted by
// invitation. A second pending invitation for the same address is refused.
func (s *InvitationService) Create(ctx context.Context, tc accesscontrol.TenantContext, input CreateInvitationInput) (*invitation.Invitation, error) {
	if err := s.validate.Validate(input); err != nil {
		return nil, err
	}
	if err := checked("organization", s.resolver.AuthorizeOrg(tc, organization.RoleAdmin)); err != nil {
		return nil, err
	}
	if input.ProjectID != "" && input.TeamID == "" {
		return nil, fmt.Errorf("%w: a project grant requires a team grant", shared.ErrValidation)
	}

	orgRole, _ := organization.ParseRole(input.OrgRole)
	inv, err := invitation.NewInvitation(tc.OrganizationID, input.Email, orgRole, tc.UserID)
	if err != nil {
		return nil, err
	}

	var grantedTeam *team.Team
	if input.TeamID != "" {
		teamID, err := shared.ParseID(input.TeamID)
		if err != nil {
			return nil, err
		}
		grantedTeam, err = s.teams.GetByID(ctx, tc.OrganizationID, teamID, false)
		if err != nil {
			return nil, err
		}
		teamRole, _ := team.ParseRole(input.TeamRole)
		if err := inv.GrantTeam(grantedTeam.ID(), teamRole); err != nil {
			return nil, err
		}
	}

	var grantedProject *project.Project
	if input.ProjectID != "" {
		projectID, err := shared.ParseID(input.ProjectID)
		if err != nil {
			return nil, err
		}
		grantedProject, err = s.projects.GetByID(ctx, tc.OrganizationID, projectID, false)
		if err != nil {
			return nil, err
		}
		if !grantedProject.TeamID().Equals(grantedTeam.ID()) {
			return nil, fmt.Errorf("%w: project %s does not belong to the granted team", shared.ErrValidation, projectID)
		}
		projectRole, _ := project.ParseRole(input.ProjectRole)
		if err := inv.GrantProject(grantedProject.ID(), projectRole); err != nil {
			return nil, err
		}
	}

	entry, err := audit.NewEntry(tc.OrganizationID, audit.ActionInvite, audit.ResourceInvitation, inv.ID().String())
	if err != nil {
		return nil, err
	}
	entry.WithActor(tc.UserID).
		WithContext("email", inv.Email()).
		WithContext("org_role", inv.OrgRole().String())
	if inv.TeamID() != nil {
		entry.WithContext("team_id", inv.TeamID().String()).
			WithContext("team_role", inv.TeamRole().String())
	}
	if inv.ProjectID() != nil {
		entry.WithContext("project_id", inv.ProjectID().String()).
			WithContext("project_role", inv.ProjectRole().String())
	}

	if err := s.invitations.Create(ctx, inv, entry); err != nil {
		return nil, err
	}

	metrics.RecordInvitationEvent("issued")
	s.logger.Info("invitation issued",
		"organization_id", tc.OrganizationID.String(),
		"invitation_id", inv.ID().String(),
		"org_role", inv.OrgRole().String(),
	)
	s.enqueueInvitationEmail(ctx, tc, inv, grantedTeam, grantedProject)
	publish(s.broadcaster, entry, inv.TeamID(), inv.ProjectID())
	return inv, nil
}

// enqueueInvitationEmail hands the invitation email to the job queue after
// the transaction committed. Failures are logged, never propagated.
func (s *InvitationService) enqueueInvitationEmail(ctx context.Context, tc accesscontrol.TenantContext, inv *invitation.Invitation, grantedTeam *team.Team, grantedProject *project.Project) {
	org, err := s.orgs.GetByID(ctx, tc.OrganizationID, false)
	if err != nil {
		s.logger.Warn("failed to load organization for invitation email", "error", err)
		return
	}
	inviterName := ""
	if inviter, err := s.users.GetByID(ctx, tc.UserID); err == nil {
		inviterName = inviter.Name()
	}

	payload := InvitationEmailJobPayload{
		RecipientEmail:   inv.Email(),
		InviterName:      inviterName,
		OrganizationName: org.Name(),
		Role:             inv.OrgRole().String(),
		Token:            inv.Token(),
		ExpiresIn:        time.Until(inv.ExpiresAt()),
		InvitationID:     inv.ID().String(),
		OrganizationID:   tc.OrganizationID.String(),
	}
	if grantedTeam != nil {
		payload.TeamName = grantedTeam.Name()
	}
	if grantedProject != nil {
		payload.ProjectName = grantedProject.Name()
	}

	if err := s.emails.EnqueueInvitationEmail(ctx, payload); err != nil {
		s.logger.Warn("failed to enqueue invitation email",
			"invitation_id", inv.ID().String(),
			"error", err,
		)
	}
}

// InvitationPreview is what the invitee sees before accepting: the grants and
// the names behind the IDs.
type InvitationPreview struct {
	Invitation       *invitation.Invitation
	OrganizationName string
	TeamName         string
	ProjectName      string
	InviterName      string
}

// Preview resolves a token for display to the invitee. Unknown tokens and
// invitations into soft-deleted organizations both read as not found. Granted
// team and project names resolve even when those were soft-deleted since the
// invitation itself is still acceptable.
func (s *InvitationService) Preview(ctx context.Context, token string) (*InvitationPreview, error) {
	inv, err := s.invitations.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	org, err := s.orgs.GetByID(ctx, inv.OrganizationID(), false)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, fmt.Errorf("%w: invitation", shared.ErrNotFound)
		}
		return nil, err
	}

	preview := &InvitationPreview{
		Invitation:       inv,
		OrganizationName: org.Name(),
	}
	if inviter, err := s.users.GetByID(ctx, inv.InvitedBy()); err == nil {
		preview.InviterName = inviter.Name()
	}
	if inv.TeamID() != nil {
		if t, err := s.teams.GetByID(ctx, inv.OrganizationID(), *inv.TeamID(), true); err == nil {
			preview.TeamName = t.Name()
		}
	}
	if inv.ProjectID() != nil {
		if p, err := s.projects.GetByID(ctx, inv.OrganizationID(), *inv.ProjectID(), true); err == nil {
			preview.ProjectName = p.Name()
		}
	}
	return preview, nil
}

// Accept redeems a token for the authenticated user. The caller's email must
// match the invited address. All granted membership rows, the accepted stamp
// and the audit entry commit in one transaction; a token already accepted
// reports the accept even when it has since expired.
func (s *InvitationService) Accept(ctx context.Context, token string, acceptorID shared.ID, acceptorEmail string) (*invitation.Invitation, error) {
	inv, err := s.invitations.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if !strings.EqualFold(strings.TrimSpace(acceptorEmail), inv.Email()) {
		return nil, fmt.Errorf("%w: invitation was issued to a different email address", shared.ErrPermissionDenied)
	}

	// Accepting into a soft-deleted organization is blocked like any other
	// org-scoped mutation.
	org, err := s.orgs.GetByID(ctx, inv.OrganizationID(), false)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, fmt.Errorf("%w: invitation", shared.ErrNotFound)
		}
		return nil, err
	}

	if err := inv.Accept(acceptorID); err != nil {
		return nil, err
	}

	invitedBy := inv.InvitedBy()
	orgMember, err := organization.NewMember(inv.OrganizationID(), acceptorID, inv.OrgRole(), &invitedBy)
	if err != nil {
		return nil, err
	}
	grants := invitation.AcceptGrants{OrgMember: orgMember}
	if inv.TeamID() != nil {
		grants.TeamMember, err = team.NewMember(*inv.TeamID(), inv.OrganizationID(), acceptorID, inv.TeamRole(), &invitedBy)
		if err != nil {
			return nil, err
		}
	}
	if inv.ProjectID() != nil {
		grants.ProjectMember, err = project.NewMember(*inv.ProjectID(), inv.OrganizationID(), acceptorID, inv.ProjectRole(), &invitedBy)
		if err != nil {
			return nil, err
		}
	}

	entry, err := audit.NewEntry(inv.OrganizationID(), audit.ActionAcceptInvitation, audit.ResourceInvitation, inv.ID().String())
	if err != nil {
		return nil, err
	}
	entry.WithActor(acceptorID).
		WithContext("email", inv.Email()).
		WithContext("org_role", inv.OrgRole().String())
	if inv.TeamID() != nil {
		entry.WithContext("team_id", inv.TeamID().String())
	}
	if inv.ProjectID() != nil {
		entry.WithContext("project_id", inv.ProjectID().String())
	}

	if err := s.invitations.Accept(ctx, inv, grants, entry); err != nil {
		return nil, err
	}

	metrics.RecordInvitationEvent("accepted")
	metrics.RecordMembershipChange("organization", "add")
	if grants.TeamMember != nil {
		metrics.RecordMembershipChange("team", "add")
	}
	if grants.ProjectMember != nil {
		metrics.RecordMembershipChange("project", "add")
	}
	s.logger.Info("invitation accepted",
		"organization_id", inv.OrganizationID().String(),
		"invitation_id", inv.ID().String(),
		"user_id", acceptorID.String(),
	)
	s.notifyInviter(ctx, inv, org.Name())
	publish(s.broadcaster, entry, inv.TeamID(), inv.ProjectID())
	return inv, nil
}

// notifyInviter queues the accepted notice for the inviter. Failures are
// logged, never propagated.
func (s *InvitationService) notifyInviter(ctx context.Context, inv *invitation.Invitation, orgName string) {
	inviter, err := s.users.GetByID(ctx, inv.InvitedBy())
	if err != nil {
		s.logger.Warn("failed to load inviter for accepted notice",
			"invitation_id", inv.ID().String(),
			"error", err,
		)
		return
	}

	payload := InvitationAcceptedJobPayload{
		InviterEmail:     inviter.Email(),
		InviterName:      inviter.Name(),
		MemberEmail:      inv.Email(),
		OrganizationName: orgName,
		Role:             inv.OrgRole().String(),
		OrganizationID:   inv.OrganizationID().String(),
	}
	if err := s.emails.EnqueueInvitationAccepted(ctx, payload); err != nil {
		s.logger.Warn("failed to enqueue invitation accepted notice",
			"invitation_id", inv.ID().String(),
			"error", err,
		)
	}
}

// Revoke deletes a pending invitation. Requires org Admin. Accepted
// invitations are kept and refused.
func (s *InvitationService) Revoke(ctx context.Context, tc accesscontrol.TenantContext, invitationID shared.ID) error {
	if err := checked("organization", s.resolver.AuthorizeOrg(tc, organization.RoleAdmin)); err != nil {
		return err
	}

	inv, err := s.invitations.GetByID(ctx, tc.OrganizationID, invitationID)
	if err != nil {
		return err
	}

	entry, err := audit.NewEntry(tc.OrganizationID, audit.ActionRevokeInvitation, audit.ResourceInvitation, inv.ID().String())
	if err != nil {
		return err
	}
	entry.WithActor(tc.UserID).WithContext("email", inv.Email())

	if err := s.invitations.Delete(ctx, tc.OrganizationID, invitationID, entry); err != nil {
		return err
	}

	metrics.RecordInvitationEvent("revoked")
	s.logger.Info("invitation revoked",
		"organization_id", tc.OrganizationID.String(),
		"invitation_id", invitationID.String(),
	)
	publish(s.broadcaster, entry, nil, nil)
	return nil
}

// ListInvitationsInput filters and paginates an organization's invitations.
type ListInvitationsInput struct {
	Status  string `json:"status" validate:"omitempty,invitation_status"`
	Email   string `json:"email" validate:"omitempty,email"`
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
}

// List returns the organization's invitations, newest first. Requires org
// Admin.
func (s *InvitationService) List(ctx context.Context, tc accesscontrol.TenantContext, input ListInvitationsInput) (pagination.Result[*invitation.Invitation], error) {
	var empty pagination.Result[*invitation.Invitation]
	if err := s.validate.Validate(input); err != nil {
		return empty, err
	}
	if err := checked("organization", s.resolver.AuthorizeOrg(tc, organization.RoleAdmin)); err != nil {
		return empty, err
	}

	filter := invitation.Filter{}
	if input.Status != "" {
		status := invitation.StatusFilter(input.Status)
		filter.Status = &status
	}
	if input.Email != "" {
		email := strings.ToLower(strings.TrimSpace(input.Email))
		filter.Email = &email
	}

	result, err := s.invitations.List(ctx, tc.OrganizationID, filter, pagination.New(input.Page, input.PerPage))
	if err != nil {
		return empty, fmt.Errorf("failed to list invitations: %w", err)
	}
	return result, nil
}
