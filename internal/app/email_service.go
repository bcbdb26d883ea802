package app

import (
	"context"
	"fmt"
	"time"

	"github.com/taskforge/api/internal/config"
	"github.com/taskforge/api/pkg/email"
	"github.com/taskforge/api/pkg/logger"
)

// EmailJobEnqueuer defines the interface for enqueueing email jobs.
// The invitation service enqueues through this port after its transaction
// commits, so a failed send never rolls back a created invitation.
type EmailJobEnqueuer interface {
	EnqueueInvitationEmail(ctx context.Context, payload InvitationEmailJobPayload) error
	EnqueueInvitationAccepted(ctx context.Context, payload InvitationAcceptedJobPayload) error
}

// InvitationEmailJobPayload contains data for invitation email jobs.
type InvitationEmailJobPayload struct {
	RecipientEmail   string
	InviterName      string
	OrganizationName string
	Role             string
	TeamName         string
	ProjectName      string
	Token            string
	ExpiresIn        time.Duration
	InvitationID     string
	OrganizationID   string
}

// InvitationAcceptedJobPayload contains data for the notice sent to the
// inviter once their invitation is accepted.
type InvitationAcceptedJobPayload struct {
	InviterEmail     string
	InviterName      string
	MemberEmail      string
	OrganizationName string
	Role             string
	OrganizationID   string
}

// NoOpEmailEnqueuer discards email jobs. Used when background jobs are
// disabled, for example in tests and the admin CLI.
type NoOpEmailEnqueuer struct{}

// EnqueueInvitationEmail does nothing and returns nil.
func (NoOpEmailEnqueuer) EnqueueInvitationEmail(_ context.Context, _ InvitationEmailJobPayload) error {
	return nil
}

// EnqueueInvitationAccepted does nothing and returns nil.
func (NoOpEmailEnqueuer) EnqueueInvitationAccepted(_ context.Context, _ InvitationAcceptedJobPayload) error {
	return nil
}

var _ EmailJobEnqueuer = (*NoOpEmailEnqueuer)(nil)

// EmailService renders and sends the product's transactional email.
type EmailService struct {
	sender  email.Sender
	config  config.SMTPConfig
	appName string
	logger  *logger.Logger
}

// NewEmailService creates a new EmailService.
func NewEmailService(sender email.Sender, cfg config.SMTPConfig, appName string, log *logger.Logger) *EmailService {
	return &EmailService{
		sender:  sender,
		config:  cfg,
		appName: appName,
		logger:  log.With("service", "email"),
	}
}

// IsConfigured returns true if email service is properly configured.
func (s *EmailService) IsConfigured() bool {
	return s.sender != nil && s.sender.IsConfigured()
}

// SendInvitationEmail sends an organization invitation with its grant
// summary and accept link.
func (s *EmailService) SendInvitationEmail(ctx context.Context, p InvitationEmailJobPayload) error {
	if !s.IsConfigured() {
		s.logger.Warn("email service not configured, skipping invitation email",
			"email", p.RecipientEmail,
		)
		return nil
	}

	invitationURL := fmt.Sprintf("%s/invitations/%s", s.config.BaseURL, p.Token)

	data := email.OrgInvitationData{
		InviterName:      p.InviterName,
		OrganizationName: p.OrganizationName,
		Role:             p.Role,
		TeamName:         p.TeamName,
		ProjectName:      p.ProjectName,
		InvitationURL:    invitationURL,
		ExpiresIn:        formatDuration(p.ExpiresIn),
		AppName:          s.appName,
	}

	if err := s.sender.SendTemplate(ctx, p.RecipientEmail, email.TemplateOrgInvitation, data); err != nil {
		s.logger.Error("failed to send invitation email",
			"email", p.RecipientEmail,
			"error", err,
		)
		return fmt.Errorf("failed to send invitation email: %w", err)
	}

	s.logger.Info("invitation email sent",
		"email", p.RecipientEmail,
		"organization", p.OrganizationName,
	)
	return nil
}

// SendInvitationAcceptedEmail notifies the inviter that their invitation
// was accepted.
func (s *EmailService) SendInvitationAcceptedEmail(ctx context.Context, p InvitationAcceptedJobPayload) error {
	if !s.IsConfigured() {
		s.logger.Warn("email service not configured, skipping invitation accepted email",
			"email", p.InviterEmail,
		)
		return nil
	}

	membersURL := fmt.Sprintf("%s/settings/members", s.config.BaseURL)

	data := email.InvitationAcceptedData{
		InviterName:      p.InviterName,
		MemberEmail:      p.MemberEmail,
		OrganizationName: p.OrganizationName,
		Role:             p.Role,
		MembersURL:       membersURL,
		AppName:          s.appName,
	}

	if err := s.sender.SendTemplate(ctx, p.InviterEmail, email.TemplateInvitationAccepted, data); err != nil {
		s.logger.Error("failed to send invitation accepted email",
			"email", p.InviterEmail,
			"error", err,
		)
		return fmt.Errorf("failed to send invitation accepted email: %w", err)
	}

	s.logger.Info("invitation accepted email sent",
		"email", p.InviterEmail,
		"member", p.MemberEmail,
	)
	return nil
}

// formatDuration formats a duration into a human-readable string.
func formatDuration(d time.Duration) string {
	if d >= 24*time.Hour {
		days := int(d.Hours() / 24)
		if days == 1 {
			return "24 hours"
		}
		return fmt.Sprintf("%d days", days)
	}
	if d >= time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	if d >= time.Minute {
		minutes := int(d.Minutes())
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	return d.String()
}
