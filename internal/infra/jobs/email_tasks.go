// Package jobs provides background job definitions and handlers using Asynq.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/taskforge/api/internal/app"
	"github.com/taskforge/api/internal/metrics"
	"github.com/taskforge/api/pkg/logger"
)

// Task types for email jobs
const (
	TypeEmailInvitation         = "email:invitation"
	TypeEmailInvitationAccepted = "email:invitation_accepted"
)

// InvitationEmailPayload contains data for sending invitation emails.
type InvitationEmailPayload struct {
	RecipientEmail   string        `json:"recipient_email"`
	InviterName      string        `json:"inviter_name"`
	OrganizationName string        `json:"organization_name"`
	Role             string        `json:"role"`
	TeamName         string        `json:"team_name,omitempty"`
	ProjectName      string        `json:"project_name,omitempty"`
	Token            string        `json:"token"`
	ExpiresIn        time.Duration `json:"expires_in"`
	InvitationID     string        `json:"invitation_id"`
	OrganizationID   string        `json:"organization_id"`
}

// InvitationAcceptedPayload contains data for notifying the inviter that
// their invitation was accepted.
type InvitationAcceptedPayload struct {
	InviterEmail     string `json:"inviter_email"`
	InviterName      string `json:"inviter_name"`
	MemberEmail      string `json:"member_email"`
	OrganizationName string `json:"organization_name"`
	Role             string `json:"role"`
	OrganizationID   string `json:"organization_id"`
}

// NewInvitationEmailTask creates a new invitation email task.
func NewInvitationEmailTask(payload InvitationEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal invitation payload: %w", err)
	}
	return asynq.NewTask(
		TypeEmailInvitation,
		data,
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Second),
		asynq.Queue("email"),
	), nil
}

// NewInvitationAcceptedTask creates a new invitation accepted notice task.
func NewInvitationAcceptedTask(payload InvitationAcceptedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal invitation accepted payload: %w", err)
	}
	return asynq.NewTask(
		TypeEmailInvitationAccepted,
		data,
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Second),
		asynq.Queue("email"),
	), nil
}

// EmailTaskHandler handles email task processing.
type EmailTaskHandler struct {
	emailService *app.EmailService
	logger       *logger.Logger
}

// NewEmailTaskHandler creates a new email task handler.
func NewEmailTaskHandler(emailService *app.EmailService, log *logger.Logger) *EmailTaskHandler {
	return &EmailTaskHandler{
		emailService: emailService,
		logger:       log.With("handler", "email_tasks"),
	}
}

// HandleInvitationEmail processes invitation email tasks.
func (h *EmailTaskHandler) HandleInvitationEmail(ctx context.Context, t *asynq.Task) error {
	var payload InvitationEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	h.logger.Info("processing invitation email",
		"email", payload.RecipientEmail,
		"organization", payload.OrganizationName,
		"invitation_id", payload.InvitationID,
	)

	err := h.emailService.SendInvitationEmail(ctx, app.InvitationEmailJobPayload{
		RecipientEmail:   payload.RecipientEmail,
		InviterName:      payload.InviterName,
		OrganizationName: payload.OrganizationName,
		Role:             payload.Role,
		TeamName:         payload.TeamName,
		ProjectName:      payload.ProjectName,
		Token:            payload.Token,
		ExpiresIn:        payload.ExpiresIn,
		InvitationID:     payload.InvitationID,
		OrganizationID:   payload.OrganizationID,
	})
	if err != nil {
		metrics.RecordInvitationEmail("failed")
		h.logger.Error("failed to send invitation email",
			"email", payload.RecipientEmail,
			"error", err,
		)
		return err
	}

	metrics.RecordInvitationEmail("sent")
	h.logger.Info("invitation email sent successfully",
		"email", payload.RecipientEmail,
		"organization", payload.OrganizationName,
	)
	return nil
}

// HandleInvitationAccepted processes invitation accepted notice tasks.
func (h *EmailTaskHandler) HandleInvitationAccepted(ctx context.Context, t *asynq.Task) error {
	var payload InvitationAcceptedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	h.logger.Info("processing invitation accepted notice",
		"email", payload.InviterEmail,
		"member", payload.MemberEmail,
	)

	err := h.emailService.SendInvitationAcceptedEmail(ctx, app.InvitationAcceptedJobPayload{
		InviterEmail:     payload.InviterEmail,
		InviterName:      payload.InviterName,
		MemberEmail:      payload.MemberEmail,
		OrganizationName: payload.OrganizationName,
		Role:             payload.Role,
		OrganizationID:   payload.OrganizationID,
	})
	if err != nil {
		metrics.RecordInvitationEmail("failed")
		h.logger.Error("failed to send invitation accepted notice",
			"email", payload.InviterEmail,
			"error", err,
		)
		return err
	}

	metrics.RecordInvitationEmail("sent")
	h.logger.Info("invitation accepted notice sent successfully",
		"email", payload.InviterEmail,
	)
	return nil
}
