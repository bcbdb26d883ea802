package jobs

import (
	"context"

	"github.com/taskforge/api/internal/app"
)

// EmailEnqueuerAdapter wraps the job Client to implement app.EmailJobEnqueuer.
type EmailEnqueuerAdapter struct {
	client *Client
}

// NewEmailEnqueuerAdapter creates a new adapter.
func NewEmailEnqueuerAdapter(client *Client) *EmailEnqueuerAdapter {
	return &EmailEnqueuerAdapter{client: client}
}

// EnqueueInvitationEmail converts app payload to job payload and enqueues.
func (a *EmailEnqueuerAdapter) EnqueueInvitationEmail(ctx context.Context, payload app.InvitationEmailJobPayload) error {
	jobPayload := InvitationEmailPayload{
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
	}
	return a.client.EnqueueInvitationEmail(ctx, jobPayload)
}

// EnqueueInvitationAccepted converts app payload to job payload and enqueues.
func (a *EmailEnqueuerAdapter) EnqueueInvitationAccepted(ctx context.Context, payload app.InvitationAcceptedJobPayload) error {
	jobPayload := InvitationAcceptedPayload{
		InviterEmail:     payload.InviterEmail,
		InviterName:      payload.InviterName,
		MemberEmail:      payload.MemberEmail,
		OrganizationName: payload.OrganizationName,
		Role:             payload.Role,
		OrganizationID:   payload.OrganizationID,
	}
	return a.client.EnqueueInvitationAccepted(ctx, jobPayload)
}

// Ensure the adapter implements the interface
var _ app.EmailJobEnqueuer = (*EmailEnqueuerAdapter)(nil)

// Ensure the client satisfies the scheduler's enqueue port directly
var _ app.MaintenanceJobEnqueuer = (*Client)(nil)
