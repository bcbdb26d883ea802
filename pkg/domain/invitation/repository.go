package invitation

import (
	"context"
	"time"

	"github.com/taskforge/api/pkg/domain/audit"
	"github.com/taskforge/api/pkg/domain/organization"
	"github.com/taskforge/api/pkg/domain/project"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/domain/team"
	"github.com/taskforge/api/pkg/pagination"
)

// StatusFilter selects invitations by lifecycle state. The state is computed
// from accepted_at and expires_at, no status column exists.
type StatusFilter string

const (
	StatusPending  StatusFilter = "pending"
	StatusAccepted StatusFilter = "accepted"
	StatusExpired  StatusFilter = "expired"
)

// IsValid checks if the status filter is one of the closed set.
func (s StatusFilter) IsValid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusExpired:
		return true
	}
	return false
}

// Filter narrows invitation listings within an organization.
type Filter struct {
	Status *StatusFilter
	Email  *string
}

// AcceptGrants bundles the membership rows created when an invitation is
// accepted. OrgMember is always set; the others follow the invitation's
// optional grants.
type AcceptGrants struct {
	OrgMember     *organization.Member
	TeamMember    *team.Member
	ProjectMember *project.Member
}

// Repository defines persistence for invitations. The token column carries a
// unique constraint, so the improbable generator collision surfaces as
// shared.ErrAlreadyExists instead of a silent overwrite.
type Repository interface {
	// Create persists a new invitation and its audit entry atomically.
	Create(ctx context.Context, inv *Invitation, entry *audit.Entry) error

	// GetByToken fetches an invitation by its acceptance token, in any
	// lifecycle state. Returns shared.ErrNotFound for unknown tokens.
	GetByToken(ctx context.Context, token string) (*Invitation, error)

	// GetByID fetches an invitation within an organization.
	GetByID(ctx context.Context, organizationID, id shared.ID) (*Invitation, error)

	// List returns invitations for an organization, newest first.
	List(ctx context.Context, organizationID shared.ID, filter Filter, page pagination.Pagination) (pagination.Result[*Invitation], error)

	// Accept stamps accepted_at/accepted_by and inserts the granted
	// membership rows and the audit entry in one transaction. A concurrent
	// accept loses on the accepted_at guard and gets
	// shared.ErrInvitationAccepted; an existing organization membership
	// surfaces as shared.ErrAlreadyExists.
	Accept(ctx context.Context, inv *Invitation, grants AcceptGrants, entry *audit.Entry) error

	// Delete removes a pending invitation. Accepted invitations are refused
	// with shared.ErrInvitationAccepted inside the transaction.
	Delete(ctx context.Context, organizationID, id shared.ID, entry *audit.Entry) error

	// ListExpiredOrganizations returns the IDs of organizations holding
	// expired, unaccepted invitations older than the cutoff.
	ListExpiredOrganizations(ctx context.Context, before time.Time) ([]shared.ID, error)

	// DeleteExpired prunes expired, unaccepted invitations of one
	// organization and records the audit entry in the same transaction. The
	// deleted count is added to the entry context before insert.
	DeleteExpired(ctx context.Context, organizationID shared.ID, before time.Time, entry *audit.Entry) (int64, error)
}
