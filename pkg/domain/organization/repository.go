package organization

import (
	"context"
	"time"

	"github.com/taskforge/api/pkg/domain/audit"
	"github.com/taskforge/api/pkg/domain/shared"
)

// Repository defines organization persistence. Mutating methods take the
// audit entry describing the change and must commit it in the same
// transaction as the mutation.
type Repository interface {
	// Create persists the organization together with its founding Owner
	// membership. A taken slug surfaces as shared.ErrDuplicateSlug and
	// nothing is persisted.
	Create(ctx context.Context, org *Organization, owner *Member, entry *audit.Entry) error

	// GetByID loads an organization. Soft-deleted rows are only returned
	// when includeDeleted is set.
	GetByID(ctx context.Context, id shared.ID, includeDeleted bool) (*Organization, error)

	// GetBySlug loads an organization by its globally unique slug.
	GetBySlug(ctx context.Context, slug string, includeDeleted bool) (*Organization, error)

	// ListByUser returns the organizations the user is a member of, with the
	// user's role in each, newest first.
	ListByUser(ctx context.Context, userID shared.ID, includeDeleted bool) ([]*WithRole, error)

	// Update persists name/description changes.
	Update(ctx context.Context, org *Organization, entry *audit.Entry) error

	// SoftDelete stamps deleted_at. Returns shared.ErrAlreadyDeleted when the
	// row is already stamped, checked inside the transaction.
	SoftDelete(ctx context.Context, id shared.ID, deletedAt time.Time, entry *audit.Entry) error

	// Recover clears deleted_at. Returns shared.ErrNotDeleted when the row is
	// active.
	Recover(ctx context.Context, id shared.ID, entry *audit.Entry) error

	// AddMember grants a membership. A duplicate (organization, user) pair
	// surfaces as shared.ErrAlreadyExists.
	AddMember(ctx context.Context, member *Member, entry *audit.Entry) error

	// GetMember loads one membership, shared.ErrNotFound when absent.
	GetMember(ctx context.Context, organizationID, userID shared.ID) (*Member, error)

	// UpdateMemberRole persists a role change. Demoting the last Owner
	// surfaces as shared.ErrLastOwner, checked inside the transaction.
	UpdateMemberRole(ctx context.Context, member *Member, entry *audit.Entry) error

	// RemoveMember deletes a membership. Removing the last Owner surfaces as
	// shared.ErrLastOwner, checked inside the transaction.
	RemoveMember(ctx context.Context, organizationID, userID shared.ID, entry *audit.Entry) error

	// ListMembers returns memberships joined with user details.
	ListMembers(ctx context.Context, organizationID shared.ID) ([]*MemberWithUser, error)

	// CountMembers returns the number of members.
	CountMembers(ctx context.Context, organizationID shared.ID) (int64, error)
}

// WithRole pairs an organization with the requesting user's role in it.
type WithRole struct {
	Organization *Organization
	Role         Role
	JoinedAt     time.Time
}

// Overview aggregates per-organization counts for the dashboard endpoint.
type Overview struct {
	Members  int64 `json:"members"`
	Teams    int64 `json:"teams"`
	Projects int64 `json:"projects"`
	Tasks    int64 `json:"tasks"`
}
