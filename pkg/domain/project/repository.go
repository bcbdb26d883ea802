package project

import (
	"context"
	"time"

	"github.com/taskforge/api/pkg/domain/audit"
	"github.com/taskforge/api/pkg/domain/shared"
)

// Repository defines project persistence. Every query carries the owning
// organization id. Mutating methods commit their audit entry in the same
// transaction.
type Repository interface {
	// Create persists a project. A name already used by a live project in the
	// team surfaces as shared.ErrDuplicateName.
	Create(ctx context.Context, p *Project, entry *audit.Entry) error

	// GetByID loads a project within the organization.
	GetByID(ctx context.Context, organizationID, id shared.ID, includeDeleted bool) (*Project, error)

	// List returns the organization's projects, optionally narrowed to one
	// team, newest first.
	List(ctx context.Context, organizationID shared.ID, filter Filter) ([]*Project, error)

	// Update persists name/description changes.
	Update(ctx context.Context, p *Project, entry *audit.Entry) error

	// SoftDeleteCascade stamps the project and its non-deleted tasks with the
	// same deletedAt instant in one transaction. Returns
	// shared.ErrAlreadyDeleted when the project is already stamped.
	SoftDeleteCascade(ctx context.Context, organizationID, id shared.ID, deletedAt time.Time, entry *audit.Entry) (int64, error)

	// RecoverCascade clears the project's stamp and the stamps of exactly the
	// tasks carrying the project's deleted_at value. Returns
	// shared.ErrNotDeleted when the project is active. The returned count is
	// the number of recovered tasks.
	RecoverCascade(ctx context.Context, organizationID, id shared.ID, entry *audit.Entry) (int64, error)

	// AddMember grants a membership; duplicate (project, user) surfaces as
	// shared.ErrAlreadyExists.
	AddMember(ctx context.Context, member *Member, entry *audit.Entry) error

	// GetMember loads one membership, shared.ErrNotFound when absent.
	GetMember(ctx context.Context, projectID, userID shared.ID) (*Member, error)

	// UpdateMemberRole persists a role change.
	UpdateMemberRole(ctx context.Context, member *Member, entry *audit.Entry) error

	// RemoveMember deletes a membership.
	RemoveMember(ctx context.Context, projectID, userID shared.ID, entry *audit.Entry) error

	// ListMembers returns memberships joined with user details.
	ListMembers(ctx context.Context, projectID shared.ID) ([]*MemberWithUser, error)

	// CountByOrganization counts live projects in the organization.
	CountByOrganization(ctx context.Context, organizationID shared.ID) (int64, error)
}

// Filter narrows a project listing.
type Filter struct {
	TeamID         *shared.ID
	IncludeDeleted bool
}
