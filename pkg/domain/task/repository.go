package task

import (
	"context"
	"time"

	"github.com/taskforge/api/pkg/domain/audit"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/pagination"
)

// Filter narrows task listings. Every implementation still scopes by
// organization_id regardless of the filter.
type Filter struct {
	ProjectID      *shared.ID
	Status         *Status
	IncludeDeleted bool
}

// Repository defines persistence for tasks. Mutating methods take the audit
// entry recorded in the same transaction as the row change.
type Repository interface {
	// Create persists a new task and its audit entry atomically.
	Create(ctx context.Context, t *Task, entry *audit.Entry) error

	// GetByID fetches a task within an organization. Soft-deleted rows are
	// excluded unless includeDeleted is set. Returns shared.ErrNotFound when
	// no row matches inside the organization.
	GetByID(ctx context.Context, organizationID, id shared.ID, includeDeleted bool) (*Task, error)

	// List returns tasks in an organization matching the filter, newest
	// first.
	List(ctx context.Context, organizationID shared.ID, filter Filter, page pagination.Pagination) (pagination.Result[*Task], error)

	// Update persists title and status changes together with the audit entry.
	Update(ctx context.Context, t *Task, entry *audit.Entry) error

	// SoftDelete stamps deleted_at on an active task. Returns
	// shared.ErrAlreadyDeleted, checked inside the transaction, when the row
	// is already stamped.
	SoftDelete(ctx context.Context, organizationID, id shared.ID, deletedAt time.Time, entry *audit.Entry) error

	// Recover clears deleted_at on a soft-deleted task. Returns
	// shared.ErrNotDeleted, checked inside the transaction, when the row is
	// active.
	Recover(ctx context.Context, organizationID, id shared.ID, entry *audit.Entry) error

	// CountByOrganization counts active tasks for overview aggregation.
	CountByOrganization(ctx context.Context, organizationID shared.ID) (int64, error)
}
