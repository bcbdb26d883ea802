package audit

import (
	"context"
	"time"

	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/pagination"
)

// Repository defines audit trail persistence. Entries attached to mutations
// are inserted by the mutating repository inside that mutation's transaction;
// this interface covers standalone writes (system actions) and reads.
type Repository interface {
	// Create persists a single entry outside any surrounding mutation,
	// used by maintenance jobs recording their own batch actions.
	Create(ctx context.Context, entry *Entry) error

	// List retrieves entries for one organization, newest first.
	List(ctx context.Context, organizationID shared.ID, filter Filter, page pagination.Pagination) (pagination.Result[*Entry], error)

	// CountOlderThan counts entries recorded before the cutoff, across all
	// organizations. Used to size retention batches.
	CountOlderThan(ctx context.Context, before time.Time) (int64, error)

	// ListOlderThan returns up to limit entries recorded before the cutoff,
	// oldest first, for archive export.
	ListOlderThan(ctx context.Context, before time.Time, limit int) ([]*Entry, error)

	// DeleteByIDs removes exactly the given entries. Only the retention job
	// calls this, after the batch has been uploaded to archive storage, so
	// a row is never deleted before it is archived.
	DeleteByIDs(ctx context.Context, ids []shared.ID) (int64, error)
}

// Filter narrows an organization-scoped listing.
type Filter struct {
	ActorID       *shared.ID
	Actions       []Action
	ResourceTypes []ResourceType
	ResourceID    *string
	Since         *time.Time
	Until         *time.Time
}
