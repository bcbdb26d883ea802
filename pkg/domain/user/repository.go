package user

import (
	"context"

	"github.com/taskforge/api/pkg/domain/shared"
)

// Repository defines the interface for user directory persistence.
type Repository interface {
	GetByID(ctx context.Context, id shared.ID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByIDs(ctx context.Context, ids []shared.ID) ([]*User, error)

	// Upsert inserts the user or refreshes email, name and last_seen_at on
	// conflict. Called from the request path, so it has to stay a single
	// statement.
	Upsert(ctx context.Context, u *User) error
}
