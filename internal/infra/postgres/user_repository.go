package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/domain/user"
)

// UserRepository implements user.Repository using PostgreSQL.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id shared.ID) (*user.User, error) {
	query := userSelectQuery + ` WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id.String()).Scan)
}

// GetByEmail retrieves a user by email, case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	query := userSelectQuery + ` WHERE email = LOWER($1)`
	return scanUser(r.db.QueryRowContext(ctx, query, email).Scan)
}

// GetByIDs retrieves users by a batch of IDs. Missing IDs are simply absent
// from the result.
func (r *UserRepository) GetByIDs(ctx context.Context, ids []shared.ID) ([]*user.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	idStrs := make([]string, len(ids))
	for i, id := range ids {
		idStrs[i] = id.String()
	}

	query := userSelectQuery + ` WHERE id = ANY($1) ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(idStrs))
	if err != nil {
		return nil, fmt.Errorf("failed to get users by ids: %w", err)
	}
	defer rows.Close()

	var users []*user.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

// Upsert inserts the user or refreshes email, name and last_seen_at. A single
// statement, it runs on every authenticated request.
func (r *UserRepository) Upsert(ctx context.Context, u *user.User) error {
	query := `
		INSERT INTO users (id, email, name, last_seen_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			last_seen_at = EXCLUDED.last_seen_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		u.ID().String(),
		u.Email(),
		u.Name(),
		nullTime(u.LastSeenAt()),
		u.CreatedAt(),
		u.UpdatedAt(),
	)
	if err != nil {
		if dup := uniqueViolation(err); dup != nil {
			return dup
		}
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	return nil
}

const userSelectQuery = `
	SELECT id, email, name, last_seen_at, created_at, updated_at
	FROM users
`

func scanUser(scan func(dest ...any) error) (*user.User, error) {
	var (
		idStr, email, name   string
		lastSeenAt           sql.NullTime
		createdAt, updatedAt time.Time
	)

	err := scan(&idStr, &email, &name, &lastSeenAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	id, err := shared.ParseID(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user id: %w", err)
	}

	return user.Reconstitute(id, email, name, nullTimeValue(lastSeenAt), createdAt, updatedAt), nil
}
