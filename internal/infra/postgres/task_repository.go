package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/taskforge/api/pkg/domain/audit"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/domain/task"
	"github.com/taskforge/api/pkg/pagination"
)

// TaskRepository implements task.Repository using PostgreSQL.
type TaskRepository struct {
	db *DB
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create persists a task and its audit entry in one transaction.
func (r *TaskRepository) Create(ctx context.Context, t *task.Task, entry *audit.Entry) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO tasks (id, project_id, organization_id, title, status, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`

		_, err := tx.ExecContext(ctx, query,
			t.ID().String(),
			t.ProjectID().String(),
			t.OrganizationID().String(),
			t.Title(),
			t.Status().String(),
			t.CreatedBy().String(),
			t.CreatedAt(),
			t.UpdatedAt(),
		)
		if err != nil {
			return fmt.Errorf("failed to create task: %w", err)
		}

		return insertAuditEntry(ctx, tx, entry)
	})
}

// GetByID loads a task within the organization.
func (r *TaskRepository) GetByID(ctx context.Context, organizationID, id shared.ID, includeDeleted bool) (*task.Task, error) {
	query := taskSelectQuery + ` WHERE organization_id = $1 AND id = $2`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}

	return scanTask(r.db.QueryRowContext(ctx, query, organizationID.String(), id.String()).Scan)
}

// List returns tasks in the organization matching the filter, newest first.
func (r *TaskRepository) List(ctx context.Context, organizationID shared.ID, filter task.Filter, page pagination.Pagination) (pagination.Result[*task.Task], error) {
	conditions := []string{"organization_id = $1"}
	args := []any{organizationID.String()}
	argIndex := 2

	if filter.ProjectID != nil {
		conditions = append(conditions, fmt.Sprintf("project_id = $%d", argIndex))
		args = append(args, filter.ProjectID.String())
		argIndex++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, filter.Status.String())
		argIndex++
	}
	if !filter.IncludeDeleted {
		conditions = append(conditions, "deleted_at IS NULL")
	}

	whereClause := strings.Join(conditions, " AND ")

	var total int64
	countQuery := `SELECT COUNT(*) FROM tasks WHERE ` + whereClause
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return pagination.Result[*task.Task]{}, fmt.Errorf("failed to count tasks: %w", err)
	}

	query := taskSelectQuery + ` WHERE ` + whereClause +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", page.Limit(), page.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return pagination.Result[*task.Task]{}, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return pagination.Result[*task.Task]{}, err
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return pagination.Result[*task.Task]{}, fmt.Errorf("failed to iterate tasks: %w", err)
	}

	return pagination.NewResult(tasks, total, page), nil
}

// Update persists title and status changes together with the audit entry.
func (r *TaskRepository) Update(ctx context.Context, t *task.Task, entry *audit.Entry) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE tasks
			SET title = $3, status = $4, updated_at = $5
			WHERE organization_id = $1 AND id = $2 AND deleted_at IS NULL
		`

		result, err := tx.ExecContext(ctx, query,
			t.OrganizationID().String(),
			t.ID().String(),
			t.Title(),
			t.Status().String(),
			t.UpdatedAt(),
		)
		if err != nil {
			return fmt.Errorf("failed to update task: %w", err)
		}

		rows, _ := result.RowsAffected()
		if rows == 0 {
			return shared.ErrNotFound
		}

		return insertAuditEntry(ctx, tx, entry)
	})
}

// SoftDelete stamps deleted_at on an active task.
func (r *TaskRepository) SoftDelete(ctx context.Context, organizationID, id shared.ID, deletedAt time.Time, entry *audit.Entry) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		var current sql.NullTime
		err := tx.QueryRowContext(ctx,
			`SELECT deleted_at FROM tasks WHERE organization_id = $1 AND id = $2 FOR UPDATE`,
			organizationID.String(), id.String(),
		).Scan(&current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return shared.ErrNotFound
			}
			return fmt.Errorf("failed to lock task: %w", err)
		}
		if current.Valid {
			return shared.ErrAlreadyDeleted
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE tasks SET deleted_at = $3, updated_at = $3 WHERE organization_id = $1 AND id = $2`,
			organizationID.String(), id.String(), deletedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to soft delete task: %w", err)
		}

		return insertAuditEntry(ctx, tx, entry)
	})
}

// Recover clears deleted_at on a soft-deleted task.
func (r *TaskRepository) Recover(ctx context.Context, organizationID, id shared.ID, entry *audit.Entry) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		var current sql.NullTime
		err := tx.QueryRowContext(ctx,
			`SELECT deleted_at FROM tasks WHERE organization_id = $1 AND id = $2 FOR UPDATE`,
			organizationID.String(), id.String(),
		).Scan(&current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return shared.ErrNotFound
			}
			return fmt.Errorf("failed to lock task: %w", err)
		}
		if !current.Valid {
			return shared.ErrNotDeleted
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE tasks SET deleted_at = NULL, updated_at = $3 WHERE organization_id = $1 AND id = $2`,
			organizationID.String(), id.String(), time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to recover task: %w", err)
		}

		return insertAuditEntry(ctx, tx, entry)
	})
}

// CountByOrganization counts live tasks in the organization.
func (r *TaskRepository) CountByOrganization(ctx context.Context, organizationID shared.ID) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE organization_id = $1 AND deleted_at IS NULL`,
		organizationID.String(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

const taskSelectQuery = `
	SELECT id, project_id, organization_id, title, status, created_by, created_at, updated_at, deleted_at
	FROM tasks
`

func scanTask(scan func(dest ...any) error) (*task.Task, error) {
	var (
		idStr, projectIDStr, orgIDStr, title, statusStr, createdByStr string
		createdAt, updatedAt                                          time.Time
		deletedAt                                                     sql.NullTime
	)

	err := scan(&idStr, &projectIDStr, &orgIDStr, &title, &statusStr, &createdByStr, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	id, err := shared.ParseID(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse task id: %w", err)
	}
	projectID, err := shared.ParseID(projectIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse project id: %w", err)
	}
	orgID, err := shared.ParseID(orgIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse organization id: %w", err)
	}
	createdBy, err := shared.ParseID(createdByStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_by: %w", err)
	}

	return task.Reconstitute(
		id, projectID, orgID, title, task.Status(statusStr), createdBy,
		createdAt, updatedAt, nullTimeValue(deletedAt),
	), nil
}
