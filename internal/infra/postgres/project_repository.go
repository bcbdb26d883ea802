package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/taskforge/api/pkg/domain/audit"
	"github.com/taskforge/api/pkg/domain/project"
	"github.com/taskforge/api/pkg/domain/shared"
)

// ProjectRepository implements project.Repository using PostgreSQL.
type ProjectRepository struct {
	db *DB
}

// NewProjectRepository creates a new ProjectRepository.
func NewProjectRepository(db *DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create persists a project and its audit entry in one transaction.
func (r *ProjectRepository) Create(ctx context.Context, p *project.Project, entry *audit.Entry) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO projects (id, team_id, organization_id, name, description, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`

		_, err := tx.ExecContext(ctx, query,
			p.ID().String(),
			p.TeamID().String(),
			p.OrganizationID().String(),
			p.Name(),
			p.Description(),
			p.CreatedBy().String(),
			p.CreatedAt(),
			p.UpdatedAt(),
		)
		if err != nil {
			if dup := uniqueViolation(err); dup != nil {
				return dup
			}
			return fmt.Errorf("failed to create project: %w", err)
		}

		return insertAuditEntry(ctx, tx, entry)
	})
}

// GetByID loads a project within the organization.
func (r *ProjectRepository) GetByID(ctx context.Context, organizationID, id shared.ID, includeDeleted bool) (*project.Project, error) {
	query := projectSelectQuery + ` WHERE organization_id = $1 AND id = $2`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}

	return scanProject(r.db.QueryRowContext(ctx, query, organizationID.String(), id.String()).Scan)
}

// List returns the organization's projects, optionally narrowed to one team,
// newest first.
func (r *ProjectRepository) List(ctx context.Context, organizationID shared.ID, filter project.Filter) ([]*project.Project, error) {
	query := projectSelectQuery + ` WHERE organization_id = $1`
	args := []any{organizationID.String()}

	if filter.TeamID != nil {
		query += ` AND team_id = $2`
		args = append(args, filter.TeamID.String())
	}
	if !filter.IncludeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*project.Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}

	return projects, rows.Err()
}

// Update persists name and description changes together with the audit
// entry.
func (r *ProjectRepository) Update(ctx context.Context, p *project.Project, entry *audit.Entry) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE projects
			SET name = $3, description = $4, updated_at = $5
			WHERE organization_id = $1 AND id = $2 AND deleted_at IS NULL
		`

		result, err := tx.ExecContext(ctx, query,
			p.OrganizationID().String(),
			p.ID().String(),
			p.Name(),
			p.Description(),
			p.UpdatedAt(),
		)
		if err != nil {
			if dup := uniqueViolation(err); dup != nil {
				return dup
			}
			return fmt.Errorf("failed to update project: %w", err)
		}

		rows, _ := result.RowsAffected()
		if rows == 0 {
			return shared.ErrNotFound
		}

		return insertAuditEntry(ctx, tx, entry)
	})
}

// SoftDeleteCascade stamps the project and its live tasks with the same
// deletedAt instant in one transaction. Returns the number of stamped tasks.
func (r *ProjectRepository) SoftDeleteCascade(ctx context.Context, organizationID, id shared.ID, deletedAt time.Time, entry *audit.Entry) (int64, error) {
	var tasks int64

	err := r.db.Transaction(ctx, func(tx *sql.Tx) error {
		var current sql.NullTime
		err := tx.QueryRowContext(ctx,
			`SELECT deleted_at FROM projects WHERE organization_id = $1 AND id = $2 FOR UPDATE`,
			organizationID.String(), id.String(),
		).Scan(&current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return shared.ErrNotFound
			}
			return fmt.Errorf("failed to lock project: %w", err)
		}
		if current.Valid {
			return shared.ErrAlreadyDeleted
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE projects SET deleted_at = $3, updated_at = $3 WHERE organization_id = $1 AND id = $2`,
			organizationID.String(), id.String(), deletedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to soft delete project: %w", err)
		}

		taskResult, err := tx.ExecContext(ctx, `
			UPDATE tasks SET deleted_at = $3, updated_at = $3
			WHERE organization_id = $1 AND project_id = $2 AND deleted_at IS NULL
		`, organizationID.String(), id.String(), deletedAt)
		if err != nil {
			return fmt.Errorf("failed to cascade delete tasks: %w", err)
		}
		tasks, _ = taskResult.RowsAffected()

		entry.WithContext("cascaded_tasks", tasks)

		return insertAuditEntry(ctx, tx, entry)
	})
	if err != nil {
		return 0, err
	}

	return tasks, nil
}

// RecoverCascade clears the project's stamp and resurrects exactly the tasks
// stamped with the project's deleted_at value. Tasks deleted before the
// project keep their own stamps.
func (r *ProjectRepository) RecoverCascade(ctx context.Context, organizationID, id shared.ID, entry *audit.Entry) (int64, error) {
	var tasks int64

	err := r.db.Transaction(ctx, func(tx *sql.Tx) error {
		var current sql.NullTime
		err := tx.QueryRowContext(ctx,
			`SELECT deleted_at FROM projects WHERE organization_id = $1 AND id = $2 FOR UPDATE`,
			organizationID.String(), id.String(),
		).Scan(&current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return shared.ErrNotFound
			}
			return fmt.Errorf("failed to lock project: %w", err)
		}
		if !current.Valid {
			return shared.ErrNotDeleted
		}
		stamp := current.Time

		now := time.Now().UTC()
		_, err = tx.ExecContext(ctx,
			`UPDATE projects SET deleted_at = NULL, updated_at = $3 WHERE organization_id = $1 AND id = $2`,
			organizationID.String(), id.String(), now,
		)
		if err != nil {
			return fmt.Errorf("failed to recover project: %w", err)
		}

		taskResult, err := tx.ExecContext(ctx, `
			UPDATE tasks SET deleted_at = NULL, updated_at = $4
			WHERE organization_id = $1 AND project_id = $2 AND deleted_at = $3
		`, organizationID.String(), id.String(), stamp, now)
		if err != nil {
			return fmt.Errorf("failed to cascade recover tasks: %w", err)
		}
		tasks, _ = taskResult.RowsAffected()

		entry.WithContext("recovered_tasks", tasks)

		return insertAuditEntry(ctx, tx, entry)
	})
	if err != nil {
		return 0, err
	}

	return tasks, nil
}

// AddMember grants a project membership.
func (r *ProjectRepository) AddMember(ctx context.Context, member *project.Member, entry *audit.Entry) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO project_members (id, project_id, organization_id, user_id, role, added_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`

		_, err := tx.ExecContext(ctx, query,
			member.ID().String(),
			member.ProjectID().String(),
			member.OrganizationID().String(),
			member.UserID().String(),
			member.Role().String(),
			nullID(member.AddedBy()),
			member.CreatedAt(),
		)
		if err != nil {
			if dup := uniqueViolation(err); dup != nil {
				return dup
			}
			return fmt.Errorf("failed to insert project member: %w", err)
		}

		return insertAuditEntry(ctx, tx, entry)
	})
}

// GetMember loads one membership.
func (r *ProjectRepository) GetMember(ctx context.Context, projectID, userID shared.ID) (*project.Member, error) {
	query := `
		SELECT id, project_id, organization_id, user_id, role, added_by, created_at
		FROM project_members
		WHERE project_id = $1 AND user_id = $2
	`

	return scanProjectMember(r.db.QueryRowContext(ctx, query, projectID.String(), userID.String()).Scan)
}

// UpdateMemberRole persists a role change.
func (r *ProjectRepository) UpdateMemberRole(ctx context.Context, member *project.Member, entry *audit.Entry) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE project_members SET role = $3 WHERE project_id = $1 AND user_id = $2`,
			member.ProjectID().String(), member.UserID().String(), member.Role().String(),
		)
		if err != nil {
			return fmt.Errorf("failed to update project member role: %w", err)
		}

		rows, _ := result.RowsAffected()
		if rows == 0 {
			return shared.ErrNotFound
		}

		return insertAuditEntry(ctx, tx, entry)
	})
}

// RemoveMember deletes a membership.
func (r *ProjectRepository) RemoveMember(ctx context.Context, projectID, userID shared.ID, entry *audit.Entry) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM project_members WHERE project_id = $1 AND user_id = $2`,
			projectID.String(), userID.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to remove project member: %w", err)
		}

		rows, _ := result.RowsAffected()
		if rows == 0 {
			return shared.ErrNotFound
		}

		return insertAuditEntry(ctx, tx, entry)
	})
}

// ListMembers returns memberships joined with user details, oldest first.
func (r *ProjectRepository) ListMembers(ctx context.Context, projectID shared.ID) ([]*project.MemberWithUser, error) {
	query := `
		SELECT m.id, m.user_id, m.role, m.added_by, m.created_at, u.email, u.name
		FROM project_members m
		INNER JOIN users u ON u.id = m.user_id
		WHERE m.project_id = $1
		ORDER BY m.created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, projectID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list project members: %w", err)
	}
	defer rows.Close()

	var members []*project.MemberWithUser
	for rows.Next() {
		var (
			idStr, userIDStr, roleStr string
			addedByStr                sql.NullString
			createdAt                 time.Time
			email, name               string
		)

		if err := rows.Scan(&idStr, &userIDStr, &roleStr, &addedByStr, &createdAt, &email, &name); err != nil {
			return nil, fmt.Errorf("failed to scan project member: %w", err)
		}

		id, err := shared.ParseID(idStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse membership id: %w", err)
		}
		userID, err := shared.ParseID(userIDStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse user id: %w", err)
		}
		role, ok := project.ParseRole(roleStr)
		if !ok {
			return nil, fmt.Errorf("unknown project role %q", roleStr)
		}
		addedBy, err := nullIDValue(addedByStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse added_by: %w", err)
		}

		members = append(members, &project.MemberWithUser{
			ID:        id,
			UserID:    userID,
			Role:      role,
			AddedBy:   addedBy,
			CreatedAt: createdAt,
			Email:     email,
			Name:      name,
		})
	}

	return members, rows.Err()
}

// CountByOrganization counts live projects in the organization.
func (r *ProjectRepository) CountByOrganization(ctx context.Context, organizationID shared.ID) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM projects WHERE organization_id = $1 AND deleted_at IS NULL`,
		organizationID.String(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count projects: %w", err)
	}
	return count, nil
}

const projectSelectQuery = `
	SELECT id, team_id, organization_id, name, description, created_by, created_at, updated_at, deleted_at
	FROM projects
`

func scanProject(scan func(dest ...any) error) (*project.Project, error) {
	var (
		idStr, teamIDStr, orgIDStr, name, description, createdByStr string
		createdAt, updatedAt                                        time.Time
		deletedAt                                                   sql.NullTime
	)

	err := scan(&idStr, &teamIDStr, &orgIDStr, &name, &description, &createdByStr, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}

	id, err := shared.ParseID(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse project id: %w", err)
	}
	teamID, err := shared.ParseID(teamIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse team id: %w", err)
	}
	orgID, err := shared.ParseID(orgIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse organization id: %w", err)
	}
	createdBy, err := shared.ParseID(createdByStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_by: %w", err)
	}

	return project.Reconstitute(
		id, teamID, orgID, name, description, createdBy,
		createdAt, updatedAt, nullTimeValue(deletedAt),
	), nil
}

func scanProjectMember(scan func(dest ...any) error) (*project.Member, error) {
	var (
		idStr, projectIDStr, orgIDStr, userIDStr, roleStr string
		addedByStr                                        sql.NullString
		createdAt                                         time.Time
	)

	err := scan(&idStr, &projectIDStr, &orgIDStr, &userIDStr, &roleStr, &addedByStr, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan project membership: %w", err)
	}

	id, err := shared.ParseID(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse membership id: %w", err)
	}
	projectID, err := shared.ParseID(projectIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse project id: %w", err)
	}
	orgID, err := shared.ParseID(orgIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse organization id: %w", err)
	}
	userID, err := shared.ParseID(userIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user id: %w", err)
	}
	role, ok := project.ParseRole(roleStr)
	if !ok {
		return nil, fmt.Errorf("unknown project role %q", roleStr)
	}
	addedBy, err := nullIDValue(addedByStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse added_by: %w", err)
	}

	return project.ReconstituteMember(id, projectID, orgID, userID, role, addedBy, createdAt), nil
}
