package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/taskforge/api/pkg/domain/audit"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/domain/team"
)

// TeamRepository implements team.Repository using PostgreSQL.
type TeamRepository struct {
	db *DB
}

// NewTeamRepository creates a new TeamRepository.
func NewTeamRepository(db *DB) *TeamRepository {
	return &TeamRepository{db: db}
}

// Create persists a team and its audit entry in one transaction.
func (r *TeamRepository) Create(ctx context.Context, t *team.Team, entry *audit.Entry) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO teams (id, organization_id, name, description, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`

		_, err := tx.ExecContext(ctx, query,
			t.ID().String(),
			t.OrganizationID().String(),
			t.Name(),
			t.Description(),
			t.CreatedBy().String(),
			t.CreatedAt(),
			t.UpdatedAt(),
		)
		if err != nil {
			if dup := uniqueViolation(err); dup != nil {
				return dup
			}
			return fmt.Errorf("failed to create team: %w", err)
		}

		return insertAuditEntry(ctx, tx, entry)
	})
}

// GetByID loads a team within the organization. A team id belonging to
// another organization misses the predicate and reads as not found.
func (r *TeamRepository) GetByID(ctx context.Context, organizationID, id shared.ID, includeDeleted bool) (*team.Team, error) {
	query := teamSelectQuery + ` WHERE organization_id = $1 AND id = $2`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}

	return scanTeam(r.db.QueryRowContext(ctx, query, organizationID.String(), id.String()).Scan)
}

// List returns the organization's teams, newest first.
func (r *TeamRepository) List(ctx context.Context, organizationID shared.ID, includeDeleted bool) ([]*team.Team, error) {
	query := teamSelectQuery + ` WHERE organization_id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, organizationID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	var teams []*team.Team
	for rows.Next() {
		t, err := scanTeam(rows.Scan)
		if err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}

	return teams, rows.Err()
}

// Update persists name and description changes together with the audit
// entry.
func (r *TeamRepository) Update(ctx context.Context, t *team.Team, entry *audit.Entry) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE teams
			SET name = $3, description = $4, updated_at = $5
			WHERE organization_id = $1 AND id = $2 AND deleted_at IS NULL
		`

		result, err := tx.ExecContext(ctx, query,
			t.OrganizationID().String(),
			t.ID().String(),
			t.Name(),
			t.Description(),
			t.UpdatedAt(),
		)
		if err != nil {
			if dup := uniqueViolation(err); dup != nil {
				return dup
			}
			return fmt.Errorf("failed to update team: %w", err)
		}

		rows, _ := result.RowsAffected()
		if rows == 0 {
			return shared.ErrNotFound
		}

		return insertAuditEntry(ctx, tx, entry)
	})
}

// SoftDeleteCascade stamps the team, its live projects and their live tasks
// with the same deletedAt instant in one transaction. Children deleted
// earlier keep their own stamps.
func (r *TeamRepository) SoftDeleteCascade(ctx context.Context, organizationID, id shared.ID, deletedAt time.Time, entry *audit.Entry) (*team.CascadeResult, error) {
	cascade := &team.CascadeResult{}

	err := r.db.Transaction(ctx, func(tx *sql.Tx) error {
		var current sql.NullTime
		err := tx.QueryRowContext(ctx,
			`SELECT deleted_at FROM teams WHERE organization_id = $1 AND id = $2 FOR UPDATE`,
			organizationID.String(), id.String(),
		).Scan(&current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return shared.ErrNotFound
			}
			return fmt.Errorf("failed to lock team: %w", err)
		}
		if current.Valid {
			return shared.ErrAlreadyDeleted
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE teams SET deleted_at = $3, updated_at = $3 WHERE organization_id = $1 AND id = $2`,
			organizationID.String(), id.String(), deletedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to soft delete team: %w", err)
		}

		// Tasks first: the project subquery must still see the projects as
		// live to pick up their tasks.
		taskResult, err := tx.ExecContext(ctx, `
			UPDATE tasks SET deleted_at = $3, updated_at = $3
			WHERE organization_id = $1 AND deleted_at IS NULL
			  AND project_id IN (
				SELECT id FROM projects
				WHERE organization_id = $1 AND team_id = $2 AND deleted_at IS NULL
			  )
		`, organizationID.String(), id.String(), deletedAt)
		if err != nil {
			return fmt.Errorf("failed to cascade delete tasks: %w", err)
		}
		cascade.Tasks, _ = taskResult.RowsAffected()

		projectResult, err := tx.ExecContext(ctx, `
			UPDATE projects SET deleted_at = $3, updated_at = $3
			WHERE organization_id = $1 AND team_id = $2 AND deleted_at IS NULL
		`, organizationID.String(), id.String(), deletedAt)
		if err != nil {
			return fmt.Errorf("failed to cascade delete projects: %w", err)
		}
		cascade.Projects, _ = projectResult.RowsAffected()

		entry.WithContext("cascaded_projects", cascade.Projects)
		entry.WithContext("cascaded_tasks", cascade.Tasks)

		return insertAuditEntry(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}

	return cascade, nil
}

// RecoverCascade clears the team's stamp and resurrects exactly the children
// stamped with the team's deleted_at value.
func (r *TeamRepository) RecoverCascade(ctx context.Context, organizationID, id shared.ID, entry *audit.Entry) (*team.CascadeResult, error) {
	cascade := &team.CascadeResult{}

	err := r.db.Transaction(ctx, func(tx *sql.Tx) error {
		var current sql.NullTime
		err := tx.QueryRowContext(ctx,
			`SELECT deleted_at FROM teams WHERE organization_id = $1 AND id = $2 FOR UPDATE`,
			organizationID.String(), id.String(),
		).Scan(&current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return shared.ErrNotFound
			}
			return fmt.Errorf("failed to lock team: %w", err)
		}
		if !current.Valid {
			return shared.ErrNotDeleted
		}
		stamp := current.Time

		now := time.Now().UTC()
		_, err = tx.ExecContext(ctx,
			`UPDATE teams SET deleted_at = NULL, updated_at = $3 WHERE organization_id = $1 AND id = $2`,
			organizationID.String(), id.String(), now,
		)
		if err != nil {
			return fmt.Errorf("failed to recover team: %w", err)
		}

		taskResult, err := tx.ExecContext(ctx, `
			UPDATE tasks SET deleted_at = NULL, updated_at = $4
			WHERE organization_id = $1 AND deleted_at = $3
			  AND project_id IN (
				SELECT id FROM projects
				WHERE organization_id = $1 AND team_id = $2
			  )
		`, organizationID.String(), id.String(), stamp, now)
		if err != nil {
			return fmt.Errorf("failed to cascade recover tasks: %w", err)
		}
		cascade.Tasks, _ = taskResult.RowsAffected()

		projectResult, err := tx.ExecContext(ctx, `
			UPDATE projects SET deleted_at = NULL, updated_at = $4
			WHERE organization_id = $1 AND team_id = $2 AND deleted_at = $3
		`, organizationID.String(), id.String(), stamp, now)
		if err != nil {
			return fmt.Errorf("failed to cascade recover projects: %w", err)
		}
		cascade.Projects, _ = projectResult.RowsAffected()

		entry.WithContext("recovered_projects", cascade.Projects)
		entry.WithContext("recovered_tasks", cascade.Tasks)

		return insertAuditEntry(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}

	return cascade, nil
}

// AddMember grants a team membership.
func (r *TeamRepository) AddMember(ctx context.Context, member *team.Member, entry *audit.Entry) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO team_members (id, team_id, organization_id, user_id, role, added_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`

		_, err := tx.ExecContext(ctx, query,
			member.ID().String(),
			member.TeamID().String(),
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
			return fmt.Errorf("failed to insert team member: %w", err)
		}

		return insertAuditEntry(ctx, tx, entry)
	})
}

// GetMember loads one membership.
func (r *TeamRepository) GetMember(ctx context.Context, teamID, userID shared.ID) (*team.Member, error) {
	query := `
		SELECT id, team_id, organization_id, user_id, role, added_by, created_at
		FROM team_members
		WHERE team_id = $1 AND user_id = $2
	`

	return scanTeamMember(r.db.QueryRowContext(ctx, query, teamID.String(), userID.String()).Scan)
}

// UpdateMemberRole persists a role change.
func (r *TeamRepository) UpdateMemberRole(ctx context.Context, member *team.Member, entry *audit.Entry) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE team_members SET role = $3 WHERE team_id = $1 AND user_id = $2`,
			member.TeamID().String(), member.UserID().String(), member.Role().String(),
		)
		if err != nil {
			return fmt.Errorf("failed to update team member role: %w", err)
		}

		rows, _ := result.RowsAffected()
		if rows == 0 {
			return shared.ErrNotFound
		}

		return insertAuditEntry(ctx, tx, entry)
	})
}

// RemoveMember deletes a membership.
func (r *TeamRepository) RemoveMember(ctx context.Context, teamID, userID shared.ID, entry *audit.Entry) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM team_members WHERE team_id = $1 AND user_id = $2`,
			teamID.String(), userID.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to remove team member: %w", err)
		}

		rows, _ := result.RowsAffected()
		if rows == 0 {
			return shared.ErrNotFound
		}

		return insertAuditEntry(ctx, tx, entry)
	})
}

// ListMembers returns memberships joined with user details, oldest first.
func (r *TeamRepository) ListMembers(ctx context.Context, teamID shared.ID) ([]*team.MemberWithUser, error) {
	query := `
		SELECT m.id, m.user_id, m.role, m.added_by, m.created_at, u.email, u.name
		FROM team_members m
		INNER JOIN users u ON u.id = m.user_id
		WHERE m.team_id = $1
		ORDER BY m.created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, teamID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	defer rows.Close()

	var members []*team.MemberWithUser
	for rows.Next() {
		var (
			idStr, userIDStr, roleStr string
			addedByStr                sql.NullString
			createdAt                 time.Time
			email, name               string
		)

		if err := rows.Scan(&idStr, &userIDStr, &roleStr, &addedByStr, &createdAt, &email, &name); err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}

		id, err := shared.ParseID(idStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse membership id: %w", err)
		}
		userID, err := shared.ParseID(userIDStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse user id: %w", err)
		}
		role, ok := team.ParseRole(roleStr)
		if !ok {
			return nil, fmt.Errorf("unknown team role %q", roleStr)
		}
		addedBy, err := nullIDValue(addedByStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse added_by: %w", err)
		}

		members = append(members, &team.MemberWithUser{
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

// CountByOrganization counts live teams in the organization.
func (r *TeamRepository) CountByOrganization(ctx context.Context, organizationID shared.ID) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM teams WHERE organization_id = $1 AND deleted_at IS NULL`,
		organizationID.String(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count teams: %w", err)
	}
	return count, nil
}

const teamSelectQuery = `
	SELECT id, organization_id, name, description, created_by, created_at, updated_at, deleted_at
	FROM teams
`

func scanTeam(scan func(dest ...any) error) (*team.Team, error) {
	var (
		idStr, orgIDStr, name, description, createdByStr string
		createdAt, updatedAt                             time.Time
		deletedAt                                        sql.NullTime
	)

	err := scan(&idStr, &orgIDStr, &name, &description, &createdByStr, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan team: %w", err)
	}

	id, err := shared.ParseID(idStr)
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

	return team.Reconstitute(
		id, orgID, name, description, createdBy,
		createdAt, updatedAt, nullTimeValue(deletedAt),
	), nil
}

func scanTeamMember(scan func(dest ...any) error) (*team.Member, error) {
	var (
		idStr, teamIDStr, orgIDStr, userIDStr, roleStr string
		addedByStr                                     sql.NullString
		createdAt                                      time.Time
	)

	err := scan(&idStr, &teamIDStr, &orgIDStr, &userIDStr, &roleStr, &addedByStr, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan team membership: %w", err)
	}

	id, err := shared.ParseID(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse membership id: %w", err)
	}
	teamID, err := shared.ParseID(teamIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse team id: %w", err)
	}
	orgID, err := shared.ParseID(orgIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse organization id: %w", err)
	}
	userID, err := shared.ParseID(userIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user id: %w", err)
	}
	role, ok := team.ParseRole(roleStr)
	if !ok {
		return nil, fmt.Errorf("unknown team role %q", roleStr)
	}
	addedBy, err := nullIDValue(addedByStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse added_by: %w", err)
	}

	return team.ReconstituteMember(id, teamID, orgID, userID, role, addedBy, createdAt), nil
}
