package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/taskforge/api/pkg/domain/audit"
	"github.com/taskforge/api/pkg/domain/invitation"
	"github.com/taskforge/api/pkg/domain/organization"
	"github.com/taskforge/api/pkg/domain/project"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/domain/team"
	"github.com/taskforge/api/pkg/pagination"
)

// InvitationRepository implements invitation.Repository using PostgreSQL.
type InvitationRepository struct {
	db *DB
}

// NewInvitationRepository creates a new InvitationRepository.
func NewInvitationRepository(db *DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

// Create persists an invitation and its audit entry in one transaction. A
// pending invitation for the same address surfaces as shared.ErrAlreadyExists
// via the partial unique index.
func (r *InvitationRepository) Create(ctx context.Context, inv *invitation.Invitation, entry *audit.Entry) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO invitations (
				id, organization_id, email, org_role,
				team_id, team_role, project_id, project_role,
				token, invited_by, expires_at, created_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`

		_, err := tx.ExecContext(ctx, query,
			inv.ID().String(),
			inv.OrganizationID().String(),
			inv.Email(),
			inv.OrgRole().String(),
			nullID(inv.TeamID()),
			nullString(inv.TeamRole().String()),
			nullID(inv.ProjectID()),
			nullString(inv.ProjectRole().String()),
			inv.Token(),
			inv.InvitedBy().String(),
			inv.ExpiresAt(),
			inv.CreatedAt(),
		)
		if err != nil {
			if dup := uniqueViolation(err); dup != nil {
				return dup
			}
			return fmt.Errorf("failed to create invitation: %w", err)
		}

		return insertAuditEntry(ctx, tx, entry)
	})
}

// GetByToken fetches an invitation by its acceptance token, in any lifecycle
// state.
func (r *InvitationRepository) GetByToken(ctx context.Context, token string) (*invitation.Invitation, error) {
	query := invitationSelectQuery + ` WHERE token = $1`
	return scanInvitation(r.db.QueryRowContext(ctx, query, token).Scan)
}

// GetByID fetches an invitation within an organization.
func (r *InvitationRepository) GetByID(ctx context.Context, organizationID, id shared.ID) (*invitation.Invitation, error) {
	query := invitationSelectQuery + ` WHERE organization_id = $1 AND id = $2`
	return scanInvitation(r.db.QueryRowContext(ctx, query, organizationID.String(), id.String()).Scan)
}

// List returns invitations for an organization, newest first. Lifecycle
// states are computed from accepted_at and expires_at.
func (r *InvitationRepository) List(ctx context.Context, organizationID shared.ID, filter invitation.Filter, page pagination.Pagination) (pagination.Result[*invitation.Invitation], error) {
	conditions := []string{"organization_id = $1"}
	args := []any{organizationID.String()}
	argIndex := 2

	if filter.Status != nil {
		switch *filter.Status {
		case invitation.StatusPending:
			conditions = append(conditions, fmt.Sprintf("accepted_at IS NULL AND expires_at > $%d", argIndex))
			args = append(args, time.Now().UTC())
			argIndex++
		case invitation.StatusAccepted:
			conditions = append(conditions, "accepted_at IS NOT NULL")
		case invitation.StatusExpired:
			conditions = append(conditions, fmt.Sprintf("accepted_at IS NULL AND expires_at <= $%d", argIndex))
			args = append(args, time.Now().UTC())
			argIndex++
		}
	}

	if filter.Email != nil {
		conditions = append(conditions, fmt.Sprintf("email = LOWER($%d)", argIndex))
		args = append(args, *filter.Email)
		argIndex++
	}

	whereClause := strings.Join(conditions, " AND ")

	var total int64
	countQuery := `SELECT COUNT(*) FROM invitations WHERE ` + whereClause
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return pagination.Result[*invitation.Invitation]{}, fmt.Errorf("failed to count invitations: %w", err)
	}

	query := invitationSelectQuery + ` WHERE ` + whereClause +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", page.Limit(), page.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return pagination.Result[*invitation.Invitation]{}, fmt.Errorf("failed to query invitations: %w", err)
	}
	defer rows.Close()

	var invitations []*invitation.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows.Scan)
		if err != nil {
			return pagination.Result[*invitation.Invitation]{}, err
		}
		invitations = append(invitations, inv)
	}

	if err := rows.Err(); err != nil {
		return pagination.Result[*invitation.Invitation]{}, fmt.Errorf("failed to iterate invitations: %w", err)
	}

	return pagination.NewResult(invitations, total, page), nil
}

// Accept stamps accepted_at/accepted_by and inserts the granted membership
// rows and the audit entry in one transaction. The accepted_at guard is
// checked under a row lock so a concurrent accept of the same token loses
// deterministically.
func (r *InvitationRepository) Accept(ctx context.Context, inv *invitation.Invitation, grants invitation.AcceptGrants, entry *audit.Entry) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		var acceptedAt sql.NullTime
		err := tx.QueryRowContext(ctx,
			`SELECT accepted_at FROM invitations WHERE id = $1 FOR UPDATE`,
			inv.ID().String(),
		).Scan(&acceptedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return shared.ErrNotFound
			}
			return fmt.Errorf("failed to lock invitation: %w", err)
		}
		if acceptedAt.Valid {
			return shared.ErrInvitationAccepted
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE invitations SET accepted_at = $2, accepted_by = $3 WHERE id = $1`,
			inv.ID().String(), nullTime(inv.AcceptedAt()), nullID(inv.AcceptedBy()),
		)
		if err != nil {
			return fmt.Errorf("failed to accept invitation: %w", err)
		}

		if err := insertOrgMember(ctx, tx, grants.OrgMember); err != nil {
			return err
		}

		if grants.TeamMember != nil {
			if err := insertTeamMemberTx(ctx, tx, grants.TeamMember); err != nil {
				return err
			}
		}

		if grants.ProjectMember != nil {
			if err := insertProjectMemberTx(ctx, tx, grants.ProjectMember); err != nil {
				return err
			}
		}

		return insertAuditEntry(ctx, tx, entry)
	})
}

// Delete removes a pending invitation. Accepted invitations are part of the
// trail and refused.
func (r *InvitationRepository) Delete(ctx context.Context, organizationID, id shared.ID, entry *audit.Entry) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		var acceptedAt sql.NullTime
		err := tx.QueryRowContext(ctx,
			`SELECT accepted_at FROM invitations WHERE organization_id = $1 AND id = $2 FOR UPDATE`,
			organizationID.String(), id.String(),
		).Scan(&acceptedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return shared.ErrNotFound
			}
			return fmt.Errorf("failed to lock invitation: %w", err)
		}
		if acceptedAt.Valid {
			return shared.ErrInvitationAccepted
		}

		_, err = tx.ExecContext(ctx,
			`DELETE FROM invitations WHERE organization_id = $1 AND id = $2`,
			organizationID.String(), id.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to delete invitation: %w", err)
		}

		return insertAuditEntry(ctx, tx, entry)
	})
}

// ListExpiredOrganizations returns the IDs of organizations holding expired,
// unaccepted invitations older than the cutoff.
func (r *InvitationRepository) ListExpiredOrganizations(ctx context.Context, before time.Time) ([]shared.ID, error) {
	query := `
		SELECT DISTINCT organization_id FROM invitations
		WHERE accepted_at IS NULL AND expires_at < $1
	`

	rows, err := r.db.QueryContext(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations with expired invitations: %w", err)
	}
	defer rows.Close()

	var ids []shared.ID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, fmt.Errorf("failed to scan organization id: %w", err)
		}
		id, err := shared.ParseID(idStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse organization id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// DeleteExpired prunes expired, unaccepted invitations of one organization.
// The deleted count is recorded on the audit entry; when nothing matched, no
// entry is written.
func (r *InvitationRepository) DeleteExpired(ctx context.Context, organizationID shared.ID, before time.Time, entry *audit.Entry) (int64, error) {
	var deleted int64

	err := r.db.Transaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM invitations WHERE organization_id = $1 AND accepted_at IS NULL AND expires_at < $2`,
			organizationID.String(), before,
		)
		if err != nil {
			return fmt.Errorf("failed to delete expired invitations: %w", err)
		}

		deleted, _ = result.RowsAffected()
		if deleted == 0 {
			return nil
		}

		entry.WithContext("deleted", deleted)
		return insertAuditEntry(ctx, tx, entry)
	})
	if err != nil {
		return 0, err
	}

	return deleted, nil
}

const invitationSelectQuery = `
	SELECT id, organization_id, email, org_role,
	       team_id, team_role, project_id, project_role,
	       token, invited_by, expires_at, accepted_at, accepted_by, created_at
	FROM invitations
`

// insertTeamMemberTx inserts one team membership row inside an open
// transaction, for invitation grants.
func insertTeamMemberTx(ctx context.Context, tx *sql.Tx, member *team.Member) error {
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

	return nil
}

// insertProjectMemberTx inserts one project membership row inside an open
// transaction, for invitation grants.
func insertProjectMemberTx(ctx context.Context, tx *sql.Tx, member *project.Member) error {
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

	return nil
}

func scanInvitation(scan func(dest ...any) error) (*invitation.Invitation, error) {
	var (
		idStr, orgIDStr, email, orgRoleStr string
		teamIDStr, teamRoleStr             sql.NullString
		projectIDStr, projectRoleStr       sql.NullString
		token, invitedByStr                string
		expiresAt                          time.Time
		acceptedAt                         sql.NullTime
		acceptedByStr                      sql.NullString
		createdAt                          time.Time
	)

	err := scan(
		&idStr, &orgIDStr, &email, &orgRoleStr,
		&teamIDStr, &teamRoleStr, &projectIDStr, &projectRoleStr,
		&token, &invitedByStr, &expiresAt, &acceptedAt, &acceptedByStr, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan invitation: %w", err)
	}

	id, err := shared.ParseID(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse invitation id: %w", err)
	}
	orgID, err := shared.ParseID(orgIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse organization id: %w", err)
	}
	orgRole, ok := organization.ParseRole(orgRoleStr)
	if !ok {
		return nil, fmt.Errorf("unknown organization role %q", orgRoleStr)
	}
	invitedBy, err := shared.ParseID(invitedByStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse invited_by: %w", err)
	}

	teamID, err := nullIDValue(teamIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse team id: %w", err)
	}
	projectID, err := nullIDValue(projectIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse project id: %w", err)
	}
	acceptedBy, err := nullIDValue(acceptedByStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse accepted_by: %w", err)
	}

	return invitation.Reconstitute(
		id, orgID, email, orgRole,
		teamID, team.Role(nullStringValue(teamRoleStr)),
		projectID, project.Role(nullStringValue(projectRoleStr)),
		token, invitedBy, expiresAt,
		nullTimeValue(acceptedAt), acceptedBy, createdAt,
	), nil
}
