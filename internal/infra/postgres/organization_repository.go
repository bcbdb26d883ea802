package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/taskforge/api/pkg/domain/audit"
	"github.com/taskforge/api/pkg/domain/organization"
	"github.com/taskforge/api/pkg/domain/shared"
)

// OrganizationRepository implements organization.Repository using PostgreSQL.
type OrganizationRepository struct {
	db *DB
}

// NewOrganizationRepository creates a new OrganizationRepository.
func NewOrganizationRepository(db *DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// Create persists the organization, its founding Owner membership and the
// audit entry in one transaction.
func (r *OrganizationRepository) Create(ctx context.Context, org *organization.Organization, owner *organization.Member, entry *audit.Entry) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO organizations (id, name, slug, description, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`

		_, err := tx.ExecContext(ctx, query,
			org.ID().String(),
			org.Name(),
			org.Slug(),
			org.Description(),
			org.CreatedBy().String(),
			org.CreatedAt(),
			org.UpdatedAt(),
		)
		if err != nil {
			if dup := uniqueViolation(err); dup != nil {
				return dup
			}
			return fmt.Errorf("failed to create organization: %w", err)
		}

		if err := insertOrgMember(ctx, tx, owner); err != nil {
			return err
		}

		return insertAuditEntry(ctx, tx, entry)
	})
}

// GetByID loads an organization, soft-deleted rows only when includeDeleted
// is set.
func (r *OrganizationRepository) GetByID(ctx context.Context, id shared.ID, includeDeleted bool) (*organization.Organization, error) {
	query := orgSelectQuery + ` WHERE id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}

	return scanOrganization(r.db.QueryRowContext(ctx, query, id.String()).Scan)
}

// GetBySlug loads an organization by its globally unique slug.
func (r *OrganizationRepository) GetBySlug(ctx context.Context, slug string, includeDeleted bool) (*organization.Organization, error) {
	query := orgSelectQuery + ` WHERE slug = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}

	return scanOrganization(r.db.QueryRowContext(ctx, query, slug).Scan)
}

// ListByUser returns the organizations the user belongs to with the user's
// role in each, newest membership first.
func (r *OrganizationRepository) ListByUser(ctx context.Context, userID shared.ID, includeDeleted bool) ([]*organization.WithRole, error) {
	query := `
		SELECT o.id, o.name, o.slug, o.description, o.created_by, o.created_at, o.updated_at, o.deleted_at,
		       m.role, m.created_at
		FROM organizations o
		INNER JOIN organization_members m ON m.organization_id = o.id
		WHERE m.user_id = $1
	`
	if !includeDeleted {
		query += ` AND o.deleted_at IS NULL`
	}
	query += ` ORDER BY m.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations by user: %w", err)
	}
	defer rows.Close()

	var result []*organization.WithRole
	for rows.Next() {
		var (
			idStr, name, slug, description, createdByStr string
			createdAt, updatedAt                         time.Time
			deletedAt                                    sql.NullTime
			roleStr                                      string
			joinedAt                                     time.Time
		)

		if err := rows.Scan(
			&idStr, &name, &slug, &description, &createdByStr, &createdAt, &updatedAt, &deletedAt,
			&roleStr, &joinedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan organization with role: %w", err)
		}

		id, err := shared.ParseID(idStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse organization id: %w", err)
		}
		createdBy, err := shared.ParseID(createdByStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_by: %w", err)
		}

		role, ok := organization.ParseRole(roleStr)
		if !ok {
			return nil, fmt.Errorf("unknown organization role %q", roleStr)
		}

		result = append(result, &organization.WithRole{
			Organization: organization.Reconstitute(
				id, name, slug, description, createdBy,
				createdAt, updatedAt, nullTimeValue(deletedAt),
			),
			Role:     role,
			JoinedAt: joinedAt,
		})
	}

	return result, rows.Err()
}

// Update persists name and description changes together with the audit
// entry.
func (r *OrganizationRepository) Update(ctx context.Context, org *organization.Organization, entry *audit.Entry) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE organizations
			SET name = $2, description = $3, updated_at = $4
			WHERE id = $1 AND deleted_at IS NULL
		`

		result, err := tx.ExecContext(ctx, query,
			org.ID().String(),
			org.Name(),
			org.Description(),
			org.UpdatedAt(),
		)
		if err != nil {
			return fmt.Errorf("failed to update organization: %w", err)
		}

		rows, _ := result.RowsAffected()
		if rows == 0 {
			return shared.ErrNotFound
		}

		return insertAuditEntry(ctx, tx, entry)
	})
}

// SoftDelete stamps deleted_at. The row is locked first so the
// already-deleted check and the stamp cannot interleave with a concurrent
// delete.
func (r *OrganizationRepository) SoftDelete(ctx context.Context, id shared.ID, deletedAt time.Time, entry *audit.Entry) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		var current sql.NullTime
		err := tx.QueryRowContext(ctx,
			`SELECT deleted_at FROM organizations WHERE id = $1 FOR UPDATE`,
			id.String(),
		).Scan(&current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return shared.ErrNotFound
			}
			return fmt.Errorf("failed to lock organization: %w", err)
		}
		if current.Valid {
			return shared.ErrAlreadyDeleted
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE organizations SET deleted_at = $2, updated_at = $2 WHERE id = $1`,
			id.String(), deletedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to soft delete organization: %w", err)
		}

		return insertAuditEntry(ctx, tx, entry)
	})
}

// Recover clears deleted_at on a soft-deleted organization.
func (r *OrganizationRepository) Recover(ctx context.Context, id shared.ID, entry *audit.Entry) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		var current sql.NullTime
		err := tx.QueryRowContext(ctx,
			`SELECT deleted_at FROM organizations WHERE id = $1 FOR UPDATE`,
			id.String(),
		).Scan(&current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return shared.ErrNotFound
			}
			return fmt.Errorf("failed to lock organization: %w", err)
		}
		if !current.Valid {
			return shared.ErrNotDeleted
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE organizations SET deleted_at = NULL, updated_at = $2 WHERE id = $1`,
			id.String(), time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to recover organization: %w", err)
		}

		return insertAuditEntry(ctx, tx, entry)
	})
}

// AddMember grants an organization membership.
func (r *OrganizationRepository) AddMember(ctx context.Context, member *organization.Member, entry *audit.Entry) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		if err := insertOrgMember(ctx, tx, member); err != nil {
			return err
		}
		return insertAuditEntry(ctx, tx, entry)
	})
}

// GetMember loads one membership.
func (r *OrganizationRepository) GetMember(ctx context.Context, organizationID, userID shared.ID) (*organization.Member, error) {
	query := `
		SELECT id, organization_id, user_id, role, added_by, created_at
		FROM organization_members
		WHERE organization_id = $1 AND user_id = $2
	`

	return scanOrgMember(r.db.QueryRowContext(ctx, query, organizationID.String(), userID.String()).Scan)
}

// UpdateMemberRole persists a role change. Demoting the last Owner is
// refused inside the transaction.
func (r *OrganizationRepository) UpdateMemberRole(ctx context.Context, member *organization.Member, entry *audit.Entry) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		var currentRole string
		err := tx.QueryRowContext(ctx,
			`SELECT role FROM organization_members WHERE organization_id = $1 AND user_id = $2 FOR UPDATE`,
			member.OrganizationID().String(), member.UserID().String(),
		).Scan(&currentRole)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return shared.ErrNotFound
			}
			return fmt.Errorf("failed to lock membership: %w", err)
		}

		demotingOwner := currentRole == organization.RoleOwner.String() && !member.IsOwner()
		if demotingOwner {
			owners, err := countOwners(ctx, tx, member.OrganizationID())
			if err != nil {
				return err
			}
			if owners <= 1 {
				return shared.ErrLastOwner
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE organization_members SET role = $3 WHERE organization_id = $1 AND user_id = $2`,
			member.OrganizationID().String(), member.UserID().String(), member.Role().String(),
		)
		if err != nil {
			return fmt.Errorf("failed to update member role: %w", err)
		}

		return insertAuditEntry(ctx, tx, entry)
	})
}

// RemoveMember deletes a membership. Removing the last Owner is refused
// inside the transaction.
func (r *OrganizationRepository) RemoveMember(ctx context.Context, organizationID, userID shared.ID, entry *audit.Entry) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		var currentRole string
		err := tx.QueryRowContext(ctx,
			`SELECT role FROM organization_members WHERE organization_id = $1 AND user_id = $2 FOR UPDATE`,
			organizationID.String(), userID.String(),
		).Scan(&currentRole)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return shared.ErrNotFound
			}
			return fmt.Errorf("failed to lock membership: %w", err)
		}

		if currentRole == organization.RoleOwner.String() {
			owners, err := countOwners(ctx, tx, organizationID)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return shared.ErrLastOwner
			}
		}

		_, err = tx.ExecContext(ctx,
			`DELETE FROM organization_members WHERE organization_id = $1 AND user_id = $2`,
			organizationID.String(), userID.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to remove member: %w", err)
		}

		return insertAuditEntry(ctx, tx, entry)
	})
}

// ListMembers returns memberships joined with user details, oldest first.
func (r *OrganizationRepository) ListMembers(ctx context.Context, organizationID shared.ID) ([]*organization.MemberWithUser, error) {
	query := `
		SELECT m.id, m.user_id, m.role, m.added_by, m.created_at, u.email, u.name
		FROM organization_members m
		INNER JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1
		ORDER BY m.created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*organization.MemberWithUser
	for rows.Next() {
		var (
			idStr, userIDStr, roleStr string
			addedByStr                sql.NullString
			createdAt                 time.Time
			email, name               string
		)

		if err := rows.Scan(&idStr, &userIDStr, &roleStr, &addedByStr, &createdAt, &email, &name); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}

		id, err := shared.ParseID(idStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse membership id: %w", err)
		}
		userID, err := shared.ParseID(userIDStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse user id: %w", err)
		}
		role, ok := organization.ParseRole(roleStr)
		if !ok {
			return nil, fmt.Errorf("unknown organization role %q", roleStr)
		}
		addedBy, err := nullIDValue(addedByStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse added_by: %w", err)
		}

		members = append(members, &organization.MemberWithUser{
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

// CountMembers returns the number of members.
func (r *OrganizationRepository) CountMembers(ctx context.Context, organizationID shared.ID) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM organization_members WHERE organization_id = $1`,
		organizationID.String(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return count, nil
}

const orgSelectQuery = `
	SELECT id, name, slug, description, created_by, created_at, updated_at, deleted_at
	FROM organizations
`

// insertOrgMember inserts one membership row inside an open transaction.
func insertOrgMember(ctx context.Context, tx *sql.Tx, member *organization.Member) error {
	query := `
		INSERT INTO organization_members (id, organization_id, user_id, role, added_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := tx.ExecContext(ctx, query,
		member.ID().String(),
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
		return fmt.Errorf("failed to insert organization member: %w", err)
	}

	return nil
}

// countOwners counts Owner memberships inside an open transaction.
func countOwners(ctx context.Context, tx *sql.Tx, organizationID shared.ID) (int64, error) {
	var count int64
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM organization_members WHERE organization_id = $1 AND role = $2`,
		organizationID.String(), organization.RoleOwner.String(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count owners: %w", err)
	}
	return count, nil
}

func scanOrganization(scan func(dest ...any) error) (*organization.Organization, error) {
	var (
		idStr, name, slug, description, createdByStr string
		createdAt, updatedAt                         time.Time
		deletedAt                                    sql.NullTime
	)

	err := scan(&idStr, &name, &slug, &description, &createdByStr, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan organization: %w", err)
	}

	id, err := shared.ParseID(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse organization id: %w", err)
	}
	createdBy, err := shared.ParseID(createdByStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_by: %w", err)
	}

	return organization.Reconstitute(
		id, name, slug, description, createdBy,
		createdAt, updatedAt, nullTimeValue(deletedAt),
	), nil
}

func scanOrgMember(scan func(dest ...any) error) (*organization.Member, error) {
	var (
		idStr, orgIDStr, userIDStr, roleStr string
		addedByStr                          sql.NullString
		createdAt                           time.Time
	)

	err := scan(&idStr, &orgIDStr, &userIDStr, &roleStr, &addedByStr, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan membership: %w", err)
	}

	id, err := shared.ParseID(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse membership id: %w", err)
	}
	orgID, err := shared.ParseID(orgIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse organization id: %w", err)
	}
	userID, err := shared.ParseID(userIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user id: %w", err)
	}
	role, ok := organization.ParseRole(roleStr)
	if !ok {
		return nil, fmt.Errorf("unknown organization role %q", roleStr)
	}
	addedBy, err := nullIDValue(addedByStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse added_by: %w", err)
	}

	return organization.ReconstituteMember(id, orgID, userID, role, addedBy, createdAt), nil
}
