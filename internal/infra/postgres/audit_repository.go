package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/taskforge/api/pkg/domain/audit"
	"github.com/taskforge/api/pkg/domain/shared"
	"github.com/taskforge/api/pkg/pagination"
)

// execer is the subset of *sql.DB and *sql.Tx the audit insert needs.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertAuditEntry writes one trail entry. Mutating repositories call this
// with their open transaction so the entry commits or rolls back with the
// change it describes.
func insertAuditEntry(ctx context.Context, ex execer, entry *audit.Entry) error {
	contextJSON, err := toJSONB(entry.Context())
	if err != nil {
		return fmt.Errorf("failed to marshal audit context: %w", err)
	}

	query := `
		INSERT INTO audit_logs (id, organization_id, actor_id, action, resource_type, resource_id, context, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = ex.ExecContext(ctx, query,
		entry.ID().String(),
		entry.OrganizationID().String(),
		nullID(entry.ActorID()),
		entry.Action().String(),
		entry.ResourceType().String(),
		entry.ResourceID(),
		contextJSON,
		entry.CreatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	return nil
}

// AuditRepository implements audit.Repository using PostgreSQL.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create persists a standalone entry outside any surrounding mutation.
func (r *AuditRepository) Create(ctx context.Context, entry *audit.Entry) error {
	return insertAuditEntry(ctx, r.db, entry)
}

// List retrieves entries for one organization, newest first.
func (r *AuditRepository) List(ctx context.Context, organizationID shared.ID, filter audit.Filter, page pagination.Pagination) (pagination.Result[*audit.Entry], error) {
	whereClause, args := buildAuditWhere(organizationID, filter)

	countQuery := `SELECT COUNT(*) FROM audit_logs WHERE ` + whereClause

	var total int64
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return pagination.Result[*audit.Entry]{}, fmt.Errorf("failed to count audit entries: %w", err)
	}

	query := auditSelectQuery + ` WHERE ` + whereClause +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", page.Limit(), page.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return pagination.Result[*audit.Entry]{}, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*audit.Entry
	for rows.Next() {
		entry, err := scanAuditEntry(rows.Scan)
		if err != nil {
			return pagination.Result[*audit.Entry]{}, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return pagination.Result[*audit.Entry]{}, fmt.Errorf("failed to iterate audit entries: %w", err)
	}

	return pagination.NewResult(entries, total, page), nil
}

// CountOlderThan counts entries recorded before the cutoff across all
// organizations.
func (r *AuditRepository) CountOlderThan(ctx context.Context, before time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_logs WHERE created_at < $1`, before,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count old audit entries: %w", err)
	}
	return count, nil
}

// ListOlderThan returns up to limit entries recorded before the cutoff,
// oldest first, for archive export.
func (r *AuditRepository) ListOlderThan(ctx context.Context, before time.Time, limit int) ([]*audit.Entry, error) {
	query := auditSelectQuery + ` WHERE created_at < $1 ORDER BY created_at ASC LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list old audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*audit.Entry
	for rows.Next() {
		entry, err := scanAuditEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// DeleteByIDs removes exactly the given entries. The retention job calls
// this after the batch has been uploaded, so nothing is deleted unarchived.
func (r *AuditRepository) DeleteByIDs(ctx context.Context, ids []shared.ID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	idStrs := make([]string, len(ids))
	for i, id := range ids {
		idStrs[i] = id.String()
	}

	result, err := r.db.ExecContext(ctx,
		`DELETE FROM audit_logs WHERE id = ANY($1)`, pq.Array(idStrs),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit entries: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return count, nil
}

const auditSelectQuery = `
	SELECT id, organization_id, actor_id, action, resource_type, resource_id, context, created_at
	FROM audit_logs
`

// buildAuditWhere builds the WHERE clause for an organization-scoped
// listing. The organization predicate is always first; the filter only
// narrows within the tenant.
func buildAuditWhere(organizationID shared.ID, filter audit.Filter) (string, []any) {
	conditions := []string{"organization_id = $1"}
	args := []any{organizationID.String()}
	argIndex := 2

	if filter.ActorID != nil {
		conditions = append(conditions, fmt.Sprintf("actor_id = $%d", argIndex))
		args = append(args, filter.ActorID.String())
		argIndex++
	}

	if len(filter.Actions) > 0 {
		placeholders := make([]string, len(filter.Actions))
		for i, action := range filter.Actions {
			placeholders[i] = fmt.Sprintf("$%d", argIndex)
			args = append(args, action.String())
			argIndex++
		}
		conditions = append(conditions, fmt.Sprintf("action IN (%s)", strings.Join(placeholders, ", ")))
	}

	if len(filter.ResourceTypes) > 0 {
		placeholders := make([]string, len(filter.ResourceTypes))
		for i, rt := range filter.ResourceTypes {
			placeholders[i] = fmt.Sprintf("$%d", argIndex)
			args = append(args, rt.String())
			argIndex++
		}
		conditions = append(conditions, fmt.Sprintf("resource_type IN (%s)", strings.Join(placeholders, ", ")))
	}

	if filter.ResourceID != nil {
		conditions = append(conditions, fmt.Sprintf("resource_id = $%d", argIndex))
		args = append(args, *filter.ResourceID)
		argIndex++
	}

	if filter.Since != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIndex))
		args = append(args, *filter.Since)
		argIndex++
	}

	if filter.Until != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIndex))
		args = append(args, *filter.Until)
		argIndex++
	}

	return strings.Join(conditions, " AND "), args
}

func scanAuditEntry(scan func(dest ...any) error) (*audit.Entry, error) {
	var (
		idStr        string
		orgIDStr     string
		actorIDStr   sql.NullString
		actionStr    string
		resourceType string
		resourceID   string
		contextJSON  []byte
		createdAt    time.Time
	)

	if err := scan(
		&idStr, &orgIDStr, &actorIDStr, &actionStr, &resourceType, &resourceID,
		&contextJSON, &createdAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan audit entry: %w", err)
	}

	id, err := shared.ParseID(idStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse audit entry id: %w", err)
	}

	orgID, err := shared.ParseID(orgIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse organization id: %w", err)
	}

	actorID, err := nullIDValue(actorIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse actor id: %w", err)
	}

	entryContext, err := fromJSONB(contextJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal audit context: %w", err)
	}

	return audit.Reconstitute(
		id,
		orgID,
		actorID,
		audit.Action(actionStr),
		audit.ResourceType(resourceType),
		resourceID,
		entryContext,
		createdAt,
	), nil
}
