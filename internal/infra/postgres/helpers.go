package postgres

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/taskforge/api/pkg/domain/shared"
)

// uniqueViolationCode is the PostgreSQL error code for unique constraint
// violations.
const uniqueViolationCode = "23505"

// uniqueViolation maps a unique constraint violation to the domain error the
// constraint stands for, or returns nil when err is something else. The
// constraint names are declared in the migrations; a new unique constraint
// needs a case here to surface as something more specific than
// shared.ErrAlreadyExists.
func uniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != uniqueViolationCode {
		return nil
	}

	switch pqErr.Constraint {
	case "uq_organizations_slug":
		return shared.ErrDuplicateSlug
	case "uq_teams_org_name_live", "uq_projects_team_name_live":
		return shared.ErrDuplicateName
	default:
		return shared.ErrAlreadyExists
	}
}

// nullString converts a string to sql.NullString, treating empty as NULL.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue converts sql.NullString back to a plain string.
func nullStringValue(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}

// nullTime converts *time.Time to sql.NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullTimeValue converts sql.NullTime back to *time.Time.
func nullTimeValue(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// nullID converts *shared.ID to sql.NullString.
func nullID(id *shared.ID) sql.NullString {
	if id == nil || id.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

// nullIDValue converts a nullable UUID column back to *shared.ID.
func nullIDValue(ns sql.NullString) (*shared.ID, error) {
	if !ns.Valid {
		return nil, nil
	}
	id, err := shared.ParseID(ns.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// toJSONB marshals a map for a JSONB column. A nil map becomes the empty
// object so the column's NOT NULL constraint holds.
func toJSONB(m map[string]any) ([]byte, error) {
	if m == nil {
		m = map[string]any{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal jsonb: %w", err)
	}
	return data, nil
}

// fromJSONB unmarshals a JSONB column into a map.
func fromJSONB(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal jsonb: %w", err)
	}
	return m, nil
}

// escapeLikePattern escapes LIKE wildcards in user input so search terms
// cannot inject % or _ matchers.
func escapeLikePattern(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
