// Package migrations applies the SQL files under db/migrations in version
// order and records progress in a schema_migrations ledger table.
//
// Files follow the golang-migrate layout: NNN_description.up.sql applies a
// version and NNN_description.down.sql reverts it. Each file runs in its
// own transaction together with the ledger write, so a failed statement
// leaves neither a half-applied schema nor a stale ledger row.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const ledgerTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version VARCHAR(14) PRIMARY KEY,
		applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);
`

// Runner applies and reverts the migration files in one directory.
type Runner struct {
	db  *sql.DB
	dir string
}

// NewRunner returns a Runner over the given migrations directory.
func NewRunner(db *sql.DB, dir string) *Runner {
	return &Runner{db: db, dir: dir}
}

// AppliedMigration is one row of the schema_migrations ledger.
type AppliedMigration struct {
	Version   string    `json:"version" yaml:"version"`
	AppliedAt time.Time `json:"applied_at" yaml:"applied_at"`
}

// StatusEntry pairs an available migration version with its ledger state.
type StatusEntry struct {
	Version   string     `json:"version" yaml:"version"`
	Applied   bool       `json:"applied" yaml:"applied"`
	AppliedAt *time.Time `json:"applied_at,omitempty" yaml:"applied_at,omitempty"`
}

func (r *Runner) ensureLedger(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, ledgerTable); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}
	return nil
}

// Applied lists the ledger in version order.
func (r *Runner) Applied(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT version, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	var out []AppliedMigration
	for rows.Next() {
		var m AppliedMigration
		if err := rows.Scan(&m.Version, &m.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Pending lists available versions that are not in the ledger yet.
func (r *Runner) Pending(ctx context.Context) ([]string, error) {
	available, err := r.availableVersions()
	if err != nil {
		return nil, err
	}

	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[string]struct{}, len(applied))
	for _, m := range applied {
		done[m.Version] = struct{}{}
	}

	var pending []string
	for _, v := range available {
		if _, ok := done[v]; !ok {
			pending = append(pending, v)
		}
	}
	return pending, nil
}

// Up applies every pending migration in version order and returns the
// versions it applied.
func (r *Runner) Up(ctx context.Context) ([]string, error) {
	if err := r.ensureLedger(ctx); err != nil {
		return nil, err
	}

	pending, err := r.Pending(ctx)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, version := range pending {
		if err := r.apply(ctx, version, "up"); err != nil {
			return applied, fmt.Errorf("apply %s: %w", version, err)
		}
		applied = append(applied, version)
	}
	return applied, nil
}

// Down reverts the most recent ledger entry. It returns the reverted
// version, or "" when the ledger is empty.
func (r *Runner) Down(ctx context.Context) (string, error) {
	if err := r.ensureLedger(ctx); err != nil {
		return "", err
	}

	applied, err := r.Applied(ctx)
	if err != nil {
		return "", err
	}
	if len(applied) == 0 {
		return "", nil
	}

	last := applied[len(applied)-1].Version
	if err := r.apply(ctx, last, "down"); err != nil {
		return "", fmt.Errorf("revert %s: %w", last, err)
	}
	return last, nil
}

// Status merges the available versions with the ledger.
func (r *Runner) Status(ctx context.Context) ([]StatusEntry, error) {
	if err := r.ensureLedger(ctx); err != nil {
		return nil, err
	}

	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}
	byVersion := make(map[string]AppliedMigration, len(applied))
	for _, m := range applied {
		byVersion[m.Version] = m
	}

	available, err := r.availableVersions()
	if err != nil {
		return nil, err
	}

	entries := make([]StatusEntry, 0, len(available))
	for _, v := range available {
		e := StatusEntry{Version: v}
		if m, ok := byVersion[v]; ok {
			e.Applied = true
			at := m.AppliedAt
			e.AppliedAt = &at
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// apply runs one migration file and keeps the ledger in step, all inside
// a single transaction.
func (r *Runner) apply(ctx context.Context, version, direction string) error {
	pattern := filepath.Join(r.dir, fmt.Sprintf("%s_*.%s.sql", version, direction))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return fmt.Errorf("no file matches %s", pattern)
	}

	script, err := os.ReadFile(matches[0])
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(script)); err != nil {
		return err
	}

	switch direction {
	case "up":
		_, err = tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version) VALUES ($1)`, version)
	case "down":
		_, err = tx.ExecContext(ctx,
			`DELETE FROM schema_migrations WHERE version = $1`, version)
	}
	if err != nil {
		return err
	}

	return tx.Commit()
}

// availableVersions collects the version prefixes of all *.up.sql files,
// sorted ascending.
func (r *Runner) availableVersions() ([]string, error) {
	seen := make(map[string]struct{})

	walk := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".up.sql") {
			return nil
		}
		name := filepath.Base(path)
		if i := strings.IndexByte(name, '_'); i > 0 {
			seen[name[:i]] = struct{}{}
		}
		return nil
	}
	if err := filepath.WalkDir(r.dir, walk); err != nil {
		return nil, fmt.Errorf("scan %s: %w", r.dir, err)
	}

	versions := make([]string, 0, len(seen))
	for v := range seen {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions, nil
}
