package history

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration is one versioned schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations is the ordered list of schema changes.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema with runs and outcomes",
		SQL: `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL UNIQUE,
    started_at TIMESTAMP NOT NULL,
    duration_seconds REAL NOT NULL DEFAULT 0,
    total INTEGER NOT NULL,
    passed INTEGER NOT NULL,
    failed INTEGER NOT NULL,
    pass_rate REAL NOT NULL DEFAULT 0,
    root TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

CREATE TABLE IF NOT EXISTS outcomes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    test_name TEXT NOT NULL,
    status TEXT NOT NULL,
    failure_kind TEXT,
    duration_seconds REAL NOT NULL DEFAULT 0,
    error_message TEXT,
    source TEXT,
    artifact TEXT
);

CREATE INDEX IF NOT EXISTS idx_outcomes_test ON outcomes(test_name);
CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(run_id);
`,
	},
	{
		Version:     2,
		Description: "Store validated results for passed outcomes",
		SQL:         `ALTER TABLE outcomes ADD COLUMN result_json TEXT;`,
	},
}

// ApplyMigrations applies every pending migration inside one transaction.
func (s *Store) ApplyMigrations(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`); err != nil {
		return fmt.Errorf("ensure schema_version table: %w", err)
	}

	applied, err := appliedVersions(ctx, tx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, m.Version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

// LatestVersion returns the highest applied schema version, or 0.
func (s *Store) LatestVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return int(version.Int64), nil
}

func appliedVersions(ctx context.Context, tx *sql.Tx) (map[int]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT version FROM schema_version`)
	if err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}
