// Package history keeps a SQLite record of past runs so flaky units and
// regressions can be spotted across runs.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/suitepilot/internal/models"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// RunRecord is the stored summary of one run.
type RunRecord struct {
	RunID     string
	StartedAt time.Time
	Duration  float64
	Total     int
	Passed    int
	Failed    int
	PassRate  float64
	Root      string
}

// UnitRecord is one stored outcome of a unit.
type UnitRecord struct {
	RunID     string
	StartedAt time.Time
	Name      string
	Status    models.Status
	Kind      models.FailureKind
	Duration  float64
	Error     string
	Artifact  string
}

// FlakyUnit summarises a unit that both passed and failed within a window.
type FlakyUnit struct {
	Name       string
	Passes     int
	Failures   int
	LastStatus models.Status
}

// Store manages the history database.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (creating if needed) the database at dbPath and applies
// pending migrations.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA busy_timeout=5000", // Must be first
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	store := &Store{db: db, dbPath: dbPath}
	if err := store.ApplyMigrations(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return store, nil
}

// execWithRetry retries statements that fail with "database is locked",
// which concurrent openers of the same file can hit during setup.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordRun stores a finalized report and all of its outcomes.
func (s *Store) RecordRun(ctx context.Context, report *models.Report, root string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(run_id, started_at, duration_seconds, total, passed, failed, pass_rate, root)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID,
		report.Timestamp.UTC(),
		report.Duration,
		report.Summary.Total,
		report.Summary.Passed,
		report.Summary.Failed,
		report.Summary.PassRate,
		root,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO outcomes
		(run_id, position, test_name, status, failure_kind, duration_seconds, error_message, source, artifact, result_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for i, o := range report.Details {
		var resultJSON sql.NullString
		if o.IsPassed() && o.Result != nil {
			data, err := json.Marshal(o.Result)
			if err != nil {
				return fmt.Errorf("marshal result for %s: %w", o.Name, err)
			}
			resultJSON = sql.NullString{String: string(data), Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			report.RunID, i, o.Name, string(o.Status), string(o.Kind), o.Duration,
			o.Error, o.Source, o.Artifact, resultJSON,
		); err != nil {
			return fmt.Errorf("insert outcome %s: %w", o.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `SELECT run_id, started_at, duration_seconds, total, passed, failed, pass_rate, COALESCE(root, '')
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.Duration, &r.Total, &r.Passed, &r.Failed, &r.PassRate, &r.Root); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// UnitHistory returns up to limit outcomes of the named unit, newest first.
func (s *Store) UnitHistory(ctx context.Context, name string, limit int) ([]UnitRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `SELECT o.run_id, r.started_at, o.test_name, o.status,
			COALESCE(o.failure_kind, ''), o.duration_seconds, COALESCE(o.error_message, ''), COALESCE(o.artifact, '')
		FROM outcomes o JOIN runs r ON r.run_id = o.run_id
		WHERE o.test_name = ?
		ORDER BY r.started_at DESC, r.id DESC LIMIT ?`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("query unit history: %w", err)
	}
	defer rows.Close()

	var records []UnitRecord
	for rows.Next() {
		var rec UnitRecord
		var status, kind string
		if err := rows.Scan(&rec.RunID, &rec.StartedAt, &rec.Name, &status, &kind, &rec.Duration, &rec.Error, &rec.Artifact); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		rec.Status = models.Status(status)
		rec.Kind = models.FailureKind(kind)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// FlakyUnits returns units that both passed and failed within the last
// window runs, most failures first.
func (s *Store) FlakyUnits(ctx context.Context, window int) ([]FlakyUnit, error) {
	if window <= 0 {
		window = 10
	}

	rows, err := s.db.QueryContext(ctx, `WITH recent AS (
			SELECT run_id, started_at, id FROM runs ORDER BY started_at DESC, id DESC LIMIT ?
		)
		SELECT o.test_name,
			SUM(CASE WHEN o.status = 'passed' THEN 1 ELSE 0 END) AS passes,
			SUM(CASE WHEN o.status = 'failed' THEN 1 ELSE 0 END) AS failures,
			(SELECT o2.status FROM outcomes o2 JOIN recent r2 ON r2.run_id = o2.run_id
				WHERE o2.test_name = o.test_name ORDER BY r2.started_at DESC, r2.id DESC LIMIT 1) AS last_status
		FROM outcomes o JOIN recent r ON r.run_id = o.run_id
		GROUP BY o.test_name
		HAVING passes > 0 AND failures > 0
		ORDER BY failures DESC, o.test_name ASC`, window)
	if err != nil {
		return nil, fmt.Errorf("query flaky units: %w", err)
	}
	defer rows.Close()

	var units []FlakyUnit
	for rows.Next() {
		var u FlakyUnit
		var last string
		if err := rows.Scan(&u.Name, &u.Passes, &u.Failures, &last); err != nil {
			return nil, fmt.Errorf("scan flaky unit: %w", err)
		}
		u.LastStatus = models.Status(last)
		units = append(units, u)
	}
	return units, rows.Err()
}
