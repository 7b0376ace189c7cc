package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/suitepilot/internal/models"
)

var baseTime = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func buildReport(runID string, offset time.Duration, outcomes ...models.Outcome) *models.Report {
	return &models.Report{
		RunID:     runID,
		Timestamp: baseTime.Add(offset),
		Duration:  1.5,
		Summary:   models.Summarize(outcomes),
		Details:   outcomes,
	}
}

func pass(name string) models.Outcome {
	return models.Passed(name, map[string]any{"ok": true}, 100*time.Millisecond)
}

func fail(name string) models.Outcome {
	return models.Failed(name, models.KindAssertion, "ok must be true", 200*time.Millisecond)
}

func TestNewStore(t *testing.T) {
	tests := []struct {
		name   string
		dbPath string
	}{
		{name: "in-memory database", dbPath: MemoryPath},
		{name: "file database", dbPath: filepath.Join(t.TempDir(), "history.db")},
		{name: "creates parent directories", dbPath: filepath.Join(t.TempDir(), "nested", "dir", "history.db")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewStore(tt.dbPath)
			require.NoError(t, err)
			defer store.Close()

			version, err := store.LatestVersion(context.Background())
			require.NoError(t, err)
			assert.Equal(t, migrations[len(migrations)-1].Version, version)
			assert.Equal(t, tt.dbPath, store.Path())
		})
	}
}

func TestApplyMigrations_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	require.NoError(t, store.ApplyMigrations(ctx))
	require.NoError(t, store.ApplyMigrations(ctx))

	var count int
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_version`).Scan(&count))
	assert.Equal(t, len(migrations), count)
}

func TestNewStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, store.RecordRun(ctx, buildReport("run-1", 0, pass("test_a")), "tests"))
	require.NoError(t, store.Close())

	store, err = NewStore(path)
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].RunID)
}

func TestRecordRun(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	report := buildReport("run-1", 0, pass("test_a"), fail("test_b"))
	require.NoError(t, store.RecordRun(ctx, report, "tests"))

	runs, err := store.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	run := runs[0]
	assert.Equal(t, "run-1", run.RunID)
	assert.True(t, run.StartedAt.Equal(baseTime))
	assert.Equal(t, 2, run.Total)
	assert.Equal(t, 1, run.Passed)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 50.0, run.PassRate)
	assert.Equal(t, "tests", run.Root)

	var stored string
	require.NoError(t, store.db.QueryRowContext(ctx,
		`SELECT result_json FROM outcomes WHERE test_name = 'test_a'`).Scan(&stored))
	assert.JSONEq(t, `{"ok": true}`, stored)

	var missing *string
	require.NoError(t, store.db.QueryRowContext(ctx,
		`SELECT result_json FROM outcomes WHERE test_name = 'test_b'`).Scan(&missing))
	assert.Nil(t, missing)
}

func TestRecordRun_DuplicateRunID(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	require.NoError(t, store.RecordRun(ctx, buildReport("run-1", 0, pass("test_a")), ""))
	err := store.RecordRun(ctx, buildReport("run-1", time.Minute, pass("test_a")), "")
	require.Error(t, err)

	history, err := store.UnitHistory(ctx, "test_a", 10)
	require.NoError(t, err)
	assert.Len(t, history, 1, "failed insert must not leave partial outcomes")
}

func TestRecordRun_EmptyReport(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	require.NoError(t, store.RecordRun(ctx, buildReport("run-empty", 0), ""))

	runs, err := store.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Zero(t, runs[0].Total)
	assert.Zero(t, runs[0].PassRate)
}

func TestRecentRuns_NewestFirstAndLimited(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("run-%d", i)
		require.NoError(t, store.RecordRun(ctx, buildReport(id, time.Duration(i)*time.Hour, pass("test_a")), ""))
	}

	runs, err := store.RecentRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-4", runs[0].RunID)
	assert.Equal(t, "run-3", runs[1].RunID)
	assert.Equal(t, "run-2", runs[2].RunID)
}

func TestUnitHistory(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	require.NoError(t, store.RecordRun(ctx, buildReport("run-1", 0, pass("test_a"), pass("test_b")), ""))
	require.NoError(t, store.RecordRun(ctx, buildReport("run-2", time.Hour, fail("test_a")), ""))

	history, err := store.UnitHistory(ctx, "test_a", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, "run-2", history[0].RunID)
	assert.Equal(t, models.StatusFailed, history[0].Status)
	assert.Equal(t, models.KindAssertion, history[0].Kind)
	assert.Equal(t, "ok must be true", history[0].Error)

	assert.Equal(t, "run-1", history[1].RunID)
	assert.Equal(t, models.StatusPassed, history[1].Status)
	assert.Empty(t, history[1].Kind)

	none, err := store.UnitHistory(ctx, "test_missing", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFlakyUnits(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	require.NoError(t, store.RecordRun(ctx, buildReport("run-1", 0, pass("test_a"), pass("test_b"), fail("test_c")), ""))
	require.NoError(t, store.RecordRun(ctx, buildReport("run-2", time.Hour, fail("test_a"), pass("test_b"), pass("test_c")), ""))
	require.NoError(t, store.RecordRun(ctx, buildReport("run-3", 2*time.Hour, fail("test_a"), pass("test_b"), pass("test_c")), ""))

	t.Run("whole history", func(t *testing.T) {
		flaky, err := store.FlakyUnits(ctx, 10)
		require.NoError(t, err)
		require.Len(t, flaky, 2)

		assert.Equal(t, "test_a", flaky[0].Name)
		assert.Equal(t, 1, flaky[0].Passes)
		assert.Equal(t, 2, flaky[0].Failures)
		assert.Equal(t, models.StatusFailed, flaky[0].LastStatus)

		assert.Equal(t, "test_c", flaky[1].Name)
		assert.Equal(t, models.StatusPassed, flaky[1].LastStatus)
	})

	t.Run("window excludes older runs", func(t *testing.T) {
		flaky, err := store.FlakyUnits(ctx, 2)
		require.NoError(t, err)
		assert.Empty(t, flaky)
	})
}
