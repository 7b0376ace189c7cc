// Package report aggregates unit outcomes into a run report and writes it
// in the requested formats.
package report

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/harrison/suitepilot/internal/filelock"
	"github.com/harrison/suitepilot/internal/models"
)

// LockFileName is the lock taken in the reports directory while writing.
const LockFileName = ".suitepilot.lock"

// ErrFinalized is returned by Record once the report has been finalized.
var ErrFinalized = errors.New("report already finalized")

// Warner receives non-fatal write failures.
type Warner interface {
	LogWarn(msg string)
}

// Artifact describes one persisted report file.
type Artifact struct {
	Format string
	Path   string
	Err    error
}

// Aggregator accumulates outcomes for a single run.
// Record may be called from any goroutine.
type Aggregator struct {
	mu        sync.Mutex
	runID     string
	started   time.Time
	finished  time.Time
	details   []models.Outcome
	finalized bool

	formatters map[string]Formatter
}

// NewAggregator creates an aggregator for the run identified by runID
// that started at started.
func NewAggregator(runID string, started time.Time) *Aggregator {
	return &Aggregator{
		runID:      runID,
		started:    started,
		formatters: defaultFormatters(),
	}
}

// RunID returns the run identifier.
func (a *Aggregator) RunID() string {
	return a.runID
}

// Record appends an outcome. Outcomes are kept in recording order.
func (a *Aggregator) Record(outcome models.Outcome) error {
	if outcome.Name == "" {
		return fmt.Errorf("outcome has no test name")
	}
	if outcome.Status != models.StatusPassed && outcome.Status != models.StatusFailed {
		return fmt.Errorf("outcome for %s has invalid status %q", outcome.Name, outcome.Status)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		return ErrFinalized
	}
	a.details = append(a.details, outcome)
	return nil
}

// Report returns a snapshot of the report built from the outcomes
// recorded so far.
func (a *Aggregator) Report() *models.Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot()
}

func (a *Aggregator) snapshot() *models.Report {
	details := make([]models.Outcome, len(a.details))
	copy(details, a.details)

	end := a.finished
	if end.IsZero() {
		end = time.Now()
	}

	return &models.Report{
		RunID:     a.runID,
		Timestamp: a.started,
		Duration:  models.Seconds(end.Sub(a.started)),
		Summary:   models.Summarize(details),
		Details:   details,
	}
}

// Finalize freezes the report and writes one file per format into dir.
//
// Every format is attempted. A format that fails to render or write is
// reported through warn and in its Artifact; the others are unaffected.
// Finalize returns the frozen report together with the artifacts.
func (a *Aggregator) Finalize(ctx context.Context, dir string, formats []string, warn Warner) (*models.Report, []Artifact) {
	a.mu.Lock()
	if !a.finalized {
		a.finalized = true
		a.finished = time.Now()
	}
	report := a.snapshot()
	a.mu.Unlock()

	warnf := func(format string, args ...interface{}) {
		if warn != nil {
			warn.LogWarn(fmt.Sprintf(format, args...))
		}
	}

	artifacts := make([]Artifact, 0, len(formats))
	for _, name := range formats {
		artifact := Artifact{Format: name}

		formatter, ok := a.formatters[name]
		if !ok {
			artifact.Err = fmt.Errorf("unknown report format %q", name)
			warnf("skipping report format %s: %v", name, artifact.Err)
			artifacts = append(artifacts, artifact)
			continue
		}

		artifact.Path = filepath.Join(dir, FileName(report, formatter.Extension()))
		artifact.Err = write(ctx, dir, artifact.Path, formatter, report)
		if artifact.Err != nil {
			warnf("failed to write %s report: %v", name, artifact.Err)
		}
		artifacts = append(artifacts, artifact)
	}

	return report, artifacts
}

func write(ctx context.Context, dir, path string, formatter Formatter, report *models.Report) error {
	data, err := formatter.Format(report)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return filelock.WithLock(ctx, filepath.Join(dir, LockFileName), func() error {
		return filelock.AtomicWrite(path, data)
	})
}

// FileName returns the artifact name for a report, e.g.
// report_20250102_150405_1a2b3c4d.json. The timestamp and run id keep
// names from colliding across runs.
func FileName(report *models.Report, ext string) string {
	id := report.RunID
	if len(id) > 8 {
		id = id[:8]
	}
	name := "report_" + report.Timestamp.Format("20060102_150405")
	if id != "" {
		name += "_" + id
	}
	return name + "." + ext
}
