// Package runner executes test units with bounded concurrency, isolating
// each unit's failures and timing every unit on its own clock.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/harrison/suitepilot/internal/executor"
	"github.com/harrison/suitepilot/internal/models"
	"github.com/harrison/suitepilot/internal/registry"
	"github.com/harrison/suitepilot/internal/schema"
)

// Defaults applied by New.
const (
	DefaultConcurrency = 3
	DefaultUnitTimeout = 60 * time.Second
	DefaultCancelGrace = 10 * time.Second
)

// Recorder accepts terminal outcomes. Implementations must be safe for
// concurrent use; the runner calls Record from a single goroutine.
type Recorder interface {
	Record(outcome models.Outcome) error
}

// Logger receives run progress. Can be nil for silent operation.
type Logger interface {
	LogUnitStart(name string)
	LogOutcome(outcome models.Outcome)
	LogProgress(completed, total int)
	LogWarn(msg string)
}

// Runner drives units through a task executor.
type Runner struct {
	executor executor.TaskExecutor
	logger   Logger

	// Concurrency is the maximum number of executor calls in flight.
	Concurrency int

	// UnitTimeout bounds each unit unless its task sets its own timeout.
	// Zero disables the per-unit timeout.
	UnitTimeout time.Duration

	// CancelGrace is how long a cancelled executor call may take to return
	// before the unit is resolved without it.
	CancelGrace time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithConcurrency sets the admission bound. Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n >= 1 {
			r.Concurrency = n
		}
	}
}

// WithUnitTimeout sets the default per-unit timeout.
func WithUnitTimeout(d time.Duration) Option {
	return func(r *Runner) { r.UnitTimeout = d }
}

// WithCancelGrace sets the grace period for uncooperative executors.
func WithCancelGrace(d time.Duration) Option {
	return func(r *Runner) { r.CancelGrace = d }
}

// New creates a Runner. The logger parameter is optional and can be nil.
func New(exec executor.TaskExecutor, logger Logger, opts ...Option) *Runner {
	if exec == nil {
		panic("task executor cannot be nil")
	}
	r := &Runner{
		executor:    exec,
		logger:      logger,
		Concurrency: DefaultConcurrency,
		UnitTimeout: DefaultUnitTimeout,
		CancelGrace: DefaultCancelGrace,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes every entry and records exactly one outcome per entry.
//
// At most Concurrency executor calls are in flight at once. Entries still
// waiting for a slot when ctx is cancelled are recorded as cancelled. Run
// returns after every entry has been recorded; the returned error is
// ctx.Err() when the run was cancelled.
func (r *Runner) Run(ctx context.Context, entries []registry.Entry, rec Recorder) error {
	total := len(entries)
	if total == 0 {
		return nil
	}

	limit := r.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	if limit > total {
		limit = total
	}

	slots := semaphore.NewWeighted(int64(limit))
	outcomes := make(chan models.Outcome, total)

	collected := make(chan struct{})
	go func() {
		defer close(collected)
		completed := 0
		for outcome := range outcomes {
			completed++
			if err := rec.Record(outcome); err != nil {
				r.warnf("failed to record outcome for %s: %v", outcome.Name, err)
			}
			if r.logger != nil {
				r.logger.LogOutcome(outcome)
				r.logger.LogProgress(completed, total)
			}
		}
	}()

	var wg sync.WaitGroup
	for i, entry := range entries {
		if ctx.Err() != nil || slots.Acquire(ctx, 1) != nil {
			// Resolve everything that never got a slot.
			for _, pending := range entries[i:] {
				outcomes <- models.Failed(pending.Name, models.KindCancelled,
					fmt.Sprintf("%v: not started", models.ErrCancelled), 0).WithSource(pending.Source)
			}
			break
		}

		wg.Add(1)
		go func(entry registry.Entry) {
			defer wg.Done()
			release := func() { slots.Release(1) }
			outcomes <- r.runUnit(ctx, entry, release)
		}(entry)
	}

	wg.Wait()
	close(outcomes)
	<-collected

	return ctx.Err()
}

// runUnit performs the sequential lifecycle of one unit:
// construct, open, execute, close, validate. It always returns an outcome
// and calls release exactly once. An abandoned executor call keeps its slot
// until it returns, so release may run after runUnit does.
func (r *Runner) runUnit(ctx context.Context, entry registry.Entry, release func()) (outcome models.Outcome) {
	start := time.Now()
	var releaseOnce sync.Once
	releaseSlot := func() { releaseOnce.Do(release) }
	handedOff := false
	defer func() {
		if !handedOff {
			releaseSlot()
		}
	}()

	var artifact string
	defer func() {
		if p := recover(); p != nil {
			outcome = models.FailedFromError(entry.Name, &PanicError{Value: p}, time.Since(start))
		}
		outcome = outcome.WithSource(entry.Source)
		if artifact != "" {
			outcome = outcome.WithArtifact(artifact)
		}
	}()

	fail := func(phase Phase, err error) models.Outcome {
		return models.FailedFromError(entry.Name, NewUnitError(entry.Name, phase, err), time.Since(start))
	}

	if r.logger != nil {
		r.logger.LogUnitStart(entry.Name)
	}

	unit, err := entry.New()
	if err != nil {
		return fail(PhaseConstruct, err)
	}

	compiled, err := schema.Compile(unit.Name(), unit.OutputSchema())
	if err != nil {
		return fail(PhaseConstruct, err)
	}

	timeout := r.UnitTimeout
	if t := unit.Task().Timeout; t > 0 {
		timeout = t
	}
	unitCtx, cancel := r.unitContext(ctx, timeout)
	defer cancel()

	session, err := r.executor.Open(unitCtx, unit)
	if err != nil {
		if cerr := r.contextError(ctx, unitCtx, entry.Name, timeout, false); cerr != nil {
			return fail(PhaseOpen, cerr)
		}
		return fail(PhaseOpen, err)
	}

	raw, abandoned, execErr := r.execute(unitCtx, session, releaseSlot)
	handedOff = abandoned
	if a, ok := session.(executor.Artifacter); ok && !abandoned {
		artifact = a.Artifact()
	}
	if !abandoned {
		if err := session.Close(); err != nil {
			r.warnf("failed to close session for %s: %v", entry.Name, err)
		}
	}

	if execErr != nil {
		if cerr := r.contextError(ctx, unitCtx, entry.Name, timeout, abandoned); cerr != nil {
			return fail(PhaseExecute, cerr)
		}
		return fail(PhaseExecute, execErr)
	}

	result, err := compiled.Validate(raw)
	if err != nil {
		return fail(PhaseValidate, err)
	}
	if err := unit.Validate(result); err != nil {
		var ae *models.AssertionError
		if !errors.As(err, &ae) {
			err = models.NewAssertionError(err.Error())
		}
		return fail(PhaseValidate, err)
	}

	return models.Passed(entry.Name, result, time.Since(start))
}

func (r *Runner) unitContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

type execResult struct {
	raw []byte
	err error
}

// execute runs the session off the scheduling path. When ctx ends first the
// call gets CancelGrace to return before it is abandoned. An abandoned call
// closes its session and calls release once it finally returns.
func (r *Runner) execute(ctx context.Context, session executor.Session, release func()) ([]byte, bool, error) {
	done := make(chan execResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- execResult{err: &PanicError{Value: p}}
			}
		}()
		raw, err := session.Execute(ctx)
		done <- execResult{raw: raw, err: err}
	}()

	select {
	case res := <-done:
		return res.raw, false, res.err
	case <-ctx.Done():
	}

	grace := time.NewTimer(r.CancelGrace)
	defer grace.Stop()

	select {
	case res := <-done:
		if res.err == nil {
			res.err = ctx.Err()
		}
		return res.raw, false, res.err
	case <-grace.C:
		go func() {
			defer release()
			<-done
			if err := session.Close(); err != nil {
				r.warnf("failed to close abandoned session: %v", err)
			}
		}()
		return nil, true, ctx.Err()
	}
}

// contextError maps a finished unit context to a cancellation or timeout
// error. It returns nil when the unit's context is still live.
func (r *Runner) contextError(runCtx, unitCtx context.Context, name string, timeout time.Duration, abandoned bool) error {
	if runCtx.Err() != nil {
		msg := "run interrupted"
		if abandoned {
			msg = "run interrupted, executor abandoned"
		}
		return fmt.Errorf("%w: %s", models.ErrCancelled, msg)
	}
	if errors.Is(unitCtx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Unit: name, Timeout: timeout, Abandoned: abandoned}
	}
	return nil
}

func (r *Runner) warnf(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.LogWarn(fmt.Sprintf(format, args...))
	}
}
