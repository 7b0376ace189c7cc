package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/harrison/suitepilot/internal/config"
	"github.com/harrison/suitepilot/internal/history"
	"github.com/harrison/suitepilot/internal/logger"
	"github.com/harrison/suitepilot/internal/models"
	"github.com/harrison/suitepilot/internal/report"
	"github.com/harrison/suitepilot/internal/runner"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [root]",
		Short: "Discover and run tests, then write reports",
		Long: `Discover every test definition under root (default: tests), run them with
bounded concurrency and write the requested reports.

Exit codes:
  0  all tests passed
  1  at least one test failed
  2  no tests were discovered
  3  configuration error (invalid root, config file or flags)
  4  other runtime error

Examples:
  suitepilot run
  suitepilot run e2e --concurrency 4 --format all
  suitepilot run --run '^test_login' --tag smoke
  suitepilot run --unit-timeout 2m --timeout 30m --history`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCommand,
	}

	cmd.Flags().Int("concurrency", runner.DefaultConcurrency, "Maximum number of tests executing at once")
	cmd.Flags().Duration("unit-timeout", runner.DefaultUnitTimeout, "Timeout for a single test unless its definition overrides it")
	cmd.Flags().Duration("timeout", 0, "Timeout for the whole run (0 = none)")
	cmd.Flags().StringSlice("format", nil, "Report formats: json, html, junit, text or all (repeatable or comma separated)")
	cmd.Flags().String("reports-dir", "", "Directory for report files")
	cmd.Flags().String("artifacts-dir", "", "Directory for captured executor output")
	cmd.Flags().String("log-dir", "", "Directory for log files")
	cmd.Flags().String("log-level", "", "Log level: trace, debug, info, warn, error")
	cmd.Flags().Bool("verbose", false, "Shortcut for --log-level debug")
	cmd.Flags().Bool("history", false, "Record this run in the history database")
	addFilterFlags(cmd)

	return cmd
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	consoleLog := logger.NewConsoleLogger(out, cfg.LogLevel)
	fileLog, err := logger.NewFileLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		return runtimeError("failed to create file logger: %w", err)
	}
	defer fileLog.Close()
	log := logger.NewMultiLogger(consoleLog, fileLog)

	catalog, err := discover(cmd, cfg, log)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()
	}
	ctx, stop := runner.WithInterrupt(ctx, func(sig os.Signal) {
		log.LogWarn(fmt.Sprintf("received %s, cancelling run", sig))
	})
	defer stop()

	runID := uuid.New().String()
	agg := report.NewAggregator(runID, time.Now())

	log.LogRunStart(runID, len(catalog.Entries))
	for _, name := range catalog.Disabled {
		log.LogInfo(fmt.Sprintf("%s is marked skip, not running", name))
	}

	r := runner.New(newExecutor(cfg, runID), log,
		runner.WithConcurrency(cfg.Concurrency),
		runner.WithUnitTimeout(cfg.UnitTimeout),
		runner.WithCancelGrace(cfg.CancelGrace),
	)
	runErr := r.Run(ctx, catalog.Entries, agg)
	if runErr != nil {
		if errors.Is(runErr, context.DeadlineExceeded) {
			log.LogWarn(fmt.Sprintf("run timed out after %s", cfg.RunTimeout))
		} else {
			log.LogWarn("run interrupted")
		}
	}

	// Reports are written even when the run was cancelled.
	rep, artifacts := agg.Finalize(context.Background(), cfg.ReportsDir, cfg.Formats, log)
	fileLog.LogSummary(rep)

	if cfg.History.Enabled {
		recordHistory(cfg, rep, log)
	}

	printSummary(out, rep, artifacts)

	switch {
	case rep.Summary.NoTests:
		return &ExitError{Code: ExitNoTests, Err: fmt.Errorf("%s: no tests found under %s", models.NoTestsMessage, cfg.Root)}
	case !rep.OK():
		return &ExitError{Code: ExitTestsFailed}
	default:
		return nil
	}
}

// recordHistory stores the run; failures are only logged.
func recordHistory(cfg *config.Config, rep *models.Report, log logger.Logger) {
	store, err := history.NewStore(cfg.History.DBPath)
	if err != nil {
		log.LogWarn(fmt.Sprintf("history disabled for this run: %v", err))
		return
	}
	defer store.Close()

	if err := store.RecordRun(context.Background(), rep, cfg.Root); err != nil {
		log.LogWarn(fmt.Sprintf("failed to record run history: %v", err))
	}
}

func printSummary(w io.Writer, rep *models.Report, artifacts []report.Artifact) {
	fmt.Fprintln(w)
	report.RenderTable(w, rep, colorEnabled(w))
	fmt.Fprintln(w)
	for _, a := range artifacts {
		if a.Err != nil {
			fmt.Fprintf(w, "%s report not written: %v\n", a.Format, a.Err)
			continue
		}
		fmt.Fprintf(w, "%s report: %s\n", a.Format, a.Path)
	}
}
