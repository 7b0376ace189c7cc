package cmd

import (
	"errors"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harrison/suitepilot/internal/config"
	"github.com/harrison/suitepilot/internal/executor"
	"github.com/harrison/suitepilot/internal/logger"
	"github.com/harrison/suitepilot/internal/models"
	"github.com/harrison/suitepilot/internal/registry"
)

// newExecutor builds the task executor for a run. Tests replace it.
var newExecutor = defaultExecutor

// newRegistry returns the unit kinds known to the CLI. Tests replace it.
var newRegistry = registry.Default

func defaultExecutor(cfg *config.Config, runID string) executor.TaskExecutor {
	mux := executor.NewMux()
	mux.Handle(models.ExecutorAgent, executor.NewCommandExecutor(cfg.Agent.Command, cfg.Agent.Args, runArtifactsDir(cfg.ArtifactsDir, runID)))
	mux.Handle(models.ExecutorHTTP, executor.NewHTTPExecutor(cfg.HTTP.Timeout))
	return mux
}

// runArtifactsDir scopes captured executor output to one run.
func runArtifactsDir(dir, runID string) string {
	if dir == "" || runID == "" {
		return dir
	}
	return filepath.Join(dir, shortID(runID))
}

// loadConfig loads the config file, applies changed flags and the optional
// root argument, and validates the result.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.FindConfigFile(".")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, configError("failed to load config from %s: %w", configPath, err)
	}

	var flags config.Flags
	if len(args) > 0 {
		flags.Root = &args[0]
	}
	if changed(cmd, "concurrency") {
		v, _ := cmd.Flags().GetInt("concurrency")
		flags.Concurrency = &v
	}
	if changed(cmd, "unit-timeout") {
		v, _ := cmd.Flags().GetDuration("unit-timeout")
		flags.UnitTimeout = &v
	}
	if changed(cmd, "timeout") {
		v, _ := cmd.Flags().GetDuration("timeout")
		flags.RunTimeout = &v
	}
	if changed(cmd, "format") {
		flags.Formats, _ = cmd.Flags().GetStringSlice("format")
	}
	if changed(cmd, "reports-dir") {
		v, _ := cmd.Flags().GetString("reports-dir")
		flags.ReportsDir = &v
	}
	if changed(cmd, "artifacts-dir") {
		v, _ := cmd.Flags().GetString("artifacts-dir")
		flags.ArtifactsDir = &v
	}
	if changed(cmd, "log-level") {
		v, _ := cmd.Flags().GetString("log-level")
		flags.LogLevel = &v
	}
	if changed(cmd, "log-dir") {
		v, _ := cmd.Flags().GetString("log-dir")
		flags.LogDir = &v
	}
	if changed(cmd, "history") {
		v, _ := cmd.Flags().GetBool("history")
		flags.History = &v
	}
	if changed(cmd, "db") {
		v, _ := cmd.Flags().GetString("db")
		cfg.History.DBPath = v
	}

	cfg.MergeWithFlags(flags)

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, configError("invalid configuration: %w", err)
	}
	return cfg, nil
}

func changed(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

// discover scans cfg.Root and applies the --run and --tag filters.
func discover(cmd *cobra.Command, cfg *config.Config, warn registry.Warner) (*registry.Catalog, error) {
	catalog, err := newRegistry().Discover(cfg.Root, warn)
	if err != nil {
		if errors.Is(err, registry.ErrInvalidRoot) {
			return nil, &ExitError{Code: ExitConfigError, Err: err}
		}
		return nil, runtimeError("discovery failed: %w", err)
	}

	pattern, _ := cmd.Flags().GetString("run")
	tags, _ := cmd.Flags().GetStringSlice("tag")
	filtered, err := catalog.Filter(pattern, tags)
	if err != nil {
		return nil, &ExitError{Code: ExitConfigError, Err: err}
	}
	return filtered, nil
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("run", "", "Only include tests whose name matches this regular expression")
	cmd.Flags().StringSlice("tag", nil, "Only include tests carrying one of these tags (repeatable)")
}

// colorEnabled reports whether w should receive ANSI colors.
func colorEnabled(w io.Writer) bool {
	return logger.IsTerminal(w)
}
