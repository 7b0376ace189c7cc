package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harrison/suitepilot/internal/executor"
	"github.com/harrison/suitepilot/internal/logger"
	"github.com/harrison/suitepilot/internal/report"
	"github.com/harrison/suitepilot/internal/runner"
)

// AgentConfig configures the command executor that drives the agent CLI.
type AgentConfig struct {
	// Command is the agent binary looked up in PATH
	Command string `yaml:"command"`

	// Args is the argument template; {task}, {schema} and {name} are expanded
	Args []string `yaml:"args"`
}

// HTTPConfig configures the HTTP executor.
type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// HistoryConfig configures the SQLite run history.
type HistoryConfig struct {
	// Enabled records every finished run
	Enabled bool `yaml:"enabled"`

	// DBPath is the path to the history database
	DBPath string `yaml:"db_path"`
}

// Config represents suitepilot configuration options
type Config struct {
	// Root is the directory scanned for test definitions
	Root string `yaml:"root"`

	// Concurrency is the maximum number of units executing at once
	Concurrency int `yaml:"concurrency"`

	// UnitTimeout bounds a single unit unless its definition overrides it
	UnitTimeout time.Duration `yaml:"unit_timeout"`

	// CancelGrace is how long a cancelled executor may take to stop
	CancelGrace time.Duration `yaml:"cancel_grace"`

	// RunTimeout bounds the whole run (0 = none)
	RunTimeout time.Duration `yaml:"run_timeout"`

	// Formats lists the report formats to write
	Formats []string `yaml:"formats"`

	// ReportsDir receives report files
	ReportsDir string `yaml:"reports_dir"`

	// ArtifactsDir receives captured executor output
	ArtifactsDir string `yaml:"artifacts_dir"`

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where run logs are written
	LogDir string `yaml:"log_dir"`

	Agent   AgentConfig   `yaml:"agent"`
	HTTP    HTTPConfig    `yaml:"http"`
	History HistoryConfig `yaml:"history"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		Root:         "tests",
		Concurrency:  runner.DefaultConcurrency,
		UnitTimeout:  runner.DefaultUnitTimeout,
		CancelGrace:  runner.DefaultCancelGrace,
		RunTimeout:   0,
		Formats:      append([]string(nil), report.DefaultFormats...),
		ReportsDir:   "reports",
		ArtifactsDir: filepath.Join("reports", "artifacts"),
		LogLevel:     logger.DefaultLevel,
		LogDir:       filepath.Join(DirName, "logs"),
		Agent: AgentConfig{
			Command: executor.DefaultAgentCommand,
			Args:    append([]string(nil), executor.DefaultAgentArgs...),
		},
		HTTP: HTTPConfig{
			Timeout: executor.DefaultHTTPTimeout,
		},
		History: HistoryConfig{
			Enabled: false,
			DBPath:  filepath.Join(DirName, "history.db"),
		},
	}
}

// LoadConfig loads configuration from the specified file path.
// A missing file yields the defaults; a malformed file or an unknown key is an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Durations are written as strings like "90s" in the file.
	type yamlConfig struct {
		Root         string   `yaml:"root"`
		Concurrency  int      `yaml:"concurrency"`
		UnitTimeout  string   `yaml:"unit_timeout"`
		CancelGrace  string   `yaml:"cancel_grace"`
		RunTimeout   string   `yaml:"run_timeout"`
		Formats      []string `yaml:"formats"`
		ReportsDir   string   `yaml:"reports_dir"`
		ArtifactsDir string   `yaml:"artifacts_dir"`
		LogLevel     string   `yaml:"log_level"`
		LogDir       string   `yaml:"log_dir"`
		Agent        struct {
			Command string   `yaml:"command"`
			Args    []string `yaml:"args"`
		} `yaml:"agent"`
		HTTP struct {
			Timeout string `yaml:"timeout"`
		} `yaml:"http"`
		History struct {
			Enabled *bool  `yaml:"enabled"`
			DBPath  string `yaml:"db_path"`
		} `yaml:"history"`
	}

	var yamlCfg yamlConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&yamlCfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if yamlCfg.Root != "" {
		cfg.Root = yamlCfg.Root
	}
	if yamlCfg.Concurrency != 0 {
		cfg.Concurrency = yamlCfg.Concurrency
	}
	if err := parseDuration("unit_timeout", yamlCfg.UnitTimeout, &cfg.UnitTimeout); err != nil {
		return nil, err
	}
	if err := parseDuration("cancel_grace", yamlCfg.CancelGrace, &cfg.CancelGrace); err != nil {
		return nil, err
	}
	if err := parseDuration("run_timeout", yamlCfg.RunTimeout, &cfg.RunTimeout); err != nil {
		return nil, err
	}
	if err := parseDuration("http.timeout", yamlCfg.HTTP.Timeout, &cfg.HTTP.Timeout); err != nil {
		return nil, err
	}
	if len(yamlCfg.Formats) > 0 {
		cfg.Formats = yamlCfg.Formats
	}
	if yamlCfg.ReportsDir != "" {
		cfg.ReportsDir = yamlCfg.ReportsDir
		// Artifacts follow the reports dir unless set explicitly.
		if yamlCfg.ArtifactsDir == "" {
			cfg.ArtifactsDir = filepath.Join(yamlCfg.ReportsDir, "artifacts")
		}
	}
	if yamlCfg.ArtifactsDir != "" {
		cfg.ArtifactsDir = yamlCfg.ArtifactsDir
	}
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.LogDir != "" {
		cfg.LogDir = yamlCfg.LogDir
	}
	if yamlCfg.Agent.Command != "" {
		cfg.Agent.Command = yamlCfg.Agent.Command
	}
	if len(yamlCfg.Agent.Args) > 0 {
		cfg.Agent.Args = yamlCfg.Agent.Args
	}
	if yamlCfg.History.Enabled != nil {
		cfg.History.Enabled = *yamlCfg.History.Enabled
	}
	if yamlCfg.History.DBPath != "" {
		cfg.History.DBPath = yamlCfg.History.DBPath
	}

	return cfg, nil
}

func parseDuration(key, value string, dst *time.Duration) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s format %q: %w", key, value, err)
	}
	*dst = d
	return nil
}

// LoadConfigFromDir loads <dir>/.suitepilot/config.yaml.
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, DirName, FileName))
}

// Flags holds command-line overrides. Nil fields were not set.
type Flags struct {
	Root         *string
	Concurrency  *int
	UnitTimeout  *time.Duration
	RunTimeout   *time.Duration
	Formats      []string
	ReportsDir   *string
	ArtifactsDir *string
	LogLevel     *string
	LogDir       *string
	History      *bool
}

// MergeWithFlags merges CLI flags into the configuration.
// Non-nil flag values override configuration values.
func (c *Config) MergeWithFlags(f Flags) {
	if f.Root != nil {
		c.Root = *f.Root
	}
	if f.Concurrency != nil {
		c.Concurrency = *f.Concurrency
	}
	if f.UnitTimeout != nil {
		c.UnitTimeout = *f.UnitTimeout
	}
	if f.RunTimeout != nil {
		c.RunTimeout = *f.RunTimeout
	}
	if len(f.Formats) > 0 {
		c.Formats = f.Formats
	}
	if f.ReportsDir != nil {
		c.ReportsDir = *f.ReportsDir
		if f.ArtifactsDir == nil {
			c.ArtifactsDir = filepath.Join(*f.ReportsDir, "artifacts")
		}
	}
	if f.ArtifactsDir != nil {
		c.ArtifactsDir = *f.ArtifactsDir
	}
	if f.LogLevel != nil {
		c.LogLevel = *f.LogLevel
	}
	if f.LogDir != nil {
		c.LogDir = *f.LogDir
	}
	if f.History != nil {
		c.History.Enabled = *f.History
	}
}

// Validate validates the configuration values and normalizes Formats.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("root must not be empty")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1, got %d", c.Concurrency)
	}
	if c.UnitTimeout < 0 {
		return fmt.Errorf("unit_timeout must be >= 0, got %v", c.UnitTimeout)
	}
	if c.CancelGrace < 0 {
		return fmt.Errorf("cancel_grace must be >= 0, got %v", c.CancelGrace)
	}
	if c.RunTimeout < 0 {
		return fmt.Errorf("run_timeout must be >= 0, got %v", c.RunTimeout)
	}
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("http.timeout must be >= 0, got %v", c.HTTP.Timeout)
	}
	if !logger.ValidLevel(c.LogLevel) {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	formats, err := report.ParseFormats(c.Formats)
	if err != nil {
		return err
	}
	c.Formats = formats

	if c.ReportsDir == "" {
		return fmt.Errorf("reports_dir must not be empty")
	}
	if c.History.Enabled && c.History.DBPath == "" {
		return fmt.Errorf("history.db_path is required when history is enabled")
	}
	return nil
}
