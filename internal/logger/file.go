package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harrison/suitepilot/internal/models"
)

// DefaultLogDir is where run logs go unless configured otherwise.
var DefaultLogDir = filepath.Join(".suitepilot", "logs")

// FileLogger writes plain-text run logs under a log directory.
// Each run gets run-YYYYMMDD-HHMMSS.log, latest.log points at the newest
// one, and each failed unit gets a detail file under units/.
type FileLogger struct {
	logDir   string
	runLog   *os.File
	runFile  string
	unitsDir string
	logLevel string
	mu       sync.Mutex
}

// NewFileLogger creates a FileLogger in logDir at the given level.
func NewFileLogger(logDir string, logLevel string) (*FileLogger, error) {
	if logDir == "" {
		logDir = DefaultLogDir
	}

	unitsDir := filepath.Join(logDir, "units")
	if err := os.MkdirAll(unitsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", time.Now().Format("20060102-150405")))
	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	symlinkPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create symlink: %w", err)
	}

	fl := &FileLogger{
		logDir:   logDir,
		runLog:   file,
		runFile:  runFile,
		unitsDir: unitsDir,
		logLevel: normalizeLogLevel(logLevel),
	}

	fl.writeRunLog("=== suitepilot run log ===\n")
	fl.writeRunLog(fmt.Sprintf("Started at: %s\n\n", time.Now().Format(time.RFC3339)))

	return fl, nil
}

// RunFile returns the path of the current run log.
func (fl *FileLogger) RunFile() string {
	return fl.runFile
}

// LogTrace logs a trace-level message.
func (fl *FileLogger) LogTrace(message string) { fl.logWithLevel("TRACE", message) }

// LogDebug logs a debug-level message.
func (fl *FileLogger) LogDebug(message string) { fl.logWithLevel("DEBUG", message) }

// LogInfo logs an info-level message.
func (fl *FileLogger) LogInfo(message string) { fl.logWithLevel("INFO", message) }

// LogWarn logs a warning.
func (fl *FileLogger) LogWarn(message string) { fl.logWithLevel("WARN", message) }

// LogError logs an error-level message.
func (fl *FileLogger) LogError(message string) { fl.logWithLevel("ERROR", message) }

func (fl *FileLogger) logWithLevel(level string, message string) {
	if !enabled(fl.logLevel, level) {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [%s] %s\n", timestamp(), level, message))
}

// LogRunStart records the run id and unit count.
func (fl *FileLogger) LogRunStart(runID string, total int) {
	if !enabled(fl.logLevel, "info") {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] Starting run %s: %d tests\n", timestamp(), runID, total))
}

// LogUnitStart records a unit being admitted at DEBUG level.
func (fl *FileLogger) LogUnitStart(name string) {
	fl.logWithLevel("DEBUG", fmt.Sprintf("Running %s", name))
}

// LogOutcome writes the outcome line and, for failures, a units/<name>.log
// detail file.
func (fl *FileLogger) LogOutcome(o models.Outcome) {
	if enabled(fl.logLevel, "info") {
		fl.writeRunLog(fmt.Sprintf("[%s] %s\n", timestamp(), formatOutcome(o, false)))
	}
	if !o.IsPassed() {
		if err := fl.writeUnitLog(o); err != nil {
			fl.LogWarn(err.Error())
		}
	}
}

func (fl *FileLogger) writeUnitLog(o models.Outcome) error {
	var b strings.Builder
	fmt.Fprintf(&b, "=== %s ===\n", o.Name)
	fmt.Fprintf(&b, "Status: %s\n", o.Status)
	fmt.Fprintf(&b, "Failure kind: %s\n", o.Kind)
	fmt.Fprintf(&b, "Duration: %.2fs\n", o.Duration)
	if o.Source != "" {
		fmt.Fprintf(&b, "Source: %s\n", o.Source)
	}
	if o.Artifact != "" {
		fmt.Fprintf(&b, "Output: %s\n", o.Artifact)
	}
	fmt.Fprintf(&b, "\nError:\n%s\n", o.Error)

	fl.mu.Lock()
	defer fl.mu.Unlock()

	path := filepath.Join(fl.unitsDir, sanitizeFileName(o.Name)+".log")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write unit log for %s: %w", o.Name, err)
	}
	return nil
}

// LogProgress is a no-op; progress bars are console-only.
func (fl *FileLogger) LogProgress(completed, total int) {}

// LogSummary writes the final counters of a report at INFO level.
func (fl *FileLogger) LogSummary(report *models.Report) {
	if report == nil || !enabled(fl.logLevel, "info") {
		return
	}

	ts := timestamp()
	s := report.Summary
	var b strings.Builder
	fmt.Fprintf(&b, "\n[%s] === RUN SUMMARY ===\n", ts)
	fmt.Fprintf(&b, "[%s] Run ID:     %s\n", ts, report.RunID)
	fmt.Fprintf(&b, "[%s] Total:      %d\n", ts, s.Total)
	fmt.Fprintf(&b, "[%s] Passed:     %d\n", ts, s.Passed)
	fmt.Fprintf(&b, "[%s] Failed:     %d\n", ts, s.Failed)
	if s.NoTests {
		fmt.Fprintf(&b, "[%s] Pass rate:  %s\n", ts, s.Message)
	} else {
		fmt.Fprintf(&b, "[%s] Pass rate:  %.2f%%\n", ts, s.PassRate)
	}
	fmt.Fprintf(&b, "[%s] Total time: %.2fs\n", ts, report.Duration)
	fl.writeRunLog(b.String())
}

// Close flushes and closes the run log file.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog == nil {
		return nil
	}
	if err := fl.runLog.Sync(); err != nil {
		return fmt.Errorf("failed to sync run log: %w", err)
	}
	if err := fl.runLog.Close(); err != nil {
		return fmt.Errorf("failed to close run log: %w", err)
	}
	fl.runLog = nil
	return nil
}

func (fl *FileLogger) writeRunLog(message string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		fl.runLog.WriteString(message)
		fl.runLog.Sync()
	}
}

// sanitizeFileName keeps unit names usable as file names.
func sanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, name)
}
