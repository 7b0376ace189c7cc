// Package logger provides logging implementations for suite runs.
//
// Loggers receive unit starts, outcomes and progress from the runner plus
// free-form leveled messages. Implementations are safe for concurrent use.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/suitepilot/internal/models"
)

// ConsoleLogger writes run progress to a writer with [HH:MM:SS] timestamps.
// Color output is enabled when the writer is a terminal.
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
	started     time.Time
}

// NewConsoleLogger creates a ConsoleLogger. A nil writer discards everything.
// Valid levels are trace, debug, info, warn and error; anything else means info.
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: IsTerminal(writer),
		started:     time.Now(),
	}
}

// IsTerminal reports whether w is a TTY that should receive colors.
// NO_COLOR disables colors through fatih/color.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	if color.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SetColor forces colored output on or off.
func (cl *ConsoleLogger) SetColor(enabled bool) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	cl.colorOutput = enabled
}

// Level returns the configured level.
func (cl *ConsoleLogger) Level() string {
	return cl.logLevel
}

// LogTrace logs a trace-level message.
func (cl *ConsoleLogger) LogTrace(message string) {
	cl.logWithLevel("TRACE", message)
}

// LogDebug logs a debug-level message.
func (cl *ConsoleLogger) LogDebug(message string) {
	cl.logWithLevel("DEBUG", message)
}

// LogInfo logs an info-level message.
func (cl *ConsoleLogger) LogInfo(message string) {
	cl.logWithLevel("INFO", message)
}

// LogWarn logs a warning.
func (cl *ConsoleLogger) LogWarn(message string) {
	cl.logWithLevel("WARN", message)
}

// LogError logs an error-level message.
func (cl *ConsoleLogger) LogError(message string) {
	cl.logWithLevel("ERROR", message)
}

func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil || !enabled(cl.logLevel, level) {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	label := level
	if cl.colorOutput {
		label = levelColor(level).Sprint(level)
	}
	fmt.Fprintf(cl.writer, "[%s] [%s] %s\n", timestamp(), label, message)
}

func levelColor(level string) *color.Color {
	switch level {
	case "TRACE":
		return color.New(color.FgHiBlack)
	case "DEBUG":
		return color.New(color.FgCyan)
	case "WARN":
		return color.New(color.FgYellow)
	case "ERROR":
		return color.New(color.FgRed)
	default:
		return color.New(color.FgBlue)
	}
}

// LogRunStart logs the beginning of a run at INFO level.
// Format: "[HH:MM:SS] Starting run <id>: <n> tests"
func (cl *ConsoleLogger) LogRunStart(runID string, total int) {
	if cl.writer == nil || !enabled(cl.logLevel, "info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	cl.started = time.Now()
	id := runID
	if cl.colorOutput {
		id = color.New(color.Bold).Sprint(runID)
	}
	fmt.Fprintf(cl.writer, "[%s] Starting run %s: %d tests\n", timestamp(), id, total)
}

// LogUnitStart logs a unit being admitted at DEBUG level.
func (cl *ConsoleLogger) LogUnitStart(name string) {
	cl.logWithLevel("DEBUG", fmt.Sprintf("Running %s", name))
}

// LogOutcome logs a finished unit at INFO level.
// Format: "[HH:MM:SS] <name>: PASSED (1.20s)" or
// "[HH:MM:SS] <name>: FAILED [kind] (1.20s): <error>"
func (cl *ConsoleLogger) LogOutcome(o models.Outcome) {
	if cl.writer == nil || !enabled(cl.logLevel, "info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	fmt.Fprintf(cl.writer, "[%s] %s\n", timestamp(), formatOutcome(o, cl.colorOutput))
	if o.Artifact != "" && !o.IsPassed() {
		fmt.Fprintf(cl.writer, "[%s]   output: %s\n", timestamp(), o.Artifact)
	}
}

func formatOutcome(o models.Outcome, colored bool) string {
	if o.IsPassed() {
		status := "PASSED"
		if colored {
			status = color.New(color.FgGreen).Sprint(status)
		}
		return fmt.Sprintf("%s: %s (%.2fs)", o.Name, status, o.Duration)
	}

	status := "FAILED"
	if colored {
		status = color.New(color.FgRed).Sprint(status)
	}
	return fmt.Sprintf("%s: %s [%s] (%.2fs): %s", o.Name, status, o.Kind, o.Duration, o.Error)
}

// LogProgress logs completion progress at INFO level.
// Format: "[HH:MM:SS] Progress: [=====     ] 2/4 (50%) - Avg: 1s/test"
func (cl *ConsoleLogger) LogProgress(completed, total int) {
	if cl.writer == nil || !enabled(cl.logLevel, "info") {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	pb := NewProgressBar(total, 10, cl.colorOutput)
	pb.Update(completed)

	var avg string
	if completed > 0 {
		avg = fmt.Sprintf(" - Avg: %s/test", formatDuration(time.Since(cl.started)/time.Duration(completed)))
	}
	fmt.Fprintf(cl.writer, "[%s] Progress: %s%s\n", timestamp(), pb.Render(), avg)
}

// timestamp returns the current time formatted as HH:MM:SS.
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// formatDuration renders d as "5s", "1m30s" or "2h15m".
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		hours := d / time.Hour
		minutes := (d % time.Hour) / time.Minute
		if minutes == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh%dm", hours, minutes)
	case d >= time.Minute:
		minutes := d / time.Minute
		seconds := (d % time.Minute) / time.Second
		if seconds == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	}
}

// NoOpLogger discards all messages.
type NoOpLogger struct{}

// NewNoOpLogger creates a NoOpLogger instance.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (n *NoOpLogger) LogTrace(string)                  {}
func (n *NoOpLogger) LogDebug(string)                  {}
func (n *NoOpLogger) LogInfo(string)                   {}
func (n *NoOpLogger) LogWarn(string)                   {}
func (n *NoOpLogger) LogError(string)                  {}
func (n *NoOpLogger) LogRunStart(string, int)          {}
func (n *NoOpLogger) LogUnitStart(string)              {}
func (n *NoOpLogger) LogOutcome(models.Outcome)        {}
func (n *NoOpLogger) LogProgress(completed, total int) {}
