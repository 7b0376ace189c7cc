package logger

import "github.com/harrison/suitepilot/internal/models"

// Logger is the full set of events the CLI emits.
type Logger interface {
	LogTrace(message string)
	LogDebug(message string)
	LogInfo(message string)
	LogWarn(message string)
	LogError(message string)
	LogRunStart(runID string, total int)
	LogUnitStart(name string)
	LogOutcome(o models.Outcome)
	LogProgress(completed, total int)
}

// MultiLogger fans every event out to several loggers in order.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger combines loggers, skipping nil entries.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			m.loggers = append(m.loggers, l)
		}
	}
	return m
}

func (m *MultiLogger) each(fn func(Logger)) {
	for _, l := range m.loggers {
		fn(l)
	}
}

func (m *MultiLogger) LogTrace(message string) { m.each(func(l Logger) { l.LogTrace(message) }) }
func (m *MultiLogger) LogDebug(message string) { m.each(func(l Logger) { l.LogDebug(message) }) }
func (m *MultiLogger) LogInfo(message string)  { m.each(func(l Logger) { l.LogInfo(message) }) }
func (m *MultiLogger) LogWarn(message string)  { m.each(func(l Logger) { l.LogWarn(message) }) }
func (m *MultiLogger) LogError(message string) { m.each(func(l Logger) { l.LogError(message) }) }

func (m *MultiLogger) LogRunStart(runID string, total int) {
	m.each(func(l Logger) { l.LogRunStart(runID, total) })
}

func (m *MultiLogger) LogUnitStart(name string) {
	m.each(func(l Logger) { l.LogUnitStart(name) })
}

func (m *MultiLogger) LogOutcome(o models.Outcome) {
	m.each(func(l Logger) { l.LogOutcome(o) })
}

func (m *MultiLogger) LogProgress(completed, total int) {
	m.each(func(l Logger) { l.LogProgress(completed, total) })
}

var (
	_ Logger = (*ConsoleLogger)(nil)
	_ Logger = (*FileLogger)(nil)
	_ Logger = (*NoOpLogger)(nil)
	_ Logger = (*MultiLogger)(nil)
)
