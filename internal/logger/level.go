package logger

import "strings"

// Log level constants for filtering
const (
	levelTrace int = iota
	levelDebug
	levelInfo
	levelWarn
	levelError
)

// DefaultLevel is used when no level, or an unknown one, is configured.
const DefaultLevel = "info"

var levelValues = map[string]int{
	"trace": levelTrace,
	"debug": levelDebug,
	"info":  levelInfo,
	"warn":  levelWarn,
	"error": levelError,
}

// ValidLevel reports whether level names a known log level.
func ValidLevel(level string) bool {
	_, ok := levelValues[strings.ToLower(strings.TrimSpace(level))]
	return ok
}

// normalizeLogLevel lowercases level and falls back to DefaultLevel.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))
	if _, ok := levelValues[normalized]; ok {
		return normalized
	}
	return DefaultLevel
}

// enabled reports whether messageLevel passes the configured threshold.
func enabled(configured, messageLevel string) bool {
	return levelValues[strings.ToLower(messageLevel)] >= levelValues[configured]
}
