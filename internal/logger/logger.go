// Package logger provides leveled logging for the synthesis agent.
//
// Implementations are thread-safe. All output is prefixed with [HH:MM:SS]
// timestamps; the console logger colors level tags when writing to a TTY.
package logger

import "strings"

// Log level constants for filtering.
const (
	levelTrace = 0
	levelDebug = 1
	levelInfo  = 2
	levelWarn  = 3
	levelError = 4
)

// Logger is the logging capability handed to the agent components.
type Logger interface {
	Tracef(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// normalizeLevel lowercases and validates a level name, defaulting to "info".
func normalizeLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "trace", "debug", "info", "warn", "error":
		return normalized
	}
	return "info"
}

func levelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	}
	return levelInfo
}

// Nop is a Logger that discards everything. Useful in tests.
type Nop struct{}

func (Nop) Tracef(string, ...interface{}) {}
func (Nop) Debugf(string, ...interface{}) {}
func (Nop) Infof(string, ...interface{})  {}
func (Nop) Warnf(string, ...interface{})  {}
func (Nop) Errorf(string, ...interface{}) {}
