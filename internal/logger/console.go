package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// ConsoleLogger logs to a writer with timestamps and thread safety.
// Color output is enabled automatically when writing to a terminal.
type ConsoleLogger struct {
	writer      io.Writer
	level       int
	mutex       sync.Mutex
	colorOutput bool
}

// NewConsoleLogger creates a ConsoleLogger writing to w at the given level.
// If w is nil, messages are silently discarded. Invalid or empty levels
// default to "info".
func NewConsoleLogger(w io.Writer, level string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      w,
		level:       levelToInt(normalizeLevel(level)),
		colorOutput: isTerminal(w),
	}
}

// isTerminal reports whether w is a TTY that supports colors.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	// color.NoColor honors the NO_COLOR convention.
	return !color.NoColor && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

var levelColors = map[string]*color.Color{
	"TRACE": color.New(color.FgHiBlack),
	"DEBUG": color.New(color.FgCyan),
	"INFO":  color.New(color.FgGreen),
	"WARN":  color.New(color.FgYellow),
	"ERROR": color.New(color.FgRed),
}

func (cl *ConsoleLogger) logf(level int, tag, format string, args ...interface{}) {
	if cl.writer == nil || level < cl.level {
		return
	}

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	timestamp := time.Now().Format("15:04:05")
	display := tag
	if cl.colorOutput {
		if c, ok := levelColors[tag]; ok {
			display = c.Sprint(tag)
		}
	}
	fmt.Fprintf(cl.writer, "[%s] %-5s %s\n", timestamp, display, fmt.Sprintf(format, args...))
}

func (cl *ConsoleLogger) Tracef(format string, args ...interface{}) {
	cl.logf(levelTrace, "TRACE", format, args...)
}

func (cl *ConsoleLogger) Debugf(format string, args ...interface{}) {
	cl.logf(levelDebug, "DEBUG", format, args...)
}

func (cl *ConsoleLogger) Infof(format string, args ...interface{}) {
	cl.logf(levelInfo, "INFO", format, args...)
}

func (cl *ConsoleLogger) Warnf(format string, args ...interface{}) {
	cl.logf(levelWarn, "WARN", format, args...)
}

func (cl *ConsoleLogger) Errorf(format string, args ...interface{}) {
	cl.logf(levelError, "ERROR", format, args...)
}
