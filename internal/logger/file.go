package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileLogger writes agent run logs to timestamped files under a log
// directory and maintains a latest.log symlink pointing at the most
// recent run.
type FileLogger struct {
	logDir  string
	runFile string
	file    *os.File
	level   int
	mu      sync.Mutex
}

// NewFileLogger creates a FileLogger writing to logDir at the given level.
// The directory is created if missing.
func NewFileLogger(logDir, level string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", timestamp))
	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("create run log file: %w", err)
	}

	// latest.log symlink; best effort, some filesystems refuse symlinks.
	symlinkPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		os.Remove(symlinkPath)
	}
	_ = os.Symlink(filepath.Base(runFile), symlinkPath)

	return &FileLogger{
		logDir:  logDir,
		runFile: runFile,
		file:    file,
		level:   levelToInt(normalizeLevel(level)),
	}, nil
}

// Path returns the current run log file path.
func (fl *FileLogger) Path() string {
	return fl.runFile
}

// Close flushes and closes the run log file.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.file == nil {
		return nil
	}
	err := fl.file.Close()
	fl.file = nil
	return err
}

func (fl *FileLogger) logf(level int, tag, format string, args ...interface{}) {
	if level < fl.level {
		return
	}

	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.file == nil {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(fl.file, "[%s] %-5s %s\n", timestamp, tag, fmt.Sprintf(format, args...))
}

func (fl *FileLogger) Tracef(format string, args ...interface{}) {
	fl.logf(levelTrace, "TRACE", format, args...)
}

func (fl *FileLogger) Debugf(format string, args ...interface{}) {
	fl.logf(levelDebug, "DEBUG", format, args...)
}

func (fl *FileLogger) Infof(format string, args ...interface{}) {
	fl.logf(levelInfo, "INFO", format, args...)
}

func (fl *FileLogger) Warnf(format string, args ...interface{}) {
	fl.logf(levelWarn, "WARN", format, args...)
}

func (fl *FileLogger) Errorf(format string, args ...interface{}) {
	fl.logf(levelError, "ERROR", format, args...)
}

// Tee fans log calls out to multiple loggers (typically console + file).
type Tee struct {
	Loggers []Logger
}

// NewTee creates a Tee over the given loggers, skipping nils.
func NewTee(loggers ...Logger) *Tee {
	t := &Tee{}
	for _, l := range loggers {
		if l != nil {
			t.Loggers = append(t.Loggers, l)
		}
	}
	return t
}

func (t *Tee) Tracef(format string, args ...interface{}) {
	for _, l := range t.Loggers {
		l.Tracef(format, args...)
	}
}

func (t *Tee) Debugf(format string, args ...interface{}) {
	for _, l := range t.Loggers {
		l.Debugf(format, args...)
	}
}

func (t *Tee) Infof(format string, args ...interface{}) {
	for _, l := range t.Loggers {
		l.Infof(format, args...)
	}
}

func (t *Tee) Warnf(format string, args ...interface{}) {
	for _, l := range t.Loggers {
		l.Warnf(format, args...)
	}
}

func (t *Tee) Errorf(format string, args ...interface{}) {
	for _, l := range t.Loggers {
		l.Errorf(format, args...)
	}
}
