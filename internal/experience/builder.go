// Package experience assembles bounded failure context for retry attempts.
// The text is purely additive guidance forwarded to the synthesis worker;
// nothing here interprets it.
package experience

import (
	"context"
	"fmt"
	"strings"

	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/models"
)

// Default bounds on how much history is forwarded.
const (
	DefaultTaskFailureLimit   = 3
	DefaultGlobalFailureLimit = 3
)

// FailureSource provides recent failure logs. Satisfied by store.Store.
type FailureSource interface {
	RecentFailuresForTask(ctx context.Context, taskID string, n int) ([]models.AttemptLog, error)
	RecentFailuresGlobal(ctx context.Context, excludeTaskID string, n int) ([]models.AttemptLog, error)
}

// Builder renders past failures into the previous-experience text of a
// synthesize request.
type Builder struct {
	source      FailureSource
	taskLimit   int
	globalLimit int
}

// NewBuilder creates a Builder with the default history bounds.
func NewBuilder(source FailureSource) *Builder {
	return &Builder{
		source:      source,
		taskLimit:   DefaultTaskFailureLimit,
		globalLimit: DefaultGlobalFailureLimit,
	}
}

// NewBuilderWithLimits creates a Builder with explicit history bounds.
func NewBuilderWithLimits(source FailureSource, taskLimit, globalLimit int) *Builder {
	return &Builder{source: source, taskLimit: taskLimit, globalLimit: globalLimit}
}

// Build returns the experience context for the task's next attempt: the
// task's own recent failures first, then recent failures from other tasks
// for cross-device pattern hints. Returns "" when no failures exist
// anywhere (clean first attempt).
func (b *Builder) Build(ctx context.Context, taskID string) (string, error) {
	own, err := b.source.RecentFailuresForTask(ctx, taskID, b.taskLimit)
	if err != nil {
		return "", fmt.Errorf("load task failures: %w", err)
	}
	global, err := b.source.RecentFailuresGlobal(ctx, taskID, b.globalLimit)
	if err != nil {
		return "", fmt.Errorf("load global failures: %w", err)
	}

	if len(own) == 0 && len(global) == 0 {
		return "", nil
	}

	var sb strings.Builder
	if len(own) > 0 {
		sb.WriteString("Previous attempts for this device failed:\n")
		for _, log := range own {
			sb.WriteString(renderFailure(log))
		}
	}
	if len(global) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("Recent failures on other devices:\n")
		for _, log := range global {
			sb.WriteString(renderFailure(log))
		}
	}
	return sb.String(), nil
}

// renderFailure formats one log entry as attempt number, error text and,
// when the worker supplied it, expected/actual byte evidence.
func renderFailure(log models.AttemptLog) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "- attempt %d: %s", log.AttemptNumber, log.ErrorMessage)
	if log.ExpectedBytes != "" || log.ActualBytes != "" {
		fmt.Fprintf(&sb, " (expected %s, actual %s", log.ExpectedBytes, log.ActualBytes)
		if log.ErrorBytePos >= 0 {
			fmt.Fprintf(&sb, ", byte position %d", log.ErrorBytePos)
		}
		sb.WriteString(")")
	}
	sb.WriteString("\n")
	return sb.String()
}
