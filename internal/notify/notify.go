// Package notify renders agent lifecycle events for a human operator. The
// core never depends on delivery; everything here is best effort.
package notify

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/agent"
	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/logger"
	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/models"
)

// ConsoleNotifier writes human-readable event lines to a terminal and
// mirrors them to the run log. It implements agent.Notifier.
type ConsoleNotifier struct {
	writer io.Writer
	log    logger.Logger

	success *color.Color
	failure *color.Color
	warning *color.Color
	info    *color.Color
}

// NewConsoleNotifier creates a notifier writing to w. A nil writer
// suppresses console output; a nil logger suppresses log mirroring.
func NewConsoleNotifier(w io.Writer, log logger.Logger) *ConsoleNotifier {
	if w == nil {
		w = io.Discard
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &ConsoleNotifier{
		writer:  w,
		log:     log,
		success: color.New(color.FgGreen),
		failure: color.New(color.FgRed),
		warning: color.New(color.FgYellow),
		info:    color.New(color.FgCyan),
	}
}

// TickCompleted renders the outcome of one tick. Idle ticks reach here only
// when a pickup was reverted, which is worth a line.
func (c *ConsoleNotifier) TickCompleted(result agent.TickResult) {
	switch result.Outcome {
	case agent.TickSuccess:
		line := fmt.Sprintf("driver synthesized for %s (attempt %d/%d, confidence %.2f)",
			result.TaskName, result.AttemptCount, result.MaxAttempts, result.Confidence)
		if len(result.TestedRegs) > 0 {
			line += fmt.Sprintf(", registers %s", strings.Join(result.TestedRegs, " "))
		}
		c.emit(c.success, "✓ "+line)
	case agent.TickFailure:
		line := fmt.Sprintf("attempt %d/%d failed for %s (%s)",
			result.AttemptCount, result.MaxAttempts, result.TaskName, result.ErrorKind)
		if result.Err != nil {
			line += ": " + result.Err.Error()
		}
		c.emit(c.failure, "✗ "+line)
	default:
		if result.TaskID == "" {
			return
		}
		c.emit(c.warning, fmt.Sprintf("! %s interrupted by infrastructure, requeued (attempt %d/%d unchanged)",
			result.TaskName, result.AttemptCount, result.MaxAttempts))
	}
}

// AgentStatusChanged reports scheduler state transitions.
func (c *ConsoleNotifier) AgentStatusChanged(state string, pending int, workerHealthy bool) {
	switch state {
	case "error":
		c.emit(c.failure, "agent paused: synthesis worker unreachable")
	case "working":
		c.emit(c.info, fmt.Sprintf("agent working, %d task(s) pending", pending))
	default:
		c.emit(c.info, "agent idle, queue empty")
	}
	if !workerHealthy {
		c.log.Warnf("worker health degraded while in state %q", state)
	}
}

// TaskCreated acknowledges intake of a new task.
func (c *ConsoleNotifier) TaskCreated(task models.Task) {
	c.emit(c.info, fmt.Sprintf("queued task %s (%s, target %s, max %d attempts)",
		task.ID, task.Name, task.TargetLanguage, task.MaxAttempts))
}

// PhaseLog records fine-grained tick phases in the log only; they are too
// chatty for the console.
func (c *ConsoleNotifier) PhaseLog(taskID, phase, message string) {
	c.log.Debugf("task %s phase %s: %s", taskID, phase, message)
}

func (c *ConsoleNotifier) emit(col *color.Color, line string) {
	col.Fprintln(c.writer, line)
	c.log.Infof("%s", line)
}
