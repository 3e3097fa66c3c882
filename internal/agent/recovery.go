package agent

import (
	"context"
	"fmt"

	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/models"
)

// RecoverStuckTasks repairs tasks stranded in Processing by a crash. It
// runs once at startup, before the scheduler loop begins.
//
// A stranded task with budget left goes back to Queued without refunding
// the charged attempt: the crash is treated as an infra interruption, but
// keeping the charge bounds worst-case retries across repeated crashes. A
// stranded task that already spent its budget is forced to Failed.
//
// The sweep is idempotent: after one pass no task remains in Processing,
// so a second pass is a no-op.
func (a *Agent) RecoverStuckTasks(ctx context.Context) (int, error) {
	stuck, err := a.store.TasksInProcessing(ctx)
	if err != nil {
		return 0, fmt.Errorf("query stranded tasks: %w", err)
	}
	if len(stuck) == 0 {
		return 0, nil
	}

	a.log.Warnf("recovery sweep found %d task(s) stranded in processing", len(stuck))
	repaired := 0
	for _, task := range stuck {
		now := a.now()
		var next models.Task
		if task.AttemptCount >= task.MaxAttempts {
			next = task.WithFailure("interrupted by restart with attempt budget exhausted", now)
		} else {
			next = task.WithRequeue(now)
		}
		if err := a.store.UpdateTask(ctx, next); err != nil {
			return repaired, fmt.Errorf("repair task %s: %w", task.ID, err)
		}
		a.log.Infof("recovered task %s: processing -> %s (attempt %d/%d)",
			task.ID, next.Status, next.AttemptCount, next.MaxAttempts)
		repaired++
	}
	return repaired, nil
}
