package agent

import (
	"context"
	"time"

	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/logger"
)

// Loop drives repeated ticks at two speeds: a short interval while work is
// moving, a longer one when the queue is empty or the worker is down. It
// is plain polling; nothing wakes it early.
type Loop struct {
	agent        *Agent
	tickInterval time.Duration
	idleInterval time.Duration
	log          logger.Logger
}

// NewLoop creates a scheduler loop over the agent.
func NewLoop(a *Agent, tickInterval, idleInterval time.Duration, log logger.Logger) *Loop {
	if log == nil {
		log = logger.Nop{}
	}
	return &Loop{
		agent:        a,
		tickInterval: tickInterval,
		idleInterval: idleInterval,
		log:          log,
	}
}

// Run ticks until ctx is cancelled. Tick errors are resolved inside the
// tick itself and treated here as idle cycles; only cancellation ends the
// loop. Returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	l.log.Infof("scheduler loop started (tick %s, idle %s)", l.tickInterval, l.idleInterval)
	defer l.log.Infof("scheduler loop stopped")

	var lastState string
	for {
		result := l.agent.RunTick(ctx)
		if ctx.Err() != nil {
			// RunTick already reverted any in-flight pickup.
			return ctx.Err()
		}

		state := l.describe(ctx, result)
		if state != lastState {
			pending := l.pendingCount(ctx)
			l.agent.notify(func(n Notifier) { n.AgentStatusChanged(state, pending, result.WorkerHealthy) })
			lastState = state
		}

		interval := l.idleInterval
		if result.Outcome != TickIdle {
			interval = l.tickInterval
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (l *Loop) describe(ctx context.Context, result TickResult) string {
	switch {
	case !result.WorkerHealthy:
		return "error"
	case result.Outcome != TickIdle:
		return "working"
	default:
		if pending, err := l.agent.store.HasEligibleTasks(ctx); err == nil && pending {
			// Idle with work queued means the last pickup was reverted;
			// stay in working state so observers see the backlog.
			return "working"
		}
		return "idle"
	}
}

func (l *Loop) pendingCount(ctx context.Context) int {
	type eligibleCounter interface {
		CountEligible(ctx context.Context) (int, error)
	}
	if counter, ok := l.agent.store.(eligibleCounter); ok {
		if n, err := counter.CountEligible(ctx); err == nil {
			return n
		}
	}
	return 0
}
