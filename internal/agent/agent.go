// Package agent contains the orchestration core: the sense/decide/act/learn
// tick, the startup recovery sweep, and the scheduler loop driving them.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/extract"
	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/logger"
	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/models"
	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/store"
	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/synth"
)

// TaskStore is the persistence capability the tick needs. Satisfied by
// store.Store.
type TaskStore interface {
	NextEligibleTask(ctx context.Context) (models.Task, error)
	HasEligibleTasks(ctx context.Context) (bool, error)
	UpdateTask(ctx context.Context, task models.Task) error
	SaveArtifact(ctx context.Context, art models.DriverArtifact) error
	AddAttemptLog(ctx context.Context, log *models.AttemptLog) error
	TasksInProcessing(ctx context.Context) ([]models.Task, error)
}

// Gateway invokes the external synthesis worker. Satisfied by synth.Client.
type Gateway interface {
	Synthesize(ctx context.Context, req synth.SynthesizeRequest) (*synth.SynthesizeResponse, error)
}

// HealthProber reports worker health. Satisfied by synth.HealthChecker.
type HealthProber interface {
	CheckHealth(ctx context.Context) synth.HealthStatus
}

// ContextBuilder assembles the previous-experience text for an attempt.
// Satisfied by experience.Builder.
type ContextBuilder interface {
	Build(ctx context.Context, taskID string) (string, error)
}

// TickOutcome tags a tick result.
type TickOutcome int

const (
	// TickIdle means no work was consumed: empty queue, unhealthy worker,
	// or an infrastructure failure that reverted the pickup.
	TickIdle TickOutcome = iota
	// TickSuccess means a task produced a validated driver artifact.
	TickSuccess
	// TickFailure means a task's attempt was charged and failed.
	TickFailure
)

func (o TickOutcome) String() string {
	switch o {
	case TickSuccess:
		return "success"
	case TickFailure:
		return "failure"
	}
	return "idle"
}

// TickResult carries everything the notification layer needs to render a
// tick without recomputation.
type TickResult struct {
	Outcome       TickOutcome
	TaskID        string
	TaskName      string
	TaskStatus    string
	AttemptCount  int
	MaxAttempts   int
	Confidence    float64
	TestedRegs    []string
	ExperienceID  string
	ErrorKind     models.ErrorKind
	Err           error
	Duration      time.Duration
	WorkerHealthy bool
}

// Notifier receives fire-and-forget events. Implementations must never
// block the tick; the core does not depend on delivery.
type Notifier interface {
	TickCompleted(result TickResult)
	AgentStatusChanged(state string, pending int, workerHealthy bool)
	TaskCreated(task models.Task)
	PhaseLog(taskID, phase, message string)
}

// Agent runs the single-active-worker orchestration tick over injected
// capabilities. Exactly one task is processed per tick.
type Agent struct {
	store     TaskStore
	gateway   Gateway
	health    HealthProber
	builder   ContextBuilder
	extractor extract.TextExtractor
	notifier  Notifier
	log       logger.Logger

	now func() time.Time
}

// NewAgent wires the tick's collaborators together.
func NewAgent(ts TaskStore, gw Gateway, hp HealthProber, cb ContextBuilder, ex extract.TextExtractor, n Notifier, log logger.Logger) *Agent {
	if log == nil {
		log = logger.Nop{}
	}
	return &Agent{
		store:     ts,
		gateway:   gw,
		health:    hp,
		builder:   cb,
		extractor: ex,
		notifier:  n,
		log:       log,
		now:       time.Now,
	}
}

// RunTick executes one sense/decide/act/learn cycle. It never sleeps and
// resolves every error locally; the result is the only thing that escapes.
func (a *Agent) RunTick(ctx context.Context) TickResult {
	start := a.now()

	// A known-down worker short-circuits the tick before any task is
	// touched, so no attempt budget is charged while the dependency is out.
	health := a.health.CheckHealth(ctx)
	if !health.Healthy {
		a.log.Warnf("synthesis worker unhealthy, skipping tick: %s", health.Message)
		return TickResult{Outcome: TickIdle, WorkerHealthy: false, Err: health.Err}
	}

	// Sense: pull the oldest eligible task.
	task, err := a.store.NextEligibleTask(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return TickResult{Outcome: TickIdle, WorkerHealthy: true}
	}
	if err != nil {
		a.log.Errorf("query next eligible task: %v", err)
		return TickResult{Outcome: TickIdle, WorkerHealthy: true, Err: err}
	}

	picked := task.WithProcessing(a.now())
	if err := a.store.UpdateTask(ctx, picked); err != nil {
		a.log.Errorf("mark task %s processing: %v", task.ID, err)
		return TickResult{Outcome: TickIdle, WorkerHealthy: true, Err: err}
	}
	a.log.Infof("picked task %s (%s), attempt %d/%d", picked.ID, picked.Name, picked.AttemptCount, picked.MaxAttempts)
	a.notify(func(n Notifier) { n.PhaseLog(picked.ID, "sense", "task picked for processing") })

	picked, err = a.ensureProtocolText(ctx, picked)
	if err != nil {
		// Interrupted mid-extraction: treat like any infra interruption.
		return a.revert(ctx, picked, err, start)
	}

	// Decide: the cached text must be usable before spending a worker call.
	if !extract.IsUsable(picked.ProtocolText) {
		decisionErr := models.NewDecisionError("protocol text is empty or unreadable")
		return a.fail(ctx, picked, decisionErr, nil, start)
	}

	// Act: one single-shot gateway call; retry and breaking live inside.
	expContext, err := a.builder.Build(ctx, picked.ID)
	if err != nil {
		a.log.Warnf("build experience context for task %s: %v", picked.ID, err)
		expContext = ""
	}
	a.notify(func(n Notifier) { n.PhaseLog(picked.ID, "act", "invoking synthesis worker") })

	resp, callErr := a.gateway.Synthesize(ctx, synth.SynthesizeRequest{
		ProtocolText:       picked.ProtocolText,
		PreviousExperience: expContext,
		TargetLanguage:     picked.TargetLanguage,
		DeviceName:         picked.Name,
	})

	// Classify & learn.
	if callErr != nil {
		if models.Classify(callErr) == models.KindInfra {
			return a.revert(ctx, picked, callErr, start)
		}
		return a.fail(ctx, picked, callErr, nil, start)
	}
	if !resp.Success {
		msg := resp.ErrorMessage
		if msg == "" {
			msg = "synthesis worker reported failure without detail"
		}
		return a.fail(ctx, picked, models.NewDomainError("%s", msg), resp, start)
	}
	return a.succeed(ctx, picked, resp, start)
}

// ensureProtocolText populates the task's derived text cache on first
// pickup, so later attempts skip re-extraction. Extraction failures are
// cached as the failure sentinel and surface as decision errors.
func (a *Agent) ensureProtocolText(ctx context.Context, task models.Task) (models.Task, error) {
	if task.ProtocolText != "" {
		return task, nil
	}

	text, err := a.extractor.Extract(ctx, task.SourcePayload)
	if err != nil {
		if ctx.Err() != nil {
			return task, ctx.Err()
		}
		a.log.Warnf("extract protocol text for task %s: %v", task.ID, err)
		text = extract.FailedSentinel
	}
	task.ProtocolText = text
	if err := a.store.UpdateTask(ctx, task); err != nil {
		return task, err
	}
	return task, nil
}

// revert undoes a pickup after an infrastructure interruption. The attempt
// is refunded, no failure log is written, and the tick reports idle: from
// the user's perspective no work was consumed.
func (a *Agent) revert(ctx context.Context, task models.Task, cause error, start time.Time) TickResult {
	reverted := task.WithRevert(a.now())
	// Persist with a context detached from cancellation, so a graceful
	// shutdown mid-act still leaves the task queued instead of stranded.
	if err := a.store.UpdateTask(context.WithoutCancel(ctx), reverted); err != nil {
		a.log.Errorf("revert task %s: %v", task.ID, err)
	} else {
		a.log.Infof("infra failure, task %s reverted to queued (attempt refunded): %v", task.ID, cause)
	}

	result := TickResult{
		Outcome:       TickIdle,
		TaskID:        reverted.ID,
		TaskName:      reverted.Name,
		TaskStatus:    reverted.Status,
		AttemptCount:  reverted.AttemptCount,
		MaxAttempts:   reverted.MaxAttempts,
		ErrorKind:     models.KindInfra,
		Err:           cause,
		Duration:      a.now().Sub(start),
		WorkerHealthy: true,
	}
	a.notify(func(n Notifier) { n.TickCompleted(result) })
	return result
}

// fail charges the attempt: the task moves to failed (still eligible while
// budget remains) and an append-only attempt log records the evidence.
func (a *Agent) fail(ctx context.Context, task models.Task, cause error, resp *synth.SynthesizeResponse, start time.Time) TickResult {
	now := a.now()
	failed := task.WithFailure(cause.Error(), now)
	if err := a.store.UpdateTask(ctx, failed); err != nil {
		a.log.Errorf("mark task %s failed: %v", task.ID, err)
	}

	kind := models.Classify(cause)
	if kind == models.KindInfra {
		// Unreachable when called via RunTick, but keep the taxonomy
		// honest for direct callers.
		kind = models.KindDomain
	}

	attemptLog := &models.AttemptLog{
		TaskID:        failed.ID,
		AttemptNumber: failed.AttemptCount,
		Success:       false,
		ErrorKind:     string(kind),
		ErrorMessage:  cause.Error(),
		ErrorBytePos:  -1,
		DurationMs:    now.Sub(start).Milliseconds(),
		CreatedAt:     now,
	}
	result := TickResult{
		Outcome:       TickFailure,
		TaskID:        failed.ID,
		TaskName:      failed.Name,
		TaskStatus:    failed.Status,
		AttemptCount:  failed.AttemptCount,
		MaxAttempts:   failed.MaxAttempts,
		ErrorKind:     kind,
		Err:           cause,
		Duration:      now.Sub(start),
		WorkerHealthy: true,
	}

	if resp != nil {
		attemptLog.Confidence = resp.ConfidenceScore
		attemptLog.SubAttempts = marshalSubAttempts(resp.InternalAttempts)
		if tr := resp.TestResult; tr != nil {
			attemptLog.TestedRegs = tr.TestedRegisters
			attemptLog.ExpectedBytes = tr.ExpectedBytes
			attemptLog.ActualBytes = tr.ActualBytes
			if tr.ErrorBytePosition != nil {
				attemptLog.ErrorBytePos = *tr.ErrorBytePosition
			}
		}
		result.Confidence = resp.ConfidenceScore
		result.TestedRegs = attemptLog.TestedRegs
		result.ExperienceID = resp.ExperienceID
	}

	if err := a.store.AddAttemptLog(ctx, attemptLog); err != nil {
		a.log.Errorf("append attempt log for task %s: %v", task.ID, err)
	}

	if !failed.CanRetry() {
		a.log.Warnf("task %s permanently exhausted after %d attempts: %v", failed.ID, failed.AttemptCount, cause)
	} else {
		a.log.Infof("task %s attempt %d failed (%s): %v", failed.ID, failed.AttemptCount, kind, cause)
	}
	a.notify(func(n Notifier) { n.TickCompleted(result) })
	return result
}

// succeed attaches a fresh validated artifact, replacing any previous one,
// and appends the success log.
func (a *Agent) succeed(ctx context.Context, task models.Task, resp *synth.SynthesizeResponse, start time.Time) TickResult {
	now := a.now()
	artifact := models.NewDriverArtifact(task.ID, resp.DriverCode, task.AttemptCount)
	if err := a.store.SaveArtifact(ctx, artifact); err != nil {
		a.log.Errorf("save artifact for task %s: %v", task.ID, err)
		return a.fail(ctx, task, models.WrapDomain(err, "persist driver artifact"), resp, start)
	}

	succeeded := task.WithSuccess(artifact.ID, now)
	if err := a.store.UpdateTask(ctx, succeeded); err != nil {
		a.log.Errorf("mark task %s succeeded: %v", task.ID, err)
	}

	attemptLog := &models.AttemptLog{
		TaskID:        succeeded.ID,
		AttemptNumber: succeeded.AttemptCount,
		Success:       true,
		ErrorBytePos:  -1,
		Confidence:    resp.ConfidenceScore,
		SubAttempts:   marshalSubAttempts(resp.InternalAttempts),
		DurationMs:    now.Sub(start).Milliseconds(),
		CreatedAt:     now,
	}
	if resp.TestResult != nil {
		attemptLog.TestedRegs = resp.TestResult.TestedRegisters
	}
	if err := a.store.AddAttemptLog(ctx, attemptLog); err != nil {
		a.log.Errorf("append attempt log for task %s: %v", task.ID, err)
	}

	a.log.Infof("task %s succeeded on attempt %d, driver v%d (confidence %.2f)",
		succeeded.ID, succeeded.AttemptCount, artifact.Version, resp.ConfidenceScore)

	result := TickResult{
		Outcome:       TickSuccess,
		TaskID:        succeeded.ID,
		TaskName:      succeeded.Name,
		TaskStatus:    succeeded.Status,
		AttemptCount:  succeeded.AttemptCount,
		MaxAttempts:   succeeded.MaxAttempts,
		Confidence:    resp.ConfidenceScore,
		ExperienceID:  resp.ExperienceID,
		Duration:      now.Sub(start),
		WorkerHealthy: true,
	}
	if resp.TestResult != nil {
		result.TestedRegs = resp.TestResult.TestedRegisters
	}
	a.notify(func(n Notifier) { n.TickCompleted(result) })
	return result
}

func (a *Agent) notify(fn func(Notifier)) {
	if a.notifier != nil {
		fn(a.notifier)
	}
}

func marshalSubAttempts(attempts []synth.InternalAttempt) string {
	if len(attempts) == 0 {
		return ""
	}
	data, err := json.Marshal(attempts)
	if err != nil {
		return ""
	}
	return string(data)
}
