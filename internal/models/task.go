package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Task status constants. Processing is transient only: the recovery sweep
// guarantees no task rests in it between process runs.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusSuccess    = "success"
	StatusFailed     = "failed"
)

// ValidStatus reports whether s names a lifecycle state.
func ValidStatus(s string) bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// DefaultMaxAttempts bounds how many times a task may enter Processing.
const DefaultMaxAttempts = 5

// Target languages accepted by the synthesis worker.
const (
	LanguagePython = "python"
	LanguageCSharp = "csharp"
)

// Task represents one driver synthesis job tracked through the
// queued/processing/success/failed lifecycle. Transition methods return a
// new snapshot rather than mutating the receiver, so callers persist
// explicitly and tests can assert on returned values.
type Task struct {
	ID             string
	Name           string // Device/inverter display name
	SourcePayload  []byte // Uploaded protocol documentation (Markdown)
	ProtocolText   string // Cached extracted text, empty until first extraction
	TargetLanguage string // "python" or "csharp"
	Status         string
	AttemptCount   int
	MaxAttempts    int
	ArtifactID     string // Current driver artifact, empty until first success
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewTask creates a queued task for the given device documentation.
// maxAttempts <= 0 falls back to DefaultMaxAttempts.
func NewTask(name string, payload []byte, targetLanguage string, maxAttempts int) Task {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if targetLanguage == "" {
		targetLanguage = LanguagePython
	}
	now := time.Now().UTC()
	return Task{
		ID:             uuid.NewString(),
		Name:           name,
		SourcePayload:  payload,
		TargetLanguage: targetLanguage,
		Status:         StatusQueued,
		MaxAttempts:    maxAttempts,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Validate checks that the task has all required fields.
func (t Task) Validate() error {
	if t.ID == "" {
		return errors.New("task id is required")
	}
	if t.Name == "" {
		return errors.New("task name is required")
	}
	if len(t.SourcePayload) == 0 && t.ProtocolText == "" {
		return errors.New("task requires a source payload or cached protocol text")
	}
	if t.TargetLanguage != LanguagePython && t.TargetLanguage != LanguageCSharp {
		return errors.New("unsupported target language: " + t.TargetLanguage)
	}
	if t.MaxAttempts <= 0 {
		return errors.New("max attempts must be positive")
	}
	return nil
}

// CanRetry reports whether the task still has attempt budget left.
func (t Task) CanRetry() bool {
	return t.AttemptCount < t.MaxAttempts
}

// IsTerminal reports whether the task needs no further processing.
func (t Task) IsTerminal() bool {
	return t.Status == StatusSuccess || (t.Status == StatusFailed && !t.CanRetry())
}

// IsEligible reports whether the task qualifies for tick pickup:
// queued, or failed with attempts remaining.
func (t Task) IsEligible() bool {
	return t.Status == StatusQueued || (t.Status == StatusFailed && t.CanRetry())
}

// WithProcessing charges one attempt and moves the task into Processing.
func (t Task) WithProcessing(now time.Time) Task {
	t.Status = StatusProcessing
	t.AttemptCount++
	t.UpdatedAt = now
	return t
}

// WithSuccess attaches the produced artifact and terminates the task.
func (t Task) WithSuccess(artifactID string, now time.Time) Task {
	t.Status = StatusSuccess
	t.ArtifactID = artifactID
	t.LastError = ""
	t.UpdatedAt = now
	return t
}

// WithFailure records a charged failed attempt. The task stays eligible
// while attempts remain.
func (t Task) WithFailure(errMsg string, now time.Time) Task {
	t.Status = StatusFailed
	t.LastError = errMsg
	t.UpdatedAt = now
	return t
}

// WithRevert undoes a pickup after an infrastructure failure: the attempt
// was never genuinely spent, so the charge is refunded. The count never
// goes below zero (repeated interruptions before any real pickup leave it
// at zero rather than negative).
func (t Task) WithRevert(now time.Time) Task {
	t.Status = StatusQueued
	if t.AttemptCount > 0 {
		t.AttemptCount--
	}
	t.UpdatedAt = now
	return t
}

// WithRequeue returns the task to Queued while keeping the charged attempt.
// Used by the recovery sweep, where the crash interrupted an attempt of
// unknown progress: keeping the charge bounds retries across repeated
// crashes.
func (t Task) WithRequeue(now time.Time) Task {
	t.Status = StatusQueued
	t.UpdatedAt = now
	return t
}
