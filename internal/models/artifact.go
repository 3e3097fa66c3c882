package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// DriverArtifact is the driver code produced by a successful synthesis
// attempt. Each task owns at most one artifact; a new success replaces the
// previous artifact wholesale.
type DriverArtifact struct {
	ID          string
	TaskID      string
	Content     string
	Version     int // Task attempt count at the moment of success, monotone per task
	Validated   bool
	Fingerprint string // SHA-256 of content, for change detection
	CreatedAt   time.Time
}

// NewDriverArtifact creates a validated artifact for the given task.
func NewDriverArtifact(taskID, content string, version int) DriverArtifact {
	return DriverArtifact{
		ID:          uuid.NewString(),
		TaskID:      taskID,
		Content:     content,
		Version:     version,
		Validated:   true,
		Fingerprint: Fingerprint(content),
		CreatedAt:   time.Now().UTC(),
	}
}

// Fingerprint returns the stable hex-encoded SHA-256 hash of content.
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// AttemptLog is the append-only record of one charged pass through
// Processing. It persists history and feeds future experience context.
type AttemptLog struct {
	ID            int64
	TaskID        string
	AttemptNumber int
	Success       bool
	ErrorKind     string // infra/domain/decision classification, empty on success
	ErrorMessage  string
	ExpectedBytes string // Register-level evidence from the worker's test run
	ActualBytes   string
	ErrorBytePos  int // -1 when the worker reported no byte position
	TestedRegs    []string
	SubAttempts   string  // Worker's internal attempt trace as JSON, opaque here
	Confidence    float64 // [0,1]
	DurationMs    int64
	CreatedAt     time.Time
}
