package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/models"
)

func TestShowUnknownTask(t *testing.T) {
	_, err := execute(t, "show", "--db", tempDB(t), "no-such-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no task with id")
}

func TestShowQueuedTask(t *testing.T) {
	dbPath := tempDB(t)
	task := seedTask(t, dbPath, nil)

	out, err := execute(t, "show", "--db", dbPath, task.ID)
	require.NoError(t, err)
	assert.Contains(t, out, task.ID)
	assert.Contains(t, out, "Sungrow SG5K")
	assert.Contains(t, out, "queued")
	assert.Contains(t, out, "0/5")
	assert.NotContains(t, out, "Driver artifact")
	assert.NotContains(t, out, "Attempt history")
}

func TestShowFailedTaskWithHistory(t *testing.T) {
	dbPath := tempDB(t)
	task := seedTask(t, dbPath, func(task *models.Task) {
		task.Status = models.StatusFailed
		task.AttemptCount = 2
		task.LastError = "register 40001 mismatch"
	})
	seedAttemptLog(t, dbPath, models.AttemptLog{
		TaskID:        task.ID,
		AttemptNumber: 1,
		ErrorKind:     string(models.KindDomain),
		ErrorMessage:  "register 40001 mismatch",
		ExpectedBytes: "0x01A4",
		ActualBytes:   "0x01A5",
		ErrorBytePos:  3,
	})
	seedAttemptLog(t, dbPath, models.AttemptLog{
		TaskID:        task.ID,
		AttemptNumber: 2,
		ErrorKind:     string(models.KindDomain),
		ErrorMessage:  "validation timeout inside worker",
		ErrorBytePos:  -1,
	})

	out, err := execute(t, "show", "--db", dbPath, task.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Last error: register 40001 mismatch")
	assert.Contains(t, out, "Attempt history")
	assert.Contains(t, out, "#1  domain")
	assert.Contains(t, out, "expected 0x01A4, actual 0x01A5, byte position 3")
	assert.Contains(t, out, "#2  domain")
}

func TestShowSucceededTaskWithArtifact(t *testing.T) {
	dbPath := tempDB(t)
	task := seedTask(t, dbPath, func(task *models.Task) {
		task.Status = models.StatusSuccess
		task.AttemptCount = 3
	})
	art := seedArtifact(t, dbPath, task.ID, "class SungrowDriver: pass", 3)
	seedAttemptLog(t, dbPath, models.AttemptLog{
		TaskID:        task.ID,
		AttemptNumber: 3,
		Success:       true,
		Confidence:    0.88,
		TestedRegs:    []string{"40001"},
		ErrorBytePos:  -1,
	})

	out, err := execute(t, "show", "--db", dbPath, task.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Driver artifact "+art.ID)
	assert.Contains(t, out, "Version:     3")
	assert.Contains(t, out, art.Fingerprint)
	assert.Contains(t, out, "#3  ok")
	assert.Contains(t, out, "confidence 0.88")
	assert.Contains(t, out, "registers 40001")
}
