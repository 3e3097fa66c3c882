package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/models"
)

func (f *fixture) seedProcessing(t *testing.T, name string, attempts, maxAttempts int) models.Task {
	t.Helper()
	task := f.addTask(t, name, time.Now().UTC())
	got := f.reload(t, task.ID)
	got.Status = models.StatusProcessing
	got.AttemptCount = attempts
	got.MaxAttempts = maxAttempts
	require.NoError(t, f.store.UpdateTask(context.Background(), got))
	return got
}

func TestRecoverStuckTasksRequeuesInterrupted(t *testing.T) {
	f := newFixture(t)
	stuck := f.seedProcessing(t, "Sungrow SG5K", 2, 5)
	untouched := f.addTask(t, "Fronius Symo", time.Now().UTC())

	repaired, err := f.agent.RecoverStuckTasks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)

	got := f.reload(t, stuck.ID)
	assert.Equal(t, models.StatusQueued, got.Status)
	assert.Equal(t, 2, got.AttemptCount, "the interrupted attempt stays charged")

	queued := f.reload(t, untouched.ID)
	assert.Equal(t, models.StatusQueued, queued.Status)
	assert.Equal(t, 0, queued.AttemptCount)
}

func TestRecoverStuckTasksFailsExhausted(t *testing.T) {
	f := newFixture(t)
	exhausted := f.seedProcessing(t, "Huawei SUN2000", 5, 5)

	repaired, err := f.agent.RecoverStuckTasks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)

	got := f.reload(t, exhausted.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, 5, got.AttemptCount)
	assert.False(t, got.IsEligible())
	assert.Contains(t, got.LastError, "restart")
}

func TestRecoverStuckTasksMixedBatch(t *testing.T) {
	f := newFixture(t)
	requeue := f.seedProcessing(t, "Growatt MIN", 1, 5)
	exhaust := f.seedProcessing(t, "SMA Tripower", 5, 5)
	f.addTask(t, "Solis S5", time.Now().UTC())

	repaired, err := f.agent.RecoverStuckTasks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, repaired)

	assert.Equal(t, models.StatusQueued, f.reload(t, requeue.ID).Status)
	assert.Equal(t, models.StatusFailed, f.reload(t, exhaust.ID).Status)
}

func TestRecoverStuckTasksIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seedProcessing(t, "Sungrow SG5K", 2, 5)

	first, err := f.agent.RecoverStuckTasks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first)

	second, err := f.agent.RecoverStuckTasks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second, "a second sweep finds nothing to repair")
}

func TestRecoverStuckTasksEmptyDatabase(t *testing.T) {
	f := newFixture(t)

	repaired, err := f.agent.RecoverStuckTasks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, repaired)
}
