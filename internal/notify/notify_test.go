package notify

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/agent"
	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/models"
)

// newTestNotifier disables ANSI output for the test so assertions can
// match plain text.
func newTestNotifier(t *testing.T) (*ConsoleNotifier, *bytes.Buffer) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
	buf := &bytes.Buffer{}
	return NewConsoleNotifier(buf, nil), buf
}

func TestTickCompletedSuccess(t *testing.T) {
	n, buf := newTestNotifier(t)

	n.TickCompleted(agent.TickResult{
		Outcome:      agent.TickSuccess,
		TaskName:     "Sungrow SG5K",
		AttemptCount: 2,
		MaxAttempts:  5,
		Confidence:   0.91,
		TestedRegs:   []string{"40001", "40010"},
	})

	out := buf.String()
	assert.Contains(t, out, "✓")
	assert.Contains(t, out, "Sungrow SG5K")
	assert.Contains(t, out, "attempt 2/5")
	assert.Contains(t, out, "0.91")
	assert.Contains(t, out, "40001 40010")
}

func TestTickCompletedFailure(t *testing.T) {
	n, buf := newTestNotifier(t)

	n.TickCompleted(agent.TickResult{
		Outcome:      agent.TickFailure,
		TaskName:     "Fronius Symo",
		AttemptCount: 5,
		MaxAttempts:  5,
		ErrorKind:    models.KindDomain,
		Err:          errors.New("register 40001 mismatch"),
	})

	out := buf.String()
	assert.Contains(t, out, "✗")
	assert.Contains(t, out, "attempt 5/5 failed")
	assert.Contains(t, out, "domain")
	assert.Contains(t, out, "register 40001 mismatch")
}

func TestTickCompletedRevert(t *testing.T) {
	n, buf := newTestNotifier(t)

	n.TickCompleted(agent.TickResult{
		Outcome:      agent.TickIdle,
		TaskID:       "t-1",
		TaskName:     "Huawei SUN2000",
		AttemptCount: 3,
		MaxAttempts:  5,
		ErrorKind:    models.KindInfra,
	})

	out := buf.String()
	assert.Contains(t, out, "requeued")
	assert.Contains(t, out, "attempt 3/5 unchanged")
}

func TestTickCompletedIdleWithoutTaskIsSilent(t *testing.T) {
	n, buf := newTestNotifier(t)

	n.TickCompleted(agent.TickResult{Outcome: agent.TickIdle, WorkerHealthy: true})

	assert.Empty(t, buf.String())
}

func TestAgentStatusChanged(t *testing.T) {
	tests := []struct {
		name    string
		state   string
		pending int
		want    string
	}{
		{"working reports backlog", "working", 3, "3 task(s) pending"},
		{"error reports unreachable worker", "error", 0, "unreachable"},
		{"idle reports empty queue", "idle", 0, "queue empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, buf := newTestNotifier(t)
			n.AgentStatusChanged(tt.state, tt.pending, tt.state != "error")
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}

func TestTaskCreated(t *testing.T) {
	n, buf := newTestNotifier(t)
	task := models.NewTask("Growatt MIN", []byte("# doc"), models.LanguagePython, 5)

	n.TaskCreated(task)

	out := buf.String()
	assert.Contains(t, out, task.ID)
	assert.Contains(t, out, "Growatt MIN")
	assert.Contains(t, out, "target python")
}

func TestNilWriterDiscards(t *testing.T) {
	n := NewConsoleNotifier(nil, nil)
	assert.NotPanics(t, func() {
		n.TickCompleted(agent.TickResult{Outcome: agent.TickSuccess, TaskName: "x"})
		n.PhaseLog("t-1", "sense", "picked")
	})
}
