package experience

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/models"
)

type stubSource struct {
	own       []models.AttemptLog
	global    []models.AttemptLog
	ownErr    error
	globalErr error

	gotTaskLimit   int
	gotGlobalLimit int
	gotExclude     string
}

func (s *stubSource) RecentFailuresForTask(ctx context.Context, taskID string, n int) ([]models.AttemptLog, error) {
	s.gotTaskLimit = n
	if s.ownErr != nil {
		return nil, s.ownErr
	}
	if n < len(s.own) {
		return s.own[:n], nil
	}
	return s.own, nil
}

func (s *stubSource) RecentFailuresGlobal(ctx context.Context, excludeTaskID string, n int) ([]models.AttemptLog, error) {
	s.gotExclude = excludeTaskID
	s.gotGlobalLimit = n
	if s.globalErr != nil {
		return nil, s.globalErr
	}
	if n < len(s.global) {
		return s.global[:n], nil
	}
	return s.global, nil
}

func failureLog(attempt int, msg string) models.AttemptLog {
	return models.AttemptLog{AttemptNumber: attempt, ErrorMessage: msg, ErrorBytePos: -1}
}

func TestBuildEmptyHistoryReturnsNoContext(t *testing.T) {
	b := NewBuilder(&stubSource{})

	got, err := b.Build(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Empty(t, got, "clean history must produce no context at all")
}

func TestBuildOrdersOwnFailuresBeforeGlobal(t *testing.T) {
	src := &stubSource{
		own: []models.AttemptLog{
			failureLog(2, "register 40010 mismatch"),
			failureLog(1, "compilation error"),
		},
		global: []models.AttemptLog{
			failureLog(3, "byte order swapped on power register"),
			failureLog(1, "missing unit id"),
			failureLog(2, "timeout decoding response"),
		},
	}
	b := NewBuilder(src)

	got, err := b.Build(context.Background(), "task-1")
	require.NoError(t, err)

	assert.Equal(t, "task-1", src.gotExclude, "global history must exclude the current task")
	assert.Equal(t, DefaultTaskFailureLimit, src.gotTaskLimit)
	assert.Equal(t, DefaultGlobalFailureLimit, src.gotGlobalLimit)

	ownIdx := strings.Index(got, "attempt 2: register 40010 mismatch")
	globalHeader := strings.Index(got, "Recent failures on other devices")
	require.GreaterOrEqual(t, ownIdx, 0)
	require.GreaterOrEqual(t, globalHeader, 0)
	assert.Less(t, ownIdx, globalHeader, "own failures come before cross-task failures")

	assert.Contains(t, got, "attempt 1: compilation error")
	assert.Contains(t, got, "attempt 3: byte order swapped on power register")
	assert.Equal(t, 5, strings.Count(got, "- attempt"), "2 own entries plus 3 global entries")
}

func TestBuildRendersByteEvidence(t *testing.T) {
	log := failureLog(4, "register 40001 mismatch")
	log.ExpectedBytes = "0x01A4"
	log.ActualBytes = "0x01A5"
	log.ErrorBytePos = 3
	b := NewBuilder(&stubSource{own: []models.AttemptLog{log}})

	got, err := b.Build(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Contains(t, got, "- attempt 4: register 40001 mismatch (expected 0x01A4, actual 0x01A5, byte position 3)")
}

func TestBuildGlobalOnly(t *testing.T) {
	b := NewBuilder(&stubSource{global: []models.AttemptLog{failureLog(1, "missing unit id")}})

	got, err := b.Build(context.Background(), "task-1")
	require.NoError(t, err)
	assert.NotContains(t, got, "Previous attempts for this device")
	assert.Contains(t, got, "Recent failures on other devices")
}

func TestBuildCustomLimits(t *testing.T) {
	src := &stubSource{
		own:    []models.AttemptLog{failureLog(3, "a"), failureLog(2, "b"), failureLog(1, "c")},
		global: []models.AttemptLog{failureLog(1, "d"), failureLog(2, "e")},
	}
	b := NewBuilderWithLimits(src, 1, 1)

	got, err := b.Build(context.Background(), "task-1")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(got, "- attempt"))
}

func TestBuildPropagatesErrors(t *testing.T) {
	boom := errors.New("db closed")

	_, err := NewBuilder(&stubSource{ownErr: boom}).Build(context.Background(), "t")
	assert.ErrorIs(t, err, boom)

	_, err = NewBuilder(&stubSource{globalErr: boom}).Build(context.Background(), "t")
	assert.ErrorIs(t, err, boom)
}
