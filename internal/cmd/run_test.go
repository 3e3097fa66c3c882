package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/config"
)

func TestMergeRunFlags(t *testing.T) {
	cmd := NewRunCommand()
	require.NoError(t, cmd.Flags().Set("worker-url", "http://synth.internal:9000"))
	require.NoError(t, cmd.Flags().Set("tick-interval", "10s"))
	require.NoError(t, cmd.Flags().Set("idle-interval", "2m"))
	require.NoError(t, cmd.Flags().Set("log-level", "debug"))

	cfg := config.DefaultConfig()
	require.NoError(t, mergeRunFlags(cmd, cfg))

	assert.Equal(t, "http://synth.internal:9000", cfg.Worker.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Agent.TickInterval)
	assert.Equal(t, 2*time.Minute, cfg.Agent.IdleInterval)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestMergeRunFlagsDefaultsUntouched(t *testing.T) {
	cmd := NewRunCommand()
	cfg := config.DefaultConfig()
	require.NoError(t, mergeRunFlags(cmd, cfg))

	assert.Equal(t, config.DefaultConfig().Worker.BaseURL, cfg.Worker.BaseURL)
	assert.Equal(t, config.DefaultConfig().Agent.TickInterval, cfg.Agent.TickInterval)
}

func TestMergeRunFlagsRejectsBadDuration(t *testing.T) {
	cmd := NewRunCommand()
	require.NoError(t, cmd.Flags().Set("tick-interval", "soon"))

	err := mergeRunFlags(cmd, config.DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tick-interval")
}

func TestMergeRunFlagsRejectsBadLogLevel(t *testing.T) {
	cmd := NewRunCommand()
	require.NoError(t, cmd.Flags().Set("log-level", "loud"))

	err := mergeRunFlags(cmd, config.DefaultConfig())
	require.Error(t, err)
}
