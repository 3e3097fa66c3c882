package synth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/config"
	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig().Worker
	cfg.BaseURL = srv.URL
	cfg.Timeout = 5 * time.Second

	c := NewClient(cfg)
	c.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return c, srv
}

func TestSynthesizeSuccess(t *testing.T) {
	var gotReq SynthesizeRequest
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, synthesizePath, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(SynthesizeResponse{
			Success:               true,
			DriverCode:            "class SungrowDriver: ...",
			TargetLanguage:        "python",
			ConfidenceScore:       0.92,
			TotalInternalAttempts: 2,
			TestResult: &RegisterTestResult{
				Success:         true,
				TestedRegisters: []string{"40001", "40010"},
			},
		})
	})

	c, _ := newTestClient(t, handler)
	resp, err := c.Synthesize(context.Background(), SynthesizeRequest{
		ProtocolText:       "Register 40001: AC power",
		PreviousExperience: "attempt 1 failed: byte mismatch",
		TargetLanguage:     "python",
		DeviceName:         "Sungrow SG5K",
	})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "class SungrowDriver: ...", resp.DriverCode)
	assert.InDelta(t, 0.92, resp.ConfidenceScore, 1e-9)
	assert.Equal(t, []string{"40001", "40010"}, resp.TestResult.TestedRegisters)

	assert.Equal(t, "Register 40001: AC power", gotReq.ProtocolText)
	assert.Equal(t, "attempt 1 failed: byte mismatch", gotReq.PreviousExperience)
	assert.Equal(t, "Sungrow SG5K", gotReq.DeviceName)
}

func TestSynthesizeDomainFailureIsNotAnError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(SynthesizeResponse{
			Success:      false,
			ErrorMessage: "register 40001: expected 0x01A4, got 0x01A5",
		})
	})

	c, _ := newTestClient(t, handler)
	resp, err := c.Synthesize(context.Background(), SynthesizeRequest{ProtocolText: "..."})

	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.ErrorMessage, "expected 0x01A4")
}

func TestSynthesizeRetriesTransientThenSucceeds(t *testing.T) {
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(SynthesizeResponse{Success: true, DriverCode: "ok"})
	})

	c, _ := newTestClient(t, handler)
	resp, err := c.Synthesize(context.Background(), SynthesizeRequest{ProtocolText: "..."})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 3, calls, "two transient failures then success within the retry budget")
	assert.False(t, c.Breaker().IsOpen(), "success must reset the breaker")
}

func TestSynthesizeExhaustsRetriesWithInfraError(t *testing.T) {
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	})

	c, _ := newTestClient(t, handler)
	_, err := c.Synthesize(context.Background(), SynthesizeRequest{ProtocolText: "..."})

	require.Error(t, err)
	assert.Equal(t, models.KindInfra, models.Classify(err))
	assert.Equal(t, 3, calls, "initial call plus two retries")
}

func TestSynthesizeRejectionIsDomainAndNotRetried(t *testing.T) {
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "protocol_text is required", http.StatusUnprocessableEntity)
	})

	c, _ := newTestClient(t, handler)
	_, err := c.Synthesize(context.Background(), SynthesizeRequest{})

	require.Error(t, err)
	assert.Equal(t, models.KindDomain, models.Classify(err))
	assert.Contains(t, err.Error(), "protocol_text is required")
	assert.Equal(t, 1, calls, "4xx responses are not retried")
	assert.False(t, c.Breaker().IsOpen(), "a 4xx is not an availability signal")
}

func TestSynthesizeCircuitBreaker(t *testing.T) {
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	c, _ := newTestClient(t, handler)
	_, err := c.Synthesize(context.Background(), SynthesizeRequest{ProtocolText: "..."})
	require.Error(t, err)
	require.Equal(t, 3, calls, "three consecutive transient failures open the breaker")
	require.True(t, c.Breaker().IsOpen())

	// Next call is rejected without touching the network.
	_, err = c.Synthesize(context.Background(), SynthesizeRequest{ProtocolText: "..."})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, models.KindInfra, models.Classify(err))
	assert.Equal(t, 3, calls, "open circuit must not generate network attempts")
}

func TestSynthesizeNetworkErrorClassifiedInfra(t *testing.T) {
	c, srv := newTestClient(t, http.NotFoundHandler())
	srv.Close() // connection refused from here on

	_, err := c.Synthesize(context.Background(), SynthesizeRequest{ProtocolText: "..."})
	require.Error(t, err)
	assert.Equal(t, models.KindInfra, models.Classify(err))
}

func TestSynthesizeHonorsCancellation(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	c, _ := newTestClient(t, handler)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Synthesize(ctx, SynthesizeRequest{ProtocolText: "..."})
	require.Error(t, err)
	assert.Equal(t, models.KindInfra, models.Classify(err))
}

func TestBackoffDelayWithinWindow(t *testing.T) {
	base := 2 * time.Second
	for attempt := 1; attempt <= 3; attempt++ {
		full := base * time.Duration(1<<(attempt-1))
		for i := 0; i < 50; i++ {
			d := backoffDelay(base, attempt)
			assert.GreaterOrEqual(t, d, full/2)
			assert.LessOrEqual(t, d, full)
		}
	}
	assert.Equal(t, time.Duration(0), backoffDelay(0, 1))
}
