package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/config"
	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/models"
)

const synthesizePath = "/api/v1/synthesize-driver"

// Client calls the external synthesis worker. One Synthesize call is
// single-shot from the caller's perspective; retry, backoff and circuit
// breaking happen inside.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *CircuitBreaker

	retryCount     int
	retryBaseDelay time.Duration

	// sleep is swapped out in tests to avoid real backoff delays
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a gateway client from worker configuration.
func NewClient(cfg config.WorkerConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		breaker:        NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		retryCount:     cfg.RetryCount,
		retryBaseDelay: cfg.RetryBaseDelay,
		sleep:          sleepCtx,
	}
}

// Breaker exposes the circuit breaker, mainly for status reporting.
func (c *Client) Breaker() *CircuitBreaker {
	return c.breaker
}

// Synthesize requests driver generation from the worker. Errors returned
// are classified: transport/availability problems come back infra-kinded,
// request rejections domain-kinded. A response with Success=false is not an
// error; the caller classifies the worker's own verdict.
func (c *Client) Synthesize(ctx context.Context, req SynthesizeRequest) (*SynthesizeResponse, error) {
	if err := c.breaker.Allow(); err != nil {
		return nil, models.WrapInfra(err, "synthesis worker")
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, backoffDelay(c.retryBaseDelay, attempt)); err != nil {
				return nil, err
			}
		}

		resp, retryable, err := c.doSynthesize(ctx, req)
		if err == nil {
			c.breaker.RecordSuccess()
			return resp, nil
		}
		lastErr = err

		if !retryable {
			// The worker responded, just not usefully. Not an
			// availability signal, so the breaker stays closed.
			return nil, err
		}

		c.breaker.RecordFailure()
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// doSynthesize performs one HTTP round trip. retryable marks transient
// conditions: network errors, 5xx and 429.
func (c *Client) doSynthesize(ctx context.Context, req SynthesizeRequest) (*SynthesizeResponse, bool, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, false, fmt.Errorf("marshal synthesize request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+synthesizePath, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("build synthesize request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, true, models.WrapInfra(err, "call synthesis worker")
	}
	defer httpResp.Body.Close()

	switch {
	case httpResp.StatusCode == http.StatusOK:
		var resp SynthesizeResponse
		if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
			return nil, false, models.WrapDomain(err, "decode synthesize response")
		}
		return &resp, false, nil
	case httpResp.StatusCode >= 500 || httpResp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, io.LimitReader(httpResp.Body, 4096))
		return nil, true, models.NewInfraError("synthesis worker returned status %d", httpResp.StatusCode)
	default:
		detail, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, false, models.NewDomainError("synthesis worker rejected request with status %d: %s",
			httpResp.StatusCode, string(detail))
	}
}

// backoffDelay computes exponential backoff with jitter in the upper half
// of the window, so concurrent retriers spread out.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base * time.Duration(1<<(attempt-1))
	half := delay / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
