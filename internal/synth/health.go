package synth

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/config"
)

const healthPath = "/health"

// HealthChecker probes the worker's health endpoint. Results are cached
// for a short TTL behind a mutex, so concurrent callers inside the window
// share one probe result instead of stampeding the worker.
type HealthChecker struct {
	baseURL    string
	httpClient *http.Client
	retryCount int
	retryDelay time.Duration
	ttl        time.Duration

	mu     sync.Mutex
	cached HealthStatus
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewHealthChecker creates a checker for the worker at baseURL.
func NewHealthChecker(baseURL string, cfg config.HealthConfig) *HealthChecker {
	return &HealthChecker{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		retryCount: cfg.RetryCount,
		retryDelay: cfg.RetryDelay,
		ttl:        cfg.CacheTTL,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

// healthResponse mirrors the worker's health endpoint body.
type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// CheckHealth returns the worker's health, probing at most once per TTL.
// The mutex is held across the probe on purpose: a second caller arriving
// mid-probe waits and then reads the fresh cached result.
func (h *HealthChecker) CheckHealth(ctx context.Context) HealthStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.cached.CheckedAt.IsZero() && h.now().Sub(h.cached.CheckedAt) < h.ttl {
		return h.cached
	}

	status := h.probe(ctx)
	h.cached = status
	return status
}

// probe performs the endpoint check with a small retry budget.
func (h *HealthChecker) probe(ctx context.Context) HealthStatus {
	var last HealthStatus
	for attempt := 0; attempt <= h.retryCount; attempt++ {
		if attempt > 0 {
			if err := h.sleep(ctx, h.retryDelay); err != nil {
				last.Err = err
				break
			}
		}
		last = h.probeOnce(ctx)
		if last.Healthy {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	last.CheckedAt = h.now()
	return last
}

func (h *HealthChecker) probeOnce(ctx context.Context) HealthStatus {
	start := h.now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+healthPath, nil)
	if err != nil {
		return HealthStatus{Message: "invalid health request", Err: err}
	}

	resp, err := h.httpClient.Do(req)
	elapsed := h.now().Sub(start).Milliseconds()
	if err != nil {
		return HealthStatus{
			Message:        "synthesis worker unreachable",
			ResponseTimeMs: elapsed,
			Err:            err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return HealthStatus{
			Message:        "health endpoint returned status " + resp.Status,
			ResponseTimeMs: elapsed,
		}
	}

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return HealthStatus{
			Message:        "undecodable health response",
			ResponseTimeMs: elapsed,
			Err:            err,
		}
	}

	healthy := body.Status == "healthy"
	msg := "synthesis worker is healthy"
	if !healthy {
		msg = "synthesis worker reported status " + body.Status
	}
	return HealthStatus{
		Healthy:        healthy,
		Message:        msg,
		ResponseTimeMs: elapsed,
	}
}

// Invalidate drops the cached result so the next CheckHealth probes again.
func (h *HealthChecker) Invalidate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cached = HealthStatus{}
}
