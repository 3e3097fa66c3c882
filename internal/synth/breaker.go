package synth

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker rejects a call without
// attempting the network.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker opens after a run of consecutive transient failures and
// rejects calls for a cooldown window. After the cooldown one trial call is
// let through; its outcome closes or re-opens the circuit.
type CircuitBreaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration

	failures int
	openedAt time.Time
	open     bool
	now      func() time.Time // injectable for tests
}

// NewCircuitBreaker creates a breaker that opens after threshold
// consecutive failures and stays open for cooldown.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed. While open and inside the
// cooldown it returns ErrCircuitOpen; after the cooldown it permits a
// half-open trial call.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.open {
		return nil
	}
	if cb.now().Sub(cb.openedAt) < cb.cooldown {
		return ErrCircuitOpen
	}
	// Half-open: one trial goes through. The breaker stays formally open
	// until RecordSuccess closes it; a failed trial refreshes the window.
	return nil
}

// RecordSuccess closes the circuit and resets the failure run.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.open = false
}

// RecordFailure notes one transient failure; reaching the threshold opens
// the circuit. A failure during half-open re-opens it immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	if cb.failures >= cb.threshold || cb.open {
		cb.open = true
		cb.openedAt = cb.now()
	}
}

// IsOpen reports the current breaker state.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.open
}
