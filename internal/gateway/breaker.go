package gateway

import (
	"sync"
	"time"
)

// CircuitBreaker trips after a run of consecutive gateway failures and
// rejects new work until the cooldown elapses, after which exactly one probe
// is let through. The breaker closes only on an explicit success, never as a
// side effect of a read.
type CircuitBreaker struct {
	mu          sync.Mutex
	failures    int
	open        bool
	probing     bool
	lastFailure time.Time

	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether work may pass. While open it admits a single
// recovery probe once the cooldown has elapsed.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return true
	}
	if b.probing {
		return false
	}
	if b.now().Sub(b.lastFailure) >= b.cooldown {
		b.probing = true
		return true
	}
	return false
}

// CancelProbe returns an unused probe slot. Called when the admitted probe
// never exercised the failing path, so its outcome says nothing about
// recovery.
func (b *CircuitBreaker) CancelProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
}

// RecordSuccess resets the failure run and closes the breaker.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.open = false
	b.probing = false
}

// RecordFailure counts a gateway failure; at the threshold the breaker
// opens. A failed probe re-arms the cooldown.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = b.now()
	b.probing = false
	if b.failures >= b.threshold {
		b.open = true
	}
}

// State is a point-in-time snapshot for health reporting.
type BreakerState struct {
	Open                bool      `json:"open"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailureAt       time.Time `json:"last_failure_at,omitzero"`
}

func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerState{
		Open:                b.open,
		ConsecutiveFailures: b.failures,
		LastFailureAt:       b.lastFailure,
	}
}
