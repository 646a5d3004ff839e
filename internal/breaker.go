package internal

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// BreakerState is the circuit breaker's externally visible state.
type BreakerState string

const (
	BreakerClosed BreakerState = "closed"
	BreakerOpen   BreakerState = "open"
)

// CircuitBreaker disables the browser strategy after repeated consecutive
// timeout/blocking failures and re-enables it after a cooldown. One instance
// is shared by every concurrent resolve call, so all state transitions happen
// under the mutex.
type CircuitBreaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	failures  int
	openedAt  time.Time
	open      bool

	log zerolog.Logger
	now func() time.Time // injectable for tests
}

// NewCircuitBreaker builds a breaker with the configured threshold and
// cooldown. A threshold below 1 is clamped to 1.
func NewCircuitBreaker(threshold int, cooldown time.Duration, log zerolog.Logger) *CircuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		log:       log,
		now:       time.Now,
	}
}

// IsOpen reports whether the guarded strategy should be skipped. An expired
// cooldown closes the breaker without requiring an explicit success.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.open {
		return false
	}
	if cb.now().Sub(cb.openedAt) >= cb.cooldown {
		cb.log.Info().Msg("circuit breaker cooldown elapsed, closing")
		cb.open = false
		cb.failures = 0
		return false
	}
	return true
}

// RecordSuccess resets the consecutive-failure counter and closes the
// breaker if it was open.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.open {
		cb.log.Info().Msg("circuit breaker closed after success")
	}
	cb.open = false
	cb.failures = 0
}

// RecordFailure increments the counter and opens the breaker once the
// threshold is reached. Only timeout/blocking failures should be reported
// here; successes never open the breaker.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.failures >= cb.threshold && !cb.open {
		cb.open = true
		cb.openedAt = cb.now()
		cb.log.Warn().
			Int("failures", cb.failures).
			Dur("cooldown", cb.cooldown).
			Msg("circuit breaker opened")
	}
}

// BreakerStatus is a point-in-time snapshot for health reporting.
type BreakerStatus struct {
	State    BreakerState  `json:"state"`
	Failures int           `json:"failures"`
	RetryIn  time.Duration `json:"retry_in"`
}

// Status returns the current state, consecutive-failure count, and the time
// remaining until the breaker auto-closes (zero when closed).
func (cb *CircuitBreaker) Status() BreakerStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	st := BreakerStatus{State: BreakerClosed, Failures: cb.failures}
	if cb.open {
		remaining := cb.cooldown - cb.now().Sub(cb.openedAt)
		if remaining > 0 {
			st.State = BreakerOpen
			st.RetryIn = remaining
		} else {
			st.Failures = 0
		}
	}
	return st
}
