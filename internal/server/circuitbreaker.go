// circuitbreaker.go - Circuit breaker guarding blob storage calls.
//
// When object storage becomes unavailable, intake and processing fail
// fast instead of holding goroutines on a dead backend. The watchdog
// eventually fails transfers that were in flight during the outage.
package server

import (
	"errors"
	"sync"
	"time"
)

// CircuitState represents the current state of a circuit breaker.
type CircuitState int

const (
	// StateClosed: requests flow normally
	StateClosed CircuitState = iota
	// StateOpen: requests fail fast
	StateOpen
	// StateHalfOpen: probing whether storage recovered
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned when the breaker rejects a call outright.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTooManyRequests is returned when a half-open breaker already has
	// its probe in flight.
	ErrTooManyRequests = errors.New("too many requests while circuit is half-open")
)

// CircuitBreaker trips after maxFailures consecutive failures and stays
// open for timeout before letting a single probe through.
type CircuitBreaker struct {
	mu sync.Mutex

	maxFailures uint32
	timeout     time.Duration

	state           CircuitState
	failures        uint32
	lastFailureTime time.Time
	probeInFlight   bool

	totalRequests    uint64
	successRequests  uint64
	failedRequests   uint64
	rejectedRequests uint64
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(maxFailures uint32, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures: maxFailures,
		timeout:     timeout,
		state:       StateClosed,
	}
}

// Execute runs fn under breaker protection. The lock is not held during
// fn, so a slow storage call never blocks state queries.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.precheck(); err != nil {
		return err
	}

	err := fn()
	cb.record(err)
	return err
}

// precheck admits or rejects the call and advances open -> half-open
// once the cool-down has elapsed.
func (cb *CircuitBreaker) precheck() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalRequests++

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailureTime) <= cb.timeout {
			cb.rejectedRequests++
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probeInFlight = false
		Info("circuit_breaker_half_open", map[string]any{
			"timeout_elapsed": cb.timeout.String(),
		})
		fallthrough

	case StateHalfOpen:
		if cb.probeInFlight {
			cb.rejectedRequests++
			return ErrTooManyRequests
		}
		cb.probeInFlight = true
	}

	return nil
}

// record folds the call outcome back into the state machine.
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateHalfOpen {
		cb.probeInFlight = false
	}

	if err == nil {
		cb.successRequests++
		// Any success proves the backend answers; start counting afresh.
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.state = StateClosed
			Info("circuit_breaker_closed", map[string]any{
				"reason": "recovery_successful",
			})
		}
		return
	}

	cb.failedRequests++
	cb.failures++
	cb.lastFailureTime = time.Now()

	if cb.failures >= cb.maxFailures && cb.state != StateOpen {
		cb.state = StateOpen
		Warn("circuit_breaker_opened", map[string]any{
			"failures":     cb.failures,
			"max_failures": cb.maxFailures,
			"timeout":      cb.timeout.String(),
		})
	}
}

// GetState returns the current circuit state.
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetStats returns a snapshot of the breaker counters.
func (cb *CircuitBreaker) GetStats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerStats{
		State:            cb.state,
		Failures:         cb.failures,
		TotalRequests:    cb.totalRequests,
		SuccessRequests:  cb.successRequests,
		FailedRequests:   cb.failedRequests,
		RejectedRequests: cb.rejectedRequests,
		LastFailureTime:  cb.lastFailureTime,
	}
}

// Reset manually closes the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.probeInFlight = false

	Info("circuit_breaker_reset", map[string]any{
		"manual": true,
	})
}

// CircuitBreakerStats holds circuit breaker statistics.
type CircuitBreakerStats struct {
	State            CircuitState `json:"state"`
	Failures         uint32       `json:"failures"`
	TotalRequests    uint64       `json:"total_requests"`
	SuccessRequests  uint64       `json:"success_requests"`
	FailedRequests   uint64       `json:"failed_requests"`
	RejectedRequests uint64       `json:"rejected_requests"`
	LastFailureTime  time.Time    `json:"last_failure_time"`
}
