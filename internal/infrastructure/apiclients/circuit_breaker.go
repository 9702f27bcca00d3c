package apiclients

import (
	"fmt"
	"sync"
	"time"

	"loanflow-server/internal/infrastructure/metrics"

	"github.com/rs/zerolog/log"
)

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	// StateClosed - normal operation, requests pass through
	StateClosed CircuitState = iota
	// StateOpen - service is failing, requests are rejected
	StateOpen
	// StateHalfOpen - testing if service has recovered
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // consecutive half-open successes before closing
	RecoveryTimeout  time.Duration // how long to stay open before probing
	MaxHalfOpenCalls int           // concurrent probes allowed while half-open
}

// DefaultCircuitBreakerConfig returns sensible defaults for the mocked
// upstream APIs.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		RecoveryTimeout:  60 * time.Second,
		MaxHalfOpenCalls: 3,
	}
}

// CircuitBreaker implements the circuit breaker pattern for external API calls.
// CLOSED -> (failures >= threshold) -> OPEN -> (elapsed >= recovery timeout)
// -> HALF_OPEN -> (successes >= threshold) -> CLOSED. Any half-open failure
// reopens the circuit.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	name   string

	mu              sync.RWMutex
	state           CircuitState
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	halfOpenCalls   int

	totalCalls     int64
	totalFailures  int64
	totalSuccesses int64
	rejectedCalls  int64
	stateChanges   int64
}

// NewCircuitBreaker creates a circuit breaker for the named upstream API.
func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		config: config,
		name:   name,
		state:  StateClosed,
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(StateClosed))
	return cb
}

// CanExecute reports whether a request may pass through right now. An OPEN
// circuit whose recovery timeout has elapsed transitions to HALF_OPEN and
// admits the probe.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if time.Since(cb.lastFailureTime) >= cb.config.RecoveryTimeout {
			cb.transitionTo(StateHalfOpen)
			cb.halfOpenCalls = 1
			return true
		}
		cb.rejectedCalls++
		return false

	case StateHalfOpen:
		if cb.halfOpenCalls < cb.config.MaxHalfOpenCalls {
			cb.halfOpenCalls++
			return true
		}
		cb.rejectedCalls++
		return false

	default:
		return false
	}
}

// Execute runs fn if the circuit allows it and records the outcome.
func (cb *CircuitBreaker) Execute(operation string, fn func() error) error {
	if !cb.CanExecute() {
		log.Warn().
			Str("api", cb.name).
			Str("operation", operation).
			Str("state", cb.GetState().String()).
			Msg("circuit breaker rejected request")
		return fmt.Errorf("circuit breaker is %s for %s", cb.GetState(), cb.name)
	}

	err := fn()
	cb.RecordResult(operation, err)
	return err
}

// RecordResult updates breaker state after a call completes. Callers that
// bypass Execute (retry loops own the invocation) report here directly.
func (cb *CircuitBreaker) RecordResult(operation string, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalCalls++

	if err != nil {
		cb.totalFailures++
		cb.lastFailureTime = time.Now()

		switch cb.state {
		case StateClosed:
			cb.failureCount++
			if cb.failureCount >= cb.config.FailureThreshold {
				cb.transitionTo(StateOpen)
				log.Error().
					Str("api", cb.name).
					Str("operation", operation).
					Int("failures", cb.failureCount).
					Msg("circuit breaker opened")
			}
		case StateHalfOpen:
			cb.transitionTo(StateOpen)
			log.Warn().
				Str("api", cb.name).
				Str("operation", operation).
				Msg("circuit breaker reopened after half-open failure")
		}
		return
	}

	cb.totalSuccesses++

	switch cb.state {
	case StateClosed:
		if cb.failureCount > 0 {
			cb.failureCount--
		}
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.transitionTo(StateClosed)
			log.Info().
				Str("api", cb.name).
				Str("operation", operation).
				Msg("circuit breaker closed after recovery")
		}
	}
}

// transitionTo changes state. Callers must hold cb.mu.
func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	if cb.state == newState {
		return
	}
	cb.state = newState
	cb.stateChanges++

	switch newState {
	case StateClosed:
		cb.failureCount = 0
		cb.successCount = 0
		cb.halfOpenCalls = 0
	case StateOpen:
		cb.successCount = 0
		cb.halfOpenCalls = 0
	case StateHalfOpen:
		cb.successCount = 0
	}

	metrics.CircuitBreakerState.WithLabelValues(cb.name).Set(float64(newState))
}

// GetState returns the current circuit state.
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// GetMetrics returns a snapshot of breaker counters for health reporting.
func (cb *CircuitBreaker) GetMetrics() map[string]any {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return map[string]any{
		"api":             cb.name,
		"state":           cb.state.String(),
		"failure_count":   cb.failureCount,
		"success_count":   cb.successCount,
		"total_calls":     cb.totalCalls,
		"total_failures":  cb.totalFailures,
		"total_successes": cb.totalSuccesses,
		"rejected_calls":  cb.rejectedCalls,
		"state_changes":   cb.stateChanges,
	}
}

// Reset forces the breaker back to CLOSED and clears counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.transitionTo(StateClosed)
	cb.failureCount = 0
	cb.successCount = 0
	cb.halfOpenCalls = 0

	log.Info().Str("api", cb.name).Msg("circuit breaker manually reset")
}
