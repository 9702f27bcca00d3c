package apiclients

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		RecoveryTimeout:  50 * time.Millisecond,
		MaxHalfOpenCalls: 3,
	}
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker("test_api", testBreakerConfig())
	failure := errors.New("connection refused")

	for i := 0; i < 4; i++ {
		cb.RecordResult("op", failure)
		assert.Equal(t, StateClosed, cb.GetState())
	}

	cb.RecordResult("op", failure)
	assert.Equal(t, StateOpen, cb.GetState())
	assert.False(t, cb.CanExecute())
}

func TestCircuitBreakerHalfOpenAfterRecoveryTimeout(t *testing.T) {
	cb := NewCircuitBreaker("test_api", testBreakerConfig())
	failure := errors.New("timeout")

	for i := 0; i < 5; i++ {
		cb.RecordResult("op", failure)
	}
	require.Equal(t, StateOpen, cb.GetState())
	require.False(t, cb.CanExecute())

	time.Sleep(60 * time.Millisecond)

	assert.True(t, cb.CanExecute())
	assert.Equal(t, StateHalfOpen, cb.GetState())
}

func TestCircuitBreakerClosesAfterHalfOpenSuccesses(t *testing.T) {
	cb := NewCircuitBreaker("test_api", testBreakerConfig())
	failure := errors.New("timeout")

	for i := 0; i < 5; i++ {
		cb.RecordResult("op", failure)
	}
	time.Sleep(60 * time.Millisecond)
	require.True(t, cb.CanExecute())

	cb.RecordResult("op", nil)
	cb.RecordResult("op", nil)
	assert.Equal(t, StateHalfOpen, cb.GetState())

	cb.RecordResult("op", nil)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.True(t, cb.CanExecute())
}

func TestCircuitBreakerReopensOnHalfOpenFailure(t *testing.T) {
	cb := NewCircuitBreaker("test_api", testBreakerConfig())
	failure := errors.New("timeout")

	for i := 0; i < 5; i++ {
		cb.RecordResult("op", failure)
	}
	time.Sleep(60 * time.Millisecond)
	require.True(t, cb.CanExecute())
	require.Equal(t, StateHalfOpen, cb.GetState())

	cb.RecordResult("op", nil)
	cb.RecordResult("op", failure)
	assert.Equal(t, StateOpen, cb.GetState())
	assert.False(t, cb.CanExecute())
}

func TestCircuitBreakerClosedSuccessDecrementsFailures(t *testing.T) {
	cb := NewCircuitBreaker("test_api", testBreakerConfig())
	failure := errors.New("timeout")

	for i := 0; i < 4; i++ {
		cb.RecordResult("op", failure)
	}
	cb.RecordResult("op", nil)

	// The success bought back one failure, so one more does not open.
	cb.RecordResult("op", failure)
	assert.Equal(t, StateClosed, cb.GetState())

	cb.RecordResult("op", failure)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreakerExecute(t *testing.T) {
	cb := NewCircuitBreaker("test_api", testBreakerConfig())

	err := cb.Execute("op", func() error { return nil })
	require.NoError(t, err)

	failure := errors.New("boom")
	for i := 0; i < 6; i++ {
		_ = cb.Execute("op", func() error { return failure })
	}
	require.Equal(t, StateOpen, cb.GetState())

	err = cb.Execute("op", func() error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is OPEN")
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker("test_api", testBreakerConfig())
	failure := errors.New("timeout")

	for i := 0; i < 5; i++ {
		cb.RecordResult("op", failure)
	}
	require.Equal(t, StateOpen, cb.GetState())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.True(t, cb.CanExecute())

	m := cb.GetMetrics()
	assert.Equal(t, "CLOSED", m["state"])
	assert.Equal(t, 0, m["failure_count"])
}
