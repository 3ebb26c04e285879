package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAtThreshold(t *testing.T) {
	b := NewCircuitBreaker("test", 3, 50*time.Millisecond, testLogger{})

	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.AllowRequest())

	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.AllowRequest())
}

func TestCircuitBreaker_FailureThresholdOfOneOpensImmediately(t *testing.T) {
	b := NewCircuitBreaker("test", 1, time.Second, testLogger{})

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
}

func TestCircuitBreaker_HalfOpenProbeAfterTimeout(t *testing.T) {
	b := NewCircuitBreaker("test", 1, 20*time.Millisecond, testLogger{})

	b.RecordFailure()
	require.Equal(t, StateOpen, b.State())
	assert.False(t, b.AllowRequest())

	time.Sleep(25 * time.Millisecond)

	assert.True(t, b.AllowRequest(), "first request after openTimeout should be allowed as a probe")
	assert.Equal(t, StateHalfOpen, b.State())
	assert.False(t, b.AllowRequest(), "a second concurrent probe must not be let through")
}

func TestCircuitBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b := NewCircuitBreaker("test", 1, 10*time.Millisecond, testLogger{})

	b.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	assert.True(t, b.AllowRequest())

	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
	assert.EqualValues(t, 0, b.FailureCount())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewCircuitBreaker("test", 1, 10*time.Millisecond, testLogger{})

	b.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	assert.True(t, b.AllowRequest())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
}

func TestCircuitBreaker_Reset(t *testing.T) {
	b := NewCircuitBreaker("test", 1, time.Second, testLogger{})
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.EqualValues(t, 0, b.FailureCount())
}
