package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_OpensAfterThresholdRatio(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker(CircuitBreakerConfig{WindowSize: 10, Threshold: 0.5, MinSamples: 4, Cooldown: time.Second, Now: func() time.Time { return now }})

	for i := 0; i < 4; i++ {
		assert.True(t, cb.Allow())
		cb.RecordResult(true)
	}

	assert.False(t, cb.Allow(), "breaker should open once failure ratio reaches threshold")
	status := cb.Status()
	assert.True(t, status.Active)
}

func TestCircuitBreaker_HalfOpensAfterCooldownThenCloses(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	cb := NewCircuitBreaker(CircuitBreakerConfig{WindowSize: 10, Threshold: 0.5, MinSamples: 2, Cooldown: time.Second, Now: clock})

	cb.RecordResult(true)
	cb.RecordResult(true)
	assert.False(t, cb.Allow())

	now = now.Add(2 * time.Second)
	assert.True(t, cb.Allow(), "cooldown elapsed: single probe attempt allowed")
	assert.False(t, cb.Allow(), "only one probe attempt allowed while half-open")

	cb.RecordResult(false)
	assert.True(t, cb.Allow(), "successful probe closes the breaker")
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	cb := NewCircuitBreaker(CircuitBreakerConfig{WindowSize: 10, Threshold: 0.5, MinSamples: 2, Cooldown: time.Second, Now: clock})

	cb.RecordResult(true)
	cb.RecordResult(true)
	now = now.Add(2 * time.Second)
	assert.True(t, cb.Allow())
	cb.RecordResult(true)

	assert.False(t, cb.Allow(), "failed probe re-opens the breaker")
}

func TestCircuitBreaker_StaysClosedBelowMinSamples(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{WindowSize: 10, Threshold: 0.1, MinSamples: 5})
	cb.RecordResult(true)
	cb.RecordResult(true)
	assert.True(t, cb.Allow(), "too few samples to open even with a high failure ratio")
}
