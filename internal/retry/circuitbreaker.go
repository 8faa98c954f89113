package retry

import (
	"sync"
	"time"
)

// breakerState is the circuit breaker's internal state machine:
// closed -> open (on rolling failure ratio) -> half-open (after
// cooldown) -> closed or back to open depending on the probe attempt.
type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// CircuitBreaker tracks a rolling window of attempt outcomes and opens
// when the failure ratio crosses threshold, so the Retry Worker stops
// hammering a transport that is clearly down.
type CircuitBreaker struct {
	mu sync.Mutex

	window      []bool // true = failure, oldest first
	windowSize  int
	threshold   float64
	minSamples  int
	cooldown    time.Duration
	state       breakerState
	openedAt    time.Time
	now         func() time.Time
}

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	WindowSize int
	Threshold  float64
	MinSamples int
	Cooldown   time.Duration
	Now        func() time.Time
}

// NewCircuitBreaker builds a breaker starting closed.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 20
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.5
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{
		windowSize: cfg.WindowSize,
		threshold:  cfg.Threshold,
		minSamples: cfg.MinSamples,
		cooldown:   cfg.Cooldown,
		now:        cfg.Now,
	}
}

// Allow reports whether a new attempt may proceed, transitioning an open
// breaker to half-open once its cooldown has elapsed.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return true
	case stateOpen:
		if b.now().Sub(b.openedAt) >= b.cooldown {
			b.state = stateHalfOpen
			return true
		}
		return false
	case stateHalfOpen:
		// Only one probe attempt is allowed while half-open; Allow is
		// expected to be called once before the caller reports its result.
		return false
	default:
		return true
	}
}

// RecordResult feeds one attempt outcome into the breaker.
func (b *CircuitBreaker) RecordResult(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateHalfOpen {
		if failed {
			b.state = stateOpen
			b.openedAt = b.now()
		} else {
			b.state = stateClosed
			b.window = nil
		}
		return
	}

	b.window = append(b.window, failed)
	if len(b.window) > b.windowSize {
		b.window = b.window[len(b.window)-b.windowSize:]
	}

	if len(b.window) < b.minSamples {
		return
	}

	failures := 0
	for _, f := range b.window {
		if f {
			failures++
		}
	}
	ratio := float64(failures) / float64(len(b.window))
	if ratio >= b.threshold && b.state == stateClosed {
		b.state = stateOpen
		b.openedAt = b.now()
	}
}

// Status reports the breaker's current state for observers.
type Status struct {
	Active              bool
	CooldownRemainingMs int64
}

// Status returns the breaker's current observable state.
func (b *CircuitBreaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateClosed {
		return Status{Active: false}
	}
	remaining := b.cooldown - b.now().Sub(b.openedAt)
	if remaining < 0 {
		remaining = 0
	}
	return Status{Active: true, CooldownRemainingMs: remaining.Milliseconds()}
}
