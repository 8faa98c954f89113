package pipeline

import (
	"context"
	"sync"
)

// CancelToken is the cooperative cancellation signal a running Send
// Pipeline watches between every suspension point. Cancel is safe to
// call more than once and from any goroutine.
type CancelToken struct {
	once sync.Once
	ch   chan struct{}
}

// NewCancelToken returns a token in its un-cancelled state.
func NewCancelToken() *CancelToken {
	return &CancelToken{ch: make(chan struct{})}
}

// Cancel signals cancellation.
func (t *CancelToken) Cancel() {
	t.once.Do(func() { close(t.ch) })
}

// Done returns a channel closed once Cancel has been called.
func (t *CancelToken) Done() <-chan struct{} {
	return t.ch
}

// Cancelled reports whether Cancel has already been called.
func (t *CancelToken) Cancelled() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

// PauseGate lets an operator suspend a running pipeline between
// recipients and resume it later, without tearing down its state.
type PauseGate struct {
	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

// NewPauseGate returns a gate that starts in the running state.
func NewPauseGate() *PauseGate {
	return &PauseGate{}
}

// Pause suspends the gate. A no-op if already paused.
func (g *PauseGate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return
	}
	g.paused = true
	g.resume = make(chan struct{})
}

// Resume releases anything blocked in Wait. A no-op if not paused.
func (g *PauseGate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return
	}
	g.paused = false
	close(g.resume)
}

// Wait blocks while the gate is paused, returning early if ctx is done
// or cancel fires. Callers must treat a non-nil error as "stop", not
// "proceed".
func (g *PauseGate) Wait(ctx context.Context, cancel *CancelToken) error {
	g.mu.Lock()
	if !g.paused {
		g.mu.Unlock()
		return nil
	}
	resume := g.resume
	g.mu.Unlock()

	select {
	case <-resume:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-cancel.Done():
		return context.Canceled
	}
}
