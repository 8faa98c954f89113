package api

import (
	"context"
	"sync"
	"time"

	"github.com/enjuguna-bit/bulksms-sub001/internal/eventbus"
	"github.com/enjuguna-bit/bulksms-sub001/internal/pipeline"
)

// campaignHandle tracks one in-flight or finished campaign run, letting
// the control API pause, resume, cancel and poll it by id.
type campaignHandle struct {
	id     string
	cancel *pipeline.CancelToken
	pause  *pipeline.PauseGate
	bus    eventbus.Bus

	mu       sync.Mutex
	counters pipeline.Counters
	done     bool
}

func (h *campaignHandle) observe(c pipeline.Counters) {
	h.mu.Lock()
	h.counters = c
	h.mu.Unlock()

	if h.bus != nil {
		_ = h.bus.Publish(context.Background(), eventbus.Event{
			Kind:      eventbus.EventCampaignUpdate,
			Payload:   map[string]any{"campaignId": h.id, "counters": c},
			Timestamp: time.Now().UTC(),
		})
	}
}

func (h *campaignHandle) snapshot() (pipeline.Counters, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counters, h.done
}

// campaignRegistry is the in-memory directory of campaign handles for
// this process's lifetime; campaigns do not survive a restart, matching
// the Send Pipeline's single-cooperative-task-per-run model.
type campaignRegistry struct {
	mu      sync.Mutex
	handles map[string]*campaignHandle
}

func newCampaignRegistry() *campaignRegistry {
	return &campaignRegistry{handles: make(map[string]*campaignHandle)}
}

func (r *campaignRegistry) register(id string, bus eventbus.Bus) *campaignHandle {
	h := &campaignHandle{id: id, cancel: pipeline.NewCancelToken(), pause: pipeline.NewPauseGate(), bus: bus}
	r.mu.Lock()
	r.handles[id] = h
	r.mu.Unlock()
	return h
}

func (r *campaignRegistry) get(id string) (*campaignHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	return h, ok
}

// run drives p.Run on its own goroutine, recording every counter flush
// onto the handle and marking it done once the run returns.
func (h *campaignHandle) run(ctx context.Context, p *pipeline.Pipeline, req pipeline.Run) {
	req.Cancel = h.cancel
	req.Pause = h.pause
	req.Observer = h.observe

	go func() {
		_ = p.Run(ctx, req)
		h.mu.Lock()
		h.done = true
		h.mu.Unlock()
	}()
}
