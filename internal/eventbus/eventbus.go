// Package eventbus fans out domain events (onIncomingSms,
// SmsSentResult, SmsDeliveredResult) to in-process subscribers, such as
// an SSE hub or a local dashboard refresh. It is a notification channel
// only: durable state always lives in the embedded store first, the bus
// never is the store.
package eventbus

import (
	"context"
	"sync"
	"time"
)

// EventKind names the domain events this module publishes.
type EventKind string

const (
	EventIncomingSms    EventKind = "onIncomingSms"
	EventSmsSentResult  EventKind = "SmsSentResult"
	EventSmsDelivered   EventKind = "SmsDeliveredResult"
	EventCampaignUpdate EventKind = "CampaignUpdate"
	EventEntitlement    EventKind = "EntitlementChanged"
)

// Event is one published occurrence. Payload is kind-specific and left
// as any so the bus itself stays decoupled from every event's shape.
type Event struct {
	Kind      EventKind
	Payload   any
	Timestamp time.Time
}

// Bus publishes events to whatever subscribers are currently listening.
// Publish never blocks on slow subscribers: a subscriber that falls
// behind its channel buffer misses events rather than stalling senders.
type Bus interface {
	Publish(ctx context.Context, evt Event) error
	Subscribe(ctx context.Context) (sub Subscription, unsubscribe func())
}

// Subscription is a read-only stream of events for one subscriber.
type Subscription <-chan Event

// MemoryBus is an in-process fan-out, the default backend when no Redis
// URL is configured. It never loses events to a down network, because
// there is no network.
type MemoryBus struct {
	mu          sync.Mutex
	subscribers map[chan Event]struct{}
	bufferSize  int
}

// NewMemoryBus creates a MemoryBus whose subscriber channels each hold
// bufferSize pending events before silently dropping.
func NewMemoryBus(bufferSize int) *MemoryBus {
	if bufferSize <= 0 {
		bufferSize = 32
	}
	return &MemoryBus{subscribers: make(map[chan Event]struct{}), bufferSize: bufferSize}
}

// Publish delivers evt to every current subscriber.
func (b *MemoryBus) Publish(ctx context.Context, evt Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			// Subscriber's buffer is full; drop rather than block the publisher.
		}
	}
	return nil
}

// Subscribe registers a new listener. The returned unsubscribe func must
// be called to release the channel once the caller is done.
func (b *MemoryBus) Subscribe(ctx context.Context) (Subscription, func()) {
	ch := make(chan Event, b.bufferSize)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		delete(b.subscribers, ch)
		b.mu.Unlock()
		close(ch)
	}
	return ch, unsubscribe
}
