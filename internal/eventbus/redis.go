package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisChannel is the Pub/Sub channel name events are published on.
const RedisChannel = "bulksms:events"

// wireEvent is Event's JSON-safe wire form; Payload is carried as raw
// JSON so arbitrary event payload types survive the round trip without
// the bus needing to know their Go type.
type wireEvent struct {
	Kind      EventKind       `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp string          `json:"timestamp"`
}

// RedisBus fans events out across process boundaries via Redis Pub/Sub,
// the optional backend for multi-process or multi-device deployments.
// A single process still gets local delivery through an embedded
// MemoryBus, so Publish never depends on Redis being reachable to notify
// same-process subscribers.
type RedisBus struct {
	client *redis.Client
	local  *MemoryBus
	logger *log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewRedisBus wires a RedisBus over client, starting a background
// subscriber loop that republishes remote events to local subscribers.
func NewRedisBus(ctx context.Context, client *redis.Client, logger *log.Logger) *RedisBus {
	if logger == nil {
		logger = log.Default()
	}
	subCtx, cancel := context.WithCancel(ctx)
	bus := &RedisBus{client: client, local: NewMemoryBus(64), logger: logger, cancel: cancel}
	go bus.subscribeLoop(subCtx)
	return bus
}

// Close stops the background subscriber loop.
func (b *RedisBus) Close() {
	b.cancel()
}

// Publish writes evt to the shared Redis channel. Local subscribers also
// receive it directly, since the subscriber loop would otherwise take a
// network round trip to deliver a process's own event back to itself.
func (b *RedisBus) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	wire := wireEvent{Kind: evt.Kind, Payload: payload, Timestamp: evt.Timestamp.Format("2006-01-02T15:04:05.000Z07:00")}
	data, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := b.client.Publish(ctx, RedisChannel, data).Err(); err != nil {
		b.logger.Printf("[EventBus] publish to redis failed, delivering locally only: %v", err)
	}
	return b.local.Publish(ctx, evt)
}

// Subscribe registers a local listener for events, whether they
// originated in this process or arrived over Redis.
func (b *RedisBus) Subscribe(ctx context.Context) (Subscription, func()) {
	return b.local.Subscribe(ctx)
}

func (b *RedisBus) subscribeLoop(ctx context.Context) {
	pubsub := b.client.Subscribe(ctx, RedisChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var wire wireEvent
			if err := json.Unmarshal([]byte(msg.Payload), &wire); err != nil {
				b.logger.Printf("[EventBus] dropping malformed message: %v", err)
				continue
			}
			var payload any
			if err := json.Unmarshal(wire.Payload, &payload); err != nil {
				b.logger.Printf("[EventBus] dropping message with unparseable payload: %v", err)
				continue
			}
			_ = b.local.Publish(ctx, Event{Kind: wire.Kind, Payload: payload})
		}
	}
}
