package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enjuguna-bit/bulksms-sub001/internal/migrations"
	"github.com/enjuguna-bit/bulksms-sub001/internal/models"
	"github.com/enjuguna-bit/bulksms-sub001/internal/queue"
	"github.com/enjuguna-bit/bulksms-sub001/internal/repository"
	"github.com/enjuguna-bit/bulksms-sub001/internal/storage"
	"github.com/enjuguna-bit/bulksms-sub001/internal/transport"
)

type fakeTransport struct {
	mu      sync.Mutex
	calls   int
	failAll bool
}

func (f *fakeTransport) Send(ctx context.Context, to, body string, simSlot int) (transport.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAll {
		return transport.SendResult{}, errors.New("carrier unavailable")
	}
	return transport.SendResult{}, nil
}

func newTestRepos(t *testing.T) (*repository.OutboundRepository, *repository.SendLogRepository) {
	t.Helper()
	ctx := context.Background()
	engine, err := storage.Open(ctx, storage.Options{Path: ":memory:", OpenTimeout: time.Second})
	require.NoError(t, err)
	require.NoError(t, migrations.NewRunner(engine.WriteDB(), nil).Apply(ctx, migrations.All()))

	q := queue.New(engine, queue.Options{Tick: time.Millisecond, MaxConcurrentReads: 3, BulkBatchSize: 10})
	t.Cleanup(func() {
		q.Stop()
		engine.Close()
	})
	return repository.NewOutboundRepository(q), repository.NewSendLogRepository(q)
}

func TestWorker_DrainCycleSendsPendingEntries(t *testing.T) {
	outbound, sendlog := newTestRepos(t)
	ctx := context.Background()

	_, err := outbound.Enqueue(ctx, "+254700000030", "hi", models.PriorityNormal, 0, nil)
	require.NoError(t, err)

	tr := &fakeTransport{}
	w := New(outbound, sendlog, tr, Config{BatchSize: 5, MaxRetries: 3}, nil)

	w.drainCycle(ctx)

	stats, err := outbound.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, 1, tr.calls)
}

func TestWorker_ExhaustsAfterMaxRetries(t *testing.T) {
	outbound, sendlog := newTestRepos(t)
	ctx := context.Background()

	_, err := outbound.Enqueue(ctx, "+254700000031", "hi", models.PriorityNormal, 0, nil)
	require.NoError(t, err)

	tr := &fakeTransport{failAll: true}
	w := New(outbound, sendlog, tr, Config{BatchSize: 5, MaxRetries: 2, Breaker: CircuitBreakerConfig{MinSamples: 100}}, nil)

	w.drainCycle(ctx)
	w.drainCycle(ctx)

	stats, err := outbound.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Exhausted)
}

func TestWorker_StartStopIsIdempotent(t *testing.T) {
	outbound, sendlog := newTestRepos(t)
	tr := &fakeTransport{}
	w := New(outbound, sendlog, tr, Config{DrainCadence: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)
	w.Start(ctx) // second Start must be a no-op
	w.Stop()
	w.Stop() // second Stop must be a no-op
}
