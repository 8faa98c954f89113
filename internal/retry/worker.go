package retry

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/enjuguna-bit/bulksms-sub001/internal/apperrors"
	"github.com/enjuguna-bit/bulksms-sub001/internal/models"
	"github.com/enjuguna-bit/bulksms-sub001/internal/pipeline"
	"github.com/enjuguna-bit/bulksms-sub001/internal/repository"
	"github.com/enjuguna-bit/bulksms-sub001/internal/transport"
)

// Config configures a Worker.
type Config struct {
	DrainCadence     time.Duration
	BatchSize        int
	MaxRetries       int
	TransportTimeout time.Duration
	Breaker          CircuitBreakerConfig
	Audit            *repository.AuditRepository
}

// Worker drains the outbound queue independently of any active
// campaign, reading from the durable outbound table rather than an
// in-memory list so retries survive a process restart.
type Worker struct {
	outbound  *repository.OutboundRepository
	sendlog   *repository.SendLogRepository
	transport transport.Transport
	breaker   *CircuitBreaker
	cfg       Config
	logger    *log.Logger
	audit     *repository.AuditRepository

	running int32
	kick    chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}

	processedTotal int64
	sentTotal      int64
	failedTotal    int64
}

// New builds a Worker. A nil logger discards output.
func New(outbound *repository.OutboundRepository, sendlog *repository.SendLogRepository, tr transport.Transport, cfg Config, logger *log.Logger) *Worker {
	if cfg.DrainCadence <= 0 {
		cfg.DrainCadence = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.TransportTimeout <= 0 {
		cfg.TransportTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Worker{
		outbound:  outbound,
		sendlog:   sendlog,
		transport: tr,
		breaker:   NewCircuitBreaker(cfg.Breaker),
		cfg:       cfg,
		logger:    logger,
		audit:     cfg.Audit,
		kick:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the drain loop. A no-op if already running.
func (w *Worker) Start(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&w.running, 0, 1) {
		return
	}
	go w.loop(ctx)
}

// Stop halts the drain loop and waits for it to exit.
func (w *Worker) Stop() {
	if !atomic.CompareAndSwapInt32(&w.running, 1, 0) {
		return
	}
	close(w.stopCh)
	<-w.doneCh
}

// Kick requests an out-of-cycle drain. The Send Pipeline does not call
// it; entries it enqueues wait for the next tick.
func (w *Worker) Kick() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// BreakerStatus exposes the circuit breaker's state for the local API.
func (w *Worker) BreakerStatus() Status {
	return w.breaker.Status()
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.cfg.DrainCadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.drainCycle(ctx)
		case <-w.kick:
			w.drainCycle(ctx)
		}
	}
}

func (w *Worker) drainCycle(ctx context.Context) {
	if !w.breaker.Allow() {
		return
	}

	entries, err := w.outbound.NextBatch(ctx, w.cfg.BatchSize, w.cfg.MaxRetries)
	if err != nil {
		w.logger.Printf("[RetryWorker] failed to read pending batch: %v", err)
		return
	}

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return
		default:
		}
		w.attempt(ctx, entry)
	}
}

func (w *Worker) attempt(ctx context.Context, entry models.OutboundEntry) {
	atomic.AddInt64(&w.processedTotal, 1)

	timeout := pipeline.TimeoutForAttempt(w.cfg.TransportTimeout, entry.RetryCount)
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := w.transport.Send(sendCtx, entry.ToNumber, entry.Body, entry.SimSlot)
	if err != nil {
		w.breaker.RecordResult(true)
		atomic.AddInt64(&w.failedTotal, 1)
		exhausted, markErr := w.outbound.MarkFailedOrExhausted(ctx, entry.ID, w.cfg.MaxRetries)
		if markErr != nil {
			w.logger.Printf("[RetryWorker] failed to mark entry %d: %v", entry.ID, markErr)
		}
		_ = w.sendlog.Append(ctx, models.SendLog{
			ToNumber: entry.ToNumber, Body: entry.Body, Timestamp: time.Now().UTC(),
			Status: models.SendLogError, SimSlot: entry.SimSlot, Error: classify(err),
		})
		if exhausted {
			w.logger.Printf("[RetryWorker] entry %d exhausted after %d retries", entry.ID, w.cfg.MaxRetries)
			if w.audit != nil {
				w.audit.Record(ctx, models.AuditEntry{
					ActorKind:  models.ActorRetryWorker,
					Action:     "entry_exhausted",
					EntityKind: "outbound_entry",
					EntityID:   fmt.Sprintf("%d", entry.ID),
					Detail:     fmt.Sprintf(`{"toNumber":%q,"retries":%d}`, entry.ToNumber, w.cfg.MaxRetries),
				})
			}
		}
		return
	}

	w.breaker.RecordResult(false)
	atomic.AddInt64(&w.sentTotal, 1)
	if markErr := w.outbound.MarkSent(ctx, entry.ID); markErr != nil {
		w.logger.Printf("[RetryWorker] failed to mark entry %d sent: %v", entry.ID, markErr)
	}
	_ = w.sendlog.Append(ctx, models.SendLog{
		ToNumber: entry.ToNumber, Body: entry.Body, Timestamp: time.Now().UTC(),
		Status: models.SendLogSuccess, SimSlot: entry.SimSlot,
	})
}

func classify(err error) string {
	return apperrors.Kind(err) + ": " + err.Error()
}

// Stats reports cumulative counters for the local API.
type Stats struct {
	Processed int64
	Sent      int64
	Failed    int64
}

// Stats returns a snapshot of cumulative counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Processed: atomic.LoadInt64(&w.processedTotal),
		Sent:      atomic.LoadInt64(&w.sentTotal),
		Failed:    atomic.LoadInt64(&w.failedTotal),
	}
}
