// Package queue implements the Operation Queue: the sole writer to the
// embedded Storage Engine. It serialises writes, fans out a bounded
// number of concurrent reads, batches bulk inserts, and runs atomic
// transactions.
package queue

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/enjuguna-bit/bulksms-sub001/internal/apperrors"
	"github.com/enjuguna-bit/bulksms-sub001/internal/storage"
)

// Priority orders ordinary (non-transaction, non-bulk) operations within
// the worker's scheduling loop.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// WriteFn performs one write operation against the owned database
// handle and returns an arbitrary result.
type WriteFn func(ctx context.Context, db *sql.DB) (any, error)

// ReadFn performs one read operation against the bounded read handle.
type ReadFn func(ctx context.Context, db *sql.DB) (any, error)

// TxOp is one statement within an atomic Transaction call.
type TxOp func(ctx context.Context, tx *sql.Tx) (any, error)

// BulkInsertResult summarises a BulkInsert call.
type BulkInsertResult struct {
	Inserted int
	Failed   int
	Duration time.Duration
}

// Future is the handle returned by every enqueue method. Wait blocks
// until the operation completes or ctx is cancelled.
type Future struct {
	done   chan struct{}
	result any
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(result any, err error) {
	f.result = result
	f.err = err
	close(f.done)
}

// Wait blocks until the future resolves or ctx is done.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type jobKind int

const (
	jobKindTx jobKind = iota
	jobKindBulk
	jobKindOrdinary
)

type job struct {
	kind     jobKind
	priority Priority
	run      func(ctx context.Context) (any, error)
	future   *Future
	ctx      context.Context
}

// Queue is the Operation Queue: a single background worker owning all
// writes against engine, plus a bounded pool of concurrent readers.
type Queue struct {
	engine *storage.Engine
	logger *log.Logger
	tick   time.Duration

	mu          sync.Mutex
	txJobs      []*job
	bulkJobs    []*job
	highJobs    []*job
	normalJobs  []*job
	lowJobs     []*job
	pending     int
	cleared     bool
	flushWaiters []chan struct{}

	readSem chan struct{}
	wake    chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}

	bulkBatchSize int
}

// Options configures New.
type Options struct {
	Tick               time.Duration
	MaxConcurrentReads int
	BulkBatchSize      int
	Logger             *log.Logger
}

// New starts the Operation Queue's background worker over engine.
func New(engine *storage.Engine, opts Options) *Queue {
	if opts.Tick <= 0 {
		opts.Tick = 10 * time.Millisecond
	}
	if opts.MaxConcurrentReads <= 0 {
		opts.MaxConcurrentReads = 3
	}
	if opts.BulkBatchSize <= 0 {
		opts.BulkBatchSize = 100
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[Queue] ", log.LstdFlags|log.Lmsgprefix)
	}

	q := &Queue{
		engine:        engine,
		logger:        logger,
		tick:          opts.Tick,
		readSem:       make(chan struct{}, opts.MaxConcurrentReads),
		wake:          make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		bulkBatchSize: opts.BulkBatchSize,
	}
	go q.workerLoop()
	return q
}

// Stop signals the worker to exit after draining in-flight work. It does
// not reject pending jobs; callers that need that should call Clear
// first.
func (q *Queue) Stop() {
	close(q.stopCh)
	<-q.doneCh
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// EnqueueWrite submits an ordinary write operation at the given
// priority. Within the ordinary class, high is LIFO-prepended, normal is
// enqueued before any low, and low is appended.
func (q *Queue) EnqueueWrite(ctx context.Context, priority Priority, fn WriteFn) *Future {
	future := newFuture()
	j := &job{
		kind:     jobKindOrdinary,
		priority: priority,
		ctx:      ctx,
		future:   future,
		run: func(ctx context.Context) (any, error) {
			return fn(ctx, q.engine.WriteDB())
		},
	}

	q.mu.Lock()
	if q.cleared {
		q.mu.Unlock()
		future.resolve(nil, apperrors.ErrQueueCleared)
		return future
	}
	switch priority {
	case PriorityHigh:
		q.highJobs = append([]*job{j}, q.highJobs...)
	case PriorityLow:
		q.lowJobs = append(q.lowJobs, j)
	default:
		q.normalJobs = append(q.normalJobs, j)
	}
	q.pending++
	q.mu.Unlock()

	q.signal()
	return future
}

// EnqueueRead runs fn against the bounded read handle. Reads may execute
// concurrently up to the configured fanout and bypass the ordinary
// write-ordering entirely.
func (q *Queue) EnqueueRead(ctx context.Context, fn ReadFn) *Future {
	future := newFuture()
	go func() {
		select {
		case q.readSem <- struct{}{}:
		case <-ctx.Done():
			future.resolve(nil, ctx.Err())
			return
		}
		defer func() { <-q.readSem }()

		result, err := fn(ctx, q.engine.ReadDB())
		future.resolve(result, err)
	}()
	return future
}

// Transaction runs every op in ops inside a single all-or-nothing
// transaction. Transactions are scheduled ahead of bulk inserts and
// ordinary operations. A failure in any op rolls back the whole
// transaction and resolves the future with apperrors.ErrTxFailure
// wrapping the primary cause; rollback errors are logged, never masking
// that primary cause.
func (q *Queue) Transaction(ctx context.Context, ops []TxOp) *Future {
	future := newFuture()
	j := &job{
		kind: jobKindTx,
		ctx:  ctx,
		future: future,
		run: func(ctx context.Context) (any, error) {
			return q.runTransaction(ctx, ops)
		},
	}

	q.mu.Lock()
	if q.cleared {
		q.mu.Unlock()
		future.resolve(nil, apperrors.ErrQueueCleared)
		return future
	}
	q.txJobs = append(q.txJobs, j)
	q.pending++
	q.mu.Unlock()

	q.signal()
	return future
}

func (q *Queue) runTransaction(ctx context.Context, ops []TxOp) (any, error) {
	tx, err := q.engine.WriteDB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", apperrors.ErrTxFailure, err)
	}

	results := make([]any, 0, len(ops))
	for i, op := range ops {
		result, err := op(ctx, tx)
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				q.logger.Printf("rollback error after op %d failed: %v", i, rbErr)
			}
			return nil, fmt.Errorf("%w: op %d: %w", apperrors.ErrTxFailure, i, err)
		}
		results = append(results, result)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", apperrors.ErrTxFailure, err)
	}
	return results, nil
}

// BulkInsert inserts rows into table in a single transaction, in batches
// of at most the configured batch size. Per-row failures are counted
// rather than aborting the batch, and the worker yields between batches
// so readers are not starved.
func (q *Queue) BulkInsert(ctx context.Context, table string, columns []string, rows [][]any) *Future {
	future := newFuture()
	j := &job{
		kind: jobKindBulk,
		ctx:  ctx,
		future: future,
		run: func(ctx context.Context) (any, error) {
			return q.runBulkInsert(ctx, table, columns, rows)
		},
	}

	q.mu.Lock()
	if q.cleared {
		q.mu.Unlock()
		future.resolve(nil, apperrors.ErrQueueCleared)
		return future
	}
	q.bulkJobs = append(q.bulkJobs, j)
	q.pending++
	q.mu.Unlock()

	q.signal()
	return future
}

func (q *Queue) runBulkInsert(ctx context.Context, table string, columns []string, rows [][]any) (any, error) {
	start := time.Now()
	result := BulkInsertResult{}

	tx, err := q.engine.WriteDB().BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("bulk insert begin: %w", err)
	}

	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, joinColumns(columns), joinColumns(placeholders))

	for start := 0; start < len(rows); start += q.bulkBatchSize {
		end := start + q.bulkBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		for _, row := range rows[start:end] {
			if _, err := tx.ExecContext(ctx, stmt, row...); err != nil {
				result.Failed++
				continue
			}
			result.Inserted++
		}
		// Yield between batches so a long bulk insert does not starve the
		// bounded read fanout.
		if end < len(rows) {
			time.Sleep(0)
		}
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return result, fmt.Errorf("bulk insert commit: %w", err)
	}

	result.Duration = time.Since(start)
	return result, nil
}

func joinColumns(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

// Flush resolves once every currently queued operation — across every
// priority lane, not just the one Flush happened to be called from —
// has completed and the worker is idle.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	if q.pending == 0 {
		q.mu.Unlock()
		return nil
	}
	waiter := make(chan struct{})
	q.flushWaiters = append(q.flushWaiters, waiter)
	q.mu.Unlock()

	select {
	case <-waiter:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clear rejects every currently pending operation with
// apperrors.ErrQueueCleared. Jobs already running are allowed to finish.
func (q *Queue) Clear() {
	q.mu.Lock()
	var all []*job
	all = append(all, q.txJobs...)
	all = append(all, q.bulkJobs...)
	all = append(all, q.highJobs...)
	all = append(all, q.normalJobs...)
	all = append(all, q.lowJobs...)
	q.txJobs, q.bulkJobs, q.highJobs, q.normalJobs, q.lowJobs = nil, nil, nil, nil, nil
	q.pending -= len(all)
	var waiters []chan struct{}
	if q.pending == 0 && len(q.flushWaiters) > 0 {
		waiters = q.flushWaiters
		q.flushWaiters = nil
	}
	q.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	for _, j := range all {
		j.future.resolve(nil, apperrors.ErrQueueCleared)
	}
}

// workerLoop is the single background worker: it drains transactions,
// then bulk inserts, then the ordinary priority lanes, cooperatively
// yielding roughly every tick between jobs.
func (q *Queue) workerLoop() {
	defer close(q.doneCh)
	ticker := time.NewTicker(q.tick)
	defer ticker.Stop()

	for {
		j := q.nextJob()
		if j == nil {
			select {
			case <-q.stopCh:
				return
			case <-q.wake:
				continue
			case <-ticker.C:
				continue
			}
		}

		result, err := j.run(j.ctx)
		j.future.resolve(result, err)

		q.mu.Lock()
		q.pending--
		var waiters []chan struct{}
		if q.pending == 0 && len(q.flushWaiters) > 0 {
			waiters = q.flushWaiters
			q.flushWaiters = nil
		}
		q.mu.Unlock()
		for _, w := range waiters {
			close(w)
		}

		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
		default:
		}
	}
}

func (q *Queue) nextJob() *job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.txJobs) > 0 {
		j := q.txJobs[0]
		q.txJobs = q.txJobs[1:]
		return j
	}
	if len(q.bulkJobs) > 0 {
		j := q.bulkJobs[0]
		q.bulkJobs = q.bulkJobs[1:]
		return j
	}
	if len(q.highJobs) > 0 {
		j := q.highJobs[0]
		q.highJobs = q.highJobs[1:]
		return j
	}
	if len(q.normalJobs) > 0 {
		j := q.normalJobs[0]
		q.normalJobs = q.normalJobs[1:]
		return j
	}
	if len(q.lowJobs) > 0 {
		j := q.lowJobs[0]
		q.lowJobs = q.lowJobs[1:]
		return j
	}
	return nil
}
