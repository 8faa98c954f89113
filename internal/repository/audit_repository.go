package repository

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/enjuguna-bit/bulksms-sub001/internal/models"
	"github.com/enjuguna-bit/bulksms-sub001/internal/queue"
)

// AuditRepository is the append-only record of state-changing operations
// across the engine, written through the queue's low-priority lane so a
// slow or failing write never competes with ordinary traffic.
type AuditRepository struct {
	q      *queue.Queue
	logger *log.Logger
}

// NewAuditRepository creates an AuditRepository backed by q. A nil
// logger discards warnings.
func NewAuditRepository(q *queue.Queue, logger *log.Logger) *AuditRepository {
	if logger == nil {
		logger = log.New(discardWriter{}, "", 0)
	}
	return &AuditRepository{q: q, logger: logger}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Record appends entry asynchronously. Callers do not wait on the
// result: a failure to log is warned and dropped, never surfaced as an
// error to the originating operation.
func (r *AuditRepository) Record(ctx context.Context, entry models.AuditEntry) {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	future := r.q.EnqueueWrite(ctx, queue.PriorityLow, func(ctx context.Context, db *sql.DB) (any, error) {
		_, err := db.ExecContext(ctx, `INSERT INTO audit_log
			(occurred_at, actor_kind, action, entity_kind, entity_id, detail)
			VALUES (?, ?, ?, ?, ?, ?)`,
			entry.OccurredAt, entry.ActorKind, entry.Action, entry.EntityKind, entry.EntityID, entry.Detail)
		return nil, err
	})
	go func() {
		if _, err := future.Wait(ctx); err != nil {
			r.logger.Printf("audit write failed: actor=%s action=%s: %v", entry.ActorKind, entry.Action, err)
		}
	}()
}

// List returns the most recent entries, newest first, capped at limit.
func (r *AuditRepository) List(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	future := r.q.EnqueueRead(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		rows, err := db.QueryContext(ctx, `SELECT id, occurred_at, actor_kind, action, entity_kind, entity_id, detail
			FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var entries []models.AuditEntry
		for rows.Next() {
			var e models.AuditEntry
			var detail sql.NullString
			if err := rows.Scan(&e.ID, &e.OccurredAt, &e.ActorKind, &e.Action, &e.EntityKind, &e.EntityID, &detail); err != nil {
				return nil, err
			}
			e.Detail = detail.String
			entries = append(entries, e)
		}
		return entries, rows.Err()
	})
	result, err := future.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return result.([]models.AuditEntry), nil
}
