package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/enjuguna-bit/bulksms-sub001/internal/apperrors"
	"github.com/enjuguna-bit/bulksms-sub001/internal/models"
	"github.com/enjuguna-bit/bulksms-sub001/internal/queue"
)

// OutboundRepository owns the durable dispatch queue the Retry Worker
// drains. Entries never move through an in-memory list: every state
// transition (enqueue, attempt, exhaustion) is a row update, so a crash
// mid-send loses no intent.
type OutboundRepository struct {
	q *queue.Queue
}

// NewOutboundRepository creates an OutboundRepository backed by q.
func NewOutboundRepository(q *queue.Queue) *OutboundRepository {
	return &OutboundRepository{q: q}
}

// dedupWindow is how long a prior pending/failed entry with the same
// (to, body, simSlot) suppresses a duplicate Enqueue.
const dedupWindow = 60 * time.Second

// Enqueue records a new pending dispatch intent, unless an entry with
// the same to_number, body and sim_slot is already pending or failed
// and was enqueued within the last dedupWindow, in which case Enqueue
// is a no-op returning the existing entry's id.
func (r *OutboundRepository) Enqueue(ctx context.Context, toNumber, body string, priority models.OutboundPriority, simSlot int, dbMessageID *int64) (int64, error) {
	future := r.q.EnqueueWrite(ctx, queue.PriorityNormal, func(ctx context.Context, db *sql.DB) (any, error) {
		now := time.Now().UTC()
		var existingID int64
		err := db.QueryRowContext(ctx, `SELECT id FROM sms_queue
			WHERE to_number = ? AND body = ? AND sim_slot = ?
			AND status IN (?, ?) AND enqueued_at > ?
			ORDER BY enqueued_at DESC LIMIT 1`,
			toNumber, body, simSlot, models.OutboundStatusPending, models.OutboundStatusFailed, now.Add(-dedupWindow)).Scan(&existingID)
		if err == nil {
			return existingID, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		res, err := db.ExecContext(ctx, `INSERT INTO sms_queue
			(to_number, body, enqueued_at, status, retry_count, sim_slot, db_message_id, priority)
			VALUES (?, ?, ?, ?, 0, ?, ?, ?)`,
			toNumber, body, now, models.OutboundStatusPending, simSlot, dbMessageID, priority)
		if err != nil {
			return nil, err
		}
		return res.LastInsertId()
	})
	result, err := future.Wait(ctx)
	if err != nil {
		return 0, err
	}
	return result.(int64), nil
}

// NextBatch returns up to limit entries eligible for dispatch -
// pending entries, plus failed entries that haven't exhausted
// maxRetries yet - ordered priority DESC, enqueued_at ASC, the order
// the Retry Worker drains a cycle in.
func (r *OutboundRepository) NextBatch(ctx context.Context, limit int, maxRetries int) ([]models.OutboundEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	future := r.q.EnqueueRead(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		rows, err := db.QueryContext(ctx, `SELECT id, to_number, body, enqueued_at, status, retry_count,
			sim_slot, db_message_id, priority FROM sms_queue
			WHERE status = ? OR (status = ? AND retry_count < ?)
			ORDER BY priority DESC, enqueued_at ASC LIMIT ?`,
			models.OutboundStatusPending, models.OutboundStatusFailed, maxRetries, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []models.OutboundEntry
		for rows.Next() {
			var e models.OutboundEntry
			if err := rows.Scan(&e.ID, &e.ToNumber, &e.Body, &e.EnqueuedAt, &e.Status, &e.RetryCount,
				&e.SimSlot, &e.DBMessageID, &e.Priority); err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, rows.Err()
	})
	result, err := future.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return result.([]models.OutboundEntry), nil
}

// MarkSent flips an entry to sent.
func (r *OutboundRepository) MarkSent(ctx context.Context, id int64) error {
	return r.updateStatus(ctx, id, models.OutboundStatusSent, nil)
}

// MarkFailedOrExhausted increments retry_count and sets status to
// exhausted once it reaches maxRetries, otherwise back to failed so the
// Retry Worker's next drain cycle picks it up again.
func (r *OutboundRepository) MarkFailedOrExhausted(ctx context.Context, id int64, maxRetries int) (exhausted bool, err error) {
	future := r.q.Transaction(ctx, []queue.TxOp{
		func(ctx context.Context, tx *sql.Tx) (any, error) {
			var retries int
			if scanErr := tx.QueryRowContext(ctx, "SELECT retry_count FROM sms_queue WHERE id = ?", id).Scan(&retries); scanErr != nil {
				if errors.Is(scanErr, sql.ErrNoRows) {
					return nil, apperrors.ErrNotFound
				}
				return nil, scanErr
			}
			retries++
			status := models.OutboundStatusFailed
			if retries >= maxRetries {
				status = models.OutboundStatusExhausted
			}
			_, updErr := tx.ExecContext(ctx, "UPDATE sms_queue SET status = ?, retry_count = ? WHERE id = ?",
				status, retries, id)
			if updErr != nil {
				return nil, updErr
			}
			return status == models.OutboundStatusExhausted, nil
		},
	})
	result, err := future.Wait(ctx)
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

// Requeue resets an exhausted or failed entry back to pending. The local
// API exposes no route that calls it.
func (r *OutboundRepository) Requeue(ctx context.Context, id int64) error {
	return r.updateStatus(ctx, id, models.OutboundStatusPending, nil)
}

func (r *OutboundRepository) updateStatus(ctx context.Context, id int64, status models.OutboundStatus, retryCount *int) error {
	future := r.q.EnqueueWrite(ctx, queue.PriorityNormal, func(ctx context.Context, db *sql.DB) (any, error) {
		var err error
		if retryCount != nil {
			_, err = db.ExecContext(ctx, "UPDATE sms_queue SET status = ?, retry_count = ? WHERE id = ?", status, *retryCount, id)
		} else {
			_, err = db.ExecContext(ctx, "UPDATE sms_queue SET status = ? WHERE id = ?", status, id)
		}
		return nil, err
	})
	_, err := future.Wait(ctx)
	return err
}

// Stats summarises the queue for the local API's /outbound/stats route.
func (r *OutboundRepository) Stats(ctx context.Context) (models.OutboundStats, error) {
	future := r.q.EnqueueRead(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		var stats models.OutboundStats
		row := db.QueryRowContext(ctx, `SELECT
			SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'exhausted' THEN 1 ELSE 0 END),
			COUNT(*) FROM sms_queue`)
		var pending, failed, exhausted sql.NullInt64
		if err := row.Scan(&pending, &failed, &exhausted, &stats.Total); err != nil {
			return models.OutboundStats{}, err
		}
		stats.Pending = int(pending.Int64)
		stats.Failed = int(failed.Int64)
		stats.Exhausted = int(exhausted.Int64)
		return stats, nil
	})
	result, err := future.Wait(ctx)
	if err != nil {
		return models.OutboundStats{}, err
	}
	return result.(models.OutboundStats), nil
}

// Clear removes every entry. The local API exposes no route that calls
// it.
func (r *OutboundRepository) Clear(ctx context.Context) error {
	future := r.q.EnqueueWrite(ctx, queue.PriorityHigh, func(ctx context.Context, db *sql.DB) (any, error) {
		_, err := db.ExecContext(ctx, "DELETE FROM sms_queue")
		return nil, err
	})
	_, err := future.Wait(ctx)
	return err
}
