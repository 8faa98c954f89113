package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/enjuguna-bit/bulksms-sub001/internal/models"
	"github.com/enjuguna-bit/bulksms-sub001/internal/queue"
)

// SendLogRepository is the append-only ledger of transport attempts
// used for duplicate suppression (I6).
type SendLogRepository struct {
	q *queue.Queue
}

// NewSendLogRepository creates a SendLogRepository backed by q.
func NewSendLogRepository(q *queue.Queue) *SendLogRepository {
	return &SendLogRepository{q: q}
}

// Append writes one attempt record.
func (r *SendLogRepository) Append(ctx context.Context, entry models.SendLog) error {
	future := r.q.EnqueueWrite(ctx, queue.PriorityLow, func(ctx context.Context, db *sql.DB) (any, error) {
		_, err := db.ExecContext(ctx, `INSERT INTO send_logs
			(to_number, body, body_length, timestamp, status, sim_slot, error)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			entry.ToNumber, entry.Body, len([]rune(entry.Body)), entry.Timestamp, entry.Status, entry.SimSlot, entry.Error)
		return nil, err
	})
	_, err := future.Wait(ctx)
	return err
}

// WasSentWithin reports whether an identical (toNumber, body) pair
// succeeded within window, the duplicate-suppression check behind I6.
func (r *SendLogRepository) WasSentWithin(ctx context.Context, toNumber, body string, window time.Duration) (bool, error) {
	future := r.q.EnqueueRead(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		cutoff := time.Now().UTC().Add(-window)
		var count int
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM send_logs
			WHERE to_number = ? AND body = ? AND status = ? AND timestamp >= ?`,
			toNumber, body, models.SendLogSuccess, cutoff).Scan(&count)
		return count > 0, err
	})
	result, err := future.Wait(ctx)
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

// CountSince returns how many sends to toNumber occurred at or after
// since. Neither the Send Pipeline nor the Retry Worker calls it, so no
// per-number rate limit is enforced.
func (r *SendLogRepository) CountSince(ctx context.Context, toNumber string, since time.Time) (int, error) {
	future := r.q.EnqueueRead(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		var count int
		err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM send_logs WHERE to_number = ? AND timestamp >= ?",
			toNumber, since).Scan(&count)
		return count, err
	})
	result, err := future.Wait(ctx)
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}
