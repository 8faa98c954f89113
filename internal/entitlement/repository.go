package entitlement

import (
	"context"
	"database/sql"
	"time"

	"github.com/enjuguna-bit/bulksms-sub001/internal/queue"
)

// repository is the Queue-backed persistence boundary for entitlement
// state, the same thin-wrapper-over-the-write-queue shape as the
// Messaging and Outbound repositories.
type repository struct {
	q *queue.Queue
}

func newRepository(q *queue.Queue) *repository {
	return &repository{q: q}
}

// loadToken returns the single persisted subscription token, if any.
func (r *repository) loadToken(ctx context.Context) (string, bool, error) {
	future := r.q.EnqueueRead(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		var token string
		err := db.QueryRowContext(ctx, "SELECT token FROM subscription_state WHERE id = 1").Scan(&token)
		if err == sql.ErrNoRows {
			return "", nil
		}
		return token, err
	})
	result, err := future.Wait(ctx)
	if err != nil {
		return "", false, err
	}
	token := result.(string)
	return token, token != "", nil
}

// saveToken upserts the single persisted subscription token.
func (r *repository) saveToken(ctx context.Context, token string, now time.Time) error {
	future := r.q.EnqueueWrite(ctx, queue.PriorityHigh, func(ctx context.Context, db *sql.DB) (any, error) {
		_, err := db.ExecContext(ctx, `INSERT INTO subscription_state (id, token, updated_at)
			VALUES (1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`,
			token, now)
		return nil, err
	})
	_, err := future.Wait(ctx)
	return err
}

// clearToken removes the persisted subscription token, used when load
// discards a tampered or stale record.
func (r *repository) clearToken(ctx context.Context) error {
	future := r.q.EnqueueWrite(ctx, queue.PriorityNormal, func(ctx context.Context, db *sql.DB) (any, error) {
		_, err := db.ExecContext(ctx, "DELETE FROM subscription_state WHERE id = 1")
		return nil, err
	})
	_, err := future.Wait(ctx)
	return err
}

// recordActivation marks transactionCode as spent and appends an
// activation_history row inside a single transaction, so a duplicate
// payment can never be recorded as two activations. Callers are
// expected to have already rejected a known-duplicate transactionCode
// via transactionCodeUsed; the insert here is the atomicity backstop,
// not the primary duplicate check (queue.Transaction wraps any op error
// in apperrors.ErrTxFailure, so a constraint violation reaching this far
// surfaces as that, not ErrDuplicateTransaction).
func (r *repository) recordActivation(ctx context.Context, planID string, source string, activatedAt time.Time, transactionCode *string) error {
	future := r.q.Transaction(ctx, []queue.TxOp{
		func(ctx context.Context, tx *sql.Tx) (any, error) {
			if transactionCode != nil {
				if _, err := tx.ExecContext(ctx, "INSERT INTO used_transaction_codes (transaction_code, used_at) VALUES (?, ?)",
					*transactionCode, activatedAt); err != nil {
					return nil, err
				}
			}
			_, err := tx.ExecContext(ctx, "INSERT INTO activation_history (plan_id, source, activated_at) VALUES (?, ?, ?)",
				planID, source, activatedAt)
			return nil, err
		},
	})
	_, err := future.Wait(ctx)
	return err
}

// transactionCodeUsed reports whether code has already funded an
// activation.
func (r *repository) transactionCodeUsed(ctx context.Context, code string) (bool, error) {
	future := r.q.EnqueueRead(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		var count int
		err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM used_transaction_codes WHERE transaction_code = ?", code).Scan(&count)
		return count > 0, err
	})
	result, err := future.Wait(ctx)
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

// licenseKeyUsed reports whether keyHash has already been redeemed on
// this device.
func (r *repository) licenseKeyUsed(ctx context.Context, keyHash string) (bool, error) {
	future := r.q.EnqueueRead(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		var count int
		err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM used_license_keys WHERE key_hash = ?", keyHash).Scan(&count)
		return count > 0, err
	})
	result, err := future.Wait(ctx)
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

// redeemLicenseKey records keyHash as spent inside the same transaction
// as the activation history row. Callers are expected to have already
// rejected a known-duplicate key via licenseKeyUsed; see recordActivation
// for why this insert is an atomicity backstop, not the primary check.
func (r *repository) redeemLicenseKey(ctx context.Context, keyHash, planID string, activatedAt time.Time) error {
	future := r.q.Transaction(ctx, []queue.TxOp{
		func(ctx context.Context, tx *sql.Tx) (any, error) {
			if _, err := tx.ExecContext(ctx, "INSERT INTO used_license_keys (key_hash, used_at) VALUES (?, ?)", keyHash, activatedAt); err != nil {
				return nil, err
			}
			_, err := tx.ExecContext(ctx, "INSERT INTO activation_history (plan_id, source, activated_at) VALUES (?, ?, ?)",
				planID, "license_key", activatedAt)
			return nil, err
		},
	})
	_, err := future.Wait(ctx)
	return err
}
