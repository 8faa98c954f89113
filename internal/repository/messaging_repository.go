// Package repository turns the Operation Queue's closure-based
// WriteFn/ReadFn/TxOp primitives into typed, synchronous methods, the
// same shape a *sql.DB-backed repository exposes to handlers and
// services.
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

// MessagingRepository owns conversations and their messages.
type MessagingRepository struct {
	q *queue.Queue
}

// NewMessagingRepository creates a MessagingRepository backed by q.
func NewMessagingRepository(q *queue.Queue) *MessagingRepository {
	return &MessagingRepository{q: q}
}

// UpsertIncoming records an inbound message, creating the owning
// conversation if this is the first message from address. Idempotent on
// messageID: a retry of the same native message ID is a no-op that
// still returns the existing message's conversation ID.
func (r *MessagingRepository) UpsertIncoming(ctx context.Context, threadID, address, messageID, body string, ts time.Time) (conversationID int64, err error) {
	future := r.q.Transaction(ctx, []queue.TxOp{
		func(ctx context.Context, tx *sql.Tx) (any, error) {
			var existing int64
			scanErr := tx.QueryRowContext(ctx,
				"SELECT conversation_id FROM conversation_messages WHERE message_id = ?", messageID).Scan(&existing)
			if scanErr == nil {
				return existing, nil
			}
			if scanErr != sql.ErrNoRows {
				return nil, scanErr
			}

			convID, convErr := findOrCreateConversationTx(ctx, tx, threadID, address)
			if convErr != nil {
				return nil, convErr
			}

			storedBody, truncated := models.TruncateBody(body)
			status := models.MessageStatusReceived
			if truncated {
				status = models.MessageStatusTruncated
			}
			_, insErr := tx.ExecContext(ctx, `INSERT INTO conversation_messages
				(conversation_id, message_id, direction, address, body, timestamp, date_sent, read, status, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
				convID, messageID, models.DirectionIncoming, address, storedBody, ts, ts, status, time.Now().UTC())
			if insErr != nil {
				return nil, insErr
			}

			_, updErr := tx.ExecContext(ctx, `UPDATE conversations SET
				last_message_timestamp = ?, snippet = ?, unread_count = unread_count + 1, updated_at = ?
				WHERE id = ?`,
				ts, models.TruncateSnippet(storedBody), time.Now().UTC(), convID)
			if updErr != nil {
				return nil, updErr
			}
			return convID, nil
		},
	})

	result, err := future.Wait(ctx)
	if err != nil {
		return 0, err
	}
	return result.(int64), nil
}

// findOrCreateConversationTx matches threadID exactly first. Failing
// that, when address is digit-dominant with at least 9 digits, it
// falls back to a suffix match against the last 9 digits (the most
// recently active match wins) so formatting variants of the same
// number - "+254712345678" vs "0712345678" - merge into one
// conversation instead of spawning duplicates. Alphanumeric sender IDs
// never suffix-match.
func findOrCreateConversationTx(ctx context.Context, tx *sql.Tx, threadID, address string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, "SELECT id FROM conversations WHERE thread_id = ?", threadID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	if suffix, ok := phoneSuffix(address); ok {
		like := "%" + suffix
		err := tx.QueryRowContext(ctx, `SELECT id FROM conversations
			WHERE thread_id LIKE ? OR recipient_number LIKE ?
			ORDER BY last_message_timestamp DESC LIMIT 1`, like, like).Scan(&id)
		if err == nil {
			return id, nil
		}
		if err != sql.ErrNoRows {
			return 0, err
		}
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `INSERT INTO conversations
		(thread_id, recipient_number, recipient_name, unread_count, archived, pinned, muted, color, created_at, updated_at)
		VALUES (?, ?, '', 0, 0, 0, 0, ?, ?, ?)`,
		threadID, address, models.ColorForAddress(address), now, now)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// phoneSuffix returns the last 9 digits of address and true, unless
// address contains a letter (an alphanumeric sender ID) or has fewer
// than 9 digits, in which case it never participates in suffix
// matching.
func phoneSuffix(address string) (string, bool) {
	var digits []byte
	for i := 0; i < len(address); i++ {
		c := address[i]
		switch {
		case c >= '0' && c <= '9':
			digits = append(digits, c)
		case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
			return "", false
		}
	}
	if len(digits) < 9 {
		return "", false
	}
	return string(digits[len(digits)-9:]), true
}

// RecordOutgoing appends a sent/pending outgoing message to its
// conversation, creating the conversation on first contact.
func (r *MessagingRepository) RecordOutgoing(ctx context.Context, address, messageID, body string, campaignID, variantID *string) (conversationID int64, err error) {
	future := r.q.Transaction(ctx, []queue.TxOp{
		func(ctx context.Context, tx *sql.Tx) (any, error) {
			convID, convErr := findOrCreateConversationTx(ctx, tx, address, address)
			if convErr != nil {
				return nil, convErr
			}
			storedBody, truncated := models.TruncateBody(body)
			status := models.MessageStatusPending
			if truncated {
				status = models.MessageStatusTruncated
			}
			now := time.Now().UTC()
			_, insErr := tx.ExecContext(ctx, `INSERT INTO conversation_messages
				(conversation_id, message_id, direction, address, body, timestamp, date_sent, read, status, created_at, campaign_id, variant_id)
				VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?)`,
				convID, messageID, models.DirectionOutgoing, address, storedBody, now, now, status, now, campaignID, variantID)
			if insErr != nil {
				return nil, insErr
			}
			_, updErr := tx.ExecContext(ctx, `UPDATE conversations SET
				last_message_timestamp = ?, snippet = ?, updated_at = ? WHERE id = ?`,
				now, models.TruncateSnippet(storedBody), now, convID)
			if updErr != nil {
				return nil, updErr
			}
			return convID, nil
		},
	})
	result, err := future.Wait(ctx)
	if err != nil {
		return 0, err
	}
	return result.(int64), nil
}

// MarkMessageStatus advances a message's lifecycle status, used by the
// send pipeline.
func (r *MessagingRepository) MarkMessageStatus(ctx context.Context, messageID string, status models.MessageStatus) error {
	future := r.q.EnqueueWrite(ctx, queue.PriorityNormal, func(ctx context.Context, db *sql.DB) (any, error) {
		res, err := db.ExecContext(ctx, "UPDATE conversation_messages SET status = ? WHERE message_id = ?", status, messageID)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, apperrors.ErrNotFound
		}
		return nil, nil
	})
	_, err := future.Wait(ctx)
	return err
}

// SaveDraft persists or clears the draft text for a conversation.
func (r *MessagingRepository) SaveDraft(ctx context.Context, conversationID int64, draft *string) error {
	future := r.q.EnqueueWrite(ctx, queue.PriorityNormal, func(ctx context.Context, db *sql.DB) (any, error) {
		var savedAt *time.Time
		if draft != nil && *draft != "" {
			now := time.Now().UTC()
			savedAt = &now
		}
		_, err := db.ExecContext(ctx,
			"UPDATE conversations SET draft_text = ?, draft_saved_at = ?, updated_at = ? WHERE id = ?",
			draft, savedAt, time.Now().UTC(), conversationID)
		return nil, err
	})
	_, err := future.Wait(ctx)
	return err
}

// SetArchived toggles a conversation's archived flag.
func (r *MessagingRepository) SetArchived(ctx context.Context, conversationID int64, archived bool) error {
	return r.setFlag(ctx, conversationID, "archived", archived)
}

// SetPinned toggles a conversation's pinned flag.
func (r *MessagingRepository) SetPinned(ctx context.Context, conversationID int64, pinned bool) error {
	return r.setFlag(ctx, conversationID, "pinned", pinned)
}

// SetMuted toggles a conversation's muted flag.
func (r *MessagingRepository) SetMuted(ctx context.Context, conversationID int64, muted bool) error {
	return r.setFlag(ctx, conversationID, "muted", muted)
}

func (r *MessagingRepository) setFlag(ctx context.Context, conversationID int64, column string, value bool) error {
	future := r.q.EnqueueWrite(ctx, queue.PriorityNormal, func(ctx context.Context, db *sql.DB) (any, error) {
		stmt := "UPDATE conversations SET " + column + " = ?, updated_at = ? WHERE id = ?"
		_, err := db.ExecContext(ctx, stmt, value, time.Now().UTC(), conversationID)
		return nil, err
	})
	_, err := future.Wait(ctx)
	return err
}

// MarkRead zeroes a conversation's unread counter and flips its unread
// messages to read.
func (r *MessagingRepository) MarkRead(ctx context.Context, conversationID int64) error {
	future := r.q.Transaction(ctx, []queue.TxOp{
		func(ctx context.Context, tx *sql.Tx) (any, error) {
			_, err := tx.ExecContext(ctx, "UPDATE conversations SET unread_count = 0, updated_at = ? WHERE id = ?",
				time.Now().UTC(), conversationID)
			return nil, err
		},
		func(ctx context.Context, tx *sql.Tx) (any, error) {
			_, err := tx.ExecContext(ctx,
				"UPDATE conversation_messages SET read = 1 WHERE conversation_id = ? AND read = 0", conversationID)
			return nil, err
		},
	})
	_, err := future.Wait(ctx)
	return err
}

// ListConversations applies the requested filter, search query and sort
// order.
func (r *MessagingRepository) ListConversations(ctx context.Context, opts models.ConversationListOptions) ([]models.Conversation, error) {
	future := r.q.EnqueueRead(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		query, args := buildConversationQuery(opts)
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []models.Conversation
		for rows.Next() {
			var c models.Conversation
			if err := rows.Scan(&c.ID, &c.ThreadID, &c.RecipientNumber, &c.RecipientName,
				&c.LastMessageTimestamp, &c.Snippet, &c.UnreadCount, &c.Archived, &c.Pinned, &c.Muted,
				&c.DraftText, &c.DraftSavedAt, &c.Color, &c.CreatedAt, &c.UpdatedAt); err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, rows.Err()
	})
	result, err := future.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return result.([]models.Conversation), nil
}

func buildConversationQuery(opts models.ConversationListOptions) (string, []any) {
	query := "SELECT id, thread_id, recipient_number, recipient_name, last_message_timestamp, snippet, " +
		"unread_count, archived, pinned, muted, draft_text, draft_saved_at, color, created_at, updated_at FROM conversations WHERE 1=1"
	var args []any

	switch opts.Filter {
	case models.ConversationFilterUnread:
		query += " AND unread_count > 0 AND archived = 0"
	case models.ConversationFilterArchived:
		query += " AND archived = 1"
	case models.ConversationFilterAll:
		// no archived constraint: surfaces both active and archived threads
	default:
		query += " AND archived = 0"
	}

	if opts.Query != "" {
		query += " AND (recipient_name LIKE ? OR recipient_number LIKE ? OR snippet LIKE ?)"
		like := "%" + opts.Query + "%"
		args = append(args, like, like, like)
	}

	switch opts.Sort {
	case models.ConversationSortUnreadFirst:
		query += " ORDER BY (unread_count > 0) DESC, last_message_timestamp DESC"
	case models.ConversationSortAlphabetical:
		query += " ORDER BY recipient_name ASC"
	case models.ConversationSortPinnedFirst:
		query += " ORDER BY pinned DESC, last_message_timestamp DESC"
	default:
		query += " ORDER BY last_message_timestamp DESC"
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)
	return query, args
}

// ListMessages returns a conversation's messages oldest-first.
func (r *MessagingRepository) ListMessages(ctx context.Context, conversationID int64, limit, offset int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	future := r.q.EnqueueRead(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		rows, err := db.QueryContext(ctx, `SELECT id, conversation_id, message_id, direction, address, body,
			timestamp, date_sent, read, status, created_at, campaign_id, variant_id
			FROM conversation_messages WHERE conversation_id = ? ORDER BY timestamp ASC LIMIT ? OFFSET ?`,
			conversationID, limit, offset)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []models.Message
		for rows.Next() {
			var m models.Message
			if err := rows.Scan(&m.ID, &m.ConversationID, &m.MessageID, &m.Direction, &m.Address, &m.Body,
				&m.Timestamp, &m.DateSent, &m.Read, &m.Status, &m.CreatedAt, &m.CampaignID, &m.VariantID); err != nil {
				return nil, err
			}
			out = append(out, m)
		}
		return out, rows.Err()
	})
	result, err := future.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return result.([]models.Message), nil
}

// GetConversationByThread fetches a single conversation, returning
// apperrors.ErrNotFound if absent.
func (r *MessagingRepository) GetConversationByThread(ctx context.Context, threadID string) (*models.Conversation, error) {
	future := r.q.EnqueueRead(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		var c models.Conversation
		err := db.QueryRowContext(ctx, `SELECT id, thread_id, recipient_number, recipient_name,
			last_message_timestamp, snippet, unread_count, archived, pinned, muted, draft_text, draft_saved_at,
			color, created_at, updated_at FROM conversations WHERE thread_id = ?`, threadID).Scan(
			&c.ID, &c.ThreadID, &c.RecipientNumber, &c.RecipientName, &c.LastMessageTimestamp, &c.Snippet,
			&c.UnreadCount, &c.Archived, &c.Pinned, &c.Muted, &c.DraftText, &c.DraftSavedAt, &c.Color,
			&c.CreatedAt, &c.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return &c, nil
	})
	result, err := future.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return result.(*models.Conversation), nil
}
