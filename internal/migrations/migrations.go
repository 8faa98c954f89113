package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration is one versioned schema delta. Exactly one of Up or RunFn
// should be set; both execute inside the same runner-managed
// transaction that also records the schema_version row, so a
// migration's effects and its version marker are always durable
// together.
type Migration struct {
	Version int
	Name    string
	Up      []string
	RunFn   func(ctx context.Context, tx *sql.Tx) error
	// Skippable marks a migration whose failure should not be treated as
	// fatal; the runner logs and continues instead of returning
	// ErrMigrationFailed.
	Skippable bool
}

// All returns the full ordered migration set for the embedded store.
func All() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_messaging_core",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS conversations (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					thread_id TEXT NOT NULL UNIQUE,
					recipient_number TEXT NOT NULL,
					recipient_name TEXT,
					last_message_timestamp DATETIME,
					snippet TEXT,
					unread_count INTEGER NOT NULL DEFAULT 0,
					archived INTEGER NOT NULL DEFAULT 0,
					pinned INTEGER NOT NULL DEFAULT 0,
					muted INTEGER NOT NULL DEFAULT 0,
					draft_text TEXT,
					draft_saved_at DATETIME,
					color TEXT,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS conversation_messages (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					conversation_id INTEGER NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
					message_id TEXT NOT NULL UNIQUE,
					direction TEXT NOT NULL,
					address TEXT NOT NULL,
					body TEXT NOT NULL,
					timestamp DATETIME NOT NULL,
					date_sent DATETIME,
					read INTEGER NOT NULL DEFAULT 0,
					status TEXT NOT NULL,
					created_at DATETIME NOT NULL,
					campaign_id TEXT,
					variant_id TEXT
				)`,
			},
		},
		{
			Version: 2,
			Name:    "create_outbound_queue",
			Up: []string{
				// Priority and exhaustion tracking ship from the start, so
				// there is no separate "simple" queue table to migrate away
				// from.
				`CREATE TABLE IF NOT EXISTS sms_queue (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					to_number TEXT NOT NULL,
					body TEXT NOT NULL,
					enqueued_at DATETIME NOT NULL,
					status TEXT NOT NULL,
					retry_count INTEGER NOT NULL DEFAULT 0,
					sim_slot INTEGER NOT NULL DEFAULT 0,
					db_message_id INTEGER,
					priority INTEGER NOT NULL DEFAULT 0
				)`,
			},
		},
		{
			Version: 3,
			Name:    "create_send_logs",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS send_logs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					to_number TEXT NOT NULL,
					body TEXT NOT NULL,
					body_length INTEGER NOT NULL,
					timestamp DATETIME NOT NULL,
					status TEXT NOT NULL,
					sim_slot INTEGER NOT NULL DEFAULT 0,
					error TEXT
				)`,
			},
		},
		{
			// The priority/exhaustion columns are treated as permanent
			// rather than deprecated. Since v2 already creates them, this
			// migration's job is just to guarantee their presence for any
			// store that applied an older v2 without them.
			Version:   4,
			Name:      "ensure_outbound_priority_columns",
			Skippable: false,
			RunFn: func(ctx context.Context, tx *sql.Tx) error {
				return ensureColumns(ctx, tx, "sms_queue", map[string]string{
					"priority":      "INTEGER NOT NULL DEFAULT 0",
					"retry_count":   "INTEGER NOT NULL DEFAULT 0",
					"db_message_id": "INTEGER",
				})
			},
		},
		{
			Version: 5,
			Name:    "create_ingestion_and_campaign_tables",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS incoming_sms_buffer (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					phone TEXT NOT NULL,
					body TEXT NOT NULL,
					received_at DATETIME NOT NULL,
					processed INTEGER NOT NULL DEFAULT 0
				)`,
				`CREATE TABLE IF NOT EXISTS bulk_campaigns (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					template TEXT NOT NULL,
					sim_slot INTEGER NOT NULL DEFAULT 0,
					send_speed_ms INTEGER NOT NULL DEFAULT 400,
					total_recipients INTEGER NOT NULL DEFAULT 0,
					sent_count INTEGER NOT NULL DEFAULT 0,
					failed_count INTEGER NOT NULL DEFAULT 0,
					queued_count INTEGER NOT NULL DEFAULT 0,
					status TEXT NOT NULL DEFAULT 'pending',
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS opt_outs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					phone TEXT NOT NULL UNIQUE,
					opted_out_at DATETIME NOT NULL
				)`,
			},
		},
		{
			Version: 6,
			Name:    "create_transaction_tables",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS parsed_transactions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					source TEXT NOT NULL,
					raw_text TEXT NOT NULL,
					amount INTEGER,
					transaction_code TEXT,
					phone TEXT,
					parsed_at DATETIME NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS scheduled_sms (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					to_number TEXT NOT NULL,
					body TEXT NOT NULL,
					scheduled_for DATETIME NOT NULL,
					sent INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL
				)`,
			},
		},
		{
			Version: 7,
			Name:    "create_audit_log",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS audit_log (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					occurred_at DATETIME NOT NULL,
					actor_kind TEXT NOT NULL,
					action TEXT NOT NULL,
					entity_kind TEXT NOT NULL,
					entity_id TEXT NOT NULL,
					detail TEXT
				)`,
			},
		},
		{
			Version: 8,
			Name:    "create_entitlement_tables",
			Up: []string{
				`CREATE TABLE IF NOT EXISTS subscription_state (
					id INTEGER PRIMARY KEY CHECK (id = 1),
					token TEXT NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS used_transaction_codes (
					transaction_code TEXT PRIMARY KEY,
					used_at DATETIME NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS used_license_keys (
					key_hash TEXT PRIMARY KEY,
					used_at DATETIME NOT NULL
				)`,
				`CREATE TABLE IF NOT EXISTS activation_history (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					plan_id TEXT NOT NULL,
					source TEXT NOT NULL,
					activated_at DATETIME NOT NULL
				)`,
			},
		},
		{
			Version: 9,
			Name:    "create_hot_path_indexes",
			Up: []string{
				`CREATE INDEX IF NOT EXISTS idx_conversations_thread_id ON conversations(thread_id)`,
				`CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at)`,
				`CREATE INDEX IF NOT EXISTS idx_conversation_messages_timestamp ON conversation_messages(timestamp)`,
				`CREATE INDEX IF NOT EXISTS idx_conversation_messages_conversation_id ON conversation_messages(conversation_id)`,
				`CREATE INDEX IF NOT EXISTS idx_sms_queue_status ON sms_queue(status)`,
				`CREATE INDEX IF NOT EXISTS idx_sms_queue_to_number ON sms_queue(to_number)`,
				`CREATE INDEX IF NOT EXISTS idx_send_logs_to_number_timestamp ON send_logs(to_number, timestamp)`,
			},
		},
	}
}

// ensureColumns adds any column in want that table does not already
// have. Checks PRAGMA table_info first, since SQLite errors on ADD
// COLUMN for an existing column.
func ensureColumns(ctx context.Context, tx *sql.Tx, table string, want map[string]string) error {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("inspect %s: %w", table, err)
	}
	existing := map[string]bool{}
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			rows.Close()
			return fmt.Errorf("scan table_info(%s): %w", table, err)
		}
		existing[name] = true
	}
	rows.Close()

	for name, ddl := range want {
		if existing[name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, name, ddl)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s.%s: %w", table, name, err)
		}
	}
	return nil
}
