package migrations

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared&mode=memory")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestApply_RunsFullSetInOrder(t *testing.T) {
	db := openTestDB(t)
	r := NewRunner(db, nil)
	ctx := context.Background()

	require.NoError(t, r.Apply(ctx, All()))

	var version int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_version").Scan(&version))
	assert.Equal(t, 9, version)

	for _, table := range []string{
		"conversations", "conversation_messages", "sms_queue", "send_logs",
		"incoming_sms_buffer", "bulk_campaigns", "opt_outs", "parsed_transactions",
		"scheduled_sms", "audit_log", "subscription_state", "used_transaction_codes",
		"used_license_keys", "activation_history",
	} {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s should exist after Apply", table)
	}
}

func TestApply_IsIdempotent(t *testing.T) {
	db := openTestDB(t)
	r := NewRunner(db, nil)
	ctx := context.Background()

	require.NoError(t, r.Apply(ctx, All()))
	require.NoError(t, r.Apply(ctx, All()), "re-applying a fully migrated store must be a no-op")

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&count))
	assert.Equal(t, len(All()), count)
}

func TestApply_OnlyRunsPendingVersions(t *testing.T) {
	db := openTestDB(t)
	r := NewRunner(db, nil)
	ctx := context.Background()

	first := All()[:3]
	require.NoError(t, r.Apply(ctx, first))

	var version int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_version").Scan(&version))
	assert.Equal(t, 3, version)

	require.NoError(t, r.Apply(ctx, All()))
	require.NoError(t, db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_version").Scan(&version))
	assert.Equal(t, 9, version)
}

func TestApply_V4EnsuresPriorityColumnsEvenIfDropped(t *testing.T) {
	db := openTestDB(t)
	r := NewRunner(db, nil)
	ctx := context.Background()

	require.NoError(t, r.Apply(ctx, All()[:2])) // v1, v2 only: base sms_queue with priority column

	// Simulate an older store whose sms_queue predates the priority column
	// by rebuilding it without one, then confirm v4 restores it.
	_, err := db.ExecContext(ctx, "DROP TABLE sms_queue")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `CREATE TABLE sms_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		to_number TEXT NOT NULL,
		body TEXT NOT NULL,
		enqueued_at DATETIME NOT NULL,
		status TEXT NOT NULL,
		sim_slot INTEGER NOT NULL DEFAULT 0
	)`)
	require.NoError(t, err)

	require.NoError(t, r.Apply(ctx, All()))

	rows, err := db.QueryContext(ctx, "PRAGMA table_info(sms_queue)")
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dflt sql.NullString
		require.NoError(t, rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk))
		found[name] = true
	}
	assert.True(t, found["priority"])
	assert.True(t, found["retry_count"])
	assert.True(t, found["db_message_id"])
}

func TestApply_SkippableMigrationFailureDoesNotAbortSet(t *testing.T) {
	db := openTestDB(t)
	r := NewRunner(db, nil)
	ctx := context.Background()

	set := []Migration{
		{Version: 1, Name: "base", Up: []string{"CREATE TABLE base (id INTEGER PRIMARY KEY)"}},
		{
			Version:   2,
			Name:      "broken_but_skippable",
			Skippable: true,
			Up:        []string{"SELECT * FROM no_such_table"},
		},
		{Version: 3, Name: "after", Up: []string{"CREATE TABLE after_table (id INTEGER PRIMARY KEY)"}},
	}

	require.NoError(t, r.Apply(ctx, set))

	var name string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='after_table'").Scan(&name)
	assert.NoError(t, err, "migrations after a skippable failure must still run")
}
