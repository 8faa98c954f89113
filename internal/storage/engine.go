// Package storage owns the embedded relational store. It is the only
// non-test package in this module that imports a database/sql driver
// directly. The Migration Runner is handed the Engine's write handle
// directly; every other package reaches the database through the
// Operation Queue (internal/queue), which in turn borrows the Engine's
// handles.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/enjuguna-bit/bulksms-sub001/internal/apperrors"
)

// requiredTables are verified to exist by the integrity check on Open.
var requiredTables = []string{
	"schema_version",
	"conversations",
	"conversation_messages",
	"sms_queue",
	"send_logs",
	"audit_log",
}

// tableDDL recreates a required table from scratch, used by the
// rebuild-missing-tables recovery step. It mirrors the shape these
// tables have once the Migration Runner has applied its migrations, so
// a partially-corrupted store can be repaired without a full migration
// replay.
var tableDDL = map[string]string{
	"schema_version": `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at DATETIME NOT NULL
	)`,
	"conversations": `CREATE TABLE IF NOT EXISTS conversations (
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
	"conversation_messages": `CREATE TABLE IF NOT EXISTS conversation_messages (
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
	"sms_queue": `CREATE TABLE IF NOT EXISTS sms_queue (
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
	"send_logs": `CREATE TABLE IF NOT EXISTS send_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		to_number TEXT NOT NULL,
		body TEXT NOT NULL,
		body_length INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		status TEXT NOT NULL,
		sim_slot INTEGER NOT NULL DEFAULT 0,
		error TEXT
	)`,
	"audit_log": `CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		occurred_at DATETIME NOT NULL,
		actor_kind TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_kind TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		detail TEXT
	)`,
}

// Engine owns the embedded database connection(s). Writes go through a
// single-connection handle (SQLite's single-writer discipline); reads
// fan out across a small bounded pool so the Operation Queue can run a
// few concurrent reads under WAL.
type Engine struct {
	path     string
	writeDB  *sql.DB
	readDB   *sql.DB
	degraded bool
	logger   *log.Logger
	kv       *degradedStore
}

// Options configures Open.
type Options struct {
	Path               string
	OpenTimeout        time.Duration
	MaxConcurrentReads int
	Logger             *log.Logger
}

// Open opens the embedded store at opts.Path, pragma-configures it for
// WAL journaling, and runs the integrity check with recovery. It fails
// with apperrors.ErrInitTimeout if opening exceeds opts.OpenTimeout.
func Open(ctx context.Context, opts Options) (*Engine, error) {
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 5 * time.Second
	}
	if opts.MaxConcurrentReads <= 0 {
		opts.MaxConcurrentReads = 3
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[Storage] ", log.LstdFlags|log.Lmsgprefix)
	}

	openCtx, cancel := context.WithTimeout(ctx, opts.OpenTimeout)
	defer cancel()

	result := make(chan openResult, 1)
	go func() {
		e, err := openAndConfigure(opts, logger)
		result <- openResult{e, err}
	}()

	select {
	case <-openCtx.Done():
		return nil, apperrors.ErrInitTimeout
	case r := <-result:
		if r.err != nil {
			logger.Printf("open failed, falling back to degraded mode: %v", r.err)
			return newDegradedEngine(logger), apperrors.ErrNativeDependencyMissing
		}
		if err := r.engine.checkIntegrity(ctx); err != nil {
			return nil, err
		}
		return r.engine, nil
	}
}

type openResult struct {
	engine *Engine
	err    error
}

func openAndConfigure(opts Options, logger *log.Logger) (*Engine, error) {
	dsn := opts.Path
	if dsn == ":memory:" {
		// Use a shared-cache in-memory database so the separate write and
		// read handles observe the same data, matching how a real file-backed
		// store is shared across connections.
		dsn = "file::memory:?cache=shared&mode=memory"
	}
	writeDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open write handle: %w", err)
	}
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)

	readDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("open read handle: %w", err)
	}
	readDB.SetMaxOpenConns(opts.MaxConcurrentReads)
	readDB.SetMaxIdleConns(opts.MaxConcurrentReads)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=3000",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA cache_size=-10000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := writeDB.Exec(p); err != nil {
			writeDB.Close()
			readDB.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}
	for _, p := range []string{"PRAGMA busy_timeout=3000", "PRAGMA foreign_keys=ON"} {
		if _, err := readDB.Exec(p); err != nil {
			writeDB.Close()
			readDB.Close()
			return nil, fmt.Errorf("apply read pragma %q: %w", p, err)
		}
	}

	if err := writeDB.Ping(); err != nil {
		writeDB.Close()
		readDB.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &Engine{path: opts.Path, writeDB: writeDB, readDB: readDB, logger: logger}, nil
}

// WriteDB returns the single-writer handle. Only the Operation Queue's
// worker goroutine should use this.
func (e *Engine) WriteDB() *sql.DB {
	if e.degraded {
		return nil
	}
	return e.writeDB
}

// ReadDB returns the bounded-fanout read handle.
func (e *Engine) ReadDB() *sql.DB {
	if e.degraded {
		return nil
	}
	return e.readDB
}

// Degraded reports whether the Engine fell back to the degraded
// key-value emulation.
func (e *Engine) Degraded() bool {
	return e.degraded
}

// Close releases both handles.
func (e *Engine) Close() error {
	if e.degraded {
		return nil
	}
	werr := e.writeDB.Close()
	rerr := e.readDB.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// checkIntegrity verifies required tables exist and PRAGMA integrity_check
// passes, attempting up to two recovery steps before declaring
// apperrors.ErrIntegrityFailure.
func (e *Engine) checkIntegrity(ctx context.Context) error {
	for attempt := 0; attempt < 3; attempt++ {
		ok, err := e.integrityPasses(ctx)
		if err == nil && ok {
			return nil
		}
		if attempt == 2 {
			break
		}
		switch attempt {
		case 0:
			e.logger.Printf("integrity check failed (attempt %d), rebuilding missing tables", attempt+1)
			if rerr := e.rebuildMissingTables(ctx); rerr != nil {
				e.logger.Printf("rebuild failed: %v", rerr)
			}
		case 1:
			e.logger.Printf("integrity check failed (attempt %d), performing full recreate", attempt+1)
			if rerr := e.recreate(ctx); rerr != nil {
				e.logger.Printf("recreate failed: %v", rerr)
			}
		}
	}
	return apperrors.ErrIntegrityFailure
}

func (e *Engine) integrityPasses(ctx context.Context) (bool, error) {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var result string
	if err := e.writeDB.QueryRowContext(checkCtx, "PRAGMA integrity_check").Scan(&result); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return true, nil
		}
		return false, err
	}
	if result != "ok" {
		return false, nil
	}

	for _, table := range requiredTables {
		var name string
		err := e.writeDB.QueryRowContext(checkCtx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err == sql.ErrNoRows {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}
	return true, nil
}

func (e *Engine) rebuildMissingTables(ctx context.Context) error {
	for table, ddl := range tableDDL {
		if _, err := e.writeDB.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("rebuild %s: %w", table, err)
		}
	}
	return nil
}

func (e *Engine) recreate(ctx context.Context) error {
	if err := e.Close(); err != nil {
		e.logger.Printf("close before recreate: %v", err)
	}
	if e.path != ":memory:" {
		_ = os.Remove(e.path)
		_ = os.Remove(e.path + "-wal")
		_ = os.Remove(e.path + "-shm")
	}
	fresh, err := openAndConfigure(Options{Path: e.path}, e.logger)
	if err != nil {
		return err
	}
	e.writeDB = fresh.writeDB
	e.readDB = fresh.readDB
	return e.rebuildMissingTables(ctx)
}

// SizeBytes reports the on-disk size of the store. This is advisory
// only: callers flag sizes above the configured warn threshold but
// never block on it.
func (e *Engine) SizeBytes() (int64, error) {
	if e.degraded || e.path == ":memory:" {
		return 0, nil
	}
	info, err := os.Stat(e.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}
