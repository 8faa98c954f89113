package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/enjuguna-bit/bulksms-sub001/internal/apperrors"
)

// DefaultTimeout is the per-migration ceiling. A migration that runs
// longer is aborted and reported as apperrors.ErrMigrationTimeout; the
// caller decides whether that is fatal to startup.
const DefaultTimeout = 60 * time.Second

// Runner applies pending migrations against a *sql.DB directly. It runs
// once at boot, before the Operation Queue starts serving ordinary work,
// so it does not need to go through the queue's scheduling lanes.
type Runner struct {
	db      *sql.DB
	logger  *log.Logger
	timeout time.Duration
}

// NewRunner builds a Runner against db. A nil logger discards output.
func NewRunner(db *sql.DB, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(discard{}, "", 0)
	}
	return &Runner{db: db, logger: logger, timeout: DefaultTimeout}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// Apply runs every migration in set whose version exceeds the highest
// already-applied version, in ascending order. v1 always runs alone
// first; the remainder are applied sequentially afterward. Sequential
// application keeps each migration's transaction free of contention
// with its neighbors; nothing here requires them to run concurrently.
func (r *Runner) Apply(ctx context.Context, set []Migration) error {
	if err := r.ensureVersionTable(ctx); err != nil {
		return err
	}

	current, err := r.currentVersion(ctx)
	if err != nil {
		return err
	}

	ordered := make([]Migration, len(set))
	copy(ordered, set)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Version < ordered[j].Version })

	pending := make([]Migration, 0, len(ordered))
	for _, m := range ordered {
		if m.Version > current {
			pending = append(pending, m)
		}
	}

	for _, m := range pending {
		if err := r.applyOne(ctx, m); err != nil {
			if m.Skippable {
				r.logger.Printf("migration %d (%s) failed but is skippable: %v", m.Version, m.Name, err)
				continue
			}
			return err
		}
		r.logger.Printf("applied migration %d (%s)", m.Version, m.Name)
	}
	return nil
}

// CurrentVersion reports the highest applied migration version, or 0 if
// none have run yet.
func (r *Runner) CurrentVersion(ctx context.Context) (int, error) {
	if err := r.ensureVersionTable(ctx); err != nil {
		return 0, err
	}
	return r.currentVersion(ctx)
}

func (r *Runner) ensureVersionTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at DATETIME NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("ensure schema_version: %w", err)
	}
	return nil
}

func (r *Runner) currentVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := r.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read current version: %w", err)
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}

// applyOne runs a single migration's effects and its schema_version row
// insert inside one transaction, so the two are durable together.
func (r *Runner) applyOne(ctx context.Context, m Migration) error {
	timeout := r.timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- r.runInTx(runCtx, m)
	}()

	select {
	case <-runCtx.Done():
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, apperrors.ErrMigrationTimeout)
	case err := <-done:
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, apperrors.ErrMigrationFailed)
		}
		return nil
	}
}

func (r *Runner) runInTx(ctx context.Context, m Migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if m.RunFn != nil {
		if err := m.RunFn(ctx, tx); err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				r.logger.Printf("rollback after RunFn error: %v", rerr)
			}
			return err
		}
	}
	for _, stmt := range m.Up {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				r.logger.Printf("rollback after statement error: %v", rerr)
			}
			return err
		}
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_version (version, name, applied_at) VALUES (?, ?, ?)",
		m.Version, m.Name, time.Now().UTC())
	if err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			r.logger.Printf("rollback after version insert error: %v", rerr)
		}
		return err
	}

	return tx.Commit()
}
