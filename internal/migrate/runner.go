package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Runner applies migration scripts, each in its own transaction
type Runner struct {
	db      *sql.DB
	tracker *Tracker
	logger  *zap.Logger
}

// Option configures a Runner
type Option func(*Runner)

// WithLogger sets the runner's logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a runner for db, binding parameters in placeholder style
func NewRunner(db *sql.DB, placeholder Placeholder, opts ...Option) *Runner {
	r := &Runner{
		db:      db,
		tracker: NewTracker(db, placeholder),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Initialize sets up the migration tracking table
func (r *Runner) Initialize(ctx context.Context) error {
	return r.tracker.Initialize(ctx)
}

// Apply runs m unless a script with the same checksum was already applied.
// It reports whether the script ran.
func (r *Runner) Apply(ctx context.Context, m *Migration) (bool, error) {
	if m.Up == "" {
		return false, fmt.Errorf("migration %s has no SQL", m.Name)
	}

	applied, err := r.tracker.IsApplied(ctx, m.Checksum)
	if err != nil {
		return false, err
	}
	if applied {
		r.logger.Info("migration already applied, skipping",
			zap.String("name", m.Name),
			zap.String("checksum", shortChecksum(m.Checksum)))
		return false, nil
	}

	start := time.Now()
	if err := r.applyMigration(ctx, m); err != nil {
		return false, fmt.Errorf("migration %s failed: %w", m.Name, err)
	}

	r.logger.Info("applied migration",
		zap.String("name", m.Name),
		zap.String("id", m.ID.String()),
		zap.String("checksum", shortChecksum(m.Checksum)),
		zap.Duration("took", time.Since(start)))
	return true, nil
}

// ApplyFile reads a script from path and applies it under its base name
func (r *Runner) ApplyFile(ctx context.Context, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read migration: %w", err)
	}
	return r.Apply(ctx, NewMigration(filepath.Base(path), string(data)))
}

// Applied returns the recorded migration history
func (r *Runner) Applied(ctx context.Context) ([]*Migration, error) {
	return r.tracker.GetApplied(ctx)
}

func (r *Runner) applyMigration(ctx context.Context, m *Migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			r.logger.Warn("failed to rollback transaction", zap.Error(err))
		}
	}()

	if _, err := tx.ExecContext(ctx, m.Up); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	if err := r.tracker.Record(ctx, tx, m); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func shortChecksum(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}
