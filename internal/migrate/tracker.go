// Package migrate applies emitted schema-migration scripts to a database and
// records which scripts have already run.
package migrate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TableName is the table applied migrations are recorded in
const TableName = "redcapp_migrations"

// Migration is one script. Checksum identifies its content, so re-running
// an unchanged script is a no-op.
type Migration struct {
	ID        uuid.UUID
	Name      string
	Up        string
	Checksum  string
	AppliedAt time.Time
}

// NewMigration wraps a script, computing its checksum
func NewMigration(name, up string) *Migration {
	sum := sha256.Sum256([]byte(up))
	return &Migration{
		ID:       uuid.New(),
		Name:     name,
		Up:       up,
		Checksum: hex.EncodeToString(sum[:]),
	}
}

// Tracker manages migration history in the database
type Tracker struct {
	db          *sql.DB
	placeholder Placeholder
}

// NewTracker creates a tracker writing bind parameters in placeholder style
func NewTracker(db *sql.DB, placeholder Placeholder) *Tracker {
	return &Tracker{db: db, placeholder: placeholder}
}

// Initialize ensures the tracking table exists
func (t *Tracker) Initialize(ctx context.Context) error {
	query := `
CREATE TABLE IF NOT EXISTS ` + TableName + ` (
	id VARCHAR(36) PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	checksum VARCHAR(64) NOT NULL UNIQUE,
	applied_at TIMESTAMP NOT NULL
)`
	if _, err := t.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to initialize migrations table: %w", err)
	}
	return nil
}

// IsApplied checks whether a script with this checksum has been recorded
func (t *Tracker) IsApplied(ctx context.Context, checksum string) (bool, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE checksum = %s", TableName, t.placeholder.Arg(1))

	var count int
	if err := t.db.QueryRowContext(ctx, query, checksum).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check migration status: %w", err)
	}
	return count > 0, nil
}

// Record stores a migration inside the transaction that applied it
func (t *Tracker) Record(ctx context.Context, tx *sql.Tx, m *Migration) error {
	query := fmt.Sprintf(
		"INSERT INTO %s (id, name, checksum, applied_at) VALUES (%s, %s, %s, %s)",
		TableName,
		t.placeholder.Arg(1), t.placeholder.Arg(2), t.placeholder.Arg(3), t.placeholder.Arg(4),
	)

	if m.AppliedAt.IsZero() {
		m.AppliedAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx, query, m.ID.String(), m.Name, m.Checksum, m.AppliedAt); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return nil
}

// GetApplied returns every recorded migration, oldest first
func (t *Tracker) GetApplied(ctx context.Context) ([]*Migration, error) {
	query := fmt.Sprintf("SELECT id, name, checksum, applied_at FROM %s ORDER BY applied_at ASC, name ASC", TableName)

	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	var migrations []*Migration
	for rows.Next() {
		m := &Migration{}
		var id string
		if err := rows.Scan(&id, &m.Name, &m.Checksum, &m.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		if m.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid migration id %q: %w", id, err)
		}
		migrations = append(migrations, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migrations: %w", err)
	}
	return migrations, nil
}
