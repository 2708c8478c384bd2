// Package postgres implements the persistence contracts against PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/haywire-mail/relay-crm/internal/repository"
)

// Store implements every store contract over a *sql.DB. One Store serves the
// API server and the scheduler worker; the database provides the shared view
// between them.
type Store struct{ db *sql.DB }

// NewStore creates a Postgres-backed store.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// DB exposes the underlying handle for advisory locks and migrations.
func (s *Store) DB() *sql.DB { return s.db }

const activeDatabaseKey = "active_database_id"

// GetActiveDatabaseID returns the active tenant pointer. The pointer lives
// in the settings table, outside the tenant-owned tables, mirroring how the
// original tool keeps it outside the relational blob.
func (s *Store) GetActiveDatabaseID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = $1`, activeDatabaseKey).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get active database: %w", err)
	}
	return id, nil
}

// SetActiveDatabaseID moves the active tenant pointer. An empty id clears it.
func (s *Store) SetActiveDatabaseID(ctx context.Context, id string) error {
	if id == "" {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM settings WHERE key = $1`, activeDatabaseKey)
		if err != nil {
			return fmt.Errorf("clear active database: %w", err)
		}
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM databases WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check database: %w", err)
	}
	if !exists {
		return repository.ErrNotFound
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, activeDatabaseKey, id)
	if err != nil {
		return fmt.Errorf("set active database: %w", err)
	}
	return nil
}

// mapConstraintErr turns unique-violation errors into the shared sentinels.
func mapConstraintErr(err error, dup error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return dup
	}
	return err
}
