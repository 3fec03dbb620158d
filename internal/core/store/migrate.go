package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tokens (
		token TEXT PRIMARY KEY,
		identity TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_tokens_identity ON tokens(identity);`,
	`CREATE TABLE IF NOT EXISTS sla_limits (
		identity TEXT PRIMARY KEY,
		rps INTEGER NOT NULL CHECK (rps > 0),
		updated_at INTEGER NOT NULL
	);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	if err := s.ensureColumn(ctx, "tokens", "note", "TEXT"); err != nil {
		return err
	}

	return nil
}

// ensureColumn adds a column to databases created before it existed.
func (s *Store) ensureColumn(ctx context.Context, table, column, columnDef string) error {
	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("inspect %s schema: %w", table, err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	found := false
	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("inspect %s columns: %w", table, err)
		}
		if name == column {
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect %s columns: %w", table, err)
	}
	_ = rows.Close()
	if found {
		return nil
	}

	if _, err := s.DB.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, columnDef)); err != nil {
		return fmt.Errorf("add %s.%s column: %w", table, column, err)
	}

	return nil
}
