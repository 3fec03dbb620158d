package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/throttlegate/throttlegate/internal/core"
)

// LimitEntry is one row of the SLA table.
type LimitEntry struct {
	Limit     core.Limit
	UpdatedAt time.Time
}

// FetchLimit returns the SLA for identity, or core.ErrLimitNotFound.
func (s *Store) FetchLimit(ctx context.Context, identity string) (core.Limit, error) {
	if s == nil || s.DB == nil {
		return core.Limit{}, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var rps int
	row := s.DB.QueryRowContext(ctx, `SELECT rps FROM sla_limits WHERE identity = ?`, identity)
	if err := row.Scan(&rps); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Limit{}, fmt.Errorf("%w: %s", core.ErrLimitNotFound, identity)
		}
		return core.Limit{}, fmt.Errorf("fetch limit: %w", err)
	}
	return core.Limit{Identity: identity, RPS: rps}, nil
}

// UpsertLimit stores or replaces an identity's SLA.
func (s *Store) UpsertLimit(ctx context.Context, limit core.Limit) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	limit.Identity = strings.TrimSpace(limit.Identity)
	if limit.Identity == "" {
		return errors.New("identity is required")
	}
	if err := limit.Validate(); err != nil {
		return err
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO sla_limits (identity, rps, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			rps = excluded.rps,
			updated_at = excluded.updated_at
	`, limit.Identity, limit.RPS, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("store limit: %w", err)
	}
	return nil
}

// DeleteLimit removes an identity's SLA and reports whether it existed.
func (s *Store) DeleteLimit(ctx context.Context, identity string) (bool, error) {
	if s == nil || s.DB == nil {
		return false, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM sla_limits WHERE identity = ?`, strings.TrimSpace(identity))
	if err != nil {
		return false, fmt.Errorf("delete limit: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete limit: %w", err)
	}
	return affected > 0, nil
}

// ListLimits returns every SLA ordered by identity.
func (s *Store) ListLimits(ctx context.Context) ([]LimitEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT identity, rps, updated_at
		FROM sla_limits
		ORDER BY identity
	`)
	if err != nil {
		return nil, fmt.Errorf("list limits: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []LimitEntry{}
	for rows.Next() {
		var (
			entry     LimitEntry
			updatedAt int64
		)
		if err := rows.Scan(&entry.Limit.Identity, &entry.Limit.RPS, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan limits: %w", err)
		}
		entry.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list limits: %w", err)
	}
	return entries, nil
}
