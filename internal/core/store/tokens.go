package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TokenEntry is one row of the token directory.
type TokenEntry struct {
	Token     string
	Identity  string
	Note      string
	UpdatedAt time.Time
}

// TokenQuery selects directory rows. Exactly one selector is honored, in
// field order.
type TokenQuery struct {
	All      bool
	Identity string
	Prefix   string
}

func (q TokenQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Identity) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify --all, --identity, or --prefix")
}

func (q TokenQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if q.All {
		return "", nil, nil
	}
	if identity := strings.TrimSpace(q.Identity); identity != "" {
		return "WHERE identity = ?", []any{identity}, nil
	}
	return "WHERE token LIKE ?", []any{strings.TrimSpace(q.Prefix) + "%"}, nil
}

// UpsertToken maps token to identity, replacing any previous mapping.
func (s *Store) UpsertToken(ctx context.Context, token, identity, note string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	token = strings.TrimSpace(token)
	identity = strings.TrimSpace(identity)
	if token == "" {
		return errors.New("token is required")
	}
	if identity == "" {
		return errors.New("identity is required")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO tokens (token, identity, note, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			identity = excluded.identity,
			note = excluded.note,
			updated_at = excluded.updated_at
	`, token, identity, strings.TrimSpace(note), time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

// DeleteToken removes token and reports whether it existed.
func (s *Store) DeleteToken(ctx context.Context, token string) (bool, error) {
	if s == nil || s.DB == nil {
		return false, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM tokens WHERE token = ?`, strings.TrimSpace(token))
	if err != nil {
		return false, fmt.Errorf("delete token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete token: %w", err)
	}
	return affected > 0, nil
}

// ListTokens returns matching rows ordered by token.
func (s *Store) ListTokens(ctx context.Context, q TokenQuery) ([]TokenEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT token, identity, COALESCE(note, ''), updated_at
		FROM tokens
		%s
		ORDER BY token
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []TokenEntry{}
	for rows.Next() {
		var (
			entry     TokenEntry
			updatedAt int64
		)
		if err := rows.Scan(&entry.Token, &entry.Identity, &entry.Note, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan tokens: %w", err)
		}
		entry.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	return entries, nil
}

// LoadTokens returns the whole directory as token -> identity.
func (s *Store) LoadTokens(ctx context.Context) (map[string]string, error) {
	entries, err := s.ListTokens(ctx, TokenQuery{All: true})
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(entries))
	for _, entry := range entries {
		out[entry.Token] = entry.Identity
	}
	return out, nil
}
