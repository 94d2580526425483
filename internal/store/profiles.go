package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/radlabs/personalization-engine/internal/resolve"
)

// SaveProfile upserts the resolved profile keyed by email, so re-enrichment
// refreshes rather than duplicates.
func (s *Store) SaveProfile(ctx context.Context, p resolve.NormalizedProfile) error {
	fields, err := json.Marshal(p.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	sources, err := json.Marshal(p.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (email, fields, quality, sources, resolved_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			fields = excluded.fields,
			quality = excluded.quality,
			sources = excluded.sources,
			resolved_at = excluded.resolved_at`,
		p.Email, string(fields), p.Quality, string(sources), p.ResolvedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save profile %s: %w", p.Email, err)
	}
	return nil
}

// GetProfile returns the stored profile for an email, or ErrNotFound.
func (s *Store) GetProfile(ctx context.Context, email string) (resolve.NormalizedProfile, error) {
	var p resolve.NormalizedProfile
	var fields, sources string
	err := s.db.QueryRowContext(ctx, `
		SELECT email, fields, quality, sources, resolved_at
		FROM profiles WHERE email = ?`, email).Scan(
		&p.Email, &fields, &p.Quality, &sources, &p.ResolvedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("profile %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return p, fmt.Errorf("get profile %s: %w", email, err)
	}
	if err := json.Unmarshal([]byte(fields), &p.Fields); err != nil {
		return p, fmt.Errorf("decode fields %s: %w", email, err)
	}
	if err := json.Unmarshal([]byte(sources), &p.Sources); err != nil {
		return p, fmt.Errorf("decode sources %s: %w", email, err)
	}
	if i := strings.LastIndexByte(p.Email, '@'); i >= 0 {
		p.Domain = p.Email[i+1:]
	}
	return p, nil
}
