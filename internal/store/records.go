package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/radlabs/personalization-engine/internal/enrich"
)

// SaveRawRecord upserts one provider record for an email. Re-enrichment
// supersedes the previous record for the same (email, provider) pair.
func (s *Store) SaveRawRecord(ctx context.Context, email string, rec enrich.RawRecord) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO raw_records (email, provider, priority, success, error, payload, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(email, provider) DO UPDATE SET
			priority = excluded.priority,
			success = excluded.success,
			error = excluded.error,
			payload = excluded.payload,
			fetched_at = excluded.fetched_at`,
		email, rec.Provider, rec.Priority, rec.Success, rec.Error, string(payload), rec.FetchedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save raw record %s/%s: %w", email, rec.Provider, err)
	}
	return nil
}

// ListRawRecords returns all stored provider records for an email.
func (s *Store) ListRawRecords(ctx context.Context, email string) ([]enrich.RawRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT provider, priority, success, error, payload, fetched_at
		FROM raw_records WHERE email = ? ORDER BY priority DESC`, email)
	if err != nil {
		return nil, fmt.Errorf("list raw records %s: %w", email, err)
	}
	defer rows.Close()

	var out []enrich.RawRecord
	for rows.Next() {
		var rec enrich.RawRecord
		var payload string
		if err := rows.Scan(&rec.Provider, &rec.Priority, &rec.Success, &rec.Error, &payload, &rec.FetchedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
			return nil, fmt.Errorf("decode payload %s/%s: %w", email, rec.Provider, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
