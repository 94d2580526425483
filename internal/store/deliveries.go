package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// Delivery is one PDF render handoff, tracked separately from job state.
type Delivery struct {
	ID           int64
	JobID        string
	Email        string
	StoragePath  string
	SignedURL    string
	ExpiresAt    *time.Time
	SizeBytes    int64
	Status       DeliveryStatus
	ErrorMessage string
	CreatedAt    time.Time
}

// CreateDelivery inserts a pending delivery row and returns its id.
func (s *Store) CreateDelivery(ctx context.Context, jobID, email string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries (job_id, email, status, created_at)
		VALUES (?, ?, ?, ?)`,
		jobID, email, DeliveryPending, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("create delivery: %w", err)
	}
	return res.LastInsertId()
}

// MarkDelivered records a successful render.
func (s *Store) MarkDelivered(ctx context.Context, id int64, storagePath, signedURL string, sizeBytes int64, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE deliveries
		SET status = ?, storage_path = ?, signed_url = ?, size_bytes = ?, expires_at = ?
		WHERE id = ?`,
		DeliveryDelivered, storagePath, signedURL, sizeBytes, expiresAt.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark delivery %d delivered: %w", id, err)
	}
	return nil
}

// MarkDeliveryFailed records a render failure without touching the output.
func (s *Store) MarkDeliveryFailed(ctx context.Context, id int64, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE deliveries SET status = ?, error_message = ? WHERE id = ?`,
		DeliveryFailed, message, id,
	)
	if err != nil {
		return fmt.Errorf("mark delivery %d failed: %w", id, err)
	}
	return nil
}

// GetDelivery returns one delivery row.
func (s *Store) GetDelivery(ctx context.Context, id int64) (Delivery, error) {
	var d Delivery
	var expires sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, job_id, email, storage_path, signed_url, expires_at,
		       size_bytes, status, error_message, created_at
		FROM deliveries WHERE id = ?`, id).Scan(
		&d.ID, &d.JobID, &d.Email, &d.StoragePath, &d.SignedURL, &expires,
		&d.SizeBytes, &d.Status, &d.ErrorMessage, &d.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return d, fmt.Errorf("delivery %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return d, fmt.Errorf("get delivery %d: %w", id, err)
	}
	if expires.Valid {
		t := expires.Time
		d.ExpiresAt = &t
	}
	return d, nil
}
