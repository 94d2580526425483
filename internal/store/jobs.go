package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusEnriching  Status = "enriching"
	StatusGenerating Status = "generating"
	StatusValidating Status = "validating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo encodes the forward-only job lifecycle. Failure is
// reachable from any non-terminal state; nothing leaves a terminal state.
func (s Status) CanTransitionTo(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	switch s {
	case StatusPending:
		return next == StatusEnriching
	case StatusEnriching:
		return next == StatusGenerating
	case StatusGenerating:
		return next == StatusValidating
	case StatusValidating:
		return next == StatusCompleted
	}
	return false
}

type Job struct {
	ID           string
	Email        string
	Name         string
	Company      string
	Role         string
	Industry     string
	BuyingStage  string
	Consent      bool
	Status       Status
	ErrorMessage string
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// CreateJob inserts a new pending job and returns its generated id.
func (s *Store) CreateJob(ctx context.Context, job Job) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, email, name, company, role, industry, buying_stage, consent, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, job.Email, job.Name, job.Company, job.Role, job.Industry, job.BuyingStage,
		job.Consent, StatusPending, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	return id, nil
}

// UpdateStatus moves a job forward. Illegal transitions return
// ErrInvalidTransition; terminal states also stamp completed_at.
func (s *Store) UpdateStatus(ctx context.Context, id string, next Status) error {
	return s.transition(ctx, id, next, "")
}

// MarkFailed moves a job to failed with a user-facing message.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	return s.transition(ctx, id, StatusFailed, message)
}

func (s *Store) transition(ctx context.Context, id string, next Status, message string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current Status
	err = tx.QueryRowContext(ctx, "SELECT status FROM jobs WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read job %s: %w", id, err)
	}
	if !current.CanTransitionTo(next) {
		return fmt.Errorf("job %s: %s -> %s: %w", id, current, next, ErrInvalidTransition)
	}

	if next.Terminal() {
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET status = ?, error_message = ?, completed_at = ? WHERE id = ?`,
			next, message, time.Now().UTC(), id)
	} else {
		_, err = tx.ExecContext(ctx, "UPDATE jobs SET status = ? WHERE id = ?", next, id)
	}
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	return tx.Commit()
}

func (s *Store) GetJob(ctx context.Context, id string) (Job, error) {
	var job Job
	var completed sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, company, role, industry, buying_stage, consent,
		       status, error_message, created_at, completed_at
		FROM jobs WHERE id = ?`, id).Scan(
		&job.ID, &job.Email, &job.Name, &job.Company, &job.Role, &job.Industry,
		&job.BuyingStage, &job.Consent, &job.Status, &job.ErrorMessage,
		&job.CreatedAt, &completed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	if completed.Valid {
		t := completed.Time
		job.CompletedAt = &t
	}
	return job, nil
}
