package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/radlabs/personalization-engine/internal/compliance"
)

// Output is the final validated personalization for one job.
type Output struct {
	JobID            string                 `json:"job_id"`
	Email            string                 `json:"email"`
	IntroHook        string                 `json:"intro_hook"`
	CTA              string                 `json:"cta"`
	ModelUsed        string                 `json:"model_used"`
	TokensUsed       int                    `json:"tokens_used"`
	AttemptCount     int                    `json:"attempt_count"`
	CompliancePassed bool                   `json:"compliance_passed"`
	Violations       []compliance.Violation `json:"violations"`
	CreatedAt        time.Time              `json:"created_at"`
}

func (s *Store) SaveOutput(ctx context.Context, out Output) error {
	violations, err := json.Marshal(out.Violations)
	if err != nil {
		return fmt.Errorf("marshal violations: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO outputs (job_id, email, intro_hook, cta, model_used, tokens_used,
			attempt_count, compliance_passed, violations, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			intro_hook = excluded.intro_hook,
			cta = excluded.cta,
			model_used = excluded.model_used,
			tokens_used = excluded.tokens_used,
			attempt_count = excluded.attempt_count,
			compliance_passed = excluded.compliance_passed,
			violations = excluded.violations`,
		out.JobID, out.Email, out.IntroHook, out.CTA, out.ModelUsed, out.TokensUsed,
		out.AttemptCount, out.CompliancePassed, string(violations), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save output %s: %w", out.JobID, err)
	}
	return nil
}

func (s *Store) GetOutputByJob(ctx context.Context, jobID string) (Output, error) {
	return s.getOutput(ctx, "job_id = ?", jobID)
}

// GetLatestOutput returns the most recent output for an email.
func (s *Store) GetLatestOutput(ctx context.Context, email string) (Output, error) {
	return s.getOutput(ctx, "email = ?", email)
}

func (s *Store) getOutput(ctx context.Context, where string, arg any) (Output, error) {
	var out Output
	var violations string
	err := s.db.QueryRowContext(ctx, `
		SELECT job_id, email, intro_hook, cta, model_used, tokens_used,
		       attempt_count, compliance_passed, violations, created_at
		FROM outputs WHERE `+where+` ORDER BY created_at DESC LIMIT 1`, arg).Scan(
		&out.JobID, &out.Email, &out.IntroHook, &out.CTA, &out.ModelUsed,
		&out.TokensUsed, &out.AttemptCount, &out.CompliancePassed, &violations, &out.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return out, fmt.Errorf("output %v: %w", arg, ErrNotFound)
	}
	if err != nil {
		return out, fmt.Errorf("get output %v: %w", arg, err)
	}
	if err := json.Unmarshal([]byte(violations), &out.Violations); err != nil {
		return out, fmt.Errorf("decode violations: %w", err)
	}
	return out, nil
}
