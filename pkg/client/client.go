// Package client is a small Go client for the personalization engine's HTTP
// API, including bounded polling for asynchronous jobs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrPollExhausted means the job did not reach a terminal state within the
// polling budget.
var ErrPollExhausted = errors.New("poll attempts exhausted")

// APIError is a non-2xx response from the engine.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("engine returned status %d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// Submission is the POST /enrich request body.
type Submission struct {
	Email       string `json:"email"`
	Name        string `json:"name,omitempty"`
	Company     string `json:"company,omitempty"`
	Role        string `json:"role,omitempty"`
	Industry    string `json:"industry,omitempty"`
	BuyingStage string `json:"buying_stage,omitempty"`
	Consent     bool   `json:"consent"`
}

type Personalization struct {
	IntroHook        string `json:"intro_hook"`
	CTA              string `json:"cta"`
	ModelUsed        string `json:"model_used"`
	TokensUsed       int    `json:"tokens_used"`
	AttemptCount     int    `json:"attempt_count"`
	CompliancePassed bool   `json:"compliance_passed"`
}

type JobStatus struct {
	JobID           string           `json:"job_id"`
	Status          string           `json:"status"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	Personalization *Personalization `json:"personalization,omitempty"`
}

// Terminal reports whether the job has finished, successfully or not.
func (j JobStatus) Terminal() bool {
	return j.Status == "completed" || j.Status == "failed"
}

type Delivery struct {
	URL         string    `json:"url"`
	StoragePath string    `json:"storage_path"`
	SizeBytes   int64     `json:"size_bytes"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Enrich submits a lead. In the engine's synchronous mode the returned status
// is already terminal; in asynchronous mode it is the pending job reference.
func (c *Client) Enrich(ctx context.Context, sub Submission) (JobStatus, error) {
	var out JobStatus
	err := c.do(ctx, http.MethodPost, "/enrich", sub, &out)
	return out, err
}

func (c *Client) GetJob(ctx context.Context, jobID string) (JobStatus, error) {
	var out JobStatus
	err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(jobID), nil, &out)
	return out, err
}

// RequestPDF asks the engine to render and deliver the stored
// personalization for an email.
func (c *Client) RequestPDF(ctx context.Context, email string) (Delivery, error) {
	var out Delivery
	err := c.do(ctx, http.MethodPost, "/pdf/"+url.PathEscape(email), nil, &out)
	return out, err
}

// PollUntilDone polls the job at a fixed interval until it reaches a
// terminal state, the attempt ceiling is hit (ErrPollExhausted), or the
// context ends. A failed poll consumes an attempt and polling continues, so
// one flaky response does not end the loop.
func (c *Client) PollUntilDone(ctx context.Context, jobID string, interval time.Duration, maxAttempts int) (JobStatus, error) {
	if maxAttempts <= 0 {
		return JobStatus{}, fmt.Errorf("maxAttempts must be positive")
	}
	var last JobStatus
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(interval)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return last, ctx.Err()
			}
		}
		status, err := c.GetJob(ctx, jobID)
		if err != nil {
			lastErr = err
			continue
		}
		last = status
		lastErr = nil
		if status.Terminal() {
			return status, nil
		}
	}
	if lastErr != nil {
		return last, fmt.Errorf("job %s: last poll failed after %d attempts: %v: %w", jobID, maxAttempts, lastErr, ErrPollExhausted)
	}
	return last, fmt.Errorf("job %s still %s after %d attempts: %w", jobID, last.Status, maxAttempts, ErrPollExhausted)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr)
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
