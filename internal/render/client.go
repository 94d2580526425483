// Package render is the client for the PDF rendering collaborator. The
// engine only hands off content and records the signed URL it gets back; the
// renderer's internals are not its concern.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/radlabs/personalization-engine/internal/config"
	"github.com/radlabs/personalization-engine/internal/util"
)

type Client struct {
	baseURL string
	token   string
	urlTTL  time.Duration
	http    *http.Client
}

func New(cfg config.RenderConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout.Std()}
	}
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token(),
		urlTTL:  cfg.URLTTL.Std(),
		http:    httpClient,
	}
}

// Request is the content handed to the renderer.
type Request struct {
	Email     string            `json:"email"`
	IntroHook string            `json:"intro_hook"`
	CTA       string            `json:"cta"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// Result is the renderer's answer plus the computed link expiry.
type Result struct {
	URL         string    `json:"url"`
	StoragePath string    `json:"storage_path"`
	SizeBytes   int64     `json:"size_bytes"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type renderResponse struct {
	URL         string `json:"url"`
	StoragePath string `json:"storage_path"`
	SizeBytes   int64  `json:"size_bytes"`
}

// Render submits the document and returns the signed download link.
func (c *Client) Render(ctx context.Context, r Request) (Result, error) {
	body := struct {
		Request
		ExpiresInSeconds int64 `json:"expires_in_seconds"`
	}{Request: r, ExpiresInSeconds: int64(c.urlTTL.Seconds())}

	payload, err := json.Marshal(body)
	if err != nil {
		return Result{}, fmt.Errorf("render: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("render: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("render: %s", util.RedactSecrets(err.Error()))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Result{}, fmt.Errorf("render: service returned status %d", resp.StatusCode)
	}

	var parsed renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("render: decode response: %w", err)
	}
	if parsed.URL == "" {
		return Result{}, fmt.Errorf("render: response missing url")
	}
	return Result{
		URL:         parsed.URL,
		StoragePath: parsed.StoragePath,
		SizeBytes:   parsed.SizeBytes,
		ExpiresAt:   time.Now().UTC().Add(c.urlTTL),
	}, nil
}
