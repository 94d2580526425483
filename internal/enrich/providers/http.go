// Package providers holds the adapters for the external enrichment
// upstreams. Each adapter normalizes its provider's response shape into the
// canonical payload field names the resolver understands.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/radlabs/personalization-engine/internal/util"
)

// HTTPError is a sanitized upstream failure. It carries the status code but
// never the response body, which may echo credentials or PII.
type HTTPError struct {
	Provider string
	Status   int
	URL      string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider %s: %s returned status %d", e.Provider, util.RedactSecrets(e.URL), e.Status)
}

func doJSON(ctx context.Context, client *http.Client, req *http.Request, provider string, out any) error {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("provider %s: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &HTTPError{Provider: provider, Status: resp.StatusCode, URL: req.URL.Redacted()}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("provider %s: decode response: %w", provider, err)
	}
	return nil
}

// setIfPresent adds a canonical field only when the upstream gave a value.
// Empty strings never enter the payload.
func setIfPresent(payload map[string]string, field, value string) {
	if value != "" {
		payload[field] = value
	}
}
