package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/radlabs/personalization-engine/internal/enrich"
)

// Hunter verifies the address and contributes basic person fields.
type Hunter struct {
	baseURL  string
	apiKey   string
	priority int
	client   *http.Client
}

func NewHunter(baseURL, apiKey string, priority int, client *http.Client) *Hunter {
	return &Hunter{baseURL: baseURL, apiKey: apiKey, priority: priority, client: client}
}

func (h *Hunter) ID() string    { return "hunter" }
func (h *Hunter) Priority() int { return h.priority }

type hunterResponse struct {
	Data struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Position  string `json:"position"`
		Company   string `json:"company"`
	} `json:"data"`
}

func (h *Hunter) Fetch(ctx context.Context, key enrich.ProfileKey) enrich.RawRecord {
	u := fmt.Sprintf("%s/v2/email-verifier?email=%s&api_key=%s",
		h.baseURL, url.QueryEscape(key.Email), url.QueryEscape(h.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return failRecord(h.ID(), h.priority, err)
	}

	var body hunterResponse
	if err := doJSON(ctx, h.client, req, h.ID(), &body); err != nil {
		return failRecord(h.ID(), h.priority, err)
	}

	payload := map[string]string{}
	setIfPresent(payload, "full_name", joinNonEmpty(" ", body.Data.FirstName, body.Data.LastName))
	setIfPresent(payload, "title", body.Data.Position)
	setIfPresent(payload, "company", body.Data.Company)
	return okRecord(h.ID(), h.priority, payload)
}
