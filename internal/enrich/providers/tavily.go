package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/radlabs/personalization-engine/internal/enrich"
)

// Tavily runs a web search on the lead's company domain. It is the weakest
// source and mostly contributes recent-news context.
type Tavily struct {
	baseURL  string
	apiKey   string
	priority int
	client   *http.Client
}

func NewTavily(baseURL, apiKey string, priority int, client *http.Client) *Tavily {
	return &Tavily{baseURL: baseURL, apiKey: apiKey, priority: priority, client: client}
}

func (t *Tavily) ID() string    { return "tavily" }
func (t *Tavily) Priority() int { return t.priority }

type tavilyResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"results"`
}

func (t *Tavily) Fetch(ctx context.Context, key enrich.ProfileKey) enrich.RawRecord {
	reqBody, err := json.Marshal(map[string]any{
		"api_key":        t.apiKey,
		"query":          "company overview and recent news for " + key.Domain,
		"max_results":    3,
		"include_answer": true,
	})
	if err != nil {
		return failRecord(t.ID(), t.priority, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/search", bytes.NewReader(reqBody))
	if err != nil {
		return failRecord(t.ID(), t.priority, err)
	}
	req.Header.Set("Content-Type", "application/json")

	var body tavilyResponse
	if err := doJSON(ctx, t.client, req, t.ID(), &body); err != nil {
		return failRecord(t.ID(), t.priority, err)
	}

	payload := map[string]string{}
	setIfPresent(payload, "company_news", strings.TrimSpace(body.Answer))
	if payload["company_news"] == "" && len(body.Results) > 0 {
		setIfPresent(payload, "company_news", strings.TrimSpace(body.Results[0].Content))
	}
	return okRecord(t.ID(), t.priority, payload)
}
