package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/radlabs/personalization-engine/internal/enrich"
)

// Apollo is the highest-ranked person/company enrichment upstream.
type Apollo struct {
	baseURL  string
	apiKey   string
	priority int
	client   *http.Client
}

func NewApollo(baseURL, apiKey string, priority int, client *http.Client) *Apollo {
	return &Apollo{baseURL: baseURL, apiKey: apiKey, priority: priority, client: client}
}

func (a *Apollo) ID() string    { return "apollo" }
func (a *Apollo) Priority() int { return a.priority }

type apolloResponse struct {
	Person struct {
		Name         string `json:"name"`
		Title        string `json:"title"`
		LinkedinURL  string `json:"linkedin_url"`
		City         string `json:"city"`
		State        string `json:"state"`
		Organization struct {
			Name         string `json:"name"`
			Industry     string `json:"industry"`
			NumEmployees int    `json:"estimated_num_employees"`
		} `json:"organization"`
	} `json:"person"`
}

func (a *Apollo) Fetch(ctx context.Context, key enrich.ProfileKey) enrich.RawRecord {
	u := fmt.Sprintf("%s/v1/people/match?email=%s", a.baseURL, url.QueryEscape(key.Email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return failRecord(a.ID(), a.priority, err)
	}
	req.Header.Set("X-Api-Key", a.apiKey)
	req.Header.Set("Accept", "application/json")

	var body apolloResponse
	if err := doJSON(ctx, a.client, req, a.ID(), &body); err != nil {
		return failRecord(a.ID(), a.priority, err)
	}

	p := body.Person
	payload := map[string]string{}
	setIfPresent(payload, "full_name", p.Name)
	setIfPresent(payload, "title", p.Title)
	setIfPresent(payload, "company", p.Organization.Name)
	setIfPresent(payload, "industry", p.Organization.Industry)
	setIfPresent(payload, "linkedin_url", p.LinkedinURL)
	if p.Organization.NumEmployees > 0 {
		payload["company_size"] = strconv.Itoa(p.Organization.NumEmployees)
	}
	setIfPresent(payload, "location", joinNonEmpty(", ", p.City, p.State))
	return okRecord(a.ID(), a.priority, payload)
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
