package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/radlabs/personalization-engine/internal/enrich"
)

// PDL queries the People Data Labs person-enrichment API.
type PDL struct {
	baseURL  string
	apiKey   string
	priority int
	client   *http.Client
}

func NewPDL(baseURL, apiKey string, priority int, client *http.Client) *PDL {
	return &PDL{baseURL: baseURL, apiKey: apiKey, priority: priority, client: client}
}

func (p *PDL) ID() string    { return "pdl" }
func (p *PDL) Priority() int { return p.priority }

type pdlResponse struct {
	Status int `json:"status"`
	Data   struct {
		FullName     string `json:"full_name"`
		JobTitle     string `json:"job_title"`
		CompanyName  string `json:"job_company_name"`
		Industry     string `json:"job_company_industry"`
		LinkedinURL  string `json:"linkedin_url"`
		LocationName string `json:"location_name"`
	} `json:"data"`
}

func (p *PDL) Fetch(ctx context.Context, key enrich.ProfileKey) enrich.RawRecord {
	u := fmt.Sprintf("%s/v5/person/enrich?email=%s", p.baseURL, url.QueryEscape(key.Email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return failRecord(p.ID(), p.priority, err)
	}
	req.Header.Set("X-Api-Key", p.apiKey)

	var body pdlResponse
	if err := doJSON(ctx, p.client, req, p.ID(), &body); err != nil {
		return failRecord(p.ID(), p.priority, err)
	}

	payload := map[string]string{}
	setIfPresent(payload, "full_name", body.Data.FullName)
	setIfPresent(payload, "title", body.Data.JobTitle)
	setIfPresent(payload, "company", body.Data.CompanyName)
	setIfPresent(payload, "industry", body.Data.Industry)
	setIfPresent(payload, "linkedin_url", body.Data.LinkedinURL)
	setIfPresent(payload, "location", body.Data.LocationName)
	return okRecord(p.ID(), p.priority, payload)
}
