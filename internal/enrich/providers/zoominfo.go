package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/radlabs/personalization-engine/internal/enrich"
)

type ZoomInfo struct {
	baseURL  string
	apiKey   string
	priority int
	client   *http.Client
}

func NewZoomInfo(baseURL, apiKey string, priority int, client *http.Client) *ZoomInfo {
	return &ZoomInfo{baseURL: baseURL, apiKey: apiKey, priority: priority, client: client}
}

func (z *ZoomInfo) ID() string    { return "zoominfo" }
func (z *ZoomInfo) Priority() int { return z.priority }

type zoomInfoResponse struct {
	Data struct {
		Result []struct {
			FirstName     string `json:"firstName"`
			LastName      string `json:"lastName"`
			JobTitle      string `json:"jobTitle"`
			CompanyName   string `json:"companyName"`
			Industry      string `json:"companyIndustry"`
			EmployeeCount int    `json:"companyEmployeeCount"`
			Phone         string `json:"phone"`
			Location      string `json:"location"`
		} `json:"result"`
	} `json:"data"`
}

func (z *ZoomInfo) Fetch(ctx context.Context, key enrich.ProfileKey) enrich.RawRecord {
	reqBody, err := json.Marshal(map[string]string{"emailAddress": key.Email})
	if err != nil {
		return failRecord(z.ID(), z.priority, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, z.baseURL+"/search/contact", bytes.NewReader(reqBody))
	if err != nil {
		return failRecord(z.ID(), z.priority, err)
	}
	req.Header.Set("Authorization", "Bearer "+z.apiKey)
	req.Header.Set("Content-Type", "application/json")

	var body zoomInfoResponse
	if err := doJSON(ctx, z.client, req, z.ID(), &body); err != nil {
		return failRecord(z.ID(), z.priority, err)
	}

	payload := map[string]string{}
	if len(body.Data.Result) > 0 {
		r := body.Data.Result[0]
		setIfPresent(payload, "full_name", joinNonEmpty(" ", r.FirstName, r.LastName))
		setIfPresent(payload, "title", r.JobTitle)
		setIfPresent(payload, "company", r.CompanyName)
		setIfPresent(payload, "industry", r.Industry)
		if r.EmployeeCount > 0 {
			payload["company_size"] = strconv.Itoa(r.EmployeeCount)
		}
		setIfPresent(payload, "phone", r.Phone)
		setIfPresent(payload, "location", r.Location)
	}
	return okRecord(z.ID(), z.priority, payload)
}
