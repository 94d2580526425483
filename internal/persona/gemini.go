package persona

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"google.golang.org/genai"

	"github.com/radlabs/personalization-engine/pkg/pipeline/core"
)

// GeminiConfig configures the production text model backend.
type GeminiConfig struct {
	APIKey string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

// Gemini implements TextModel on the Gemini API with a strict JSON response
// schema.
type Gemini struct {
	client *genai.Client
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Gemini{client: client}, nil
}

var draftSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"intro_hook": {Type: genai.TypeString},
		"cta":        {Type: genai.TypeString},
	},
	Required: []string{"intro_hook", "cta"},
}

func (m *Gemini) Generate(ctx context.Context, model, prompt string) (Completion, error) {
	resp, err := m.client.Models.GenerateContent(
		ctx,
		model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			CandidateCount:   1,
			ResponseMIMEType: "application/json",
			ResponseSchema:   draftSchema,
		},
	)
	if err != nil {
		return Completion{}, classifyErr(err)
	}
	out := Completion{Text: resp.Text()}
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	if strings.TrimSpace(out.Text) == "" {
		return out, fmt.Errorf("gemini: empty response from model %s", model)
	}
	return out, nil
}

func classifyErr(err error) error {
	// Wrap transient failures so callers with retry loops back off and retry.
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return &core.TransientError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && (ne.Timeout() || ne.Temporary()) {
		return &core.TransientError{Err: err}
	}
	return err
}
