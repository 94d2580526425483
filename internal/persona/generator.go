package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/radlabs/personalization-engine/internal/config"
	"github.com/radlabs/personalization-engine/internal/resolve"
)

type Generator struct {
	model  TextModel
	cfg    config.GeneratorConfig
	logger *log.Logger
}

func NewGenerator(model TextModel, cfg config.GeneratorConfig, logger *log.Logger) *Generator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Generator{model: model, cfg: cfg, logger: logger}
}

// ModelFor picks the model tier: the quality tier for high-score profiles and
// VIP domains, the fast tier otherwise.
func (g *Generator) ModelFor(profile resolve.NormalizedProfile) string {
	if profile.Quality >= g.cfg.QualityThreshold {
		return g.cfg.QualityModel
	}
	for _, d := range g.cfg.VIPDomains {
		if strings.EqualFold(d, profile.Domain) {
			return g.cfg.QualityModel
		}
	}
	return g.cfg.FastModel
}

type draftJSON struct {
	IntroHook string `json:"intro_hook"`
	CTA       string `json:"cta"`
}

// Generate produces a draft within the attempt budget. Every failed attempt,
// whatever the failure, consumes one attempt; after a rejected response the
// prompt grows a corrective instruction. Exhaustion returns
// ErrGenerationExhausted with the attempt count preserved in the draft.
func (g *Generator) Generate(ctx context.Context, lead Lead, profile resolve.NormalizedProfile) (Draft, error) {
	model := g.ModelFor(profile)
	prompt := buildPrompt(lead, profile, g.cfg.MaxIntroLen, g.cfg.MaxCTALen)

	var lastReason string
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Draft{ModelUsed: model, AttemptCount: attempt - 1}, err
		}

		comp, err := g.model.Generate(ctx, model, prompt)
		if err != nil {
			lastReason = "model call failed"
			g.logger.Printf("stage=generate attempt=%d model=%s err=%v", attempt, model, err)
			continue
		}

		draft, reason := g.parse(comp)
		if reason == "" {
			draft.ModelUsed = model
			draft.AttemptCount = attempt
			return draft, nil
		}
		lastReason = reason
		g.logger.Printf("stage=generate attempt=%d model=%s rejected=%q", attempt, model, reason)
		prompt += correctiveInstruction(reason)
	}

	return Draft{ModelUsed: model, AttemptCount: g.cfg.MaxAttempts},
		fmt.Errorf("%w after %d attempts: %s", ErrGenerationExhausted, g.cfg.MaxAttempts, lastReason)
}

// parse validates one completion. An empty reason means the draft was
// accepted.
func (g *Generator) parse(comp Completion) (Draft, string) {
	text := stripCodeFences(comp.Text)
	var parsed draftJSON
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return Draft{}, "response was not valid JSON"
	}
	intro := strings.TrimSpace(parsed.IntroHook)
	cta := strings.TrimSpace(parsed.CTA)
	if intro == "" {
		return Draft{}, "intro_hook was empty"
	}
	if cta == "" {
		return Draft{}, "cta was empty"
	}
	if n := utf8.RuneCountInString(intro); n > g.cfg.MaxIntroLen {
		return Draft{}, fmt.Sprintf("intro_hook was %d characters, limit is %d", n, g.cfg.MaxIntroLen)
	}
	if n := utf8.RuneCountInString(cta); n > g.cfg.MaxCTALen {
		return Draft{}, fmt.Sprintf("cta was %d characters, limit is %d", n, g.cfg.MaxCTALen)
	}
	return Draft{IntroHook: intro, CTA: cta, TokensUsed: comp.TokensUsed}, ""
}

// stripCodeFences removes a surrounding markdown code fence, with or without
// a language tag. Models wrap JSON this way often enough to handle it here.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		first := strings.TrimSpace(s[:i])
		if first == "json" || first == "" {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
