// Package persona turns a normalized lead profile into a personalized
// outreach draft via a generative text model.
package persona

import (
	"context"
	"errors"
)

// ErrGenerationExhausted means the model never produced a usable draft within
// the attempt budget.
var ErrGenerationExhausted = errors.New("generation attempts exhausted")

// Lead carries the attributes the submitter declared about the recipient.
type Lead struct {
	Email       string
	Name        string
	Company     string
	Role        string
	Industry    string
	BuyingStage string
}

// Draft is one accepted generation result.
type Draft struct {
	IntroHook    string
	CTA          string
	ModelUsed    string
	TokensUsed   int
	AttemptCount int
}

// Completion is one raw model response.
type Completion struct {
	Text       string
	TokensUsed int
}

// TextModel is the generative backend. The production implementation wraps
// the Gemini API; tests substitute fakes.
type TextModel interface {
	Generate(ctx context.Context, model, prompt string) (Completion, error)
}
