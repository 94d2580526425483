package providers

import (
	"context"
	"time"

	"github.com/radlabs/personalization-engine/internal/enrich"
)

// Stub stands in for a provider whose credentials are not configured. It
// returns the same failed record every time so the rest of the pipeline sees
// an ordinary unsuccessful provider, not a special case.
type Stub struct {
	id       string
	priority int
}

func NewStub(id string, priority int) *Stub {
	return &Stub{id: id, priority: priority}
}

func (s *Stub) ID() string    { return s.id }
func (s *Stub) Priority() int { return s.priority }

func (s *Stub) Fetch(ctx context.Context, key enrich.ProfileKey) enrich.RawRecord {
	return enrich.RawRecord{
		Provider:  s.id,
		Priority:  s.priority,
		Success:   false,
		Error:     "credentials not configured",
		FetchedAt: time.Now().UTC(),
	}
}
