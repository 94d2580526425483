// Package enrich fans a lead out to the configured enrichment providers and
// collects one raw record per provider call.
package enrich

import (
	"context"
	"strings"
	"time"
)

// ProfileKey identifies the lead being enriched.
type ProfileKey struct {
	Email  string
	Domain string
}

// KeyForEmail derives the profile key from an email address.
func KeyForEmail(email string) ProfileKey {
	key := ProfileKey{Email: strings.ToLower(strings.TrimSpace(email))}
	if i := strings.LastIndexByte(key.Email, '@'); i >= 0 {
		key.Domain = key.Email[i+1:]
	}
	return key
}

// RawRecord is the outcome of one provider call, successful or not. Exactly
// one is produced per provider per enrichment pass.
type RawRecord struct {
	Provider  string
	Priority  int
	Success   bool
	Error     string
	Payload   map[string]string
	FetchedAt time.Time
}

// Provider is one enrichment upstream. Fetch never returns an error: failures
// are captured in the record so a dead provider degrades instead of failing
// the pass.
type Provider interface {
	ID() string
	Priority() int
	Fetch(ctx context.Context, key ProfileKey) RawRecord
}
