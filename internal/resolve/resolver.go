// Package resolve merges raw provider records into one normalized profile.
// Resolution is pure: same records in, same profile out.
package resolve

import (
	"sort"
	"strings"
	"time"

	"github.com/radlabs/personalization-engine/internal/enrich"
)

// Field is one resolved value with its winning source.
type Field struct {
	Value    string `json:"value"`
	Provider string `json:"provider"`
}

// NormalizedProfile is the merged view of all provider records for one lead.
type NormalizedProfile struct {
	Email      string           `json:"email"`
	Domain     string           `json:"domain"`
	Fields     map[string]Field `json:"fields"`
	Quality    float64          `json:"quality"`
	Sources    []string         `json:"sources"`
	ResolvedAt time.Time        `json:"resolved_at"`
}

// Get returns the resolved value for a field, or "" when unresolved.
func (p NormalizedProfile) Get(field string) string {
	return p.Fields[field].Value
}

// Providers whose success earns a quality bonus.
const (
	bonusProviderA = "apollo"
	bonusProviderB = "zoominfo"
	bonusPerSource = 0.1
)

// Resolve merges records per field: highest provider priority wins, ties go
// to the record fetched earliest. Empty values never win; a field no record
// carries stays absent from the profile.
func Resolve(key enrich.ProfileKey, records []enrich.RawRecord) NormalizedProfile {
	profile := NormalizedProfile{
		Email:      key.Email,
		Domain:     key.Domain,
		Fields:     map[string]Field{},
		ResolvedAt: time.Now().UTC(),
	}
	if len(records) == 0 {
		return profile
	}

	ordered := make([]enrich.RawRecord, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].FetchedAt.Before(ordered[j].FetchedAt)
	})

	for _, rec := range ordered {
		if !rec.Success {
			continue
		}
		for field, value := range rec.Payload {
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			if _, taken := profile.Fields[field]; taken {
				continue
			}
			profile.Fields[field] = Field{Value: value, Provider: rec.Provider}
		}
	}

	profile.Sources = successfulSources(records)
	profile.Quality = qualityScore(records)
	return profile
}

func successfulSources(records []enrich.RawRecord) []string {
	var sources []string
	for _, rec := range records {
		if rec.Success {
			sources = append(sources, rec.Provider)
		}
	}
	sort.Strings(sources)
	return sources
}

// qualityScore is the fraction of providers that answered, plus a bonus for
// each of the two strongest sources, capped at 1.0.
func qualityScore(records []enrich.RawRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	var ok int
	var bonus float64
	for _, rec := range records {
		if !rec.Success {
			continue
		}
		ok++
		if rec.Provider == bonusProviderA || rec.Provider == bonusProviderB {
			bonus += bonusPerSource
		}
	}
	score := float64(ok)/float64(len(records)) + bonus
	if score > 1.0 {
		score = 1.0
	}
	return score
}
