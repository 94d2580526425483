// Package compliance screens generated copy against a banned-phrase policy
// and auto-corrects what it finds. Validation never fails a job: the worst
// outcome is fallback copy with passed=false recorded.
package compliance

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/radlabs/personalization-engine/internal/config"
)

type compiledRule struct {
	id      string
	action  string
	replace string
	res     []*regexp.Regexp
}

// CompilePolicy turns the configured policy into matchers. Matching is
// case-insensitive; whitespace and hyphens between phrase words are
// interchangeable, so "act now", "act  now" and "act-now" all match one
// configured phrase.
func CompilePolicy(p config.Policy) (*Policy, error) {
	out := &Policy{fallbackIntro: p.FallbackIntro, fallbackCTA: p.FallbackCTA}
	for _, r := range p.Rules {
		cr := compiledRule{id: r.ID, action: r.Action, replace: r.Replace}
		for _, phrase := range r.Phrases {
			re, err := compilePhrase(phrase)
			if err != nil {
				return nil, fmt.Errorf("rule %s: phrase %q: %w", r.ID, phrase, err)
			}
			cr.res = append(cr.res, re)
		}
		out.rules = append(out.rules, cr)
	}
	return out, nil
}

func compilePhrase(phrase string) (*regexp.Regexp, error) {
	tokens := strings.Fields(phrase)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty phrase")
	}
	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = regexp.QuoteMeta(tok)
	}
	pattern := strings.Join(quoted, `[\s\-]+`)

	// Word boundaries only where the phrase edge is a word character;
	// anchoring \b next to "#" or "!" would never match.
	if startsWithWordChar(tokens[0]) {
		pattern = `\b` + pattern
	}
	if endsWithWordChar(tokens[len(tokens)-1]) {
		pattern += `\b`
	}
	return regexp.Compile(`(?i)` + pattern)
}

func startsWithWordChar(s string) bool {
	for _, r := range s {
		return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
	}
	return false
}

func endsWithWordChar(s string) bool {
	var last rune
	for _, r := range s {
		last = r
	}
	return unicode.IsLetter(last) || unicode.IsDigit(last) || last == '_'
}
