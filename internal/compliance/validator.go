package compliance

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Field names violations are reported against.
const (
	FieldIntroHook = "intro_hook"
	FieldCTA       = "cta"
)

// Violation is one matched banned span.
type Violation struct {
	RuleID string `json:"rule_id"`
	Field  string `json:"field"`
	Span   string `json:"span"`
}

// Result is the validated copy. Passed is false whenever any violation was
// recorded, even though the returned text is already corrected.
type Result struct {
	IntroHook  string
	CTA        string
	Passed     bool
	Violations []Violation
	// FellBack marks fields replaced wholesale with safe fallback copy.
	FellBack bool
}

// Policy is a compiled banned-phrase policy.
type Policy struct {
	rules         []compiledRule
	fallbackIntro string
	fallbackCTA   string
}

// Validate screens and corrects both fields. It never returns an error: any
// input produces usable output within the given length limits.
func (p *Policy) Validate(intro, cta string, maxIntro, maxCTA int) Result {
	res := Result{Passed: true}

	var introViol, ctaViol []Violation
	res.IntroHook, introViol = p.validateField(FieldIntroHook, intro, p.fallbackIntro, &res.FellBack)
	res.CTA, ctaViol = p.validateField(FieldCTA, cta, p.fallbackCTA, &res.FellBack)

	res.Violations = append(res.Violations, introViol...)
	res.Violations = append(res.Violations, ctaViol...)
	if len(res.Violations) > 0 {
		res.Passed = false
	}
	res.IntroHook = clampRunes(res.IntroHook, maxIntro)
	res.CTA = clampRunes(res.CTA, maxCTA)
	return res
}

// validateField runs one correction pass, then re-scans. Any surviving
// violation, or a field corrected down to nothing, escalates to the fallback.
func (p *Policy) validateField(field, text, fallback string, fellBack *bool) (string, []Violation) {
	spans := p.scan(text)
	violations := make([]Violation, 0, len(spans))
	for _, s := range spans {
		violations = append(violations, Violation{RuleID: s.rule.id, Field: field, Span: s.text(text)})
	}
	if len(spans) == 0 {
		return text, nil
	}

	corrected := cleanup(applySpans(text, flattenSpans(spans)))
	if corrected == "" || len(p.scan(corrected)) > 0 {
		*fellBack = true
		return fallback, violations
	}
	return corrected, violations
}

type span struct {
	start, end int
	rule       *compiledRule
}

func (s span) text(full string) string { return full[s.start:s.end] }

// scan finds all banned spans. Overlapping or whitespace-adjacent matches of
// the same rule coalesce into a single span, so "guaranteed #1 unbeatable"
// counts once against the superlative rule.
func (p *Policy) scan(text string) []span {
	var spans []span
	for i := range p.rules {
		rule := &p.rules[i]
		var ruleSpans []span
		for _, re := range rule.res {
			for _, loc := range re.FindAllStringIndex(text, -1) {
				ruleSpans = append(ruleSpans, span{start: loc[0], end: loc[1], rule: rule})
			}
		}
		spans = append(spans, coalesce(text, ruleSpans)...)
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	return spans
}

func coalesce(text string, spans []span) []span {
	if len(spans) < 2 {
		return spans
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	out := spans[:1]
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if s.start <= last.end || strings.TrimSpace(text[last.end:s.start]) == "" {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

// flattenSpans merges spans that overlap across rules, so the edit pass sees
// non-overlapping offsets in text order. Configured phrases from different
// rules may cover the same text; the earlier span's rule decides the action
// for the merged region. Violation records are taken before flattening, so
// each rule still reports its own match.
func flattenSpans(spans []span) []span {
	if len(spans) < 2 {
		return spans
	}
	out := make([]span, 0, len(spans))
	out = append(out, spans[0])
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if s.start < last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

// applySpans edits right to left so earlier offsets stay valid. Spans must be
// sorted and non-overlapping.
func applySpans(text string, spans []span) string {
	for i := len(spans) - 1; i >= 0; i-- {
		s := spans[i]
		repl := ""
		if s.rule.action == "replace" {
			repl = s.rule.replace
		}
		text = text[:s.start] + repl + text[s.end:]
	}
	return text
}

var (
	multiSpaceRe  = regexp.MustCompile(`\s{2,}`)
	spaceBeforeRe = regexp.MustCompile(`\s+([,.!?;:])`)
	punctRunRe    = regexp.MustCompile(`(?:[,.!?;:]\s*)+([,.!?;:])`)
)

// cleanup repairs the seams corrections leave behind: doubled spaces,
// stranded commas, space before punctuation. Runs of punctuation collapse to
// their last character.
func cleanup(s string) string {
	s = multiSpaceRe.ReplaceAllString(s, " ")
	s = spaceBeforeRe.ReplaceAllString(s, "$1")
	s = punctRunRe.ReplaceAllString(s, "$1")
	s = strings.TrimLeft(s, ",.;:!? ")
	s = strings.TrimRight(s, ",;: ")
	return strings.TrimSpace(s)
}

func clampRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max]))
}
