package compliance

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/radlabs/personalization-engine/internal/config"
)

func testPolicy(t *testing.T) *Policy {
	t.Helper()
	p, err := CompilePolicy(config.DefaultPolicy())
	if err != nil {
		t.Fatalf("CompilePolicy: %v", err)
	}
	return p
}

func TestCleanCopyPasses(t *testing.T) {
	t.Parallel()

	p := testPolicy(t)
	res := p.Validate("Saw your team doubled last quarter.", "Open to a quick chat next week?", 200, 150)
	if !res.Passed {
		t.Errorf("Passed = false, violations = %v", res.Violations)
	}
	if res.IntroHook != "Saw your team doubled last quarter." {
		t.Errorf("IntroHook changed: %q", res.IntroHook)
	}
	if len(res.Violations) != 0 {
		t.Errorf("Violations = %v, want none", res.Violations)
	}
}

func TestBannedPhrasesCorrectedAndRecorded(t *testing.T) {
	t.Parallel()

	p := testPolicy(t)
	res := p.Validate("We provide guaranteed #1 results, act now!", "Let's talk.", 200, 150)

	if res.Passed {
		t.Error("Passed = true, want false")
	}
	if len(res.Violations) != 2 {
		t.Fatalf("got %d violations %v, want 2", len(res.Violations), res.Violations)
	}
	byRule := map[string]int{}
	for _, v := range res.Violations {
		byRule[v.RuleID]++
		if v.Field != FieldIntroHook {
			t.Errorf("violation field = %q, want intro_hook", v.Field)
		}
	}
	if byRule["superlative"] != 1 || byRule["urgency"] != 1 {
		t.Errorf("violations by rule = %v, want one superlative and one urgency", byRule)
	}
	if res.IntroHook == "" {
		t.Error("corrected intro is empty")
	}
	for _, banned := range []string{"guaranteed", "#1", "act now"} {
		if strings.Contains(strings.ToLower(res.IntroHook), banned) {
			t.Errorf("corrected intro %q still contains %q", res.IntroHook, banned)
		}
	}
}

func TestMatchingIsCaseAndSeparatorInsensitive(t *testing.T) {
	t.Parallel()

	p := testPolicy(t)
	for _, text := range []string{
		"ACT NOW before the quarter ends.",
		"Act  Now before the quarter ends.",
		"act-now before the quarter ends.",
	} {
		res := p.Validate(text, "ok", 200, 150)
		if res.Passed {
			t.Errorf("Validate(%q) passed, want urgency violation", text)
		}
	}
}

func TestNoPartialWordMatches(t *testing.T) {
	t.Parallel()

	p, err := CompilePolicy(config.Policy{
		Rules:         []config.Rule{{ID: "urgency", Action: "remove", Phrases: []string{"act now"}}},
		FallbackIntro: "fallback intro",
		FallbackCTA:   "fallback cta",
	})
	if err != nil {
		t.Fatalf("CompilePolicy: %v", err)
	}
	res := p.Validate("The exact nowhere reference is fine.", "Contact nowadays?", 200, 150)
	if !res.Passed {
		t.Errorf("false positive: %v", res.Violations)
	}
}

func TestAdjacentSameRuleMatchesCoalesce(t *testing.T) {
	t.Parallel()

	p := testPolicy(t)
	res := p.Validate("Our unbeatable world's best platform helps teams ship.", "ok", 200, 150)
	count := 0
	for _, v := range res.Violations {
		if v.RuleID == "superlative" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("got %d superlative violations %v, want 1 coalesced", count, res.Violations)
	}
}

func TestOverlappingRulesAcrossCategories(t *testing.T) {
	t.Parallel()

	// "act now" and "now or never" share the word "now", so their matches
	// overlap in the text. The edit pass must see merged offsets, not two
	// overlapping removals.
	p, err := CompilePolicy(config.Policy{
		Rules: []config.Rule{
			{ID: "urgency", Action: "remove", Phrases: []string{"act now"}},
			{ID: "pressure", Action: "remove", Phrases: []string{"now or never"}},
		},
		FallbackIntro: "fallback intro",
		FallbackCTA:   "fallback cta",
	})
	if err != nil {
		t.Fatalf("CompilePolicy: %v", err)
	}

	res := p.Validate("Act now or never miss a launch window.", "ok", 200, 150)
	if res.Passed {
		t.Error("Passed = true, want false")
	}
	byRule := map[string]int{}
	for _, v := range res.Violations {
		byRule[v.RuleID]++
	}
	if byRule["urgency"] != 1 || byRule["pressure"] != 1 {
		t.Errorf("violations by rule = %v, want one urgency and one pressure", byRule)
	}
	for _, banned := range []string{"act now", "now or never"} {
		if strings.Contains(strings.ToLower(res.IntroHook), banned) {
			t.Errorf("corrected intro %q still contains %q", res.IntroHook, banned)
		}
	}
	if !strings.Contains(res.IntroHook, "miss a launch window") {
		t.Errorf("clean text lost: %q", res.IntroHook)
	}

	// Overlap covering the whole field escalates to the fallback.
	res = p.Validate("Act now or never!", "ok", 200, 150)
	if !res.FellBack {
		t.Error("FellBack = false, want true")
	}
	if res.IntroHook != "fallback intro" {
		t.Errorf("IntroHook = %q, want fallback", res.IntroHook)
	}
}

func TestReplaceAction(t *testing.T) {
	t.Parallel()

	p := testPolicy(t)
	res := p.Validate("We help you crush the competition in weeks.", "ok", 200, 150)
	if res.Passed {
		t.Error("Passed = true, want false")
	}
	if !strings.Contains(res.IntroHook, "other options") {
		t.Errorf("replacement missing: %q", res.IntroHook)
	}
	if strings.Contains(res.IntroHook, "crush") {
		t.Errorf("banned text survived: %q", res.IntroHook)
	}
}

func TestWholeFieldViolationFallsBack(t *testing.T) {
	t.Parallel()

	p := testPolicy(t)
	res := p.Validate("Act now!", "Last chance!", 200, 150)
	if res.Passed {
		t.Error("Passed = true, want false")
	}
	if !res.FellBack {
		t.Error("FellBack = false, want true")
	}
	if res.IntroHook != config.DefaultPolicy().FallbackIntro {
		t.Errorf("IntroHook = %q, want fallback", res.IntroHook)
	}
	if res.CTA != config.DefaultPolicy().FallbackCTA {
		t.Errorf("CTA = %q, want fallback", res.CTA)
	}
}

func TestValidationIsIdempotent(t *testing.T) {
	t.Parallel()

	p := testPolicy(t)
	first := p.Validate("We provide guaranteed #1 results, act now!", "Don't miss out, reply today.", 200, 150)
	second := p.Validate(first.IntroHook, first.CTA, 200, 150)
	if !second.Passed {
		t.Errorf("second pass found violations %v in %q / %q", second.Violations, first.IntroHook, first.CTA)
	}
	if second.IntroHook != first.IntroHook || second.CTA != first.CTA {
		t.Errorf("second pass changed output: %q/%q -> %q/%q",
			first.IntroHook, first.CTA, second.IntroHook, second.CTA)
	}
}

func TestFallbackCopyIsClean(t *testing.T) {
	t.Parallel()

	p := testPolicy(t)
	def := config.DefaultPolicy()
	res := p.Validate(def.FallbackIntro, def.FallbackCTA, 200, 150)
	if !res.Passed {
		t.Errorf("fallback copy violates policy: %v", res.Violations)
	}
}

func TestOutputClampedToLimits(t *testing.T) {
	t.Parallel()

	p := testPolicy(t)
	long := strings.Repeat("We keep shipping features. ", 20)
	res := p.Validate(long, long, 200, 150)
	if n := utf8.RuneCountInString(res.IntroHook); n > 200 {
		t.Errorf("intro length = %d, want <= 200", n)
	}
	if n := utf8.RuneCountInString(res.CTA); n > 150 {
		t.Errorf("cta length = %d, want <= 150", n)
	}
}

func TestCleanup(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"We provide  results, !", "We provide results!"},
		{", and that's why we win", "and that's why we win"},
		{"strong teams ship fast ,", "strong teams ship fast"},
		{"no change needed.", "no change needed."},
	}
	for _, tc := range cases {
		if got := cleanup(tc.in); got != tc.want {
			t.Errorf("cleanup(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
