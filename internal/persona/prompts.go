package persona

import (
	"fmt"
	"strings"

	"github.com/radlabs/personalization-engine/internal/resolve"
)

// buildPrompt assembles the generation prompt from declared attributes and
// the resolved profile. Keep it public-safe: no secrets, no more PII than the
// lead data itself.
func buildPrompt(lead Lead, profile resolve.NormalizedProfile, maxIntro, maxCTA int) string {
	var b strings.Builder
	b.WriteString("You write short, specific B2B outreach openers.\n")
	b.WriteString("Return ONLY a single JSON object with exactly these keys:\n")
	fmt.Fprintf(&b, "- intro_hook (string, at most %d characters): a personalized opening line referencing the recipient's role or company\n", maxIntro)
	fmt.Fprintf(&b, "- cta (string, at most %d characters): a low-pressure call to action\n", maxCTA)
	b.WriteString("No markdown, no extra keys, no commentary.\n\n")
	b.WriteString("Recipient:\n")

	writeAttr := func(label, declared, field string) {
		v := declared
		if v == "" {
			v = profile.Get(field)
		}
		if v != "" {
			fmt.Fprintf(&b, "- %s: %s\n", label, v)
		}
	}
	writeAttr("name", lead.Name, "full_name")
	writeAttr("company", lead.Company, "company")
	writeAttr("role", lead.Role, "title")
	writeAttr("industry", lead.Industry, "industry")
	if lead.BuyingStage != "" {
		fmt.Fprintf(&b, "- buying stage: %s\n", lead.BuyingStage)
	}
	for _, field := range []string{"company_size", "location", "company_news"} {
		if v := profile.Get(field); v != "" {
			fmt.Fprintf(&b, "- %s: %s\n", strings.ReplaceAll(field, "_", " "), v)
		}
	}
	return b.String()
}

// correctiveInstruction is appended to the prompt after a failed attempt so
// the model sees what was wrong with its previous answer.
func correctiveInstruction(reason string) string {
	return fmt.Sprintf(
		"\nYour previous response was rejected: %s. Respond again with ONLY the JSON object, both keys present, within the character limits.",
		reason,
	)
}
