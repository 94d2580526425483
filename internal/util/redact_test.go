package util

import (
	"strings"
	"testing"
)

func TestRedactSecrets(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		leak string
	}{
		{"bearer header", `Authorization: Bearer sk-abc123.def-456`, "sk-abc123"},
		{"api key json", `{"api_key": "ap-998877"}`, "ap-998877"},
		{"query param", `https://api.example.com/v1?api-key=qq112233`, "qq112233"},
		{"token kv", `token=tok_55aa66bb`, "tok_55aa66bb"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RedactSecrets(tc.in)
			if strings.Contains(got, tc.leak) {
				t.Errorf("RedactSecrets(%q) = %q, still contains secret", tc.in, got)
			}
			if !strings.Contains(got, "[REDACTED]") {
				t.Errorf("RedactSecrets(%q) = %q, no redaction marker", tc.in, got)
			}
		})
	}
}

func TestRedactSecretsLeavesPlainText(t *testing.T) {
	t.Parallel()

	in := "provider apollo returned status 503"
	if got := RedactSecrets(in); got != in {
		t.Errorf("RedactSecrets(%q) = %q, want unchanged", in, got)
	}
}
