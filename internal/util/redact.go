package util

import "regexp"

var (
	bearerRe = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._\-]+`)
	keyKVRe  = regexp.MustCompile(`(?i)((?:api[_-]?key|x-api-key|token|secret)["']?\s*[:=]\s*["']?)[A-Za-z0-9._\-]+`)
)

// RedactSecrets masks bearer tokens and api-key style key=value pairs in s.
// Error strings and log lines that may echo request headers go through here.
func RedactSecrets(s string) string {
	s = bearerRe.ReplaceAllString(s, "${1}[REDACTED]")
	s = keyKVRe.ReplaceAllString(s, "${1}[REDACTED]")
	return s
}
