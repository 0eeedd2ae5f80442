package memory

import (
	"regexp"
	"strings"
)

// Secret-shaped values must not be persisted as memories. The write path
// refuses them outright rather than silently redacting, so the caller knows
// the memory was not stored.

var secretKeywords = []string{
	"password:",
	"api key",
	"secret",
	"token",
	"private key",
}

var secretPatterns = []*regexp.Regexp{
	// API-key-shaped tokens
	regexp.MustCompile(`\bsk-[a-zA-Z0-9_-]{20,}\b`),
	regexp.MustCompile(`\b[a-zA-Z0-9]{32,}\b`),

	// PEM private-key headers
	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),
}

// LooksLikeSecret reports whether a memory value appears to contain
// credential material.
func LooksLikeSecret(value string) bool {
	lower := strings.ToLower(value)
	for _, keyword := range secretKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	for _, re := range secretPatterns {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}
