// Package security holds inbound-message hygiene: free-text sanitation and
// the blacklist of blocked addresses.
package security

import (
	"regexp"
	"strings"
)

var (
	tagRe     = regexp.MustCompile(`<.*?>`)
	controlRe = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
)

// SanitizeText strips HTML tags and control characters from free text before
// it reaches capture handlers. Captured values end up in outbound messages
// and remote API payloads, so markup is never wanted.
func SanitizeText(input string) string {
	cleaned := tagRe.ReplaceAllString(input, "")
	cleaned = controlRe.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}
