// Package htmlsanitize strips markup from user-supplied text. Group names,
// descriptions, display names and message bodies are stored as plain text;
// rendering them is the client's concern.
package htmlsanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strict removes every element. Script and style bodies are dropped along
// with their tags.
var strict = bluemonday.StrictPolicy()

// Plain returns s with all HTML removed and entities decoded, trimmed of
// surrounding whitespace.
func Plain(s string) string {
	if s == "" {
		return ""
	}
	if IsPlainText(s) {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// IsPlainText reports whether s contains no tag-like sequences.
func IsPlainText(s string) bool {
	for i := 0; i < len(s)-1; i++ {
		if s[i] != '<' {
			continue
		}
		c := s[i+1]
		if c == '/' || c == '!' || c == '?' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}
