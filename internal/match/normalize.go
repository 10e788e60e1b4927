package match

import (
	"regexp"
	"strings"
)

var (
	// Leading product codes: "2968 ", "No.681 ".
	leadingCodeRe = regexp.MustCompile(`^(?:No\.?\s*)?\d{3,5}\s+`)

	// Trailing product codes: " 3786", " 8333".
	trailingCodeRe = regexp.MustCompile(`\s+\d{4,5}$`)

	// Product line names that leak into the character field.
	linePrefixRe = regexp.MustCompile(`(?i)^(피그마|넨도로이드|figma|nendoroid)\s+`)

	whitespaceRe = regexp.MustCompile(`\s+`)
)

// NormalizeCharacter canonicalizes a character name for grouping.
// Stores label the same character inconsistently (product codes glued
// on, line names prefixed); without this step the structured tiers
// barely ever match.
func NormalizeCharacter(name string) string {
	s := strings.TrimSpace(name)
	if s == "" {
		return ""
	}
	s = leadingCodeRe.ReplaceAllString(s, "")
	s = trailingCodeRe.ReplaceAllString(s, "")
	s = linePrefixRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
