package parser

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"
)

// DefaultPrefixLength is the fallback truncation length for a normalized
// opening-text prefix when the caller does not supply one.
const DefaultPrefixLength = 192

var foldCase = cases.Fold()

// NormalizePrefix folds full-width punctuation to its narrow form, case
// folds, collapses runs of whitespace to a single space, trims the
// result, and truncates to maxLen runes. maxLen <= 0 falls back to
// DefaultPrefixLength.
func NormalizePrefix(text string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultPrefixLength
	}
	folded := width.Fold.String(text)
	folded = foldCase.String(folded)
	collapsed := collapseWhitespace(folded)
	collapsed = strings.TrimSpace(collapsed)
	return truncateRunes(collapsed, maxLen)
}

func collapseWhitespace(s string) string {
	var b strings.Builder
	lastWasSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				b.WriteByte(' ')
			}
			lastWasSpace = true
			continue
		}
		lastWasSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

func truncateRunes(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
