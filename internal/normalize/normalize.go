// Package normalize canonicalizes user-supplied identities and text before they are
// compared or stored.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Email returns the comparison form of an email address: NFKC-folded, trimmed and
// lower-cased. Two addresses refer to the same member iff their Email forms are equal.
func Email(raw string) string {
	s := norm.NFKC.String(stripControl(raw))
	return strings.ToLower(strings.TrimSpace(s))
}

// Username trims, NFC-normalizes and collapses internal whitespace runs to one space.
// Case is preserved since usernames are shown as message senders.
func Username(raw string) string {
	s := norm.NFC.String(stripControl(raw))
	return strings.Join(strings.Fields(s), " ")
}

// Text NFC-normalizes message text and removes NUL and other control characters
// except newlines and tabs. Leading and trailing whitespace is kept.
func Text(raw string) string {
	return norm.NFC.String(stripControl(raw))
}

// Blank reports whether s contains only whitespace.
func Blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
