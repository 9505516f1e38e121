package domain

import (
	"regexp"

	"github.com/boilergroups/groups-server/internal/normalize"
)

var mentionPattern = regexp.MustCompile(`@([A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,})`)

// ExtractMentions returns the normalized emails written as "@<email>" in text, in
// order of first appearance and without duplicates.
func ExtractMentions(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out, _ = addToSet(out, normalize.Email(m[1]))
	}
	return out
}
