package domain

import "slices"

// Identity sets are stored as slices so they keep insertion order on the wire.

func addToSet(set []string, v string) ([]string, bool) {
	if slices.Contains(set, v) {
		return set, false
	}
	return append(set, v), true
}

func removeFromSet(set []string, v string) ([]string, bool) {
	i := slices.Index(set, v)
	if i < 0 {
		return set, false
	}
	return slices.Delete(set, i, i+1), true
}

func compactSet(set []string) []string {
	out := make([]string, 0, len(set))
	for _, v := range set {
		out, _ = addToSet(out, v)
	}
	return out
}
