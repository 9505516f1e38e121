// Package id generates prefixed identifiers for groups, messages and users.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for each entity kind.
const (
	PrefixGroup   = "grp"
	PrefixMessage = "msg"
	PrefixUser    = "usr"
)

// Generate returns prefix + "-" + a 21 character nanoid, e.g. "msg-V1StGXR8_Z5jdHi6B-myT".
func Generate(prefix string) (string, error) {
	n, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + n, nil
}

// MustGenerate is Generate that panics when the system has no entropy.
func MustGenerate(prefix string) string {
	v, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("generate id: %v", err))
	}
	return v
}
