// Package idgen generates short prefixed identifiers for delivery jobs and
// other internal records that never leave the platform.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes in use.
const (
	PrefixDispatchJob = "job_"
	PrefixDeadLetter  = "dlq_"
)

const (
	alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	length   = 16
)

// New returns prefix followed by a random lowercase suffix.
func New(prefix string) (string, error) {
	id, err := nanoid.Generate(alphabet, length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// MustNew is New for callers that cannot handle a failing random source.
func MustNew(prefix string) string {
	id, err := New(prefix)
	if err != nil {
		panic(err)
	}
	return id
}
