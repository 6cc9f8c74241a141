// Package textnorm canonicalizes free text into comparable keys.
//
// The same definitions are used when the index is built and when it is queried:
// a key produced by one path must be byte-identical to the key produced by the other,
// otherwise lookups silently miss.
package textnorm

import (
	"errors"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrEmptyInput is returned when the text has no content once whitespace is removed.
var ErrEmptyInput = errors.New("textnorm: empty input")

// Normalize collapses whitespace runs to a single space, trims both ends and lowercases
// the result with a locale-independent case mapping.
//
// Normalize(Normalize(s)) == Normalize(s) for every s that normalizes without error.
func Normalize(s string) (string, error) {
	collapsed := strings.Join(strings.Fields(s), " ")
	if collapsed == "" {
		return "", ErrEmptyInput
	}
	// A Caser is stateful and must not be shared between goroutines.
	return cases.Lower(language.Und).String(collapsed), nil
}

// MustNormalize is Normalize for inputs known to be non-blank, such as test fixtures.
func MustNormalize(s string) string {
	n, err := Normalize(s)
	if err != nil {
		panic(err)
	}
	return n
}
