package textnorm

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kljensen/snowball/english"
)

// Filters are optional word filters on top of normalization. The zero value disables all of them,
// leaving plain normalized whitespace-separated words.
type Filters struct {
	// LettersOnly turns every non-letter rune into a word break.
	LettersOnly bool
	// DropStopWords removes English stop words.
	DropStopWords bool
	// MinWordLength drops words with fewer runes. Values below 2 disable the check.
	MinWordLength int
}

// String renders the filters in a stable form, so two analyzers that produce the same words
// render equally.
func (f Filters) String() string {
	minLen := f.MinWordLength
	if minLen < 2 {
		minLen = 0
	}
	return fmt.Sprintf("letters_only=%t drop_stop_words=%t min_word_length=%d", f.LettersOnly, f.DropStopWords, minLen)
}

// Analyzer turns text into the word sequence used for both indexing and lookup.
// It is stateless and safe for concurrent use.
type Analyzer struct {
	filters Filters
}

func NewAnalyzer(filters Filters) *Analyzer {
	return &Analyzer{filters: filters}
}

// Filters reports the filters the analyzer was built with.
func (a *Analyzer) Filters() Filters {
	return a.filters
}

// Words normalizes text and splits it into words, applying the configured filters.
// It returns ErrEmptyInput when nothing survives.
func (a *Analyzer) Words(text string) ([]string, error) {
	normalized, err := Normalize(text)
	if err != nil {
		return nil, err
	}

	var raw []string
	if a.filters.LettersOnly {
		raw = strings.FieldsFunc(normalized, func(r rune) bool {
			return !unicode.IsLetter(r)
		})
	} else {
		raw = strings.Split(normalized, " ")
	}

	if !a.filters.DropStopWords && a.filters.MinWordLength < 2 {
		if len(raw) == 0 {
			return nil, ErrEmptyInput
		}
		return raw, nil
	}

	words := raw[:0]
	for _, word := range raw {
		if a.filters.MinWordLength > 1 && len([]rune(word)) < a.filters.MinWordLength {
			continue
		}
		if a.filters.DropStopWords && english.IsStopWord(word) {
			continue
		}
		words = append(words, word)
	}
	if len(words) == 0 {
		return nil, ErrEmptyInput
	}
	return words, nil
}

// Key returns the lookup key for text: its analyzed words joined by single spaces.
// With no filters enabled Key is identical to Normalize.
func (a *Analyzer) Key(text string) (string, error) {
	words, err := a.Words(text)
	if err != nil {
		return "", err
	}
	return strings.Join(words, " "), nil
}
