package tokenizer

import (
	"strings"
	"unicode"
)

// Simple splits on every rune that is neither a letter nor a digit. It has
// no dictionary, so a Han run becomes a single term; it suits Latin-only
// corpora and tests that need a segmenter without start-up cost.
type Simple struct{}

func (Simple) Name() string {
	return "simple"
}

func (Simple) Segment(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
