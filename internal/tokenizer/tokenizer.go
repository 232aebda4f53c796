// Package tokenizer normalises documentation text for indexing. It applies a
// locale-invariant case fold, splits on non-alphanumeric boundaries and on
// camelCase humps, and drops stop-words.
package tokenizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Fold returns the locale-invariant case fold of s. A Caser is stateful, so
// each call gets its own.
func Fold(s string) string {
	if s == "" {
		return ""
	}
	return cases.Fold().String(s)
}

// Tokenize breaks text into folded word tokens in order of appearance.
// Identifiers are also split on camelCase boundaries, so "LaunchBall" yields
// "launchball", "launch" and "ball". Duplicates are kept.
func Tokenize(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(words))
	for _, word := range words {
		parts := splitCamel(word)
		if len(parts) > 1 {
			tokens = appendToken(tokens, word)
		}
		for _, part := range parts {
			tokens = appendToken(tokens, part)
		}
	}
	return tokens
}

func appendToken(tokens []string, word string) []string {
	term := Fold(word)
	if len([]rune(term)) < 2 {
		return tokens
	}
	if _, isStop := stopWords[term]; isStop {
		return tokens
	}
	return append(tokens, term)
}

// splitCamel splits an identifier at lower→upper and letter↔digit
// transitions, and before the last capital of an acronym run ("HTTPServer"
// → "HTTP", "Server").
func splitCamel(word string) []string {
	runes := []rune(word)
	if len(runes) < 2 {
		return []string{word}
	}
	parts := make([]string, 0, 2)
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		split := false
		switch {
		case unicode.IsLower(prev) && unicode.IsUpper(cur):
			split = true
		case unicode.IsDigit(prev) != unicode.IsDigit(cur):
			split = true
		case unicode.IsUpper(prev) && unicode.IsUpper(cur) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
			split = true
		}
		if split {
			parts = append(parts, string(runes[start:i]))
			start = i
		}
	}
	return append(parts, string(runes[start:]))
}
