// Package text holds the small text normalization helpers shared by the
// command line tools and the retrieval index.
package text

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// Clean lowercases s, drops ASCII punctuation and collapses whitespace runs.
func Clean(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(asciiPunctuation, r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// FoldAccents strips combining marks, so "café" becomes "cafe".
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Tokens splits s into lowercase, accent-folded word tokens of at least two
// runes with stop words removed. The retrieval index tokenizes with it.
func Tokens(s string) []string {
	s = FoldAccents(strings.ToLower(s))
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 || IsStopWord(f) {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}
