package store

import (
	"regexp"
	"strings"
)

// wordRegex splits on runs of unicode letters/digits, mirroring the
// "simple tokenizer" spec.md calls for — FTS5's own unicode61 tokenizer
// does the real lowercasing/splitting at index time; this pre-pass only
// strips tokens at or above maxLen, since FTS5 has no built-in length
// filter we can reach from a pure-Go driver.
var wordRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

// dropLongTokens rewrites text, removing whole tokens whose length is >=
// maxLen. Non-token runs (whitespace, punctuation) are collapsed to a
// single space so the result stays safe to feed into FTS5's tokenizer.
func dropLongTokens(text string, maxLen int) string {
	if maxLen <= 0 {
		return text
	}
	tokens := wordRegex.FindAllString(text, -1)
	kept := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if len([]rune(tok)) < maxLen {
			kept = append(kept, tok)
		}
	}
	return strings.Join(kept, " ")
}
