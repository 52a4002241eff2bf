package store

import (
	"strings"

	"github.com/blakazulu/search-mcp/internal/embed"
)

// codeStopWords are filtered from indexed text and queries; they carry
// no ranking signal in source code.
var codeStopWords = map[string]struct{}{
	"var": {}, "let": {}, "const": {}, "func": {}, "function": {},
	"def": {}, "class": {}, "return": {}, "if": {}, "else": {},
	"for": {}, "while": {}, "the": {}, "a": {}, "an": {}, "of": {},
	"to": {}, "in": {}, "is": {}, "and": {}, "or": {},
}

// minTokenLength drops single-character noise tokens.
const minTokenLength = 2

// TokenizeQuery splits a query into search tokens: identifiers break on
// CamelCase and snake_case, stop words and short tokens drop out.
func TokenizeQuery(query string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, tok := range embed.Tokenize(query) {
		if len(tok) < minTokenLength {
			continue
		}
		if _, stop := codeStopWords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// expandForIndex appends the identifier-split token stream to the raw
// text so split tokens are matchable without losing exact phrases.
func expandForIndex(text string) string {
	tokens := embed.Tokenize(text)
	if len(tokens) == 0 {
		return text
	}
	// Cap the appended stream so pathological files don't double in size.
	if len(tokens) > 2000 {
		tokens = tokens[:2000]
	}
	return text + "\n" + strings.Join(tokens, " ")
}
