package search

import (
	"strings"

	"github.com/blakazulu/search-mcp/internal/embed"
)

// DefaultMaxExpansionTerms caps the synonyms appended to a query.
const DefaultMaxExpansionTerms = 10

// QueryExpander appends code-aware synonyms to queries so natural
// language terms match code vocabulary ("auth" vs "authentication").
type QueryExpander struct {
	synonyms map[string][]string
	maxTerms int
}

// NewQueryExpander creates an expander over the default dictionary.
func NewQueryExpander() *QueryExpander {
	return &QueryExpander{
		synonyms: CodeSynonyms,
		maxTerms: DefaultMaxExpansionTerms,
	}
}

// NewQueryExpanderWithLimit creates an expander with a custom cap.
func NewQueryExpanderWithLimit(maxTerms int) *QueryExpander {
	e := NewQueryExpander()
	if maxTerms > 0 {
		e.maxTerms = maxTerms
	}
	return e
}

// Expand returns the query with up to maxTerms synonyms appended.
// Terms already present in the query are never appended; the original
// query text is always preserved verbatim at the front.
func (e *QueryExpander) Expand(query string) string {
	tokens := embed.Tokenize(query)
	if len(tokens) == 0 {
		return query
	}

	present := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		present[t] = struct{}{}
	}

	var added []string
	for _, tok := range tokens {
		for _, syn := range e.synonyms[tok] {
			if len(added) >= e.maxTerms {
				break
			}
			lower := strings.ToLower(syn)
			if _, dup := present[lower]; dup {
				continue
			}
			present[lower] = struct{}{}
			added = append(added, syn)
		}
		if len(added) >= e.maxTerms {
			break
		}
	}

	if len(added) == 0 {
		return query
	}
	return query + " " + strings.Join(added, " ")
}
