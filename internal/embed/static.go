package embed

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// Static embedder parameters. Token features dominate; character
// n-grams add robustness to identifier variants.
const (
	tokenWeight = 1.0
	ngramWeight = 0.3
	ngramSize   = 3
)

// queryPromptPrefix biases query vectors toward retrieval intent; the
// same text embedded as a document and as a query must not collide.
const queryPromptPrefix = "query: "

// StaticEmbedder is a deterministic, offline feature-hashing embedder.
// It is the fallback when no model backend is reachable: quality is
// below a learned model but identical inputs always produce identical
// vectors, which keeps the index consistent.
type StaticEmbedder struct{}

// Verify interface implementation at compile time.
var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates the static fallback embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// Embed generates a deterministic vector for text.
func (e *StaticEmbedder) Embed(ctx context.Context, text string, kind Kind) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if kind == KindQuery {
		text = queryPromptPrefix + text
	}
	vec := e.generateVector(text)
	if err := Validate(vec, StaticDimensions); err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedBatch generates vectors for multiple texts.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string, kind Kind) ([]Result, error) {
	results := make([]Result, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := e.Embed(ctx, t, kind)
		results[i] = Result{Vector: vec, Err: err}
	}
	return results, nil
}

// Dimensions returns the embedding dimension.
func (e *StaticEmbedder) Dimensions() int { return StaticDimensions }

// ModelName returns the model identifier.
func (e *StaticEmbedder) ModelName() string { return "static-hash-v1" }

// Available always reports true; the static embedder has no backend.
func (e *StaticEmbedder) Available(ctx context.Context) bool { return true }

// Close is a no-op.
func (e *StaticEmbedder) Close() error { return nil }

func (e *StaticEmbedder) generateVector(text string) []float32 {
	vec := make([]float32, StaticDimensions)

	tokens := Tokenize(text)
	for _, tok := range tokens {
		vec[hashToIndex(tok, StaticDimensions)] += tokenWeight
	}

	normalized := strings.ToLower(strings.Join(tokens, " "))
	for i := 0; i+ngramSize <= len(normalized); i++ {
		vec[hashToIndex(normalized[i:i+ngramSize], StaticDimensions)] += ngramWeight
	}

	// Empty input still yields a valid non-zero vector so the zero
	// vector never leaves this function.
	if IsZero(vec) {
		vec[0] = 1
	}

	normalizeInPlace(vec)
	return vec
}

func hashToIndex(s string, size int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(size))
}

// Tokenize splits text into lowercase word tokens, breaking CamelCase
// and snake_case identifiers into their parts.
func Tokenize(text string) []string {
	var raw []string
	var cur strings.Builder
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
			continue
		}
		if cur.Len() > 0 {
			raw = append(raw, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		raw = append(raw, cur.String())
	}

	var out []string
	for _, tok := range raw {
		for _, part := range SplitIdentifier(tok) {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}

// SplitIdentifier splits CamelCase and snake_case identifiers.
// "parseJSONFile" -> ["parse", "JSON", "File"], "do_work" -> ["do", "work"].
func SplitIdentifier(s string) []string {
	var parts []string
	for _, bySnake := range strings.Split(s, "_") {
		if bySnake == "" {
			continue
		}
		parts = append(parts, splitCamel(bySnake)...)
	}
	return parts
}

func splitCamel(s string) []string {
	var parts []string
	runes := []rune(s)
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		boundary := false
		// lower->Upper boundary: fooBar
		if unicode.IsLower(prev) && unicode.IsUpper(cur) {
			boundary = true
		}
		// acronym end: JSONFile -> JSON | File
		if i+1 < len(runes) && unicode.IsUpper(prev) && unicode.IsUpper(cur) && unicode.IsLower(runes[i+1]) {
			boundary = true
		}
		// letter<->digit boundary
		if unicode.IsLetter(prev) != unicode.IsLetter(cur) {
			boundary = true
		}
		if boundary {
			parts = append(parts, string(runes[start:i]))
			start = i
		}
	}
	parts = append(parts, string(runes[start:]))
	return parts
}
