package embed

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/blakazulu/search-mcp/internal/hashing"
)

// DefaultCacheSize is the default number of cached embeddings.
const DefaultCacheSize = 10000

// CachedEmbedder wraps an embedder with an LRU cache keyed by the
// whitespace-normalized content hash and kind. Reconciliations re-embed
// mostly unchanged chunks; the cache turns those into lookups.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// Verify interface implementation at compile time.
var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with a cache of the given size.
func NewCachedEmbedder(inner Embedder, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

func (e *CachedEmbedder) key(text string, kind Kind) string {
	return string(kind) + ":" + hashing.ChunkHash(text)
}

// Embed returns a cached vector or delegates to the inner embedder.
func (e *CachedEmbedder) Embed(ctx context.Context, text string, kind Kind) ([]float32, error) {
	k := e.key(text, kind)
	if vec, ok := e.cache.Get(k); ok {
		return vec, nil
	}
	vec, err := e.inner.Embed(ctx, text, kind)
	if err != nil {
		return nil, err
	}
	e.cache.Add(k, vec)
	return vec, nil
}

// EmbedBatch serves cache hits locally and forwards only the misses.
func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string, kind Kind) ([]Result, error) {
	results := make([]Result, len(texts))
	var missTexts []string
	var missIdx []int

	for i, t := range texts {
		if vec, ok := e.cache.Get(e.key(t, kind)); ok {
			results[i] = Result{Vector: vec}
			continue
		}
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	missed, err := e.inner.EmbedBatch(ctx, missTexts, kind)
	if err != nil {
		// Partial result contract: hits stay valid, misses carry errors.
		for j, i := range missIdx {
			if missed != nil && j < len(missed) {
				results[i] = missed[j]
			} else {
				results[i] = Result{Err: err}
			}
		}
		return results, err
	}

	for j, i := range missIdx {
		results[i] = missed[j]
		if missed[j].Err == nil {
			e.cache.Add(e.key(texts[i], kind), missed[j].Vector)
		}
	}
	return results, nil
}

// Dimensions returns the inner embedder's dimension.
func (e *CachedEmbedder) Dimensions() int { return e.inner.Dimensions() }

// ModelName returns the inner embedder's model identifier.
func (e *CachedEmbedder) ModelName() string { return e.inner.ModelName() }

// Available delegates to the inner embedder.
func (e *CachedEmbedder) Available(ctx context.Context) bool { return e.inner.Available(ctx) }

// Close purges the cache and closes the inner embedder.
func (e *CachedEmbedder) Close() error {
	e.cache.Purge()
	return e.inner.Close()
}
