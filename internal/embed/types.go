// Package embed defines the embedding backend interface and its
// implementations: an Ollama HTTP backend, a deterministic static
// fallback, and an LRU-caching wrapper.
package embed

import (
	"context"
	"math"
	"time"
)

// Kind selects the prompt used for embedding.
type Kind string

const (
	// KindDocument embeds indexed content with the passage prompt.
	KindDocument Kind = "document"
	// KindQuery embeds search queries with the query-instruction prompt.
	KindQuery Kind = "query"
)

// Common embedding constants.
const (
	// MaxBatchSize caps a single embedding batch.
	MaxBatchSize = 256

	// DefaultBatchSize is the default batch size for embedding requests.
	DefaultBatchSize = 32

	// DefaultTimeout is the per-request timeout for embedding calls.
	DefaultTimeout = 60 * time.Second
)

// Default model dimensions.
const (
	// DefaultCodeDimensions is the dimension of the default code model.
	DefaultCodeDimensions = 384

	// DefaultDocsDimensions is the dimension of the default docs model.
	DefaultDocsDimensions = 768

	// StaticDimensions is the dimension of the static fallback embedder.
	StaticDimensions = 256
)

// Result is one item of a batch: a vector or a per-item error. Callers
// skip failed items; a zero vector never enters the index.
type Result struct {
	Vector []float32
	Err    error
}

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string, kind Kind) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts. On success the
	// returned slice has len(texts) entries and individual failures are
	// reported per item. A non-nil error reports a failure that stopped
	// the batch; the slice is then either nil or a partial result in
	// which items embedded before the failure keep their vectors.
	EmbedBatch(ctx context.Context, texts []string, kind Kind) ([]Result, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// Validate checks a produced vector against the contract: the length
// must equal dims exactly and no component may be NaN or infinite.
func Validate(vec []float32, dims int) error {
	if len(vec) != dims {
		return &DimensionMismatchError{Expected: dims, Got: len(vec)}
	}
	for _, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return ErrInvalidComponent
		}
	}
	return nil
}

// normalizeInPlace scales a vector to unit length. Zero vectors are
// left untouched; the caller rejects them via Validate + zero check.
func normalizeInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1.0 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

// IsZero reports whether every component is zero.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
