package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedderDeterministic(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	a, err := e.Embed(ctx, "func authenticate(user string)", KindDocument)
	require.NoError(t, err)
	b, err := e.Embed(ctx, "func authenticate(user string)", KindDocument)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	assert.Len(t, a, StaticDimensions)
	assert.False(t, IsZero(a))
}

func TestStaticEmbedderKindsDiffer(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	doc, err := e.Embed(ctx, "database connection", KindDocument)
	require.NoError(t, err)
	query, err := e.Embed(ctx, "database connection", KindQuery)
	require.NoError(t, err)
	assert.NotEqual(t, doc, query)
}

func TestStaticEmbedderSimilarity(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	auth, _ := e.Embed(ctx, "func authenticateUser(name string)", KindDocument)
	authVariant, _ := e.Embed(ctx, "authenticate_user name", KindDocument)
	unrelated, _ := e.Embed(ctx, "parse yaml frontmatter block", KindDocument)

	simClose := dot(auth, authVariant)
	simFar := dot(auth, unrelated)
	assert.Greater(t, simClose, simFar, "token-overlapping texts must be closer")
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestValidate(t *testing.T) {
	good := make([]float32, 4)
	good[0] = 1
	assert.NoError(t, Validate(good, 4))

	assert.Error(t, Validate(good, 8))
	assert.True(t, IsDimensionMismatch(Validate(good, 8)))

	bad := []float32{1, float32(math32NaN()), 0, 0}
	assert.ErrorIs(t, Validate(bad, 4), ErrInvalidComponent)
}

func math32NaN() float32 {
	var zero float32
	return zero / zero
}

func TestSplitIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"parseJSONFile", []string{"parse", "JSON", "File"}},
		{"do_work", []string{"do", "work"}},
		{"HTTPServer2", []string{"HTTP", "Server", "2"}},
		{"simple", []string{"simple"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SplitIdentifier(tt.in), tt.in)
	}
}

func TestOllamaEmbedBatch(t *testing.T) {
	dims := 8
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		out := ollamaEmbedResponse{Embeddings: make([][]float32, len(req.Input))}
		for i := range req.Input {
			vec := make([]float32, dims)
			vec[i%dims] = 1
			out.Embeddings[i] = vec
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Dimensions: dims, BatchSize: 2})
	defer func() { _ = e.Close() }()

	results, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"}, KindDocument)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		require.NoError(t, r.Err)
		assert.Len(t, r.Vector, dims)
	}
}

func TestOllamaDimensionMismatchIsPerItemFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := ollamaEmbedResponse{Embeddings: [][]float32{{1, 2}}} // wrong dims
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Dimensions: 8})
	defer func() { _ = e.Close() }()

	results, err := e.EmbedBatch(context.Background(), []string{"a"}, KindDocument)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, IsDimensionMismatch(results[0].Err))
	assert.Nil(t, results[0].Vector, "no vector may be returned on mismatch")
}

func TestOllamaServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Dimensions: 8})
	defer func() { _ = e.Close() }()

	results, err := e.EmbedBatch(context.Background(), []string{"a", "b"}, KindDocument)
	require.Error(t, err)
	for _, r := range results {
		assert.Error(t, r.Err)
	}
}

func TestOllamaClosed(t *testing.T) {
	e := NewOllamaEmbedder(OllamaConfig{Host: "http://localhost:1"})
	require.NoError(t, e.Close())
	_, err := e.EmbedBatch(context.Background(), []string{"a"}, KindDocument)
	assert.ErrorIs(t, err, ErrClosed)
}

// countingEmbedder counts inner calls to verify cache behavior.
type countingEmbedder struct {
	StaticEmbedder
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string, kind Kind) ([]float32, error) {
	c.calls++
	return c.StaticEmbedder.Embed(ctx, text, kind)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string, kind Kind) ([]Result, error) {
	c.calls += len(texts)
	return c.StaticEmbedder.EmbedBatch(ctx, texts, kind)
}

func TestCachedEmbedder(t *testing.T) {
	inner := &countingEmbedder{}
	e, err := NewCachedEmbedder(inner, 16)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = e.Embed(ctx, "hello world", KindDocument)
	require.NoError(t, err)
	_, err = e.Embed(ctx, "hello world", KindDocument)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls, "second call must hit the cache")

	// Different kind is a different cache entry.
	_, err = e.Embed(ctx, "hello world", KindQuery)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)

	// Batch: one hit, one miss.
	results, err := e.EmbedBatch(ctx, []string{"hello world", "brand new"}, KindDocument)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 3, inner.calls)
}

func TestFactoryStaticBackend(t *testing.T) {
	e, err := New(context.Background(), FactoryConfig{Backend: BackendStatic})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()
	assert.Equal(t, StaticDimensions, e.Dimensions())
}

func TestFactoryAutoFallsBack(t *testing.T) {
	// Unreachable host forces the static fallback.
	e, err := New(context.Background(), FactoryConfig{Backend: BackendAuto, Host: "http://127.0.0.1:1"})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()
	assert.Equal(t, "static-hash-v1", e.ModelName())
}
