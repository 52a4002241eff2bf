package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blakazulu/search-mcp/internal/chunk"
	"github.com/blakazulu/search-mcp/internal/embed"
	"github.com/blakazulu/search-mcp/internal/errors"
	"github.com/blakazulu/search-mcp/internal/hashing"
	"github.com/blakazulu/search-mcp/internal/store"
)

func TestDetectIntentCategories(t *testing.T) {
	c := NewIntentClassifier()

	tests := []struct {
		query string
		want  IntentCategory
	}{
		{"auth function for login", IntentAuth},
		{"how is the database query built", IntentDatabase},
		{"class definition for user model", IntentClass},
		{"error handling in retry logic", IntentError},
		{"api endpoint for search", IntentAPI},
		{"test for the chunker", IntentTest},
		{"config settings yaml", IntentConfig},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			intents := c.DetectIntent(tt.query)
			require.NotEmpty(t, intents)
			found := false
			for _, in := range intents {
				assert.GreaterOrEqual(t, in.Confidence, DefaultMinConfidence)
				assert.LessOrEqual(t, in.Confidence, 1.0)
				if in.Category == tt.want {
					found = true
				}
			}
			assert.True(t, found, "expected %s in %v", tt.want, intents)
		})
	}
}

func TestDetectIntentMultiAndBounds(t *testing.T) {
	c := NewIntentClassifier()

	intents := c.DetectIntent("test the auth api error handling database config class function")
	assert.LessOrEqual(t, len(intents), DefaultMaxIntents)
	for i := 1; i < len(intents); i++ {
		assert.GreaterOrEqual(t, intents[i-1].Confidence, intents[i].Confidence)
	}

	assert.Empty(t, c.DetectIntent(""))
	assert.Empty(t, c.DetectIntent("zzzqqq unrelated words banana"))
}

func TestDetectIntentSplitsIdentifiers(t *testing.T) {
	c := NewIntentClassifier()
	intents := c.DetectIntent("getUserAuthToken")
	require.NotEmpty(t, intents)
	assert.Equal(t, IntentAuth, intents[0].Category)
}

func TestDetectIntentIsFast(t *testing.T) {
	c := NewIntentClassifier()
	start := time.Now()
	for i := 0; i < 100; i++ {
		c.DetectIntent("how does the authentication error handler work in the api")
	}
	perCall := time.Since(start) / 100
	assert.Less(t, perCall, 10*time.Millisecond)
}

func TestExpandQuery(t *testing.T) {
	e := NewQueryExpander()

	out := e.Expand("auth function")
	assert.Contains(t, out, "auth function", "original query preserved")
	assert.Contains(t, out, "authentication")

	// No duplicates of terms already present.
	out = e.Expand("authentication auth")
	assert.Equal(t, 1, countOccurrences(out, "authentication"))
}

func TestExpandQueryCap(t *testing.T) {
	e := NewQueryExpanderWithLimit(3)
	out := e.Expand("auth db api error config test class function")
	extra := len(embed.Tokenize(out)) - len(embed.Tokenize("auth db api error config test class function"))
	assert.LessOrEqual(t, extra, 3)
}

func countOccurrences(s, sub string) int {
	count := 0
	for _, tok := range embed.Tokenize(s) {
		if tok == sub {
			count++
		}
	}
	return count
}

func rec(id, path string, start, end int, kind chunk.Kind, name, text string) *store.ChunkRecord {
	return &store.ChunkRecord{
		ID:          id,
		Path:        path,
		Text:        text,
		StartLine:   start,
		EndLine:     end,
		ContentHash: hashing.ChunkHash(text),
		Metadata:    &chunk.Metadata{Kind: kind, Name: name},
	}
}

func TestRRFFuseBothLists(t *testing.T) {
	f := NewRRFFusion()

	a := rec("a", "a.go", 1, 5, chunk.KindFunction, "alpha", "alpha body")
	b := rec("b", "b.go", 1, 5, chunk.KindFunction, "beta", "beta body")
	c := rec("c", "c.go", 1, 5, chunk.KindFunction, "gamma", "gamma body")

	vec := []*store.VectorResult{
		{Record: a, Score: 0.9},
		{Record: b, Score: 0.5},
	}
	kw := []*store.FTSResult{
		{ID: "b", Path: "b.go", Score: 12},
		{ID: "c", Path: "c.go", Score: 6},
	}
	lookup := func(id string) *store.ChunkRecord {
		if id == "c" {
			return c
		}
		return nil
	}

	fused := f.Fuse(vec, kw, 0.5, lookup)
	require.Len(t, fused, 3)

	// b appears in both lists: best fused score and flagged.
	assert.Equal(t, "b", fused[0].Record.ID)
	assert.True(t, fused[0].InBoth)
	assert.InDelta(t, 1.0, fused[0].Score, 1e-9, "scores normalized to max=1")

	for _, fr := range fused {
		assert.GreaterOrEqual(t, fr.Score, 0.0)
		assert.LessOrEqual(t, fr.Score, 1.0)
	}
}

func TestRRFFuseSingleModalityPassThrough(t *testing.T) {
	f := NewRRFFusion()
	a := rec("a", "a.go", 1, 5, chunk.KindFunction, "alpha", "x")

	// Vector-only: normalized vector scores pass through unweighted.
	fused := f.Fuse([]*store.VectorResult{{Record: a, Score: 0.73}}, nil, 0.6, func(string) *store.ChunkRecord { return nil })
	require.Len(t, fused, 1)
	assert.InDelta(t, 0.73, fused[0].Score, 1e-9)

	// Keyword-only: normalized BM25 passes through unweighted.
	fused = f.Fuse(nil, []*store.FTSResult{{ID: "a", Score: 8}}, 0.6, func(string) *store.ChunkRecord { return a })
	require.Len(t, fused, 1)
	assert.InDelta(t, 1.0, fused[0].Score, 1e-9)
}

func TestRankerNameMatchBoost(t *testing.T) {
	r := NewRanker()

	match := &FusedResult{Record: rec("1", "auth.go", 1, 5, chunk.KindFunction, "authenticateUser", "body"), Score: 0.5}
	other := &FusedResult{Record: rec("2", "misc.go", 1, 5, chunk.KindFunction, "formatOutput", "body"), Score: 0.5}

	ranked := r.Rank([]*FusedResult{other, match}, "authenticate user", nil)
	assert.Equal(t, "1", ranked[0].Record.ID)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
}

func TestRankerIntentChunkTypeBoost(t *testing.T) {
	r := NewRanker()
	intents := []Intent{{Category: IntentClass, Confidence: 0.8}}

	class := &FusedResult{Record: rec("c", "m.go", 1, 9, chunk.KindClass, "User", "class body"), Score: 0.5}
	section := &FusedResult{Record: rec("s", "m.md", 1, 9, chunk.KindSection, "User", "docs"), Score: 0.5}

	ranked := r.Rank([]*FusedResult{section, class}, "user model", intents)
	assert.Equal(t, "c", ranked[0].Record.ID)
}

func TestRankerMissingMetadataIsNeutral(t *testing.T) {
	r := NewRanker()
	bare := &FusedResult{Record: &store.ChunkRecord{ID: "x", Path: "x.bin", Text: "t", StartLine: 1, EndLine: 1}, Score: 0.5}
	ranked := r.Rank([]*FusedResult{bare}, "anything", []Intent{{Category: IntentFunction, Confidence: 0.9}})
	// Path boost may apply at most; score never decreases below base
	// due to missing metadata alone.
	assert.GreaterOrEqual(t, ranked[0].Score, 0.5)
}

func TestDeduplicateMergesAdjacent(t *testing.T) {
	a := &FusedResult{Record: rec("a", "f.go", 1, 10, chunk.KindFunction, "fn", "x"), Score: 0.9}
	b := &FusedResult{Record: rec("b", "f.go", 11, 20, chunk.KindFunction, "fn2", "y"), Score: 0.4}
	far := &FusedResult{Record: rec("c", "f.go", 50, 60, chunk.KindFunction, "fn3", "z"), Score: 0.5}
	other := &FusedResult{Record: rec("d", "g.go", 1, 10, chunk.KindFunction, "fn4", "w"), Score: 0.6}

	out := Deduplicate([]*FusedResult{a, b, far, other})
	require.Len(t, out, 3)

	var merged *FusedResult
	for _, r := range out {
		if r.Record.ID == "a" {
			merged = r
		}
		assert.NotEqual(t, "b", r.Record.ID, "lower-scored adjacent chunk is merged away")
	}
	require.NotNil(t, merged)
	assert.Equal(t, 1, merged.Record.StartLine)
	assert.Equal(t, 20, merged.Record.EndLine, "union of line ranges")
}

func newTestEngine(t *testing.T) (*Engine, *store.HNSWStore, store.FTSStore, embed.Embedder) {
	t.Helper()
	vs, err := store.NewHNSWStore(store.VectorStoreConfig{Dimensions: embed.StaticDimensions})
	require.NoError(t, err)
	fts, err := store.NewSQLiteFTS("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = fts.Close() })

	embedder := embed.NewStaticEmbedder()
	e, err := NewEngine(vs, fts, embedder)
	require.NoError(t, err)
	return e, vs, fts, embedder
}

func indexChunk(t *testing.T, vs *store.HNSWStore, fts store.FTSStore, embedder embed.Embedder, id, path, name, text string, start, end int) {
	t.Helper()
	ctx := context.Background()
	vecs, err := embedder.EmbedBatch(ctx, []string{text}, embed.KindDocument)
	require.NoError(t, err)
	require.NoError(t, vecs[0].Err)

	r := rec(id, path, start, end, chunk.KindFunction, name, text)
	r.Vector = vecs[0].Vector
	require.NoError(t, vs.InsertChunks(ctx, []*store.ChunkRecord{r}))
	require.NoError(t, fts.AddChunks(ctx, []*store.ChunkRecord{r}))
}

func TestEngineHybridSearch(t *testing.T) {
	e, vs, fts, embedder := newTestEngine(t)

	indexChunk(t, vs, fts, embedder, "1", "auth/handler.go", "authenticate",
		"func authenticate(user string, password string) error { return checkCredentials(user, password) }", 10, 14)
	indexChunk(t, vs, fts, embedder, "2", "auth/login.go", "login",
		"func login(w http.ResponseWriter, r *http.Request) { session := newSession() }", 5, 9)
	indexChunk(t, vs, fts, embedder, "3", "format/time.go", "formatTimestamp",
		"func formatTimestamp(t time.Time) string { return t.Format(time.RFC3339) }", 1, 3)

	results, diag, err := e.Search(context.Background(), "auth function", Options{Mode: ModeHybrid, Alpha: 0.6})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.False(t, diag.FTSUnavailable)

	assert.Equal(t, "auth/handler.go", results[0].Path)
	assert.Greater(t, results[0].Score, 0.5)

	// No absolute paths in results.
	for _, r := range results {
		assert.False(t, r.Path[0] == '/', "path must be relative: %s", r.Path)
	}
}

func TestEngineKeywordMode(t *testing.T) {
	e, vs, fts, embedder := newTestEngine(t)
	indexChunk(t, vs, fts, embedder, "1", "a.go", "authenticate", "func authenticate() {}", 1, 1)
	indexChunk(t, vs, fts, embedder, "2", "b.go", "unrelated", "func unrelated() {}", 1, 1)

	results, _, err := e.Search(context.Background(), "authenticate", Options{Mode: ModeKeyword})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a.go", results[0].Path)
}

func TestEngineVectorMode(t *testing.T) {
	e, vs, fts, embedder := newTestEngine(t)
	indexChunk(t, vs, fts, embedder, "1", "a.go", "login", "func login(user string) error", 1, 1)

	results, _, err := e.Search(context.Background(), "authenticate login user", Options{Mode: ModeVector})
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestEngineQueryLimits(t *testing.T) {
	e, _, _, _ := newTestEngine(t)

	long := make([]byte, MaxQueryLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, _, err := e.Search(context.Background(), string(long), Options{})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeQueryTooLong, errors.GetCode(err))

	// Exactly at the limit is accepted.
	_, _, err = e.Search(context.Background(), string(long[:MaxQueryLength]), Options{})
	assert.NoError(t, err)

	_, _, err = e.Search(context.Background(), "", Options{})
	assert.Equal(t, errors.ErrCodeQueryEmpty, errors.GetCode(err))
}

func TestEngineFTSUnavailableFallback(t *testing.T) {
	vs, err := store.NewHNSWStore(store.VectorStoreConfig{Dimensions: embed.StaticDimensions})
	require.NoError(t, err)
	embedder := embed.NewStaticEmbedder()
	e, err := NewEngine(vs, nil, embedder)
	require.NoError(t, err)

	ctx := context.Background()
	vecs, err := embedder.EmbedBatch(ctx, []string{"func hello() {}"}, embed.KindDocument)
	require.NoError(t, err)
	r := rec("1", "a.go", 1, 1, chunk.KindFunction, "hello", "func hello() {}")
	r.Vector = vecs[0].Vector
	require.NoError(t, vs.InsertChunks(ctx, []*store.ChunkRecord{r}))

	results, diag, err := e.Search(ctx, "hello function", Options{Mode: ModeHybrid})
	require.NoError(t, err)
	assert.True(t, diag.FTSUnavailable)
	assert.NotEmpty(t, results)
}

func TestEnginePathPrefixFilter(t *testing.T) {
	e, vs, fts, embedder := newTestEngine(t)
	indexChunk(t, vs, fts, embedder, "1", "pkg/auth/a.go", "authenticate", "func authenticate() {}", 1, 1)
	indexChunk(t, vs, fts, embedder, "2", "other/b.go", "authenticateToo", "func authenticateToo() {}", 1, 1)

	results, _, err := e.Search(context.Background(), "authenticate", Options{PathPrefix: "pkg/"})
	require.NoError(t, err)
	for _, r := range results {
		assert.Contains(t, r.Path, "pkg/")
	}
}
