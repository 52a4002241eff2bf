package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blakazulu/search-mcp/internal/chunk"
	"github.com/blakazulu/search-mcp/internal/embed"
)

const testDims = 8

func vec(dir int) []float32 {
	v := make([]float32, testDims)
	v[dir%testDims] = 1
	return v
}

func record(id, path, text string, start, end int, v []float32) *ChunkRecord {
	return &ChunkRecord{
		ID:          id,
		Path:        path,
		Text:        text,
		StartLine:   start,
		EndLine:     end,
		ContentHash: id + "-hash",
		Metadata:    &chunk.Metadata{Kind: chunk.KindFunction, Name: "fn_" + id},
		Vector:      v,
	}
}

func newVectorStore(t *testing.T) *HNSWStore {
	t.Helper()
	s, err := NewHNSWStore(VectorStoreConfig{Dimensions: testDims})
	require.NoError(t, err)
	return s
}

func TestHNSWInsertSearch(t *testing.T) {
	s := newVectorStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertChunks(ctx, []*ChunkRecord{
		record("a", "a.go", "alpha", 1, 5, vec(0)),
		record("b", "b.go", "beta", 1, 5, vec(1)),
		record("c", "c.go", "gamma", 1, 5, vec(2)),
	}))
	assert.Equal(t, 3, s.Count())

	results, err := s.Search(ctx, vec(0), 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	best := results[0]
	assert.Equal(t, "a", best.Record.ID)
	assert.InDelta(t, 1.0, best.Score, 1e-4)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
}

func TestHNSWRejectsBadVectors(t *testing.T) {
	s := newVectorStore(t)
	ctx := context.Background()

	err := s.InsertChunks(ctx, []*ChunkRecord{record("x", "x.go", "t", 1, 1, []float32{1, 2})})
	assert.True(t, embed.IsDimensionMismatch(err))

	err = s.InsertChunks(ctx, []*ChunkRecord{record("z", "z.go", "t", 1, 1, make([]float32, testDims))})
	assert.ErrorIs(t, err, embed.ErrInvalidComponent)

	assert.Equal(t, 0, s.Count(), "failed insert must not leave partial state")
}

func TestHNSWDeleteByPath(t *testing.T) {
	s := newVectorStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertChunks(ctx, []*ChunkRecord{
		record("a1", "a.go", "one", 1, 5, vec(0)),
		record("a2", "a.go", "two", 6, 10, vec(1)),
		record("b1", "b.go", "three", 1, 3, vec(2)),
	}))
	require.NoError(t, s.DeleteChunksByPath(ctx, "a.go"))

	assert.Equal(t, 1, s.Count())
	recs, err := s.GetChunksForFile(ctx, "a.go")
	require.NoError(t, err)
	assert.Empty(t, recs)

	// Deleted vectors never surface in search results.
	results, err := s.Search(ctx, vec(0), 3)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "b1", r.Record.ID)
	}
}

func TestHNSWGetChunksForFileOrdered(t *testing.T) {
	s := newVectorStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertChunks(ctx, []*ChunkRecord{
		record("late", "a.go", "x", 50, 60, vec(0)),
		record("early", "a.go", "y", 1, 10, vec(1)),
	}))

	recs, err := s.GetChunksForFile(ctx, "a.go")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "early", recs[0].ID)
	assert.Equal(t, "late", recs[1].ID)
}

func TestHNSWUpdateChunkPosition(t *testing.T) {
	s := newVectorStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertChunks(ctx, []*ChunkRecord{record("a", "a.go", "x", 1, 5, vec(0))}))
	require.NoError(t, s.UpdateChunkPosition(ctx, "a", 3, 7))

	recs, err := s.GetChunksForFile(ctx, "a.go")
	require.NoError(t, err)
	assert.Equal(t, 3, recs[0].StartLine)
	assert.Equal(t, 7, recs[0].EndLine)

	assert.Error(t, s.UpdateChunkPosition(ctx, "missing", 1, 2))
}

func TestHNSWSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	ctx := context.Background()

	s := newVectorStore(t)
	require.NoError(t, s.InsertChunks(ctx, []*ChunkRecord{
		record("a", "a.go", "alpha", 1, 5, vec(0)),
		record("b", "b.go", "beta", 1, 5, vec(1)),
	}))
	require.NoError(t, s.CreateVectorIndex(PlanVectorIndex(2, testDims, "cos")))
	require.NoError(t, s.Save(path))

	loaded := newVectorStore(t)
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, 2, loaded.Count())
	require.NotNil(t, loaded.IndexInfo())

	results, err := loaded.Search(ctx, vec(0), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Record.ID)
}

func TestHNSWLoadDimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	ctx := context.Background()

	s := newVectorStore(t)
	require.NoError(t, s.InsertChunks(ctx, []*ChunkRecord{record("a", "a.go", "x", 1, 1, vec(0))}))
	require.NoError(t, s.Save(path))

	other, err := NewHNSWStore(VectorStoreConfig{Dimensions: testDims * 2})
	require.NoError(t, err)
	err = other.Load(path)
	assert.True(t, embed.IsDimensionMismatch(err))
}

func TestPlanVectorIndex(t *testing.T) {
	cfg := PlanVectorIndex(10000, 384, "cos")
	assert.Equal(t, 100, cfg.NumPartitions)
	assert.Equal(t, 24, cfg.NumSubVectors)
	assert.Equal(t, "cosine", cfg.DistanceType)

	// Partition clamp.
	cfg = PlanVectorIndex(1000000, 384, "cos")
	assert.Equal(t, MaxPartitions, cfg.NumPartitions)
	cfg = PlanVectorIndex(0, 384, "l2")
	assert.Equal(t, 1, cfg.NumPartitions)
	assert.Equal(t, "l2", cfg.DistanceType)

	// Dimension not divisible by 16 falls back to D/8.
	cfg = PlanVectorIndex(100, 100, "cos")
	assert.Equal(t, 100/8, cfg.NumSubVectors)
}

func runFTSTests(t *testing.T, name string, open func(t *testing.T) FTSStore) {
	ctx := context.Background()

	t.Run(name+"/AddSearch", func(t *testing.T) {
		s := open(t)
		defer func() { _ = s.Close() }()

		require.NoError(t, s.AddChunks(ctx, []*ChunkRecord{
			record("1", "auth.go", "func authenticateUser(name string) error { return validate(name) }", 1, 3, nil),
			record("2", "db.go", "func openDatabase(dsn string) (*sql.DB, error)", 1, 2, nil),
			record("3", "util.go", "func formatTimestamp(t time.Time) string", 1, 2, nil),
		}))

		results, err := s.Search(ctx, "authenticate user", 10)
		require.NoError(t, err)
		require.NotEmpty(t, results)
		assert.Equal(t, "1", results[0].ID)
		assert.Equal(t, "auth.go", results[0].Path)

		normalized := NormalizeScores(results)
		assert.InDelta(t, 1.0, normalized[0].Score, 1e-9)
		for _, r := range normalized {
			assert.GreaterOrEqual(t, r.Score, 0.0)
			assert.LessOrEqual(t, r.Score, 1.0)
		}
	})

	t.Run(name+"/RemoveByPath", func(t *testing.T) {
		s := open(t)
		defer func() { _ = s.Close() }()

		require.NoError(t, s.AddChunks(ctx, []*ChunkRecord{
			record("1", "a.go", "alpha beta gamma", 1, 1, nil),
			record("2", "a.go", "alpha delta", 2, 2, nil),
			record("3", "b.go", "alpha epsilon", 1, 1, nil),
		}))
		require.NoError(t, s.RemoveByPath(ctx, "a.go"))

		n, err := s.Stats()
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		results, err := s.Search(ctx, "alpha", 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "3", results[0].ID)
	})

	t.Run(name+"/RemoveByIDs", func(t *testing.T) {
		s := open(t)
		defer func() { _ = s.Close() }()

		require.NoError(t, s.AddChunks(ctx, []*ChunkRecord{
			record("1", "a.go", "needle one", 1, 1, nil),
			record("2", "a.go", "needle two", 2, 2, nil),
		}))
		require.NoError(t, s.RemoveByIDs(ctx, []string{"1"}))

		results, err := s.Search(ctx, "needle", 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "2", results[0].ID)
	})

	t.Run(name+"/EmptyQuery", func(t *testing.T) {
		s := open(t)
		defer func() { _ = s.Close() }()
		results, err := s.Search(ctx, "   ", 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestSQLiteFTS(t *testing.T) {
	runFTSTests(t, "sqlite", func(t *testing.T) FTSStore {
		s, err := NewSQLiteFTS(filepath.Join(t.TempDir(), "fts.db"))
		require.NoError(t, err)
		return s
	})
}

func TestBleveFTS(t *testing.T) {
	runFTSTests(t, "bleve", func(t *testing.T) FTSStore {
		s, err := NewBleveFTS("")
		require.NoError(t, err)
		return s
	})
}

func TestSQLiteFTSPersistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fts.db")

	s, err := NewSQLiteFTS(path)
	require.NoError(t, err)
	require.NoError(t, s.AddChunks(ctx, []*ChunkRecord{record("1", "a.go", "persisted content here", 1, 1, nil)}))
	require.NoError(t, s.Close())

	reopened, err := NewSQLiteFTS(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	results, err := reopened.Search(ctx, "persisted", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "1", results[0].ID)
}

func TestFactorySelectsBackend(t *testing.T) {
	s, err := NewFTS("", filepath.Join(t.TempDir(), "fts.db"))
	require.NoError(t, err)
	_, ok := s.(*SQLiteFTS)
	assert.True(t, ok)
	_ = s.Close()

	s, err = NewFTS(FTSBackendBleve, "")
	require.NoError(t, err)
	_, ok = s.(*BleveFTS)
	assert.True(t, ok)
	_ = s.Close()

	_, err = NewFTS("bogus", "")
	assert.Error(t, err)
}

func TestTokenizeQuery(t *testing.T) {
	tokens := TokenizeQuery("authenticateUser in the DB_connection")
	assert.Contains(t, tokens, "authenticate")
	assert.Contains(t, tokens, "user")
	assert.Contains(t, tokens, "db")
	assert.Contains(t, tokens, "connection")
	assert.NotContains(t, tokens, "the")
	assert.NotContains(t, tokens, "in")
}
