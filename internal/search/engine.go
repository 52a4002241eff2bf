package search

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blakazulu/search-mcp/internal/embed"
	"github.com/blakazulu/search-mcp/internal/errors"
	"github.com/blakazulu/search-mcp/internal/store"
)

// Mode selects the retrieval modality.
type Mode string

const (
	ModeVector  Mode = "vector"
	ModeKeyword Mode = "keyword"
	ModeHybrid  Mode = "hybrid"
)

// Engine limits and defaults.
const (
	MaxQueryLength = 1000
	DefaultTopK    = 10
	MaxTopK        = 50
	DefaultAlpha   = 0.65

	// oversample requests this multiple of top_k from each modality so
	// fusion and dedupe have enough candidates.
	oversample = 3
)

// Options configures one search call.
type Options struct {
	Mode  Mode    // default: hybrid
	Alpha float64 // vector weight in [0,1]; default DefaultAlpha
	TopK  int     // default 10, max 50

	// PathPrefix restricts results to files under the prefix.
	PathPrefix string
}

// Result is one ranked search hit.
type Result struct {
	Path      string
	Text      string
	Score     float64
	StartLine int
	EndLine   int
	Metadata  map[string]any
}

// Diagnostics reports degradations that did not fail the search.
type Diagnostics struct {
	FTSUnavailable bool
	SearchTimeMs   int64
}

// Engine runs hybrid search over one vector store + FTS store pair.
type Engine struct {
	vector     store.VectorStore
	fts        store.FTSStore
	embedder   embed.Embedder
	classifier *IntentClassifier
	expander   *QueryExpander
	fusion     *RRFFusion
	ranker     *Ranker

	mu sync.RWMutex
}

// NewEngine creates a search engine. fts may be nil; the engine then
// degrades to vector-only with an fts_unavailable diagnostic.
func NewEngine(vector store.VectorStore, fts store.FTSStore, embedder embed.Embedder) (*Engine, error) {
	if vector == nil {
		return nil, errors.New(errors.ErrCodeInternal, "vector store is required", nil)
	}
	if embedder == nil {
		return nil, errors.New(errors.ErrCodeInternal, "embedder is required", nil)
	}
	return &Engine{
		vector:     vector,
		fts:        fts,
		embedder:   embedder,
		classifier: NewIntentClassifier(),
		expander:   NewQueryExpander(),
		fusion:     NewRRFFusion(),
		ranker:     NewRanker(),
	}, nil
}

// Search executes the full pipeline: expand, classify, embed, retrieve
// both modalities in parallel, fuse, boost, dedupe, truncate.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]*Result, *Diagnostics, error) {
	started := time.Now()
	diag := &Diagnostics{}

	if len(query) > MaxQueryLength {
		return nil, nil, errors.New(errors.ErrCodeQueryTooLong, "query exceeds maximum length", nil).
			WithDetail("limit", "1000")
	}
	if query == "" {
		return nil, nil, errors.New(errors.ErrCodeQueryEmpty, "query is empty", nil)
	}

	opts = e.normalizeOptions(opts)

	expanded := e.expander.Expand(query)
	intents := e.classifier.DetectIntent(query)

	fetchK := opts.TopK * oversample

	var (
		vecResults []*store.VectorResult
		kwResults  []*store.FTSResult
	)

	runVector := opts.Mode == ModeVector || opts.Mode == ModeHybrid
	runKeyword := (opts.Mode == ModeKeyword || opts.Mode == ModeHybrid) && e.fts != nil
	if (opts.Mode == ModeKeyword || opts.Mode == ModeHybrid) && e.fts == nil {
		diag.FTSUnavailable = true
		if opts.Mode == ModeKeyword {
			runVector = true // degrade keyword-only to vector-only
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if runVector {
		g.Go(func() error {
			qvec, err := e.embedder.Embed(gctx, expanded, embed.KindQuery)
			if err != nil {
				if embed.IsDimensionMismatch(err) {
					return errors.New(errors.ErrCodeDimensionMismatch, "query embedding dimension mismatch", err)
				}
				return errors.New(errors.ErrCodeEmbeddingFailed, "failed to embed query", err)
			}
			vecResults, err = e.vector.Search(gctx, qvec, fetchK)
			if err != nil {
				return errors.New(errors.ErrCodeSearchFailed, "vector search failed", err)
			}
			return nil
		})
	}
	if runKeyword {
		g.Go(func() error {
			results, err := e.fts.Search(gctx, expanded, fetchK)
			if err != nil {
				// Keyword failure degrades hybrid search instead of
				// failing it; keyword-only mode reports the error.
				if opts.Mode == ModeKeyword {
					return errors.New(errors.ErrCodeSearchFailed, "keyword search failed", err)
				}
				slog.Warn("fts search failed, degrading to vector-only",
					slog.String("error", err.Error()))
				diag.FTSUnavailable = true
				return nil
			}
			kwResults = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	fused := e.fusion.Fuse(vecResults, kwResults, opts.Alpha, e.lookupRecord)
	ranked := e.ranker.Rank(fused, query, intents)
	deduped := Deduplicate(ranked)

	if opts.PathPrefix != "" {
		deduped = filterByPrefix(deduped, opts.PathPrefix)
	}
	if len(deduped) > opts.TopK {
		deduped = deduped[:opts.TopK]
	}

	out := make([]*Result, 0, len(deduped))
	for _, fr := range deduped {
		out = append(out, toResult(fr))
	}
	diag.SearchTimeMs = time.Since(started).Milliseconds()
	return out, diag, nil
}

func (e *Engine) normalizeOptions(opts Options) Options {
	if opts.Mode == "" {
		opts.Mode = ModeHybrid
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.TopK > MaxTopK {
		opts.TopK = MaxTopK
	}
	if opts.Alpha <= 0 || opts.Alpha > 1 {
		opts.Alpha = DefaultAlpha
	}
	return opts
}

// lookupRecord resolves a keyword-only hit to its full record via the
// vector store's columnar table.
func (e *Engine) lookupRecord(id string) *store.ChunkRecord {
	// The vector store owns the records; stores that expose GetChunk are
	// queried directly, any other store yields nil.
	if getter, ok := e.vector.(interface {
		GetChunk(id string) *store.ChunkRecord
	}); ok {
		return getter.GetChunk(id)
	}
	return nil
}

func filterByPrefix(results []*FusedResult, prefix string) []*FusedResult {
	out := results[:0]
	for _, r := range results {
		if len(r.Record.Path) >= len(prefix) && r.Record.Path[:len(prefix)] == prefix {
			out = append(out, r)
		}
	}
	return out
}

func toResult(fr *FusedResult) *Result {
	res := &Result{
		Path:      fr.Record.Path,
		Text:      fr.Record.Text,
		Score:     fr.Score,
		StartLine: fr.Record.StartLine,
		EndLine:   fr.Record.EndLine,
	}
	if md := fr.Record.Metadata; md != nil {
		m := make(map[string]any)
		if md.Kind != "" {
			m["kind"] = string(md.Kind)
		}
		if md.Name != "" {
			m["name"] = md.Name
		}
		if md.Signature != "" {
			m["signature"] = md.Signature
		}
		if md.Parent != "" {
			m["parent"] = md.Parent
		}
		if len(md.HeaderPath) > 0 {
			m["headerPath"] = md.HeaderPath
		}
		if len(m) > 0 {
			res.Metadata = m
		}
	}
	return res
}
