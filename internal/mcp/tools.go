package mcp

import (
	"context"
	"time"

	"github.com/gobwas/glob"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/blakazulu/search-mcp/internal/chunk"
	"github.com/blakazulu/search-mcp/internal/errors"
	"github.com/blakazulu/search-mcp/internal/index"
	"github.com/blakazulu/search-mcp/internal/pathsafe"
	"github.com/blakazulu/search-mcp/internal/search"
)

// ConfirmInput gates destructive operations. The check is strict
// identity: only the boolean true confirms; undefined, null, and false
// all cancel.
type ConfirmInput struct {
	Confirmed *bool `json:"confirmed,omitempty" jsonschema:"must be exactly true to run this destructive operation"`
}

func (c ConfirmInput) isConfirmed() bool {
	return c.Confirmed != nil && *c.Confirmed
}

// IndexOutput is the result of create_index / reindex_project.
type IndexOutput struct {
	Status        string `json:"status" jsonschema:"success or cancelled"`
	ProjectPath   string `json:"projectPath,omitempty"`
	FilesIndexed  int    `json:"filesIndexed,omitempty"`
	ChunksCreated int    `json:"chunksCreated,omitempty"`
	DurationMs    int64  `json:"duration,omitempty"`
}

func (s *Server) handleCreateIndex(ctx context.Context, _ *sdk.CallToolRequest, in ConfirmInput) (*sdk.CallToolResult, IndexOutput, error) {
	if !in.isConfirmed() {
		return nil, IndexOutput{Status: "cancelled"}, nil
	}

	started := time.Now()
	files, chunks, err := s.dual.FullIndex(ctx, nil)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeCancelled) {
			return nil, IndexOutput{Status: "cancelled"}, nil
		}
		return nil, IndexOutput{}, toolError(err)
	}
	return nil, IndexOutput{
		Status:        "success",
		ProjectPath:   errors.SanitizePath(s.dual.RootPath),
		FilesIndexed:  files,
		ChunksCreated: chunks,
		DurationMs:    time.Since(started).Milliseconds(),
	}, nil
}

// ReindexFileInput identifies the file to update.
type ReindexFileInput struct {
	Path string `json:"path" jsonschema:"project-relative path of the file to reindex"`
}

// ReindexFileOutput reports the surgical update.
type ReindexFileOutput struct {
	Status        string `json:"status"`
	ChunksUpdated int    `json:"chunksUpdated"`
}

func (s *Server) handleReindexFile(ctx context.Context, _ *sdk.CallToolRequest, in ReindexFileInput) (*sdk.CallToolResult, ReindexFileOutput, error) {
	if in.Path == "" {
		return nil, ReindexFileOutput{}, toolError(errors.InvalidInput("path is required"))
	}
	if _, err := pathsafe.SafeJoin(s.dual.RootPath, in.Path); err != nil {
		return nil, ReindexFileOutput{}, toolError(err)
	}

	stats, err := s.dual.UpdateFile(ctx, in.Path)
	if err != nil {
		return nil, ReindexFileOutput{}, toolError(err)
	}
	updated := 0
	if stats != nil {
		updated = stats.ChunksEmbedded + stats.ChunksMoved
	}
	return nil, ReindexFileOutput{Status: "success", ChunksUpdated: updated}, nil
}

// DeleteIndexOutput reports the deletion.
type DeleteIndexOutput struct {
	Status string `json:"status"`
}

func (s *Server) handleDeleteIndex(ctx context.Context, _ *sdk.CallToolRequest, in ConfirmInput) (*sdk.CallToolResult, DeleteIndexOutput, error) {
	if !in.isConfirmed() {
		return nil, DeleteIndexOutput{Status: "cancelled"}, nil
	}
	if err := s.dual.DeleteIndex(ctx); err != nil {
		if errors.HasCode(err, errors.ErrCodeCancelled) {
			return nil, DeleteIndexOutput{Status: "cancelled"}, nil
		}
		return nil, DeleteIndexOutput{}, toolError(err)
	}
	return nil, DeleteIndexOutput{Status: "success"}, nil
}

// StatusInput is empty.
type StatusInput struct{}

// StatusOutput reports index readiness.
type StatusOutput struct {
	Status       string             `json:"status" jsonschema:"ready or not_found"`
	ProjectPath  string             `json:"projectPath,omitempty"`
	TotalFiles   int                `json:"totalFiles,omitempty"`
	TotalChunks  int                `json:"totalChunks,omitempty"`
	LastUpdated  string             `json:"lastUpdated,omitempty"`
	StorageSize  int64              `json:"storageSize,omitempty"`
	WatcherState string             `json:"watcherActive,omitempty"`
	VectorIndex  *VectorIndexOutput `json:"vectorIndex,omitempty"`
	Compute      *ComputeOutput     `json:"compute,omitempty"`
}

// VectorIndexOutput mirrors the accelerated-index metadata.
type VectorIndexOutput struct {
	IndexType     string `json:"indexType"`
	NumPartitions int    `json:"numPartitions"`
	NumSubVectors int    `json:"numSubVectors"`
	DistanceType  string `json:"distanceType"`
	ChunkCount    int    `json:"chunkCount"`
}

// ComputeOutput reports the active embedding backend.
type ComputeOutput struct {
	Device string `json:"device"`
	Model  string `json:"model,omitempty"`
}

func (s *Server) handleIndexStatus(ctx context.Context, _ *sdk.CallToolRequest, _ StatusInput) (*sdk.CallToolResult, StatusOutput, error) {
	if !s.dual.Exists() {
		return nil, StatusOutput{Status: "not_found"}, nil
	}

	codeMeta := s.dual.Code.Metadata()
	docsMeta := s.dual.Docs.Metadata()

	out := StatusOutput{
		Status:      "ready",
		ProjectPath: errors.SanitizePath(s.dual.RootPath),
		TotalFiles:  codeMeta.Stats.TotalFiles + docsMeta.Stats.TotalFiles,
		TotalChunks: codeMeta.Stats.TotalChunks + docsMeta.Stats.TotalChunks,
		StorageSize: s.dual.StorageSize(),
		Compute: &ComputeOutput{
			Device: "cpu",
			Model:  s.dual.Code.Embedder().ModelName(),
		},
	}

	last := codeMeta.LastFullIndex
	for _, t := range []time.Time{codeMeta.LastIncrementalUpdate, docsMeta.LastFullIndex, docsMeta.LastIncrementalUpdate} {
		if t.After(last) {
			last = t
		}
	}
	if !last.IsZero() {
		out.LastUpdated = last.Format(time.RFC3339)
	}

	if vi := codeMeta.VectorIndex; vi != nil {
		out.VectorIndex = &VectorIndexOutput{
			IndexType:     vi.IndexType,
			NumPartitions: vi.NumPartitions,
			NumSubVectors: vi.NumSubVectors,
			DistanceType:  vi.DistanceType,
			ChunkCount:    vi.ChunkCount,
		}
	}

	s.mu.RLock()
	if s.strat != nil {
		out.WatcherState = s.strat.Stats().State.String()
	}
	s.mu.RUnlock()

	return nil, out, nil
}

// SearchInput is the request for search_code / search_docs.
type SearchInput struct {
	Query string  `json:"query" jsonschema:"natural-language search query, at most 1000 characters"`
	TopK  int     `json:"top_k,omitempty" jsonschema:"number of results, 1-50, default 10"`
	Mode  string  `json:"mode,omitempty" jsonschema:"vector, keyword, or hybrid (default)"`
	Alpha float64 `json:"alpha,omitempty" jsonschema:"vector weight between 0 and 1"`
}

// SearchResultOutput is one ranked hit.
type SearchResultOutput struct {
	Path      string         `json:"path"`
	Text      string         `json:"text"`
	Score     float64        `json:"score"`
	StartLine int            `json:"startLine"`
	EndLine   int            `json:"endLine"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SearchOutput is the response for search tools.
type SearchOutput struct {
	Results      []SearchResultOutput `json:"results"`
	TotalResults int                  `json:"totalResults"`
	SearchTimeMs int64                `json:"searchTimeMs"`
}

func (s *Server) handleSearchCode(ctx context.Context, _ *sdk.CallToolRequest, in SearchInput) (*sdk.CallToolResult, SearchOutput, error) {
	return s.runSearch(ctx, s.codeEngine, s.dual.Code.Vector().Count(), in)
}

func (s *Server) handleSearchDocs(ctx context.Context, _ *sdk.CallToolRequest, in SearchInput) (*sdk.CallToolResult, SearchOutput, error) {
	return s.runSearch(ctx, s.docsEngine, s.dual.Docs.Vector().Count(), in)
}

func (s *Server) runSearch(ctx context.Context, engine *search.Engine, indexed int, in SearchInput) (*sdk.CallToolResult, SearchOutput, error) {
	if err := validateSearchInput(in); err != nil {
		return nil, SearchOutput{}, toolError(err)
	}
	if !s.dual.Exists() || indexed == 0 {
		return nil, SearchOutput{}, toolError(errors.IndexNotFound())
	}

	opts := search.Options{
		Mode:  search.Mode(in.Mode),
		Alpha: in.Alpha,
		TopK:  in.TopK,
	}
	if in.Mode == "" {
		opts.Mode = search.Mode(s.cfg.Search.Mode)
	}
	if in.Alpha == 0 {
		opts.Alpha = s.cfg.Search.Alpha
	}

	results, diag, err := engine.Search(ctx, in.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, toolError(err)
	}

	out := SearchOutput{
		Results:      make([]SearchResultOutput, 0, len(results)),
		TotalResults: len(results),
		SearchTimeMs: diag.SearchTimeMs,
	}
	for _, r := range results {
		out.Results = append(out.Results, SearchResultOutput{
			Path:      r.Path,
			Text:      r.Text,
			Score:     r.Score,
			StartLine: r.StartLine,
			EndLine:   r.EndLine,
			Metadata:  r.Metadata,
		})
	}
	return nil, out, nil
}

func validateSearchInput(in SearchInput) error {
	if in.Query == "" {
		return errors.New(errors.ErrCodeQueryEmpty, "query is required", nil)
	}
	if len(in.Query) > search.MaxQueryLength {
		return errors.InvalidInput("query exceeds 1000 characters")
	}
	if in.TopK < 0 || in.TopK > search.MaxTopK {
		return errors.InvalidInput("top_k must be between 1 and 50")
	}
	if in.Alpha < 0 || in.Alpha > 1 {
		return errors.InvalidInput("alpha must be between 0 and 1")
	}
	switch in.Mode {
	case "", "vector", "keyword", "hybrid":
	default:
		return errors.InvalidInput("mode must be vector, keyword, or hybrid")
	}
	return nil
}

// SearchByPathInput is the request for search_by_path.
type SearchByPathInput struct {
	Pattern string `json:"pattern" jsonschema:"glob pattern matched against indexed file paths"`
	TopK    int    `json:"top_k,omitempty" jsonschema:"maximum matches, default 10"`
}

// PathMatchOutput is one matched file.
type PathMatchOutput struct {
	Path       string `json:"path"`
	ChunkCount int    `json:"chunkCount"`
}

// SearchByPathOutput is the response for search_by_path.
type SearchByPathOutput struct {
	Results []PathMatchOutput `json:"results"`
}

func (s *Server) handleSearchByPath(ctx context.Context, _ *sdk.CallToolRequest, in SearchByPathInput) (*sdk.CallToolResult, SearchByPathOutput, error) {
	if err := IsPatternSafe(in.Pattern); err != nil {
		return nil, SearchByPathOutput{}, toolError(err)
	}
	topK := in.TopK
	if topK <= 0 {
		topK = 10
	}
	if topK > search.MaxTopK {
		topK = search.MaxTopK
	}

	matcher, err := glob.Compile(in.Pattern, '/')
	if err != nil {
		return nil, SearchByPathOutput{}, toolError(errors.InvalidInput("invalid glob pattern"))
	}

	out := SearchByPathOutput{Results: []PathMatchOutput{}}
	for _, mgr := range []*index.Manager{s.dual.Code, s.dual.Docs} {
		for path := range mgr.Fingerprints().Snapshot() {
			if !matcher.Match(path) {
				continue
			}
			recs, recErr := mgr.Vector().GetChunksForFile(ctx, path)
			if recErr != nil {
				continue
			}
			out.Results = append(out.Results, PathMatchOutput{Path: path, ChunkCount: len(recs)})
			if len(out.Results) >= topK {
				return nil, out, nil
			}
		}
	}
	return nil, out, nil
}

// FileSummaryInput is the request for get_file_summary.
type FileSummaryInput struct {
	Path              string `json:"path" jsonschema:"project-relative path of the file"`
	IncludeComplexity bool   `json:"includeComplexity,omitempty"`
	IncludeDocstrings bool   `json:"includeDocstrings,omitempty"`
}

func (s *Server) handleFileSummary(ctx context.Context, _ *sdk.CallToolRequest, in FileSummaryInput) (*sdk.CallToolResult, *chunk.FileSummary, error) {
	if in.Path == "" {
		return nil, nil, toolError(errors.InvalidInput("path is required"))
	}

	extractor := chunk.NewExtractor()
	defer extractor.Close()

	summary, err := extractor.ExtractFileSummary(ctx, s.dual.RootPath, in.Path)
	if err != nil {
		return nil, nil, toolError(err)
	}
	if !in.IncludeComplexity {
		summary.Complexity = chunk.Complexity{}
	}
	if !in.IncludeDocstrings {
		for i := range summary.Functions {
			summary.Functions[i].Docstring = ""
		}
		for i := range summary.Classes {
			summary.Classes[i].Docstring = ""
		}
	}
	return nil, summary, nil
}
