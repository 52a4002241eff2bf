package chunk

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/blakazulu/search-mcp/internal/errors"
)

// markdownExts are routed to the markdown-section strategy.
var markdownExts = map[string]struct{}{
	".md": {}, ".mdx": {}, ".markdown": {}, ".rst": {},
}

// Splitter dispatches a file to the right strategy by extension and
// enforces the per-file chunk cap across every strategy.
type Splitter struct {
	options   Options
	ast       *ASTChunker
	heuristic *HeuristicChunker
	markdown  *MarkdownChunker
	fallback  *FallbackChunker
}

// NewSplitter creates the dispatching chunker.
func NewSplitter(opts Options) *Splitter {
	opts = opts.withDefaults()
	return &Splitter{
		options:   opts,
		ast:       NewASTChunker(opts),
		heuristic: NewHeuristicChunker(opts),
		markdown:  NewMarkdownChunker(opts),
		fallback:  NewFallbackChunker(opts),
	}
}

// Close releases parser resources.
func (s *Splitter) Close() {
	s.ast.Close()
}

// Split chunks the file, choosing a strategy by extension:
// markdown -> AST grammar -> heuristic language -> character fallback.
// Every returned chunk carries its content hash; the chunk-count cap is
// enforced uniformly, aborting with a resource-limit error.
func (s *Splitter) Split(ctx context.Context, path string, content []byte) ([]*Chunk, error) {
	file := &FileInput{Path: filepath.ToSlash(path), Content: content}
	ext := strings.ToLower(filepath.Ext(path))

	var (
		chunks []*Chunk
		err    error
	)

	switch {
	case s.isMarkdown(ext):
		chunks, err = s.markdown.Chunk(ctx, file)
	default:
		if lang := DefaultRegistry().LanguageForPath(path); lang != "" {
			file.Language = lang
			chunks, err = s.ast.Chunk(ctx, file)
			if err != nil && ctx.Err() == nil {
				// Parse failures degrade to the heuristic/fallback path.
				slog.Debug("ast chunking failed, falling back",
					slog.String("path", file.Path),
					slog.String("error", err.Error()))
				err = nil
				chunks = nil
			}
		}
		if chunks == nil && err == nil {
			if lang := HeuristicLanguageForPath(path); lang != "" {
				file.Language = lang
				chunks, err = s.heuristic.Chunk(ctx, file)
				if _, unsupported := err.(*unsupportedError); unsupported {
					err = nil
					chunks = nil
				}
			}
		}
		if chunks == nil && err == nil {
			chunks, err = s.fallback.Chunk(ctx, file)
		}
	}
	if err != nil {
		return nil, err
	}

	return s.enforceCap(file.Path, chunks)
}

func (s *Splitter) isMarkdown(ext string) bool {
	_, ok := markdownExts[ext]
	return ok
}

// enforceCap applies MaxChunksPerFile with the 80% warning.
func (s *Splitter) enforceCap(path string, chunks []*Chunk) ([]*Chunk, error) {
	limit := s.options.MaxChunksPerFile
	warnAt := int(float64(limit) * ChunksWarningThreshold)

	if len(chunks) > limit {
		return nil, errors.ResourceLimit("chunk count for "+path, limit)
	}
	if len(chunks) >= warnAt {
		slog.Warn("file approaching chunk limit",
			slog.String("path", path),
			slog.Int("chunks", len(chunks)),
			slog.Int("limit", limit))
	}
	return chunks, nil
}
