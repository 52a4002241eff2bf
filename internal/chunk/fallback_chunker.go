package chunk

import (
	"context"
	"strings"

	"github.com/blakazulu/search-mcp/internal/errors"
)

// FallbackChunker handles files no other strategy claims: fixed-size
// overlapping windows over lines, falling back to character windows for
// single-line content.
type FallbackChunker struct {
	options Options
}

// NewFallbackChunker creates a fallback chunker.
func NewFallbackChunker(opts Options) *FallbackChunker {
	return &FallbackChunker{options: opts.withDefaults()}
}

// Chunk splits the file into overlapping windows.
func (c *FallbackChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	max := c.options.MaxChunkSize
	if len(content) <= max {
		return []*Chunk{newChunk(file.Path, content, 1, countLines(content), &Metadata{Kind: KindText})}, nil
	}

	lines := strings.Split(content, "\n")
	if len(lines) == 1 {
		return c.byCharacters(file.Path, content)
	}
	return c.byLines(ctx, file.Path, lines)
}

// byLines windows over whole lines, carrying overlapLines of context
// into the next window.
func (c *FallbackChunker) byLines(ctx context.Context, path string, lines []string) ([]*Chunk, error) {
	max := c.options.MaxChunkSize
	overlapLines := c.options.ChunkOverlap / 40 // ~40 chars per line of context
	if overlapLines < 1 {
		overlapLines = 1
	}

	var chunks []*Chunk
	part := 1
	start := 0
	for start < len(lines) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Enforce the cap mid-stream so a pathological file cannot
		// accumulate an unbounded chunk slice before the final check.
		if len(chunks) >= c.options.MaxChunksPerFile {
			return nil, errors.ResourceLimit("chunk count", c.options.MaxChunksPerFile)
		}
		size := 0
		end := start
		for end < len(lines) && size+len(lines[end])+1 <= max {
			size += len(lines[end]) + 1
			end++
		}
		if end == start {
			// Single line over budget: hand it to character windowing.
			end = start + 1
		}

		text := strings.Join(lines[start:end], "\n")
		md := &Metadata{Kind: KindText, Part: part}
		chunks = append(chunks, newChunk(path, text, start+1, end, md))
		part++

		if end >= len(lines) {
			break
		}
		next := end - overlapLines
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks, nil
}

// byCharacters windows a single long line by characters with overlap.
func (c *FallbackChunker) byCharacters(path, content string) ([]*Chunk, error) {
	max := c.options.MaxChunkSize
	step := max - c.options.ChunkOverlap
	if step < 1 {
		step = max
	}

	var chunks []*Chunk
	part := 1
	for off := 0; off < len(content); off += step {
		if len(chunks) >= c.options.MaxChunksPerFile {
			return nil, errors.ResourceLimit("chunk count", c.options.MaxChunksPerFile)
		}
		end := off + max
		if end > len(content) {
			end = len(content)
		}
		md := &Metadata{Kind: KindText, Part: part}
		chunks = append(chunks, newChunk(path, content[off:end], 1, 1, md))
		part++
		if end == len(content) {
			break
		}
	}
	return chunks, nil
}
