// Package chunk splits source files into semantically coherent chunks,
// the unit of embedding and retrieval. Four strategies exist: AST
// chunking via tree-sitter, heuristic code-aware chunking, markdown
// section chunking, and a character/line fallback with overlap.
package chunk

import (
	"context"

	"github.com/google/uuid"

	"github.com/blakazulu/search-mcp/internal/hashing"
)

// Chunking limits.
const (
	// DefaultMaxChunkSize is the maximum chunk size in characters.
	// Declarations larger than this are sub-chunked along their body.
	DefaultMaxChunkSize = 8000

	// DefaultChunkOverlap is the overlap in characters retained across
	// adjacent character windows; line-mode fallback windows carry
	// ChunkOverlap/40 lines (at least one).
	DefaultChunkOverlap = 200

	// MaxChunksPerFile caps the chunks a single file may produce.
	// Exceeding it aborts chunking with a resource-limit error.
	MaxChunksPerFile = 1000

	// ChunksWarningThreshold is the fraction of MaxChunksPerFile at
	// which a warning is logged.
	ChunksWarningThreshold = 0.8
)

// Kind classifies what a chunk contains.
type Kind string

const (
	KindFunction  Kind = "function"
	KindClass     Kind = "class"
	KindMethod    Kind = "method"
	KindInterface Kind = "interface"
	KindStruct    Kind = "struct"
	KindEnum      Kind = "enum"
	KindTrait     Kind = "trait"
	KindProperty  Kind = "property"
	KindModule    Kind = "module"
	KindSection   Kind = "section"
	KindText      Kind = "text"
)

// Metadata carries the optional structured attributes of a chunk.
// All fields default to their zero value when the strategy cannot
// recover them; rankers treat missing metadata as neutral.
type Metadata struct {
	Kind       Kind     `json:"kind,omitempty"`
	Name       string   `json:"name,omitempty"`
	Signature  string   `json:"signature,omitempty"`
	Parent     string   `json:"parent,omitempty"`
	Docstring  string   `json:"docstring,omitempty"`
	Decorators []string `json:"decorators,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Visibility string   `json:"visibility,omitempty"`
	IsAsync    bool     `json:"is_async,omitempty"`
	IsExported bool     `json:"is_exported,omitempty"`
	IsStatic   bool     `json:"is_static,omitempty"`

	// HeaderPath is the breadcrumb of enclosing markdown headers.
	HeaderPath []string `json:"header_path,omitempty"`

	// Part numbers the pieces of a sub-chunked declaration or section,
	// starting at 1. Zero means the chunk was not split.
	Part int `json:"part,omitempty"`
}

// Chunk is the smallest unit of retrieval.
type Chunk struct {
	// ID is a UUID. It is stable across re-index when both the path
	// and the content hash are unchanged (moved chunks keep their id).
	ID string `json:"id"`

	// RelativePath is forward-slashed, relative to the project root.
	RelativePath string `json:"relative_path"`

	// StartLine and EndLine are 1-indexed and inclusive;
	// StartLine <= EndLine always holds.
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`

	// Text is the chunk content, including any breadcrumb prefix.
	Text string `json:"text"`

	// ContentHash depends only on whitespace-normalized text.
	ContentHash string `json:"content_hash"`

	Metadata *Metadata `json:"metadata,omitempty"`
}

// newChunk builds a chunk with its content hash and a fresh UUID.
func newChunk(path, text string, startLine, endLine int, md *Metadata) *Chunk {
	if endLine < startLine {
		endLine = startLine
	}
	return &Chunk{
		ID:           uuid.NewString(),
		RelativePath: path,
		StartLine:    startLine,
		EndLine:      endLine,
		Text:         text,
		ContentHash:  hashing.ChunkHash(text),
		Metadata:     md,
	}
}

// FileInput is the input to a chunking strategy.
type FileInput struct {
	Path     string // forward-slashed relative path
	Content  []byte
	Language string // detected language name, may be empty
}

// Chunker is the interface all chunking strategies implement.
type Chunker interface {
	// Chunk splits a file into chunks. A nil result with nil error
	// means the file produced no indexable content.
	Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error)
}

// Options configures the dispatching chunker.
type Options struct {
	MaxChunkSize    int // default DefaultMaxChunkSize
	ChunkOverlap    int // default DefaultChunkOverlap
	MaxChunksPerFile int // default MaxChunksPerFile
}

func (o Options) withDefaults() Options {
	if o.MaxChunkSize <= 0 {
		o.MaxChunkSize = DefaultMaxChunkSize
	}
	if o.ChunkOverlap <= 0 {
		o.ChunkOverlap = DefaultChunkOverlap
	}
	if o.MaxChunksPerFile <= 0 {
		o.MaxChunksPerFile = MaxChunksPerFile
	}
	return o
}
