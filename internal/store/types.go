// Package store is the persistence layer for indexed chunks: a vector
// store (HNSW) holding one record per chunk, and a BM25 full-text store
// (SQLite FTS5 by default, bleve as the alternative backend).
package store

import (
	"context"
	"math"

	"github.com/blakazulu/search-mcp/internal/chunk"
)

// ChunkRecord is the columnar record persisted per chunk.
type ChunkRecord struct {
	ID          string          `json:"id"`
	Path        string          `json:"path"` // relative, forward-slashed
	Text        string          `json:"text"`
	StartLine   int             `json:"start_line"`
	EndLine     int             `json:"end_line"`
	ContentHash string          `json:"content_hash"`
	Metadata    *chunk.Metadata `json:"metadata,omitempty"`

	// Vector is the embedding. Present on insert; persisted by the
	// vector store, omitted from FTS.
	Vector []float32 `json:"-"`
}

// RecordFromChunk pairs a chunk with its embedding.
func RecordFromChunk(c *chunk.Chunk, vector []float32) *ChunkRecord {
	return &ChunkRecord{
		ID:          c.ID,
		Path:        c.RelativePath,
		Text:        c.Text,
		StartLine:   c.StartLine,
		EndLine:     c.EndLine,
		ContentHash: c.ContentHash,
		Metadata:    c.Metadata,
		Vector:      vector,
	}
}

// VectorResult is one vector search hit.
type VectorResult struct {
	Record   *ChunkRecord
	Distance float32
	Score    float64 // normalized to [0,1], higher is better
}

// FTSResult is one keyword search hit.
type FTSResult struct {
	ID    string
	Path  string
	Score float64 // BM25; normalize with NormalizeScores
}

// VectorStoreConfig configures the vector store.
type VectorStoreConfig struct {
	// Dimensions is the embedding dimension. Every inserted vector
	// must match exactly.
	Dimensions int

	// Metric is "cos" (default) or "l2".
	Metric string

	// M is HNSW max connections per layer (default: 16).
	M int

	// EfSearch is HNSW query-time search width (default: 36).
	EfSearch int
}

func (c VectorStoreConfig) withDefaults() VectorStoreConfig {
	if c.Metric == "" {
		c.Metric = "cos"
	}
	if c.M == 0 {
		c.M = 16
	}
	if c.EfSearch == 0 {
		c.EfSearch = 36
	}
	return c
}

// IVF-PQ planning constants for the accelerated vector index.
const (
	// VectorIndexThreshold is the row count at which the accelerated
	// vector index is built.
	VectorIndexThreshold = 10000

	// MaxPartitions caps the partition count.
	MaxPartitions = 256
)

// IvfPqConfig describes the accelerated index layout.
type IvfPqConfig struct {
	NumPartitions int
	NumSubVectors int
	DistanceType  string
}

// PlanVectorIndex computes the IVF-PQ layout for n rows of dimension d:
// numPartitions = clamp(sqrt(N), 1, 256), numSubVectors = D/16 when D
// divides evenly, else D/8.
func PlanVectorIndex(n, d int, metric string) IvfPqConfig {
	parts := int(math.Sqrt(float64(n)))
	if parts < 1 {
		parts = 1
	}
	if parts > MaxPartitions {
		parts = MaxPartitions
	}

	sub := d / 16
	if sub == 0 || d%16 != 0 {
		sub = d / 8
	}
	if sub < 1 {
		sub = 1
	}

	distance := "cosine"
	if metric == "l2" {
		distance = "l2"
	}
	return IvfPqConfig{NumPartitions: parts, NumSubVectors: sub, DistanceType: distance}
}

// VectorStore provides persistent vector search keyed by chunk id.
type VectorStore interface {
	// InsertChunks inserts records with their vectors. Existing ids
	// are replaced.
	InsertChunks(ctx context.Context, records []*ChunkRecord) error

	// DeleteChunksByIDs removes chunks by id.
	DeleteChunksByIDs(ctx context.Context, ids []string) error

	// DeleteChunksByPath removes every chunk of a file.
	DeleteChunksByPath(ctx context.Context, path string) error

	// GetChunksForFile returns the records for a file in line order.
	GetChunksForFile(ctx context.Context, path string) ([]*ChunkRecord, error)

	// UpdateChunkPosition updates only a chunk's line range, used for
	// moved chunks that need no re-embedding.
	UpdateChunkPosition(ctx context.Context, id string, startLine, endLine int) error

	// Search returns the k nearest records with normalized scores.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// CreateVectorIndex applies the accelerated-index configuration.
	CreateVectorIndex(cfg IvfPqConfig) error

	// AllIDs returns every chunk id.
	AllIDs() []string

	// Count returns the number of stored chunks.
	Count() int

	// Persistence.
	Save(path string) error
	Load(path string) error
	Close() error
}

// FTSStore provides BM25 keyword search over chunk text.
type FTSStore interface {
	// AddChunks indexes records by their text.
	AddChunks(ctx context.Context, records []*ChunkRecord) error

	// RemoveByPath removes every chunk of a file.
	RemoveByPath(ctx context.Context, path string) error

	// RemoveByIDs removes chunks by id.
	RemoveByIDs(ctx context.Context, ids []string) error

	// Search returns the top-k BM25 hits.
	Search(ctx context.Context, query string, k int) ([]*FTSResult, error)

	// Stats returns document count.
	Stats() (docCount int, err error)

	Close() error
}

// NormalizeScores rescales BM25 scores to [0,1] by the max score.
func NormalizeScores(results []*FTSResult) []*FTSResult {
	var maxScore float64
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	if maxScore == 0 {
		return results
	}
	for _, r := range results {
		r.Score /= maxScore
	}
	return results
}

// distanceToScore converts a raw distance to a [0,1] similarity:
// 1 - d/2 for cosine distance on normalized vectors, 1/(1+d) for l2.
func distanceToScore(d float32, metric string) float64 {
	var score float64
	switch metric {
	case "l2":
		score = 1.0 / (1.0 + float64(d))
	default:
		score = 1.0 - float64(d)/2.0
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
