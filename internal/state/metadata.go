package state

import (
	"sync"
	"time"

	"github.com/blakazulu/search-mcp/internal/errors"
	"github.com/blakazulu/search-mcp/internal/pathsafe"
)

// MetadataVersion is the current metadata schema version.
const MetadataVersion = 2

// IndexStats holds the index-wide counters.
type IndexStats struct {
	TotalFiles  int `json:"totalFiles"`
	TotalChunks int `json:"totalChunks"`

	// FailedChunkCount counts chunks skipped because their embedding
	// failed. They are absent from the index, never zero vectors.
	FailedChunkCount int `json:"failedChunkCount,omitempty"`
}

// VectorIndexInfo describes the accelerated vector index, present once
// the row count crosses the build threshold.
type VectorIndexInfo struct {
	IndexType     string `json:"indexType"`
	NumPartitions int    `json:"numPartitions"`
	NumSubVectors int    `json:"numSubVectors"`
	DistanceType  string `json:"distanceType"`
	ChunkCount    int    `json:"chunkCount"`
}

// IndexMetadata is the persisted index-wide metadata.
type IndexMetadata struct {
	Version               int              `json:"version"`
	ProjectPath           string           `json:"projectPath"`
	EmbeddingModel        string           `json:"embeddingModel,omitempty"`
	EmbeddingDimensions   int              `json:"embeddingDimensions,omitempty"`
	CreatedAt             time.Time        `json:"createdAt"`
	LastFullIndex         time.Time        `json:"lastFullIndex,omitempty"`
	LastIncrementalUpdate time.Time        `json:"lastIncrementalUpdate,omitempty"`
	Stats                 IndexStats       `json:"stats"`
	VectorIndex           *VectorIndexInfo `json:"vectorIndexInfo,omitempty"`
}

// Validate checks the loaded schema.
func (m *IndexMetadata) Validate() error {
	if m.Version <= 0 || m.Version > MetadataVersion {
		return errors.New(errors.ErrCodeFileCorrupt, "unsupported metadata version", nil)
	}
	if m.ProjectPath == "" {
		return errors.New(errors.ErrCodeFileCorrupt, "metadata missing project path", nil)
	}
	return nil
}

// Metadata is the concurrency-safe holder around IndexMetadata.
type Metadata struct {
	mu   sync.RWMutex
	data IndexMetadata
}

// NewIndexMetadata creates metadata for a fresh index.
func NewIndexMetadata(projectPath string) *Metadata {
	return &Metadata{
		data: IndexMetadata{
			Version:     MetadataVersion,
			ProjectPath: projectPath,
			CreatedAt:   time.Now().UTC(),
		},
	}
}

// Update applies fn under the write lock.
func (m *Metadata) Update(fn func(*IndexMetadata)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.data)
}

// Snapshot returns a deep copy safe to read without locking.
func (m *Metadata) Snapshot() IndexMetadata {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := m.data
	if m.data.VectorIndex != nil {
		vi := *m.data.VectorIndex
		cp.VectorIndex = &vi
	}
	return cp
}

// Save writes the metadata atomically.
func (m *Metadata) Save(path string) error {
	snap := m.Snapshot()
	return saveJSON(path, &snap)
}

// LoadMetadata reads metadata from disk. A missing file returns
// (nil, nil) so callers can distinguish "no index" from corruption.
func LoadMetadata(path string) (*Metadata, error) {
	var data IndexMetadata
	if err := pathsafe.SafeLoadJSON(path, pathsafe.MaxJSONFileSize, &data); err != nil {
		if errors.HasCode(err, errors.ErrCodeFileNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &Metadata{data: data}, nil
}
