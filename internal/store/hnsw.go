package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/blakazulu/search-mcp/internal/embed"
)

// HNSWStore implements VectorStore on a pure-Go HNSW graph. Chunk
// records live alongside the graph and persist with it, so the store is
// the columnar table keyed by chunk id that search results are built
// from.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	records map[string]*ChunkRecord // chunk id -> record
	byPath  map[string][]string     // path -> chunk ids (unordered)

	idMap   map[string]uint64 // chunk id -> graph key
	keyMap  map[uint64]string // graph key -> chunk id
	nextKey uint64

	indexInfo *IvfPqConfig // set once CreateVectorIndex ran
	closed    bool
}

// Verify interface implementation at compile time.
var _ VectorStore = (*HNSWStore)(nil)

// NewHNSWStore creates an empty vector store.
func NewHNSWStore(cfg VectorStoreConfig) (*HNSWStore, error) {
	cfg = cfg.withDefaults()
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector store requires a positive dimension")
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWStore{
		graph:   graph,
		config:  cfg,
		records: make(map[string]*ChunkRecord),
		byPath:  make(map[string][]string),
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
	}, nil
}

// InsertChunks inserts records with their vectors, replacing existing ids.
func (s *HNSWStore) InsertChunks(ctx context.Context, records []*ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}

	// Validate every vector before mutating anything so a bad record
	// cannot leave the store partially updated.
	for _, r := range records {
		if err := embed.Validate(r.Vector, s.config.Dimensions); err != nil {
			return err
		}
		if embed.IsZero(r.Vector) {
			return embed.ErrInvalidComponent
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.removeLocked(r.ID)

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		if s.config.Metric == "cos" {
			normalizeInPlace(vec)
		}

		// Lazy deletion elsewhere means the graph may hold orphans;
		// adding under a fresh key is always safe.
		s.graph.Add(hnsw.MakeNode(key, vec))

		stored := *r
		stored.Vector = vec
		s.records[r.ID] = &stored
		s.byPath[r.Path] = append(s.byPath[r.Path], r.ID)
		s.idMap[r.ID] = key
		s.keyMap[key] = r.ID
	}
	return nil
}

// removeLocked drops id from every map using lazy graph deletion.
func (s *HNSWStore) removeLocked(id string) {
	rec, ok := s.records[id]
	if !ok {
		return
	}
	if key, exists := s.idMap[id]; exists {
		delete(s.keyMap, key)
		delete(s.idMap, id)
	}
	delete(s.records, id)

	ids := s.byPath[rec.Path]
	for i, other := range ids {
		if other == id {
			s.byPath[rec.Path] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(s.byPath[rec.Path]) == 0 {
		delete(s.byPath, rec.Path)
	}
}

// DeleteChunksByIDs removes chunks by id.
func (s *HNSWStore) DeleteChunksByIDs(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	for _, id := range ids {
		s.removeLocked(id)
	}
	return nil
}

// DeleteChunksByPath removes every chunk of a file.
func (s *HNSWStore) DeleteChunksByPath(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	for _, id := range append([]string(nil), s.byPath[path]...) {
		s.removeLocked(id)
	}
	return nil
}

// GetChunksForFile returns the records for a file sorted by start line.
func (s *HNSWStore) GetChunksForFile(ctx context.Context, path string) ([]*ChunkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	ids := s.byPath[path]
	out := make([]*ChunkRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.records[id]; ok {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartLine != out[j].StartLine {
			return out[i].StartLine < out[j].StartLine
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateChunkPosition updates a chunk's line range without re-embedding.
func (s *HNSWStore) UpdateChunkPosition(ctx context.Context, id string, startLine, endLine int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("chunk not found: %s", id)
	}
	rec.StartLine = startLine
	rec.EndLine = endLine
	return nil
}

// Search returns the k nearest records with normalized scores.
func (s *HNSWStore) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if err := embed.Validate(query, s.config.Dimensions); err != nil {
		return nil, err
	}
	if s.graph.Len() == 0 {
		return []*VectorResult{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if s.config.Metric == "cos" {
		normalizeInPlace(q)
	}

	// Oversample to compensate for lazily-deleted orphans.
	nodes := s.graph.Search(q, k+k/2+4)

	results := make([]*VectorResult, 0, k)
	for _, node := range nodes {
		id, live := s.keyMap[node.Key]
		if !live {
			continue
		}
		rec := s.records[id]
		if rec == nil {
			continue
		}
		d := s.graph.Distance(q, node.Value)
		cp := *rec
		results = append(results, &VectorResult{
			Record:   &cp,
			Distance: d,
			Score:    distanceToScore(d, s.config.Metric),
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// CreateVectorIndex records the accelerated-index layout. The HNSW
// graph is itself the ANN structure; the layout is surfaced through
// IndexInfo for metadata and status reporting.
func (s *HNSWStore) CreateVectorIndex(cfg IvfPqConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	s.indexInfo = &cfg
	return nil
}

// IndexInfo returns the accelerated-index layout, or nil.
func (s *HNSWStore) IndexInfo() *IvfPqConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.indexInfo == nil {
		return nil
	}
	cp := *s.indexInfo
	return &cp
}

// GetChunk returns a copy of the record for id, or nil.
func (s *HNSWStore) GetChunk(id string) *ChunkRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

// AllIDs returns every chunk id.
func (s *HNSWStore) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of stored chunks.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// hnswSnapshot is the gob-persisted form. Records carry their
// normalized vectors, so the graph is rebuilt on load.
type hnswSnapshot struct {
	Config    VectorStoreConfig
	Records   map[string]*ChunkRecord
	IndexInfo *IvfPqConfig
}

// Save persists the records (with vectors), then renames into place.
func (s *HNSWStore) Save(path string) error {
	s.mu.RLock()
	snap := hnswSnapshot{
		Config:    s.config,
		Records:   s.records,
		IndexInfo: s.indexInfo,
	}
	s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := gob.NewEncoder(w).Encode(&snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Load restores a snapshot; a missing file leaves the store empty.
func (s *HNSWStore) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()

	var snap hnswSnapshot
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&snap); err != nil {
		return fmt.Errorf("corrupt vector store: %w", err)
	}
	if snap.Config.Dimensions != s.config.Dimensions {
		return &embed.DimensionMismatchError{Expected: s.config.Dimensions, Got: snap.Config.Dimensions}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*ChunkRecord, len(snap.Records))
	s.byPath = make(map[string][]string)
	s.idMap = make(map[string]uint64, len(snap.Records))
	s.keyMap = make(map[uint64]string, len(snap.Records))
	s.nextKey = 0
	s.indexInfo = snap.IndexInfo

	for id, rec := range snap.Records {
		if len(rec.Vector) != s.config.Dimensions {
			continue
		}
		key := s.nextKey
		s.nextKey++
		s.graph.Add(hnsw.MakeNode(key, rec.Vector))
		s.records[id] = rec
		s.byPath[rec.Path] = append(s.byPath[rec.Path], id)
		s.idMap[id] = key
		s.keyMap[key] = id
	}
	return nil
}

// Close marks the store closed. Open handles are long-lived; Close is
// called only on shutdown.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func normalizeInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
