package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blakazulu/search-mcp/internal/chunk"
	"github.com/blakazulu/search-mcp/internal/embed"
	"github.com/blakazulu/search-mcp/internal/errors"
	"github.com/blakazulu/search-mcp/internal/hashing"
	"github.com/blakazulu/search-mcp/internal/merkle"
	"github.com/blakazulu/search-mcp/internal/pathsafe"
	"github.com/blakazulu/search-mcp/internal/policy"
	"github.com/blakazulu/search-mcp/internal/state"
	"github.com/blakazulu/search-mcp/internal/store"
)

// surgicalMinChunks is the existing-chunk threshold below which
// update_file falls back to delete-and-reindex.
const surgicalMinChunks = 3

// embedWorkers bounds concurrent embedding batches.
const embedWorkers = 2

// ManagerConfig wires one Manager.
type ManagerConfig struct {
	RootPath string // absolute project root
	IndexDir string // per-project index directory
	Kind     string // "code" or "docs"

	VectorStorePath  string
	FTSStorePath     string
	FingerprintsPath string
	MerklePath       string
	MetadataPath     string

	Embedder embed.Embedder
	Splitter *chunk.Splitter
	Policy   *policy.Policy

	FTSBackend string
	BatchSize  int
}

// Manager exclusively owns the stores, fingerprints, metadata, and
// Merkle tree for one index. Strategies and the integrity engine
// mutate state only through its methods.
type Manager struct {
	cfg ManagerConfig

	vector       *store.HNSWStore
	fts          store.FTSStore
	fingerprints *state.Fingerprints
	metadata     *state.Metadata
	tree         *merkle.Tree

	// generation bumps after both stores committed a mutation, giving
	// readers a single linearization point per update.
	generation atomic.Uint64

	// indexingActive is shared with watchers: they suppress event
	// processing while a rebuild or reconciliation runs.
	indexingActive *atomic.Bool

	mu sync.Mutex // serializes mutating operations
}

// UpdateStats reports what a surgical update did.
type UpdateStats struct {
	ChunksEmbedded int
	ChunksMoved    int
	ChunksRemoved  int
	ChunksKept     int
	FinalChunks    int
}

// NewManager opens (or creates) the stores and loads persisted state.
func NewManager(cfg ManagerConfig, indexingActive *atomic.Bool) (*Manager, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = embed.DefaultBatchSize
	}

	vector, err := store.NewHNSWStore(store.VectorStoreConfig{Dimensions: cfg.Embedder.Dimensions()})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIndexFailed, err)
	}
	if err := vector.Load(cfg.VectorStorePath); err != nil {
		if embed.IsDimensionMismatch(err) {
			return nil, errors.New(errors.ErrCodeDimensionMismatch,
				"stored vectors do not match the configured embedding model", err)
		}
		return nil, errors.New(errors.ErrCodeIndexCorrupt, "failed to load vector store", err)
	}

	fts, err := store.NewFTS(cfg.FTSBackend, cfg.FTSStorePath)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIndexFailed, err)
	}

	fingerprints, err := state.LoadFingerprints(cfg.FingerprintsPath)
	if err != nil {
		return nil, err
	}
	tree, err := merkle.Load(cfg.MerklePath)
	if err != nil {
		return nil, err
	}
	metadata, err := state.LoadMetadata(cfg.MetadataPath)
	if err != nil {
		return nil, err
	}
	if metadata == nil {
		metadata = state.NewIndexMetadata(cfg.RootPath)
	}

	if indexingActive == nil {
		indexingActive = &atomic.Bool{}
	}
	return &Manager{
		cfg:            cfg,
		vector:         vector,
		fts:            fts,
		fingerprints:   fingerprints,
		metadata:       metadata,
		tree:           tree,
		indexingActive: indexingActive,
	}, nil
}

// Vector returns the vector store for search.
func (m *Manager) Vector() *store.HNSWStore { return m.vector }

// FTS returns the FTS store for search.
func (m *Manager) FTS() store.FTSStore { return m.fts }

// Embedder returns the embedder.
func (m *Manager) Embedder() embed.Embedder { return m.cfg.Embedder }

// Metadata returns a snapshot of the index metadata.
func (m *Manager) Metadata() state.IndexMetadata { return m.metadata.Snapshot() }

// Fingerprints exposes the fingerprint map to the integrity engine.
func (m *Manager) Fingerprints() *state.Fingerprints { return m.fingerprints }

// Generation returns the store generation; it advances only when both
// stores have committed a mutation.
func (m *Manager) Generation() uint64 { return m.generation.Load() }

// IndexingActive reports whether a rebuild/reconciliation is running.
func (m *Manager) IndexingActive() bool { return m.indexingActive.Load() }

// SetIndexingActive flips the shared flag (integrity engine only).
func (m *Manager) SetIndexingActive(v bool) { m.indexingActive.Store(v) }

// accepts reports whether this manager indexes the given path.
func (m *Manager) accepts(rel string) bool {
	if m.cfg.Kind == "docs" {
		return policy.IsDocPath(rel)
	}
	return !policy.IsDocPath(rel)
}

// FullIndex rebuilds the index from scratch: walk, chunk, embed in
// batches, store, then persist state. Per-file failures are logged and
// counted, never fatal to the build.
func (m *Manager) FullIndex(ctx context.Context, progress ProgressFunc) (filesIndexed, chunksCreated int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.indexingActive.Store(true)
	defer m.indexingActive.Store(false)

	report(progress, Progress{Phase: PhaseScanning})
	walked, err := WalkProject(ctx, m.cfg.RootPath, m.cfg.Policy, WalkOptions{})
	if err != nil {
		return 0, 0, err
	}

	var mine []WalkedFile
	for _, f := range walked {
		if m.accepts(f.RelPath) {
			mine = append(mine, f)
		}
	}

	// Reset state: a full index replaces everything.
	if err := m.resetStores(ctx); err != nil {
		return 0, 0, err
	}
	m.fingerprints = state.NewFingerprints()
	m.tree = merkle.NewTree()

	failedChunks := 0
	totalChunks := 0

	for i, f := range mine {
		if err := ctx.Err(); err != nil {
			return filesIndexed, totalChunks, errors.Cancelled("indexing cancelled", err)
		}
		report(progress, Progress{Phase: PhaseChunking, Current: i + 1, Total: len(mine), CurrentFile: f.RelPath})

		added, failed, fileErr := m.indexOneLocked(ctx, f, progress)
		if fileErr != nil {
			slog.Warn("failed to index file",
				slog.String("path", f.RelPath),
				slog.String("error", fileErr.Error()))
			continue
		}
		filesIndexed++
		totalChunks += added
		failedChunks += failed
	}

	if m.vector.Count() >= store.VectorIndexThreshold {
		plan := store.PlanVectorIndex(m.vector.Count(), m.cfg.Embedder.Dimensions(), "cos")
		if err := m.vector.CreateVectorIndex(plan); err != nil {
			slog.Warn("failed to create vector index", slog.String("error", err.Error()))
		} else {
			m.metadata.Update(func(md *state.IndexMetadata) {
				md.VectorIndex = &state.VectorIndexInfo{
					IndexType:     "IVF_PQ",
					NumPartitions: plan.NumPartitions,
					NumSubVectors: plan.NumSubVectors,
					DistanceType:  plan.DistanceType,
					ChunkCount:    m.vector.Count(),
				}
			})
		}
	}

	m.metadata.Update(func(md *state.IndexMetadata) {
		md.EmbeddingModel = m.cfg.Embedder.ModelName()
		md.EmbeddingDimensions = m.cfg.Embedder.Dimensions()
		md.LastFullIndex = time.Now().UTC()
		md.Stats.TotalFiles = filesIndexed
		md.Stats.TotalChunks = totalChunks
		md.Stats.FailedChunkCount = failedChunks
	})

	m.generation.Add(1)
	if err := m.persistLocked(); err != nil {
		return filesIndexed, totalChunks, err
	}
	return filesIndexed, totalChunks, nil
}

// indexOneLocked chunks, embeds, and stores one file.
func (m *Manager) indexOneLocked(ctx context.Context, f WalkedFile, progress ProgressFunc) (chunks, failedChunks int, err error) {
	content, err := pathsafe.SafeRead(m.cfg.RootPath, f.RelPath)
	if err != nil {
		return 0, 0, err
	}
	fileHash := hashing.FileHash(content)

	pieces, err := m.cfg.Splitter.Split(ctx, f.RelPath, content)
	if err != nil {
		return 0, 0, err
	}
	if len(pieces) == 0 {
		return 0, 0, nil
	}

	records, failedChunks, err := m.embedChunks(ctx, pieces, progress)
	if err != nil {
		return 0, failedChunks, err
	}

	if err := m.storeRecords(ctx, records); err != nil {
		return 0, failedChunks, err
	}

	m.recordFileState(f.RelPath, fileHash, records, f.Size, f.MTimeNS)
	return len(records), failedChunks, nil
}

// embedChunks embeds pieces in batches on a bounded worker group.
// Failed items are skipped and counted; they never become records.
func (m *Manager) embedChunks(ctx context.Context, pieces []*chunk.Chunk, progress ProgressFunc) ([]*store.ChunkRecord, int, error) {
	batch := m.cfg.BatchSize
	results := make([]embed.Result, len(pieces))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedWorkers)

	var done atomic.Int64
	for start := 0; start < len(pieces); start += batch {
		start := start
		end := start + batch
		if end > len(pieces) {
			end = len(pieces)
		}
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, p := range pieces[start:end] {
				texts = append(texts, p.Text)
			}
			rs, err := m.cfg.Embedder.EmbedBatch(gctx, texts, embed.KindDocument)
			if err != nil {
				// Transport failure: items carry their errors; keep
				// whatever succeeded, the rest count as failed.
				if rs == nil {
					return err
				}
			}
			copy(results[start:end], rs)
			report(progress, Progress{Phase: PhaseEmbedding, Current: int(done.Add(int64(end - start))), Total: len(pieces)})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if embed.IsDimensionMismatch(err) {
			return nil, 0, errors.New(errors.ErrCodeDimensionMismatch, "embedding dimension mismatch", err)
		}
		if gctxErr := ctx.Err(); gctxErr != nil {
			return nil, 0, errors.Cancelled("embedding cancelled", gctxErr)
		}
		// Batch-level failure: fall through and count failed items.
	}

	var records []*store.ChunkRecord
	failed := 0
	for i, p := range pieces {
		r := results[i]
		if r.Err != nil || r.Vector == nil {
			if r.Err != nil && embed.IsDimensionMismatch(r.Err) {
				return nil, failed, errors.New(errors.ErrCodeDimensionMismatch, "embedding dimension mismatch", r.Err)
			}
			failed++
			continue
		}
		records = append(records, store.RecordFromChunk(p, r.Vector))
	}
	return records, failed, nil
}

// storeRecords commits records to both stores. The vector store is
// written first; an FTS failure rolls the vector insert back so the
// stores never diverge for this file.
func (m *Manager) storeRecords(ctx context.Context, records []*store.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := m.vector.InsertChunks(ctx, records); err != nil {
		return err
	}
	if err := m.fts.AddChunks(ctx, records); err != nil {
		ids := make([]string, len(records))
		for i, r := range records {
			ids[i] = r.ID
		}
		_ = m.vector.DeleteChunksByIDs(ctx, ids)
		return err
	}
	return nil
}

// recordFileState updates the fingerprint and Merkle node for a file.
func (m *Manager) recordFileState(rel, fileHash string, records []*store.ChunkRecord, size, mtimeNS int64) {
	ids := make([]string, len(records))
	hashes := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
		hashes[i] = r.ContentHash
	}
	m.tree.AddFile(rel, fileHash, ids, hashes, size, mtimeNS)
	m.fingerprints.Set(rel, state.Fingerprint{Hash: fileHash, Size: size, MTimeNS: mtimeNS})
}

// UpdateFile applies a surgical per-chunk update for one file. Moved
// chunks (same content hash, different line range) keep their ids and
// are not re-embedded.
func (m *Manager) UpdateFile(ctx context.Context, rel string) (*UpdateStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateFileLocked(ctx, rel)
}

func (m *Manager) updateFileLocked(ctx context.Context, rel string) (*UpdateStats, error) {
	content, err := pathsafe.SafeRead(m.cfg.RootPath, rel)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeFileNotFound) {
			if derr := m.deleteFileLocked(ctx, rel); derr != nil {
				return nil, derr
			}
			m.generation.Add(1)
			if perr := m.persistLocked(); perr != nil {
				return nil, perr
			}
			return &UpdateStats{}, nil
		}
		return nil, err
	}

	abs := filepath.Join(m.cfg.RootPath, filepath.FromSlash(rel))
	info, err := os.Lstat(abs)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err)
	}
	fileHash := hashing.FileHash(content)

	newChunks, err := m.cfg.Splitter.Split(ctx, rel, content)
	if err != nil {
		return nil, err
	}

	old, err := m.vector.GetChunksForFile(ctx, rel)
	if err != nil {
		return nil, err
	}

	stats := &UpdateStats{}

	if len(old) < surgicalMinChunks {
		// Too few existing chunks for a diff to pay off: full replace.
		if err := m.replaceFileLocked(ctx, rel, fileHash, newChunks, info.Size(), info.ModTime().UnixNano(), stats); err != nil {
			return nil, err
		}
	} else if err := m.surgicalUpdateLocked(ctx, rel, fileHash, old, newChunks, info.Size(), info.ModTime().UnixNano(), stats); err != nil {
		return nil, err
	}

	m.metadata.Update(func(md *state.IndexMetadata) {
		md.LastIncrementalUpdate = time.Now().UTC()
		md.Stats.TotalChunks += stats.ChunksEmbedded - stats.ChunksRemoved
	})
	m.generation.Add(1)
	if err := m.persistLocked(); err != nil {
		return nil, err
	}
	return stats, nil
}

// replaceFileLocked deletes and reinserts every chunk of the file.
func (m *Manager) replaceFileLocked(ctx context.Context, rel, fileHash string, newChunks []*chunk.Chunk, size, mtimeNS int64, stats *UpdateStats) error {
	oldRecords, _ := m.vector.GetChunksForFile(ctx, rel)
	stats.ChunksRemoved = len(oldRecords)

	if err := m.vector.DeleteChunksByPath(ctx, rel); err != nil {
		return err
	}
	if err := m.fts.RemoveByPath(ctx, rel); err != nil {
		return err
	}

	records, failed, err := m.embedChunks(ctx, newChunks, nil)
	if err != nil {
		return err
	}
	if err := m.storeRecords(ctx, records); err != nil {
		return err
	}
	stats.ChunksEmbedded = len(records)
	stats.FinalChunks = len(records)
	if failed > 0 {
		m.metadata.Update(func(md *state.IndexMetadata) { md.Stats.FailedChunkCount += failed })
	}

	m.recordFileState(rel, fileHash, records, size, mtimeNS)
	return nil
}

// surgicalUpdateLocked diffs old records against new chunks by content
// hash: unchanged chunks stay untouched, moved chunks get a position
// update only, added chunks embed and insert, removed chunks delete.
func (m *Manager) surgicalUpdateLocked(ctx context.Context, rel, fileHash string, old []*store.ChunkRecord, newChunks []*chunk.Chunk, size, mtimeNS int64, stats *UpdateStats) error {
	oldByHash := make(map[string][]*store.ChunkRecord)
	for _, r := range old {
		oldByHash[r.ContentHash] = append(oldByHash[r.ContentHash], r)
	}

	type moved struct {
		record *store.ChunkRecord
		chunk  *chunk.Chunk
	}
	var (
		toEmbed []*chunk.Chunk
		moves   []moved
		final   []*store.ChunkRecord // records in new chunk order
	)

	// Claim old records by content hash, preserving ids.
	claimed := make(map[string]bool, len(old))
	for _, nc := range newChunks {
		candidates := oldByHash[nc.ContentHash]
		var match *store.ChunkRecord
		for _, c := range candidates {
			if !claimed[c.ID] {
				match = c
				break
			}
		}
		if match == nil {
			toEmbed = append(toEmbed, nc)
			final = append(final, nil) // placeholder, filled after embed
			continue
		}
		claimed[match.ID] = true

		// The new chunk adopts the old chunk's id.
		nc.ID = match.ID
		if match.StartLine != nc.StartLine || match.EndLine != nc.EndLine {
			moves = append(moves, moved{record: match, chunk: nc})
			stats.ChunksMoved++
		} else {
			stats.ChunksKept++
		}
		cp := *match
		cp.StartLine = nc.StartLine
		cp.EndLine = nc.EndLine
		final = append(final, &cp)
	}

	var removedIDs []string
	for _, r := range old {
		if !claimed[r.ID] {
			removedIDs = append(removedIDs, r.ID)
		}
	}

	// 1. Deletions.
	if len(removedIDs) > 0 {
		if err := m.vector.DeleteChunksByIDs(ctx, removedIDs); err != nil {
			return err
		}
		if err := m.fts.RemoveByIDs(ctx, removedIDs); err != nil {
			return err
		}
		stats.ChunksRemoved = len(removedIDs)
	}

	// 2. Moves: metadata-only, no re-embedding.
	for _, mv := range moves {
		if err := m.vector.UpdateChunkPosition(ctx, mv.record.ID, mv.chunk.StartLine, mv.chunk.EndLine); err != nil {
			return err
		}
	}

	// 3. Additions.
	if len(toEmbed) > 0 {
		records, failed, err := m.embedChunks(ctx, toEmbed, nil)
		if err != nil {
			return err
		}
		if err := m.storeRecords(ctx, records); err != nil {
			return err
		}
		stats.ChunksEmbedded = len(records)
		if failed > 0 {
			m.metadata.Update(func(md *state.IndexMetadata) { md.Stats.FailedChunkCount += failed })
		}

		// Fill placeholders in order: the i-th nil slot corresponds to
		// toEmbed[i]. A failed embedding leaves its slot nil.
		byID := make(map[string]*store.ChunkRecord, len(records))
		for _, r := range records {
			byID[r.ID] = r
		}
		ri := 0
		for i := range final {
			if final[i] != nil {
				continue
			}
			if r, ok := byID[toEmbed[ri].ID]; ok {
				final[i] = r
			}
			ri++
		}
	}

	// Compact out slots whose embedding failed.
	compacted := final[:0]
	for _, r := range final {
		if r != nil {
			compacted = append(compacted, r)
		}
	}
	stats.FinalChunks = len(compacted)

	m.recordFileState(rel, fileHash, compacted, size, mtimeNS)
	return nil
}

// DeleteFile removes a file from both stores, the fingerprints, and
// the Merkle tree.
func (m *Manager) DeleteFile(ctx context.Context, rel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.deleteFileLocked(ctx, rel); err != nil {
		return err
	}
	m.generation.Add(1)
	return m.persistLocked()
}

func (m *Manager) deleteFileLocked(ctx context.Context, rel string) error {
	_, tracked := m.fingerprints.Get(rel)
	old, _ := m.vector.GetChunksForFile(ctx, rel)

	if err := m.vector.DeleteChunksByPath(ctx, rel); err != nil {
		return err
	}
	if err := m.fts.RemoveByPath(ctx, rel); err != nil {
		return err
	}
	m.fingerprints.Remove(rel)
	m.tree.RemoveFile(rel)
	if tracked || len(old) > 0 {
		m.metadata.Update(func(md *state.IndexMetadata) {
			md.Stats.TotalChunks -= len(old)
			if tracked && md.Stats.TotalFiles > 0 {
				md.Stats.TotalFiles--
			}
			md.LastIncrementalUpdate = time.Now().UTC()
		})
	}
	return nil
}

// resetStores clears both stores for a full rebuild.
func (m *Manager) resetStores(ctx context.Context) error {
	for _, path := range m.tree.Paths() {
		if err := m.vector.DeleteChunksByPath(ctx, path); err != nil {
			return err
		}
		if err := m.fts.RemoveByPath(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

// persistLocked writes every piece of state; stores first, then the
// Merkle tree and fingerprints, so the JSON state never refers to
// chunks the stores do not hold.
func (m *Manager) persistLocked() error {
	if err := m.vector.Save(m.cfg.VectorStorePath); err != nil {
		return errors.Wrap(errors.ErrCodeIndexFailed, err)
	}
	if err := m.tree.Save(m.cfg.MerklePath); err != nil {
		return err
	}
	if err := m.fingerprints.Save(m.cfg.FingerprintsPath); err != nil {
		return err
	}
	return m.metadata.Save(m.cfg.MetadataPath)
}

// Close closes both stores.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.fts.Close()
	if cerr := m.vector.Close(); err == nil {
		err = cerr
	}
	return err
}
