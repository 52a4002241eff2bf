package index

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/blakazulu/search-mcp/internal/chunk"
	"github.com/blakazulu/search-mcp/internal/config"
	"github.com/blakazulu/search-mcp/internal/embed"
	"github.com/blakazulu/search-mcp/internal/errors"
	"github.com/blakazulu/search-mcp/internal/policy"
)

// Dual pairs the code and docs indexes for one project. The two are
// independent stores with independent dimensions; the policy routes
// markdown/text to docs and everything else to code.
type Dual struct {
	Code *Manager
	Docs *Manager

	RootPath string
	IndexDir string

	lock           *IndexingLock
	indexingActive atomic.Bool
	splitter       *chunk.Splitter
	pol            *policy.Policy
}

// OpenDual opens (or creates) both managers under the project's index
// directory.
func OpenDual(ctx context.Context, rootPath string, cfg *config.Config) (*Dual, error) {
	indexDir := DirFor(rootPath)
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}

	pol, err := policy.New(rootPath, cfg.Paths.Exclude)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}

	splitter := chunk.NewSplitter(chunk.Options{
		MaxChunkSize:     cfg.Chunking.ChunkSize,
		ChunkOverlap:     cfg.Chunking.ChunkOverlap,
		MaxChunksPerFile: cfg.Chunking.MaxChunksPerFile,
	})

	d := &Dual{
		RootPath: rootPath,
		IndexDir: indexDir,
		lock:     NewIndexingLock(indexDir),
		splitter: splitter,
		pol:      pol,
	}

	codeEmbedder, err := embed.New(ctx, embed.FactoryConfig{
		Backend:    cfg.Embeddings.Backend,
		Model:      cfg.Embeddings.CodeModel,
		Host:       cfg.Embeddings.Host,
		Dimensions: cfg.Embeddings.CodeDimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeEmbeddingFailed, err)
	}
	docsEmbedder, err := embed.New(ctx, embed.FactoryConfig{
		Backend:    cfg.Embeddings.Backend,
		Model:      cfg.Embeddings.DocsModel,
		Host:       cfg.Embeddings.Host,
		Dimensions: cfg.Embeddings.DocsDimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeEmbeddingFailed, err)
	}

	d.Code, err = NewManager(ManagerConfig{
		RootPath:         rootPath,
		IndexDir:         indexDir,
		Kind:             "code",
		VectorStorePath:  filepath.Join(indexDir, VectorStoreFile),
		FTSStorePath:     filepath.Join(indexDir, FTSStoreFile),
		FingerprintsPath: filepath.Join(indexDir, FingerprintsFile),
		MerklePath:       filepath.Join(indexDir, MerkleTreeFile),
		MetadataPath:     filepath.Join(indexDir, MetadataFile),
		Embedder:         codeEmbedder,
		Splitter:         splitter,
		Policy:           pol,
		FTSBackend:       cfg.Search.FTSBackend,
		BatchSize:        cfg.Embeddings.BatchSize,
	}, &d.indexingActive)
	if err != nil {
		return nil, err
	}

	d.Docs, err = NewManager(ManagerConfig{
		RootPath:         rootPath,
		IndexDir:         indexDir,
		Kind:             "docs",
		VectorStorePath:  filepath.Join(indexDir, DocsVectorStoreFile),
		FTSStorePath:     filepath.Join(indexDir, DocsFTSStoreFile),
		FingerprintsPath: filepath.Join(indexDir, DocsFingerprintsFile),
		MerklePath:       filepath.Join(indexDir, DocsMerkleTreeFile),
		MetadataPath:     filepath.Join(indexDir, "docs-"+MetadataFile),
		Embedder:         docsEmbedder,
		Splitter:         splitter,
		Policy:           pol,
		FTSBackend:       cfg.Search.FTSBackend,
		BatchSize:        cfg.Embeddings.BatchSize,
	}, &d.indexingActive)
	if err != nil {
		_ = d.Code.Close()
		return nil, err
	}
	return d, nil
}

// Policy returns the shared policy.
func (d *Dual) Policy() *policy.Policy { return d.pol }

// Lock returns the shared indexing lock.
func (d *Dual) Lock() *IndexingLock { return d.lock }

// IndexingActive reports whether a rebuild/reconciliation is running.
func (d *Dual) IndexingActive() bool { return d.indexingActive.Load() }

// ManagerFor routes a relative path to the owning manager.
func (d *Dual) ManagerFor(rel string) *Manager {
	if policy.IsDocPath(rel) {
		return d.Docs
	}
	return d.Code
}

// FullIndex rebuilds both indexes under the indexing lock.
func (d *Dual) FullIndex(ctx context.Context, progress ProgressFunc) (filesIndexed, chunksCreated int, err error) {
	ok, err := d.lock.TryLock()
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, errors.Cancelled("another indexing operation is in progress", nil)
	}
	defer func() { _ = d.lock.Unlock() }()

	codeFiles, codeChunks, err := d.Code.FullIndex(ctx, progress)
	if err != nil {
		return codeFiles, codeChunks, err
	}
	docFiles, docChunks, err := d.Docs.FullIndex(ctx, progress)
	if err != nil {
		return codeFiles + docFiles, codeChunks + docChunks, err
	}
	return codeFiles + docFiles, codeChunks + docChunks, nil
}

// UpdateFile routes a surgical update to the owning manager.
func (d *Dual) UpdateFile(ctx context.Context, rel string) (*UpdateStats, error) {
	return d.ManagerFor(rel).UpdateFile(ctx, rel)
}

// DeleteFile routes a deletion to the owning manager.
func (d *Dual) DeleteFile(ctx context.Context, rel string) error {
	return d.ManagerFor(rel).DeleteFile(ctx, rel)
}

// DeleteIndex removes the entire index directory under the lock.
func (d *Dual) DeleteIndex(ctx context.Context) error {
	ok, err := d.lock.TryLock()
	if err != nil {
		return err
	}
	if !ok {
		return errors.Cancelled("another indexing operation is in progress", nil)
	}
	defer func() { _ = d.lock.Unlock() }()

	_ = d.Code.Close()
	_ = d.Docs.Close()
	return os.RemoveAll(d.IndexDir)
}

// Exists reports whether the project has a built index on disk.
func (d *Dual) Exists() bool {
	_, err := os.Stat(filepath.Join(d.IndexDir, MetadataFile))
	return err == nil
}

// StorageSize sums the index directory's file sizes.
func (d *Dual) StorageSize() int64 {
	var total int64
	_ = filepath.Walk(d.IndexDir, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total
}

// Close closes both managers.
func (d *Dual) Close() error {
	err := d.Code.Close()
	if derr := d.Docs.Close(); err == nil {
		err = derr
	}
	return err
}
