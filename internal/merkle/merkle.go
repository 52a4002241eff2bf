// Package merkle maintains the hash tree used for cheap change
// detection: one node per indexed file carrying its content hash and
// ordered chunk hashes, and a root hash derived from the sorted set of
// (path, file hash) pairs.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"

	"github.com/blakazulu/search-mcp/internal/hashing"
)

// FileNode is the per-file node of the tree.
type FileNode struct {
	RelativePath string   `json:"relativePath"`
	ContentHash  string   `json:"contentHash"` // hash of the raw file bytes
	Size         int64    `json:"size"`
	MTimeNS      int64    `json:"mtime"`
	ChunkIDs     []string `json:"chunkIds"`    // order-preserving
	ChunkHashes  []string `json:"chunkHashes"` // parallel to ChunkIDs

	// Hash is derived from the ordered chunk hashes. It changes exactly
	// when the file needs reindexing.
	Hash string `json:"hash"`
}

// nodeHash derives a FileNode's hash from its ordered chunk hashes.
func nodeHash(chunkHashes []string) string {
	sum := sha256.Sum256([]byte(strings.Join(chunkHashes, "\n")))
	return hex.EncodeToString(sum[:])[:hashing.FileHashLen]
}

// Tree is the project-wide Merkle state.
type Tree struct {
	mu    sync.RWMutex
	files map[string]*FileNode
}

// NewTree creates an empty tree.
func NewTree() *Tree {
	return &Tree{files: make(map[string]*FileNode)}
}

// AddFile inserts or replaces the node for path.
func (t *Tree) AddFile(path, contentHash string, chunkIDs, chunkHashes []string, size, mtimeNS int64) {
	ids := append([]string(nil), chunkIDs...)
	hashes := append([]string(nil), chunkHashes...)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.files[path] = &FileNode{
		RelativePath: path,
		ContentHash:  contentHash,
		Size:         size,
		MTimeNS:      mtimeNS,
		ChunkIDs:     ids,
		ChunkHashes:  hashes,
		Hash:         nodeHash(hashes),
	}
}

// RemoveFile drops the node for path.
func (t *Tree) RemoveFile(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.files, path)
}

// GetFile returns a copy of the node for path.
func (t *Tree) GetFile(path string) (*FileNode, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	node, ok := t.files[path]
	if !ok {
		return nil, false
	}
	cp := *node
	cp.ChunkIDs = append([]string(nil), node.ChunkIDs...)
	cp.ChunkHashes = append([]string(nil), node.ChunkHashes...)
	return &cp, true
}

// Len returns the number of files in the tree.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.files)
}

// Paths returns the sorted file paths.
func (t *Tree) Paths() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	paths := make([]string, 0, len(t.files))
	for p := range t.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// RootHash recomputes the root from the sorted (path, hash) pairs, so
// it is deterministic regardless of insertion order.
func (t *Tree) RootHash() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	paths := make([]string, 0, len(t.files))
	for p := range t.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		h.Write([]byte(p))
		h.Write([]byte{0})
		h.Write([]byte(t.files[p].Hash))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))[:hashing.FileHashLen]
}

// ChunkRef locates a chunk by file and id.
type ChunkRef struct {
	Path    string
	ChunkID string
}

// FindChunksByContentHash returns every chunk whose content hash equals
// h, enabling position-independent matching of moved chunks.
func (t *Tree) FindChunksByContentHash(h string) []ChunkRef {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var refs []ChunkRef
	for path, node := range t.files {
		for i, ch := range node.ChunkHashes {
			if hashing.Equal(ch, h) && i < len(node.ChunkIDs) {
				refs = append(refs, ChunkRef{Path: path, ChunkID: node.ChunkIDs[i]})
			}
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Path != refs[j].Path {
			return refs[i].Path < refs[j].Path
		}
		return refs[i].ChunkID < refs[j].ChunkID
	})
	return refs
}

// ChunkChange reports chunk-level differences for a file whose bytes
// are unchanged but whose chunk membership differs (re-chunked).
type ChunkChange struct {
	File          string   `json:"file"`
	AddedChunks   []string `json:"addedChunks"`   // chunk hashes new in t
	RemovedChunks []string `json:"removedChunks"` // chunk hashes gone from old
}

// Diff compares the receiver (new state) against old.
type Diff struct {
	AddedFiles    []string      `json:"addedFiles"`
	ModifiedFiles []string      `json:"modifiedFiles"`
	RemovedFiles  []string      `json:"removedFiles"`
	ChunkChanges  []ChunkChange `json:"chunkChanges"`
}

// Empty reports whether the diff contains no changes.
func (d *Diff) Empty() bool {
	return len(d.AddedFiles) == 0 && len(d.ModifiedFiles) == 0 &&
		len(d.RemovedFiles) == 0 && len(d.ChunkChanges) == 0
}

// Diff computes the changes from old to t. Files present in both whose
// node hash differs but content hash matches (same bytes, different
// chunking) are reported as chunk-level changes, not modifications.
func (t *Tree) Diff(old *Tree) *Diff {
	d := &Diff{}
	if old == nil {
		old = NewTree()
	}

	t.mu.RLock()
	old.mu.RLock()
	defer t.mu.RUnlock()
	defer old.mu.RUnlock()

	for path, node := range t.files {
		oldNode, existed := old.files[path]
		if !existed {
			d.AddedFiles = append(d.AddedFiles, path)
			continue
		}
		if node.Hash == oldNode.Hash {
			continue
		}
		if hashing.Equal(node.ContentHash, oldNode.ContentHash) {
			d.ChunkChanges = append(d.ChunkChanges, chunkDiff(path, oldNode.ChunkHashes, node.ChunkHashes))
			continue
		}
		d.ModifiedFiles = append(d.ModifiedFiles, path)
	}
	for path := range old.files {
		if _, exists := t.files[path]; !exists {
			d.RemovedFiles = append(d.RemovedFiles, path)
		}
	}

	sort.Strings(d.AddedFiles)
	sort.Strings(d.ModifiedFiles)
	sort.Strings(d.RemovedFiles)
	sort.Slice(d.ChunkChanges, func(i, j int) bool { return d.ChunkChanges[i].File < d.ChunkChanges[j].File })
	return d
}

// chunkDiff computes the multiset difference of chunk hashes. A hash in
// both sets is neither added nor removed, so added and removed are
// always disjoint.
func chunkDiff(path string, oldHashes, newHashes []string) ChunkChange {
	oldCount := make(map[string]int, len(oldHashes))
	for _, h := range oldHashes {
		oldCount[h]++
	}

	change := ChunkChange{File: path}
	for _, h := range newHashes {
		if oldCount[h] > 0 {
			oldCount[h]--
			continue
		}
		change.AddedChunks = append(change.AddedChunks, h)
	}
	for h, n := range oldCount {
		for ; n > 0; n-- {
			change.RemovedChunks = append(change.RemovedChunks, h)
		}
	}
	sort.Strings(change.AddedChunks)
	sort.Strings(change.RemovedChunks)
	return change
}
