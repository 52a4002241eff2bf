package state

import (
	"sort"
	"sync"

	"github.com/blakazulu/search-mcp/internal/errors"
	"github.com/blakazulu/search-mcp/internal/pathsafe"
)

// DirtyFiles is the lazy strategy's pending-work state: paths waiting
// for reindex and paths waiting for deletion. The two sets are always
// disjoint; marking a path in one removes it from the other.
type DirtyFiles struct {
	mu      sync.RWMutex
	dirty   map[string]struct{}
	deleted map[string]struct{}
}

// dirtyFilesFile is the persisted form.
type dirtyFilesFile struct {
	Version int      `json:"version"`
	Dirty   []string `json:"dirty"`
	Deleted []string `json:"deleted"`
}

// Validate checks the loaded schema and the disjointness invariant.
func (f *dirtyFilesFile) Validate() error {
	if f.Version <= 0 {
		return errors.New(errors.ErrCodeFileCorrupt, "dirty-files state missing version", nil)
	}
	seen := make(map[string]struct{}, len(f.Dirty))
	for _, p := range f.Dirty {
		seen[p] = struct{}{}
	}
	for _, p := range f.Deleted {
		if _, dup := seen[p]; dup {
			return errors.New(errors.ErrCodeFileCorrupt, "dirty and deleted sets overlap", nil)
		}
	}
	return nil
}

// NewDirtyFiles creates empty state.
func NewDirtyFiles() *DirtyFiles {
	return &DirtyFiles{
		dirty:   make(map[string]struct{}),
		deleted: make(map[string]struct{}),
	}
}

// MarkDirty queues a path for reindexing, clearing any deletion mark.
func (d *DirtyFiles) MarkDirty(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.deleted, path)
	d.dirty[path] = struct{}{}
}

// MarkDeleted queues a path for removal, clearing any dirty mark.
func (d *DirtyFiles) MarkDeleted(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.dirty, path)
	d.deleted[path] = struct{}{}
}

// Take atomically drains both sets, returning them sorted.
func (d *DirtyFiles) Take() (dirty, deleted []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for p := range d.dirty {
		dirty = append(dirty, p)
	}
	for p := range d.deleted {
		deleted = append(deleted, p)
	}
	d.dirty = make(map[string]struct{})
	d.deleted = make(map[string]struct{})
	sort.Strings(dirty)
	sort.Strings(deleted)
	return dirty, deleted
}

// Restore re-queues paths after a failed flush.
func (d *DirtyFiles) Restore(dirty, deleted []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range dirty {
		if _, isDeleted := d.deleted[p]; !isDeleted {
			d.dirty[p] = struct{}{}
		}
	}
	for _, p := range deleted {
		delete(d.dirty, p)
		d.deleted[p] = struct{}{}
	}
}

// Counts returns the sizes of both sets.
func (d *DirtyFiles) Counts() (dirty, deleted int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.dirty), len(d.deleted)
}

// Save writes the state atomically.
func (d *DirtyFiles) Save(path string) error {
	d.mu.RLock()
	file := dirtyFilesFile{Version: 1}
	for p := range d.dirty {
		file.Dirty = append(file.Dirty, p)
	}
	for p := range d.deleted {
		file.Deleted = append(file.Deleted, p)
	}
	d.mu.RUnlock()

	sort.Strings(file.Dirty)
	sort.Strings(file.Deleted)
	return saveJSON(path, &file)
}

// LoadDirtyFiles reads state from disk. Missing file = empty state.
func LoadDirtyFiles(path string) (*DirtyFiles, error) {
	var file dirtyFilesFile
	if err := pathsafe.SafeLoadJSON(path, pathsafe.MaxJSONFileSize, &file); err != nil {
		if errors.HasCode(err, errors.ErrCodeFileNotFound) {
			return NewDirtyFiles(), nil
		}
		return nil, err
	}

	d := NewDirtyFiles()
	for _, p := range file.Dirty {
		d.dirty[p] = struct{}{}
	}
	for _, p := range file.Deleted {
		d.deleted[p] = struct{}{}
	}
	return d, nil
}
