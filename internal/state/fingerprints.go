package state

import (
	"sync"

	"github.com/blakazulu/search-mcp/internal/errors"
	"github.com/blakazulu/search-mcp/internal/pathsafe"
)

// Fingerprint identifies a file's state without loading its chunks.
type Fingerprint struct {
	Hash    string `json:"hash"`
	Size    int64  `json:"size"`
	MTimeNS int64  `json:"mtime"`
}

// Fingerprints is the path -> fingerprint map used for fast drift
// detection. Safe for concurrent use.
type Fingerprints struct {
	mu    sync.RWMutex
	files map[string]Fingerprint
}

// fingerprintsFile is the persisted form.
type fingerprintsFile struct {
	Version int                    `json:"version"`
	Files   map[string]Fingerprint `json:"files"`
}

// Validate checks the loaded schema.
func (f *fingerprintsFile) Validate() error {
	if f.Version <= 0 {
		return errors.New(errors.ErrCodeFileCorrupt, "fingerprints missing version", nil)
	}
	return nil
}

// NewFingerprints creates an empty map.
func NewFingerprints() *Fingerprints {
	return &Fingerprints{files: make(map[string]Fingerprint)}
}

// Get returns the fingerprint for path.
func (f *Fingerprints) Get(path string) (Fingerprint, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fp, ok := f.files[path]
	return fp, ok
}

// Set records the fingerprint for path.
func (f *Fingerprints) Set(path string, fp Fingerprint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = fp
}

// Remove drops the fingerprint for path.
func (f *Fingerprints) Remove(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, path)
}

// Len returns the number of tracked files.
func (f *Fingerprints) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.files)
}

// Snapshot returns a copy of the full map.
func (f *Fingerprints) Snapshot() map[string]Fingerprint {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]Fingerprint, len(f.files))
	for k, v := range f.files {
		out[k] = v
	}
	return out
}

// Save writes the map atomically.
func (f *Fingerprints) Save(path string) error {
	f.mu.RLock()
	file := fingerprintsFile{Version: 1, Files: f.files}
	defer f.mu.RUnlock()
	return saveJSON(path, &file)
}

// LoadFingerprints reads the map from disk. Missing file = empty map.
func LoadFingerprints(path string) (*Fingerprints, error) {
	var file fingerprintsFile
	if err := pathsafe.SafeLoadJSON(path, pathsafe.MaxJSONFileSize, &file); err != nil {
		if errors.HasCode(err, errors.ErrCodeFileNotFound) {
			return NewFingerprints(), nil
		}
		return nil, err
	}
	if file.Files == nil {
		file.Files = make(map[string]Fingerprint)
	}
	return &Fingerprints{files: file.Files}, nil
}
