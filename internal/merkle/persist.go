package merkle

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/renameio"

	"github.com/blakazulu/search-mcp/internal/errors"
	"github.com/blakazulu/search-mcp/internal/pathsafe"
)

// FormatVersion is the persisted tree format version.
const FormatVersion = 2

// treeState is the on-disk JSON form with the version header.
type treeState struct {
	Version  int                  `json:"version"`
	RootHash string               `json:"rootHash"`
	Files    map[string]*FileNode `json:"files"`
}

// Validate checks the integrity header on load.
func (s *treeState) Validate() error {
	if s.Version <= 0 || s.Version > FormatVersion {
		return errors.New(errors.ErrCodeIndexCorrupt, "unsupported merkle tree version", nil)
	}
	if s.Files == nil {
		return errors.New(errors.ErrCodeIndexCorrupt, "merkle tree missing files map", nil)
	}
	return nil
}

// Save writes the tree atomically (write-temp-then-rename).
func (t *Tree) Save(path string) error {
	root := t.RootHash()

	t.mu.RLock()
	state := treeState{
		Version:  FormatVersion,
		RootHash: root,
		Files:    t.files,
	}
	data, err := json.MarshalIndent(&state, "", "  ")
	t.mu.RUnlock()
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	return nil
}

// Load reads a tree from disk. A missing file yields a fresh empty
// tree; corrupt content is an INDEX_CORRUPT error.
func Load(path string) (*Tree, error) {
	var state treeState
	err := pathsafe.SafeLoadJSON(path, pathsafe.MaxJSONFileSize, &state)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeFileNotFound) {
			return NewTree(), nil
		}
		if errors.HasCode(err, errors.ErrCodeFileCorrupt) {
			return nil, errors.New(errors.ErrCodeIndexCorrupt, "merkle tree state is corrupt", err)
		}
		return nil, err
	}

	t := &Tree{files: state.Files}
	if t.files == nil {
		t.files = make(map[string]*FileNode)
	}
	return t, nil
}
