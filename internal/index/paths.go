// Package index orchestrates the two per-project indexes (code and
// docs): full builds, surgical per-file updates, deletions, drift
// detection, and reconciliation.
package index

import (
	"os"
	"path/filepath"

	"github.com/blakazulu/search-mcp/internal/hashing"
)

// State file names under the per-project index directory.
const (
	MetadataFile         = "metadata.json"
	FingerprintsFile     = "fingerprints.json"
	DocsFingerprintsFile = "docs-fingerprints.json"
	MerkleTreeFile       = "merkle-tree.json"
	DocsMerkleTreeFile   = "docs-merkle-tree.json"
	DirtyFilesFile       = "dirty-files.json"
	ConfigFile           = "config.json"
	VectorStoreFile      = "vectors.hnsw"
	DocsVectorStoreFile  = "docs-vectors.hnsw"
	FTSStoreFile         = "fts.db"
	DocsFTSStoreFile     = "docs-fts.db"
	LockFile             = "index.lock"
)

// BaseDir returns the root of all index directories
// (~/.mcp/search/indexes).
func BaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".mcp", "search", "indexes")
	}
	return filepath.Join(home, ".mcp", "search", "indexes")
}

// DirFor returns the index directory for a project. The directory name
// is the 32-char project hash; a legacy 16-char directory for the same
// project is used when it already exists.
func DirFor(projectPath string) string {
	base := BaseDir()
	full := hashing.ProjectHash(projectPath)

	legacy := filepath.Join(base, full[:hashing.LegacyFileHashLen])
	if _, err := os.Stat(legacy); err == nil {
		return legacy
	}
	return filepath.Join(base, full)
}
