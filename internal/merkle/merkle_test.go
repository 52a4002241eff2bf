package merkle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blakazulu/search-mcp/internal/errors"
)

func addFile(t *Tree, path string, contentHash string, hashes ...string) {
	ids := make([]string, len(hashes))
	for i := range hashes {
		ids[i] = path + "#" + hashes[i]
	}
	t.AddFile(path, contentHash, ids, hashes, 100, 1)
}

func TestRootHashOrderIndependent(t *testing.T) {
	a := NewTree()
	addFile(a, "a.go", "c1", "h1", "h2")
	addFile(a, "b.go", "c2", "h3")

	b := NewTree()
	addFile(b, "b.go", "c2", "h3")
	addFile(b, "a.go", "c1", "h1", "h2")

	assert.Equal(t, a.RootHash(), b.RootHash())
}

func TestRootHashChangesWithContent(t *testing.T) {
	a := NewTree()
	addFile(a, "a.go", "c1", "h1")
	before := a.RootHash()

	addFile(a, "a.go", "c1b", "h1", "h2")
	assert.NotEqual(t, before, a.RootHash())

	a.RemoveFile("a.go")
	assert.Equal(t, NewTree().RootHash(), a.RootHash())
}

func TestNodeHashDerivedFromOrderedChunkHashes(t *testing.T) {
	a := NewTree()
	addFile(a, "a.go", "c1", "h1", "h2")
	b := NewTree()
	addFile(b, "a.go", "c1", "h2", "h1")

	na, _ := a.GetFile("a.go")
	nb, _ := b.GetFile("a.go")
	assert.NotEqual(t, na.Hash, nb.Hash, "chunk order is part of the node hash")
}

func TestDiffSelfIsEmpty(t *testing.T) {
	a := NewTree()
	addFile(a, "a.go", "c1", "h1", "h2")
	addFile(a, "b.go", "c2", "h3")

	d := a.Diff(a)
	assert.True(t, d.Empty())
}

func TestDiffAddModifyRemove(t *testing.T) {
	old := NewTree()
	addFile(old, "keep.go", "c1", "h1")
	addFile(old, "mod.go", "c2", "h2")
	addFile(old, "gone.go", "c3", "h3")

	next := NewTree()
	addFile(next, "keep.go", "c1", "h1")
	addFile(next, "mod.go", "c2x", "h2x")
	addFile(next, "new.go", "c4", "h4")

	d := next.Diff(old)
	assert.Equal(t, []string{"new.go"}, d.AddedFiles)
	assert.Equal(t, []string{"mod.go"}, d.ModifiedFiles)
	assert.Equal(t, []string{"gone.go"}, d.RemovedFiles)
	assert.Empty(t, d.ChunkChanges)
}

func TestDiffRechunkedFileReportsChunkChanges(t *testing.T) {
	// Same bytes (content hash equal), different chunk membership.
	old := NewTree()
	addFile(old, "a.go", "c1", "h1", "h2")

	next := NewTree()
	addFile(next, "a.go", "c1", "h1", "h3", "h4")

	d := next.Diff(old)
	assert.Empty(t, d.ModifiedFiles)
	require.Len(t, d.ChunkChanges, 1)

	cc := d.ChunkChanges[0]
	assert.Equal(t, "a.go", cc.File)
	assert.Equal(t, []string{"h3", "h4"}, cc.AddedChunks)
	assert.Equal(t, []string{"h2"}, cc.RemovedChunks)

	// Added and removed never intersect.
	for _, a := range cc.AddedChunks {
		assert.NotContains(t, cc.RemovedChunks, a)
	}
}

func TestDiffAgainstNil(t *testing.T) {
	next := NewTree()
	addFile(next, "a.go", "c1", "h1")
	d := next.Diff(nil)
	assert.Equal(t, []string{"a.go"}, d.AddedFiles)
}

func TestFindChunksByContentHash(t *testing.T) {
	tr := NewTree()
	addFile(tr, "a.go", "c1", "shared", "unique1")
	addFile(tr, "b.go", "c2", "shared")

	refs := tr.FindChunksByContentHash("shared")
	require.Len(t, refs, 2)
	assert.Equal(t, "a.go", refs[0].Path)
	assert.Equal(t, "b.go", refs[1].Path)

	assert.Empty(t, tr.FindChunksByContentHash("missing"))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "merkle-tree.json")

	tr := NewTree()
	addFile(tr, "a.go", "c1", "h1", "h2")
	addFile(tr, "docs/readme.md", "c2", "h3")
	require.NoError(t, tr.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, tr.RootHash(), loaded.RootHash())
	assert.Equal(t, tr.Len(), loaded.Len())

	node, ok := loaded.GetFile("a.go")
	require.True(t, ok)
	assert.Equal(t, []string{"h1", "h2"}, node.ChunkHashes)
}

func TestLoadMissingFileIsFreshStart(t *testing.T) {
	tr, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, tr.Len())
}

func TestLoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "merkle-tree.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeIndexCorrupt, errors.GetCode(err))
}

func TestLoadBadVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "merkle-tree.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":99,"files":{}}`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeIndexCorrupt, errors.GetCode(err))
}
