package gitignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicPatterns(t *testing.T) {
	m := New(false)
	m.AddPattern("*.log")
	m.AddPattern("build/")
	m.AddPattern("/rooted.txt")

	tests := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{"debug.log", false, true},
		{"sub/dir/trace.log", false, true},
		{"logfile.txt", false, false},
		{"build", true, true},
		{"build/out.bin", false, true},
		{"src/build/gen.go", false, true},
		{"rooted.txt", false, true},
		{"sub/rooted.txt", false, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.Match(tt.path, tt.isDir), "path %q", tt.path)
	}
}

func TestNegation(t *testing.T) {
	m := New(false)
	m.AddPattern("*.log")
	m.AddPattern("!keep.log")

	assert.True(t, m.Match("debug.log", false))
	assert.False(t, m.Match("keep.log", false))
}

func TestDoubleStar(t *testing.T) {
	m := New(false)
	m.AddPattern("**/generated")
	m.AddPattern("docs/**/*.tmp")

	assert.True(t, m.Match("generated", false))
	assert.True(t, m.Match("a/b/generated", false))
	assert.True(t, m.Match("docs/x.tmp", false))
	assert.True(t, m.Match("docs/a/b/x.tmp", false))
	assert.False(t, m.Match("src/x.tmp", false))
}

func TestNestedBaseScoping(t *testing.T) {
	// A pattern in docs/.gitignore applies to docs/ and all descendants.
	m := New(false)
	m.AddPatternWithBase("secrets/*.key", "docs")

	assert.True(t, m.Match("docs/secrets/api.key", false))
	assert.False(t, m.Match("secrets/api.key", false))
	assert.False(t, m.Match("other/secrets/api.key", false))
}

func TestAnchoredGlobMatchesDescendants(t *testing.T) {
	// foo/*.k means both foo/*.k and foo/**/*.k: a single * never
	// crosses /, so the descendant variant must cover deeper files.
	m := New(false)
	m.AddPattern("secrets/*.key")

	assert.True(t, m.Match("secrets/api.key", false))
	assert.True(t, m.Match("secrets/sub/api.key", false))
	assert.True(t, m.Match("secrets/a/b/c/api.key", false))
	assert.False(t, m.Match("other/api.key", false))
	assert.False(t, m.Match("secrets/api.pem", false))
}

func TestNestedAnchoredGlobMatchesDescendants(t *testing.T) {
	// The same equivalence holds under a nested .gitignore's base.
	m := New(false)
	m.AddPatternWithBase("secrets/*.key", "docs")

	assert.True(t, m.Match("docs/secrets/sub/api.key", false))
	assert.True(t, m.Match("docs/secrets/deep/tree/api.key", false))
	assert.False(t, m.Match("docs/other/sub/api.key", false))
	assert.False(t, m.Match("secrets/sub/api.key", false))
}

func TestDeepVariantRespectsNegationAndDirOnly(t *testing.T) {
	m := New(false)
	m.AddPattern("gen/*.out")
	m.AddPattern("!gen/keep/special.out")

	assert.True(t, m.Match("gen/a/b.out", false))
	assert.False(t, m.Match("gen/keep/special.out", false))

	// Bare-directory anchored patterns keep their existing semantics.
	m2 := New(false)
	m2.AddPattern("build/cache/")
	assert.True(t, m2.Match("build/cache", true))
	assert.True(t, m2.Match("build/cache/obj.o", false))
}

func TestNestedUnanchoredAppliesToDescendants(t *testing.T) {
	m := New(false)
	m.AddPatternWithBase("*.cache", "vendor")

	assert.True(t, m.Match("vendor/a.cache", false))
	assert.True(t, m.Match("vendor/deep/tree/b.cache", false))
	assert.False(t, m.Match("a.cache", false))
}

func TestCaseFolding(t *testing.T) {
	sensitive := New(false)
	sensitive.AddPattern("*.Log")
	assert.False(t, sensitive.Match("debug.log", false))

	folded := New(true)
	folded.AddPattern("*.Log")
	assert.True(t, folded.Match("debug.log", false))
	assert.True(t, folded.Match("DEBUG.LOG", false))
}

func TestCommentsAndBlanks(t *testing.T) {
	m := New(false)
	m.AddPattern("# just a comment")
	m.AddPattern("")
	m.AddPattern("   ")
	assert.Equal(t, 0, m.Len())

	m.AddPattern(`\#literal`)
	assert.True(t, m.Match("#literal", false))
}

func TestAnchoredDirectoryContents(t *testing.T) {
	m := New(false)
	m.AddPattern("doc/frotz")

	assert.True(t, m.Match("doc/frotz", true))
	assert.True(t, m.Match("doc/frotz/inner.txt", false))
	assert.False(t, m.Match("a/doc/frotz", true))
}

func TestAddFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".gitignore")
	require.NoError(t, os.WriteFile(path, []byte("*.tmp\n# comment\n!keep.tmp\n"), 0o644))

	m := New(false)
	require.NoError(t, m.AddFromFile(path, ""))

	assert.True(t, m.Match("x.tmp", false))
	assert.False(t, m.Match("keep.tmp", false))
}

func TestParsePatterns(t *testing.T) {
	got := ParsePatterns("*.log\n\n# comment\nbuild/\n")
	assert.Equal(t, []string{"*.log", "build/"}, got)
}
