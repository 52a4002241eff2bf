package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/text/unicode/norm"
)

func newPolicy(t *testing.T, root string, excludes ...string) *Policy {
	t.Helper()
	p, err := New(root, excludes)
	require.NoError(t, err)
	return p
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	return abs
}

func TestDenyList(t *testing.T) {
	root := t.TempDir()
	p := newPolicy(t, root)

	tests := []struct {
		rel    string
		reason string
	}{
		{"node_modules/pkg/index.js", "denied directory"},
		{".git/config", "denied directory"},
		{".env", "sensitive file pattern"},
		{".env.local", "sensitive file pattern"},
		{"certs/server.key", "sensitive file pattern"},
		{"aws_credentials.txt", "sensitive file pattern"},
		{"app/package-lock.json", "sensitive file pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			abs := writeFile(t, root, tt.rel, "data")
			d := p.ShouldIndex(abs, tt.rel)
			assert.False(t, d.Include)
			assert.Contains(t, d.Reason, tt.reason)
		})
	}
}

func TestIncludesSource(t *testing.T) {
	root := t.TempDir()
	p := newPolicy(t, root)

	abs := writeFile(t, root, "src/main.go", "package main")
	d := p.ShouldIndex(abs, "src/main.go")
	assert.True(t, d.Include)
}

func TestRootGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "*.log\nout/\n")
	p := newPolicy(t, root)

	abs := writeFile(t, root, "debug.log", "log line")
	assert.False(t, p.ShouldIndex(abs, "debug.log").Include)

	abs = writeFile(t, root, "out/result.txt", "data")
	assert.False(t, p.ShouldIndex(abs, "out/result.txt").Include)

	abs = writeFile(t, root, "main.go", "package main")
	assert.True(t, p.ShouldIndex(abs, "main.go").Include)
}

func TestNestedGitignoreScoping(t *testing.T) {
	// docs/.gitignore with "secrets/*.key" excludes
	// docs/secrets/key.key but not a same-shaped path elsewhere.
	root := t.TempDir()
	writeFile(t, root, "docs/.gitignore", "secrets/*.key\n")
	p := newPolicy(t, root)

	// .key is in the sensitive deny list, so use a neutral suffix to
	// isolate gitignore behavior.
	writeFile(t, root, "docs/.gitignore", "secrets/*.tok\n")
	p = newPolicy(t, root)

	abs := writeFile(t, root, "docs/secrets/api.tok", "x")
	assert.False(t, p.ShouldIndex(abs, "docs/secrets/api.tok").Include)

	// One directory deeper: the pattern still applies (secrets/*.tok
	// covers secrets/**/*.tok).
	abs = writeFile(t, root, "docs/secrets/sub/api.tok", "x")
	assert.False(t, p.ShouldIndex(abs, "docs/secrets/sub/api.tok").Include)

	abs = writeFile(t, root, "other/secrets/api.tok", "x")
	assert.True(t, p.ShouldIndex(abs, "other/secrets/api.tok").Include)
}

func TestNegationInGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "*.gen\n!keep.gen\n")
	p := newPolicy(t, root)

	abs := writeFile(t, root, "a.gen", "x")
	assert.False(t, p.ShouldIndex(abs, "a.gen").Include)

	abs = writeFile(t, root, "keep.gen", "x")
	assert.True(t, p.ShouldIndex(abs, "keep.gen").Include)
}

func TestBinaryDetection(t *testing.T) {
	root := t.TempDir()
	p := newPolicy(t, root)

	// Unknown extension with NUL bytes: excluded.
	abs := filepath.Join(root, "blob.dat")
	require.NoError(t, os.WriteFile(abs, []byte{0x7f, 'E', 'L', 'F', 0x00, 0x01}, 0o644))
	d := p.ShouldIndex(abs, "blob.dat")
	assert.False(t, d.Include)
	assert.Contains(t, d.Reason, "binary")

	// Unknown extension, plain text: included.
	abs = writeFile(t, root, "notes.unknownext", "just text")
	assert.True(t, p.ShouldIndex(abs, "notes.unknownext").Include)

	// Known-text extension skips the sniff even with odd content.
	abs = writeFile(t, root, "weird.go", "package main")
	assert.True(t, p.ShouldIndex(abs, "weird.go").Include)
}

func TestUserExcludes(t *testing.T) {
	root := t.TempDir()
	p := newPolicy(t, root, "generated/**")

	abs := writeFile(t, root, "generated/api.go", "package api")
	d := p.ShouldIndex(abs, "generated/api.go")
	assert.False(t, d.Include)
	assert.Contains(t, d.Reason, "configuration")
}

func TestUnicodeNormalization(t *testing.T) {
	// NFD and NFC spellings of the same name must decide identically.
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "café/\n")
	p := newPolicy(t, root)

	nfc := "café/x.go"
	nfd := norm.NFD.String(nfc)
	require.NotEqual(t, nfc, nfd)

	absNFC := writeFile(t, root, nfc, "x")
	dNFC := p.ShouldIndex(absNFC, nfc)
	dNFD := p.ShouldIndex(absNFC, nfd)
	assert.Equal(t, dNFC.Include, dNFD.Include)
	assert.False(t, dNFC.Include)
}

func TestZeroWidthStripped(t *testing.T) {
	root := t.TempDir()
	p := newPolicy(t, root)

	// A zero-width space hiding inside ".e​nv" must not defeat the
	// sensitive-file deny.
	rel := ".e​nv"
	abs := writeFile(t, root, ".env", "SECRET=1")
	d := p.ShouldIndex(abs, rel)
	assert.False(t, d.Include)
}

func TestShouldDescend(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "skipme/\n")
	p := newPolicy(t, root)

	assert.True(t, p.ShouldDescend("."))
	assert.True(t, p.ShouldDescend("src"))
	assert.False(t, p.ShouldDescend("node_modules"))
	assert.False(t, p.ShouldDescend("skipme"))
}

func TestIsDocPath(t *testing.T) {
	assert.True(t, IsDocPath("README.md"))
	assert.True(t, IsDocPath("notes.TXT"))
	assert.False(t, IsDocPath("main.go"))
}

func TestIsWatchable(t *testing.T) {
	root := t.TempDir()
	p := newPolicy(t, root)

	assert.True(t, p.IsWatchable("src/deep"))
	assert.False(t, p.IsWatchable("node_modules/pkg"))
	assert.False(t, p.IsWatchable(".git"))
}
