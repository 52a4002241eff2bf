package mcp

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blakazulu/search-mcp/internal/config"
	"github.com/blakazulu/search-mcp/internal/errors"
	"github.com/blakazulu/search-mcp/internal/index"
)

func newServer(t *testing.T) (*Server, string) {
	t.Helper()
	root := t.TempDir()
	t.Setenv("HOME", t.TempDir())

	cfg := config.Default()
	cfg.Embeddings.Backend = "static"

	dual, err := index.OpenDual(context.Background(), root, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dual.Close() })

	s, err := NewServer(dual, cfg)
	require.NoError(t, err)
	return s, root
}

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func confirmed() ConfirmInput {
	v := true
	return ConfirmInput{Confirmed: &v}
}

func TestCreateIndexRequiresConfirmation(t *testing.T) {
	s, root := newServer(t)
	write(t, root, "a.go", "package demo\n\nfunc A() {}\n")
	ctx := context.Background()

	// Missing, nil, and false all cancel; never error.
	for _, in := range []ConfirmInput{{}, {Confirmed: boolPtr(false)}} {
		_, out, err := s.handleCreateIndex(ctx, nil, in)
		require.NoError(t, err)
		assert.Equal(t, "cancelled", out.Status)
	}

	_, out, err := s.handleCreateIndex(ctx, nil, confirmed())
	require.NoError(t, err)
	assert.Equal(t, "success", out.Status)
	assert.Equal(t, 1, out.FilesIndexed)
	assert.Greater(t, out.ChunksCreated, 0)
}

func boolPtr(b bool) *bool { return &b }

func TestSearchAgainstMissingIndex(t *testing.T) {
	s, _ := newServer(t)

	_, _, err := s.handleSearchCode(context.Background(), nil, SearchInput{Query: "anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), errors.ErrCodeIndexNotFound)
	assert.Contains(t, err.Error(), "create_index")
}

func TestSearchCodeEndToEnd(t *testing.T) {
	s, root := newServer(t)
	write(t, root, "auth.go", `package demo

// authenticate validates user credentials.
func authenticate(user, password string) error {
	return checkCredentials(user, password)
}
`)
	write(t, root, "util.go", "package demo\n\nfunc formatOutput(s string) string { return s }\n")
	ctx := context.Background()

	_, _, err := s.handleCreateIndex(ctx, nil, confirmed())
	require.NoError(t, err)

	_, out, err := s.handleSearchCode(ctx, nil, SearchInput{Query: "auth function", Mode: "hybrid", Alpha: 0.6})
	require.NoError(t, err)
	require.NotEmpty(t, out.Results)

	top := out.Results[0]
	assert.Equal(t, "auth.go", top.Path)
	assert.Greater(t, top.Score, 0.5)
	assert.False(t, strings.HasPrefix(top.Path, "/"))
}

func TestSearchDocs(t *testing.T) {
	s, root := newServer(t)
	write(t, root, "README.md", "# Setup\n\nInstall with make.\n\n## Troubleshooting\n\nCheck the logs for authentication failures.\n")
	ctx := context.Background()

	_, _, err := s.handleCreateIndex(ctx, nil, confirmed())
	require.NoError(t, err)

	_, out, err := s.handleSearchDocs(ctx, nil, SearchInput{Query: "troubleshooting authentication"})
	require.NoError(t, err)
	require.NotEmpty(t, out.Results)
	assert.Equal(t, "README.md", out.Results[0].Path)
}

func TestSearchInputValidation(t *testing.T) {
	s, root := newServer(t)
	write(t, root, "a.go", "package demo\n\nfunc A() {}\n")
	ctx := context.Background()
	_, _, err := s.handleCreateIndex(ctx, nil, confirmed())
	require.NoError(t, err)

	// 1001 characters rejected.
	_, _, err = s.handleSearchCode(ctx, nil, SearchInput{Query: strings.Repeat("a", 1001)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), errors.ErrCodeInvalidInput)

	// 1000 accepted.
	_, _, err = s.handleSearchCode(ctx, nil, SearchInput{Query: strings.Repeat("a", 1000)})
	assert.NoError(t, err)

	_, _, err = s.handleSearchCode(ctx, nil, SearchInput{Query: "x", TopK: 51})
	assert.Error(t, err)
	_, _, err = s.handleSearchCode(ctx, nil, SearchInput{Query: "x", Alpha: 1.5})
	assert.Error(t, err)
	_, _, err = s.handleSearchCode(ctx, nil, SearchInput{Query: "x", Mode: "psychic"})
	assert.Error(t, err)
}

func TestIndexStatus(t *testing.T) {
	s, root := newServer(t)
	ctx := context.Background()

	_, out, err := s.handleIndexStatus(ctx, nil, StatusInput{})
	require.NoError(t, err)
	assert.Equal(t, "not_found", out.Status)

	write(t, root, "a.go", "package demo\n\nfunc A() {}\n")
	write(t, root, "README.md", "# Doc\n\ntext\n")
	_, _, err = s.handleCreateIndex(ctx, nil, confirmed())
	require.NoError(t, err)

	_, out, err = s.handleIndexStatus(ctx, nil, StatusInput{})
	require.NoError(t, err)
	assert.Equal(t, "ready", out.Status)
	assert.Equal(t, 2, out.TotalFiles)
	assert.Greater(t, out.TotalChunks, 0)
	assert.NotEmpty(t, out.LastUpdated)
	assert.Greater(t, out.StorageSize, int64(0))
	require.NotNil(t, out.Compute)
	assert.Equal(t, "cpu", out.Compute.Device)
}

func TestReindexFile(t *testing.T) {
	s, root := newServer(t)
	write(t, root, "a.go", "package demo\n\nfunc A() {}\nfunc B() {}\nfunc C() {}\n")
	ctx := context.Background()
	_, _, err := s.handleCreateIndex(ctx, nil, confirmed())
	require.NoError(t, err)

	write(t, root, "a.go", "package demo\n\nfunc A() {}\nfunc B() {}\nfunc C() { println(1) }\n")
	_, out, err := s.handleReindexFile(ctx, nil, ReindexFileInput{Path: "a.go"})
	require.NoError(t, err)
	assert.Equal(t, "success", out.Status)

	// Traversal rejected.
	_, _, err = s.handleReindexFile(ctx, nil, ReindexFileInput{Path: "../evil.go"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), errors.ErrCodePathTraversal)
}

func TestDeleteIndex(t *testing.T) {
	s, root := newServer(t)
	write(t, root, "a.go", "package demo\n\nfunc A() {}\n")
	ctx := context.Background()
	_, _, err := s.handleCreateIndex(ctx, nil, confirmed())
	require.NoError(t, err)

	_, out, err := s.handleDeleteIndex(ctx, nil, ConfirmInput{})
	require.NoError(t, err)
	assert.Equal(t, "cancelled", out.Status)

	_, out, err = s.handleDeleteIndex(ctx, nil, confirmed())
	require.NoError(t, err)
	assert.Equal(t, "success", out.Status)

	_, status, err := s.handleIndexStatus(ctx, nil, StatusInput{})
	require.NoError(t, err)
	assert.Equal(t, "not_found", status.Status)
}

func TestSearchByPath(t *testing.T) {
	s, root := newServer(t)
	write(t, root, "src/auth/login.go", "package auth\n\nfunc Login() {}\n")
	write(t, root, "src/db/conn.go", "package db\n\nfunc Connect() {}\n")
	ctx := context.Background()
	_, _, err := s.handleCreateIndex(ctx, nil, confirmed())
	require.NoError(t, err)

	_, out, err := s.handleSearchByPath(ctx, nil, SearchByPathInput{Pattern: "src/auth/*.go"})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "src/auth/login.go", out.Results[0].Path)
	assert.Greater(t, out.Results[0].ChunkCount, 0)
}

func TestPatternSafety(t *testing.T) {
	// 10 wildcards accepted, 11 rejected.
	ok := strings.Repeat("*", 10)
	assert.NoError(t, IsPatternSafe(ok[:1]+"/a"+strings.Repeat("/*", 9)))

	bad := strings.Repeat("a*", 11)
	err := IsPatternSafe(bad)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeResourceLimit, errors.GetCode(err))

	assert.Error(t, IsPatternSafe(""))
	assert.Error(t, IsPatternSafe(strings.Repeat("a", 201)))
	assert.Error(t, IsPatternSafe("{a,b}{c,d}{e,f}{g,h}{i,j}{k,l}"))
	assert.Error(t, IsPatternSafe("****"))
	assert.Error(t, IsPatternSafe("{a,b,c,d,e,f,g,h,i,j,k,l,m,n,o,p,q,r,s,t,u}"))
}

func TestFileSummaryTool(t *testing.T) {
	s, root := newServer(t)
	write(t, root, "calc.go", `package demo

// Add adds numbers.
func Add(a, b int) int {
	if a > 0 {
		return a + b
	}
	return b
}
`)
	ctx := context.Background()

	_, summary, err := s.handleFileSummary(ctx, nil, FileSummaryInput{Path: "calc.go", IncludeComplexity: true, IncludeDocstrings: true})
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "calc.go", summary.Path)
	require.NotEmpty(t, summary.Functions)
	assert.Equal(t, "Add", summary.Functions[0].Name)
	assert.NotEmpty(t, summary.Functions[0].Docstring)
	assert.Greater(t, summary.Complexity.Score, 0)

	// Docstrings stripped when not requested.
	_, summary, err = s.handleFileSummary(ctx, nil, FileSummaryInput{Path: "calc.go"})
	require.NoError(t, err)
	assert.Empty(t, summary.Functions[0].Docstring)
	assert.Zero(t, summary.Complexity.Score)
}

func TestFileSummarySymlink(t *testing.T) {
	s, root := newServer(t)
	require.NoError(t, os.Symlink("/etc/passwd", filepath.Join(root, "link.go")))

	_, _, err := s.handleFileSummary(context.Background(), nil, FileSummaryInput{Path: "link.go"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), errors.ErrCodeSymlinkNotAllowed)
}

func TestErrorsAreSanitized(t *testing.T) {
	s, root := newServer(t)
	_, _, err := s.handleFileSummary(context.Background(), nil, FileSummaryInput{Path: "missing.go"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), root, "absolute project path must not leak")
}
