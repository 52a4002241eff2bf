// Package policy decides which files enter the index. Every path is
// checked in a fixed order: Unicode normalization, the hardcoded deny
// list, user exclude patterns, recursively-scoped .gitignore rules, and
// finally content-based binary detection for unknown extensions.
package policy

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/blakazulu/search-mcp/internal/gitignore"
)

// matcherCacheSize bounds the number of cached per-directory gitignore
// matchers so long-running watchers don't grow without limit.
const matcherCacheSize = 1000

// binarySniffLen is how many leading bytes are inspected for NUL when
// the extension is not in the known-text set.
const binarySniffLen = 8 * 1024

// Decision is the result of a policy check.
type Decision struct {
	Include bool
	Reason  string
}

// Hardcoded deny directories. These are never indexed and never watched.
var denyDirs = map[string]struct{}{
	".git":         {},
	".hg":          {},
	".svn":         {},
	"node_modules": {},
	"vendor":       {},
	"__pycache__":  {},
	"dist":         {},
	"build":        {},
	"target":       {},
	".idea":        {},
	".vscode":      {},
	".aws":         {},
	".ssh":         {},
	".cache":       {},
}

// Sensitive file patterns that are never indexed regardless of gitignore.
var denyFilePatterns = []string{
	".gitignore",
	".gitattributes",
	".gitmodules",
	".DS_Store",
	".env",
	".env.*",
	"*.pem",
	"*.key",
	"*.p12",
	"*.pfx",
	"*credentials*",
	"*secrets*",
	".netrc",
	".npmrc",
	".pypirc",
	"id_rsa",
	"id_dsa",
	"id_ecdsa",
	"id_ed25519",
	"*.min.js",
	"*.min.css",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"go.sum",
}

// Extensions always treated as text, skipping the binary sniff.
var knownTextExts = map[string]struct{}{
	".go": {}, ".js": {}, ".jsx": {}, ".mjs": {}, ".ts": {}, ".tsx": {},
	".py": {}, ".rb": {}, ".rs": {}, ".java": {}, ".kt": {}, ".c": {},
	".h": {}, ".cpp": {}, ".hpp": {}, ".cc": {}, ".cs": {}, ".php": {},
	".swift": {}, ".scala": {}, ".sh": {}, ".bash": {}, ".zsh": {},
	".fish": {}, ".pl": {}, ".lua": {}, ".r": {}, ".sql": {}, ".html": {},
	".htm": {}, ".css": {}, ".scss": {}, ".sass": {}, ".less": {},
	".json": {}, ".yaml": {}, ".yml": {}, ".toml": {}, ".xml": {},
	".ini": {}, ".cfg": {}, ".conf": {}, ".md": {}, ".mdx": {},
	".markdown": {}, ".rst": {}, ".txt": {}, ".proto": {}, ".graphql": {},
	".vue": {}, ".svelte": {}, ".ex": {}, ".exs": {}, ".erl": {},
	".hs": {}, ".ml": {}, ".clj": {}, ".dart": {}, ".zig": {}, ".nim": {},
}

// Documentation extensions routed to the docs index.
var docExts = map[string]struct{}{
	".md": {}, ".mdx": {}, ".markdown": {}, ".rst": {}, ".txt": {},
}

// Policy evaluates include/exclude decisions for one project root.
type Policy struct {
	root     string
	foldCase bool
	extra    *gitignore.Matcher
	cache    *lru.Cache[string, *gitignore.Matcher]
}

// New creates a Policy for the given absolute project root. Extra
// exclude patterns (from user config) are compiled as gitignore-style
// rules at root scope.
func New(root string, extraExcludes []string) (*Policy, error) {
	cache, err := lru.New[string, *gitignore.Matcher](matcherCacheSize)
	if err != nil {
		return nil, err
	}

	fold := caseInsensitiveFS()
	extra := gitignore.New(fold)
	for _, p := range extraExcludes {
		extra.AddPattern(p)
	}

	return &Policy{
		root:     root,
		foldCase: fold,
		extra:    extra,
		cache:    cache,
	}, nil
}

// caseInsensitiveFS reports whether the platform's default filesystem
// folds case (macOS and Windows).
func caseInsensitiveFS() bool {
	return runtime.GOOS == "darwin" || runtime.GOOS == "windows"
}

// NormalizePath returns the NFC-normalized form of a relative path with
// zero-width characters and bidi overrides stripped. The second return
// reports whether anything was stripped, so callers can log it.
func NormalizePath(rel string) (string, bool) {
	normalized := norm.NFC.String(rel)

	var b strings.Builder
	b.Grow(len(normalized))
	stripped := false
	for _, r := range normalized {
		switch r {
		// Zero-width characters and bidi override controls can disguise
		// a sensitive path as an innocuous one.
		case '\u200b', '\u200c', '\u200d', '\ufeff',
			'\u202a', '\u202b', '\u202c', '\u202d', '\u202e',
			'\u2066', '\u2067', '\u2068', '\u2069':
			stripped = true
		default:
			b.WriteRune(r)
		}
	}
	return b.String(), stripped || normalized != rel
}

// ShouldIndex decides whether the file at abs (relative path rel) is
// indexed. rel must be forward-slashed relative to the project root.
func (p *Policy) ShouldIndex(abs, rel string) Decision {
	rel = filepath.ToSlash(rel)
	cleaned, strippedAny := NormalizePath(rel)
	if strippedAny {
		slog.Warn("path normalized during policy check",
			slog.String("path", cleaned))
	}
	rel = cleaned

	// 1. Hardcoded deny list on every path component.
	for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/") {
		if p.isDeniedDir(part) {
			return Decision{Include: false, Reason: "denied directory: " + part}
		}
	}
	base := filepath.Base(rel)
	if p.isDeniedDir(base) {
		return Decision{Include: false, Reason: "denied directory: " + base}
	}
	for _, pattern := range denyFilePatterns {
		if matchBase(pattern, base, p.foldCase) {
			return Decision{Include: false, Reason: "sensitive file pattern: " + pattern}
		}
	}

	// 2. User exclude patterns.
	if p.extra.Len() > 0 && p.extra.Match(rel, false) {
		return Decision{Include: false, Reason: "excluded by configuration"}
	}

	// 3. Gitignore, root first then each nested level.
	if p.isGitignored(rel, false) {
		return Decision{Include: false, Reason: "gitignored"}
	}

	// 4. Content-based binary check for unknown extensions.
	ext := strings.ToLower(filepath.Ext(rel))
	if _, known := knownTextExts[ext]; !known {
		if isBinaryFile(abs) {
			return Decision{Include: false, Reason: "binary content"}
		}
	}

	return Decision{Include: true}
}

// ShouldDescend reports whether the walker should enter a directory.
func (p *Policy) ShouldDescend(rel string) bool {
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == "" {
		return true
	}
	if p.isDeniedDir(filepath.Base(rel)) {
		return false
	}
	return !p.isGitignored(rel, true)
}

// IsWatchable reports whether a directory may be added to the file
// watcher. Hardcoded denies are never watched.
func (p *Policy) IsWatchable(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if p.isDeniedDir(part) {
			return false
		}
	}
	return true
}

// IsDocPath reports whether a relative path routes to the docs index.
func IsDocPath(rel string) bool {
	_, ok := docExts[strings.ToLower(filepath.Ext(rel))]
	return ok
}

// InvalidateGitignore drops the cached matcher for the directory whose
// .gitignore changed, forcing a re-read on the next check.
func (p *Policy) InvalidateGitignore(dir string) {
	p.cache.Remove(filepath.Join(p.root, filepath.FromSlash(dir)))
}

func (p *Policy) isDeniedDir(name string) bool {
	if name == "" || name == "." {
		return false
	}
	if p.foldCase {
		name = strings.ToLower(name)
	}
	_, ok := denyDirs[name]
	return ok
}

// isGitignored walks from the root down to the file's directory,
// consulting the .gitignore at each level. Nested patterns apply to
// their .gitignore's directory and all descendants: the matcher scopes
// each rule to its base and expands anchored globs to match at any
// depth beneath their directory prefix (foo/*.k also as foo/**/*.k).
func (p *Policy) isGitignored(rel string, isDir bool) bool {
	if m := p.matcherFor(p.root, ""); m != nil && m.Match(rel, isDir) {
		return true
	}

	dir := filepath.ToSlash(filepath.Dir(rel))
	if dir == "." {
		return false
	}
	current := p.root
	base := ""
	for _, part := range strings.Split(dir, "/") {
		current = filepath.Join(current, part)
		if base == "" {
			base = part
		} else {
			base = base + "/" + part
		}
		if m := p.matcherFor(current, base); m != nil && m.Match(rel, isDir) {
			return true
		}
	}
	return false
}

// matcherFor returns the (possibly cached) matcher for dir's .gitignore,
// or nil when the directory has none.
func (p *Policy) matcherFor(dir, base string) *gitignore.Matcher {
	if m, ok := p.cache.Get(dir); ok {
		return m
	}

	path := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(path); err != nil {
		p.cache.Add(dir, nil)
		return nil
	}

	m := gitignore.New(p.foldCase)
	if err := m.AddFromFile(path, base); err != nil {
		slog.Warn("failed to read gitignore",
			slog.String("dir", base),
			slog.String("error", err.Error()))
		p.cache.Add(dir, nil)
		return nil
	}
	p.cache.Add(dir, m)
	return m
}

// matchBase matches a deny pattern against a file basename.
func matchBase(pattern, base string, fold bool) bool {
	if fold {
		pattern = strings.ToLower(pattern)
		base = strings.ToLower(base)
	}
	ok, err := filepath.Match(pattern, base)
	return err == nil && ok
}

// isBinaryFile reads the first 8 KiB and reports whether a NUL byte is
// present.
func isBinaryFile(abs string) bool {
	f, err := os.Open(abs)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, binarySniffLen)
	n, err := f.Read(buf)
	if n == 0 || (err != nil && n <= 0) {
		return false
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}
