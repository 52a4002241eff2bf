// Package pathsafe contains the path normalization and containment
// checks every filesystem touch in search-mcp goes through. Untrusted
// project contents must never be able to read or write outside the
// project root or the index directory.
package pathsafe

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/blakazulu/search-mcp/internal/errors"
)

// Platform path length limits.
const (
	MaxPathWindows = 260
	MaxPathUnix    = 4096
)

// MaxJSONFileSize bounds state files loaded via SafeLoadJSON (10 MiB).
const MaxJSONFileSize = 10 * 1024 * 1024

var driveLetterRe = regexp.MustCompile(`^[a-zA-Z]:`)

// MaxPathLength returns the platform path length limit.
func MaxPathLength() int {
	if runtime.GOOS == "windows" {
		return MaxPathWindows
	}
	return MaxPathUnix
}

// Normalize cleans a path and converts separators to forward slashes.
func Normalize(p string) string {
	return filepath.ToSlash(filepath.Clean(p))
}

// ToRelative converts an absolute path to a path relative to base,
// always forward-slashed. Returns an error when abs is not under base.
func ToRelative(abs, base string) (string, error) {
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", errors.New(errors.ErrCodeInvalidPath, "path is not relative to project root", err)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", errors.New(errors.ErrCodePathTraversal, "path escapes project root", nil)
	}
	return rel, nil
}

// ToAbsolute resolves a forward-slash relative path against base.
func ToAbsolute(rel, base string) string {
	return filepath.Join(base, filepath.FromSlash(rel))
}

// SafeJoin joins rel onto base, rejecting anything that could escape.
// It returns the joined absolute path, or an error when rel is absolute,
// contains a ".." segment after normalization, contains a NUL byte,
// carries a Windows drive letter, resolves outside base, or exceeds the
// platform path length.
func SafeJoin(base, rel string) (string, error) {
	if strings.ContainsRune(rel, 0) {
		return "", errors.New(errors.ErrCodeInvalidPath, "path contains NUL byte", nil)
	}
	if rel == "" {
		return "", errors.New(errors.ErrCodeInvalidPath, "empty path", nil)
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(filepath.ToSlash(rel), "/") {
		return "", errors.New(errors.ErrCodeInvalidPath, "absolute paths are not allowed", nil)
	}
	if driveLetterRe.MatchString(rel) {
		return "", errors.New(errors.ErrCodeInvalidPath, "drive-letter paths are not allowed", nil)
	}

	cleaned := filepath.ToSlash(filepath.Clean(filepath.FromSlash(rel)))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") || strings.Contains(cleaned, "/../") {
		return "", errors.New(errors.ErrCodePathTraversal, "path traversal detected", nil)
	}

	joined := filepath.Join(base, filepath.FromSlash(cleaned))
	if len(joined) > MaxPathLength() {
		return "", errors.New(errors.ErrCodeInvalidPath, "path exceeds platform length limit", nil)
	}

	// Final containment check: Clean can only shorten, so prefix compare
	// on the cleaned absolute forms is authoritative.
	absBase := filepath.Clean(base)
	if joined != absBase && !strings.HasPrefix(joined, absBase+string(filepath.Separator)) {
		return "", errors.New(errors.ErrCodePathTraversal, "path resolves outside project root", nil)
	}
	return joined, nil
}

// IsSymlink lstats path and reports whether it is a symbolic link.
func IsSymlink(path string) (bool, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return false, err
	}
	return info.Mode()&os.ModeSymlink != 0, nil
}

// SafeRead joins rel onto base with SafeJoin and reads the file,
// refusing symlinks. The symlink check uses lstat on the final path so
// a link planted inside the project cannot leak files outside it.
func SafeRead(base, rel string) ([]byte, error) {
	abs, err := SafeJoin(base, rel)
	if err != nil {
		return nil, err
	}

	isLink, err := IsSymlink(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeFileNotFound, "file not found: "+errors.SanitizePathIn(abs, base), err)
		}
		if os.IsPermission(err) {
			return nil, errors.New(errors.ErrCodePermissionDenied, "permission denied: "+errors.SanitizePathIn(abs, base), err)
		}
		return nil, errors.Wrap(errors.ErrCodeInternal, err)
	}
	if isLink {
		return nil, errors.New(errors.ErrCodeSymlinkNotAllowed, "symlinks are not allowed: "+errors.SanitizePathIn(abs, base), nil)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsPermission(err) {
			return nil, errors.New(errors.ErrCodePermissionDenied, "permission denied: "+errors.SanitizePathIn(abs, base), err)
		}
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err)
	}
	return data, nil
}

// SafeLoadJSON loads and unmarshals a JSON file with a size bound.
// Files larger than maxBytes are rejected with a resource-limit error.
// When v implements Validate() error the decoded value is validated.
func SafeLoadJSON(path string, maxBytes int64, v any) error {
	if maxBytes <= 0 {
		maxBytes = MaxJSONFileSize
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.New(errors.ErrCodeFileNotFound, "file not found: "+errors.SanitizePath(path), err)
		}
		return errors.Wrap(errors.ErrCodeInternal, err)
	}
	if info.Size() > maxBytes {
		return errors.ResourceLimit("JSON file size", int(maxBytes))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileNotFound, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.New(errors.ErrCodeFileCorrupt, "invalid JSON in "+errors.SanitizePath(path), err)
	}
	if validator, ok := v.(interface{ Validate() error }); ok {
		if err := validator.Validate(); err != nil {
			return errors.New(errors.ErrCodeFileCorrupt, "schema validation failed for "+errors.SanitizePath(path), err)
		}
	}
	return nil
}
