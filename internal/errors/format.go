package errors

import (
	"os"
	"path/filepath"
	"strings"
)

// SanitizePath rewrites an absolute path for user-visible messages.
// The user's home directory collapses to "~" and index-store paths
// collapse to the canonical "~/.mcp/search/indexes/..." form. Other
// absolute paths are reduced to their basename; SanitizePathIn reports
// paths inside a project relative to its root.
func SanitizePath(path string) string {
	if path == "" {
		return ""
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Base(path)
	}
	home = filepath.ToSlash(home)
	p := filepath.ToSlash(path)
	if strings.HasPrefix(p, home) {
		return "~" + strings.TrimPrefix(p, home)
	}
	if !filepath.IsAbs(path) {
		return p
	}
	// Unknown absolute location: keep only the basename.
	return filepath.Base(p)
}

// SanitizePathIn rewrites path relative to root when it lies inside root,
// falling back to SanitizePath otherwise.
func SanitizePathIn(path, root string) string {
	if path == "" {
		return ""
	}
	if root != "" {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return SanitizePath(path)
}

// UserMessage returns the path-sanitized message for an error, with the
// suggestion appended when present. Non-SearchError values return their
// plain Error() text.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	se, ok := err.(*SearchError)
	if !ok {
		return err.Error()
	}
	msg := se.Message
	if se.Suggestion != "" {
		msg += " (" + se.Suggestion + ")"
	}
	return msg
}

// DeveloperMessage returns the full chained message including the cause,
// intended for logs rather than user output.
func DeveloperMessage(err error) string {
	if err == nil {
		return ""
	}
	se, ok := err.(*SearchError)
	if !ok {
		return err.Error()
	}
	var b strings.Builder
	b.WriteString(se.Error())
	for k, v := range se.Details {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(v)
	}
	if se.Cause != nil {
		b.WriteString(": ")
		b.WriteString(se.Cause.Error())
	}
	return b.String()
}
