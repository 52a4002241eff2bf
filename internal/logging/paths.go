package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the global log directory (~/.mcp/search/logs).
// Falls back to the temp directory if home is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".mcp", "search", "logs")
	}
	return filepath.Join(home, ".mcp", "search", "logs")
}

// DefaultLogPath returns the global server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "search-mcp.log")
}

// LogPathFor returns the per-index log path under the index directory.
func LogPathFor(indexPath string) string {
	return filepath.Join(indexPath, "logs", "search-mcp.log")
}
