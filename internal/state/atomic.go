// Package state persists the index's lightweight JSON state: file
// fingerprints, index metadata, and the lazy strategy's dirty-file
// sets. Every write goes through write-temp-then-rename; every load
// validates against the type's schema.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/renameio"

	"github.com/blakazulu/search-mcp/internal/errors"
)

// saveJSON atomically writes v as indented JSON.
func saveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
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
