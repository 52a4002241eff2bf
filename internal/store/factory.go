package store

import (
	"fmt"
)

// FTS backend names.
const (
	FTSBackendSQLite = "sqlite"
	FTSBackendBleve  = "bleve"
)

// NewFTS creates the configured FTS backend. SQLite FTS5 is the
// default; bleve is the single-process alternative.
func NewFTS(backend, path string) (FTSStore, error) {
	switch backend {
	case FTSBackendSQLite, "":
		return NewSQLiteFTS(path)
	case FTSBackendBleve:
		return NewBleveFTS(path)
	default:
		return nil, fmt.Errorf("unknown fts backend: %s", backend)
	}
}
