package index

import (
	"context"
	"log/slog"
)

// ConsistencyReport compares the chunk counts of the vector and FTS stores.
type ConsistencyReport struct {
	VectorOnly []string // in vector store, missing from FTS; CheckConsistency does not fill it
	FTSCount   int
	VectorCount int
	Consistent bool
}

// CheckConsistency compares the chunk counts of a manager's two stores.
// Chunk ids are not matched, so VectorOnly stays empty and two stores
// with equal counts but different chunk sets report as consistent.
func CheckConsistency(ctx context.Context, m *Manager) (*ConsistencyReport, error) {
	report := &ConsistencyReport{}

	ftsCount, err := m.FTS().Stats()
	if err != nil {
		return nil, err
	}
	report.FTSCount = ftsCount
	report.VectorCount = m.Vector().Count()
	report.Consistent = report.FTSCount == report.VectorCount

	return report, nil
}

// RepairConsistency reindexes every file the Merkle tree knows when
// the stores disagree, converging them on the current project state.
func RepairConsistency(ctx context.Context, m *Manager, report *ConsistencyReport) error {
	if report.Consistent {
		return nil
	}
	slog.Warn("store inconsistency detected, repairing",
		slog.Int("vector", report.VectorCount),
		slog.Int("fts", report.FTSCount))

	for _, path := range m.tree.Paths() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := m.UpdateFile(ctx, path); err != nil {
			slog.Warn("consistency repair failed for file",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
	}
	return nil
}
