package index

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/blakazulu/search-mcp/internal/errors"
	"github.com/blakazulu/search-mcp/internal/hashing"
	"github.com/blakazulu/search-mcp/internal/pathsafe"
	"github.com/blakazulu/search-mcp/internal/state"
)

// DefaultPeriodicCheck is the interval between background drift checks.
const DefaultPeriodicCheck = 24 * time.Hour

// Drift is the divergence between the on-disk project and the stored
// fingerprints.
type Drift struct {
	Added       []string
	Modified    []string
	Removed     []string
	InSync      bool
	LastChecked time.Time
}

// ReconcileResult reports what a reconciliation applied.
type ReconcileResult struct {
	Success       bool
	FilesAdded    int
	FilesModified int
	FilesRemoved  int
	DurationMs    int64
}

// IntegrityEngine detects and repairs drift for a dual index. It
// coordinates with watchers through the shared isIndexingActive flag:
// watchers skip event processing while reconciliation holds the flag,
// and reconciliation refuses to start while the flag is held by a full
// index or another reconciliation. Watcher updates do not set the flag,
// so a reconciliation can start while a watcher update is in progress.
type IntegrityEngine struct {
	dual *Dual

	flushMu sync.Mutex // FlushLock: prevents re-entrant reconcile

	stopPeriodic chan struct{}
	stopOnce     sync.Once
}

// NewIntegrityEngine creates the engine for a dual index.
func NewIntegrityEngine(dual *Dual) *IntegrityEngine {
	return &IntegrityEngine{
		dual:         dual,
		stopPeriodic: make(chan struct{}),
	}
}

// CheckDrift scans the project under the policy and compares against
// both fingerprint maps.
func (e *IntegrityEngine) CheckDrift(ctx context.Context) (*Drift, error) {
	walked, err := WalkProject(ctx, e.dual.RootPath, e.dual.Policy(), WalkOptions{})
	if err != nil {
		return nil, err
	}

	current := make(map[string]WalkedFile, len(walked))
	for _, f := range walked {
		current[f.RelPath] = f
	}

	drift := &Drift{LastChecked: time.Now().UTC()}

	check := func(fps *state.Fingerprints, accepts func(string) bool) {
		stored := fps.Snapshot()
		for rel, f := range current {
			if !accepts(rel) {
				continue
			}
			fp, tracked := stored[rel]
			if !tracked {
				drift.Added = append(drift.Added, rel)
				continue
			}
			if fp.Size == f.Size && fp.MTimeNS == f.MTimeNS {
				continue // fast path: metadata unchanged
			}
			content, readErr := pathsafe.SafeRead(e.dual.RootPath, rel)
			if readErr != nil {
				continue
			}
			if !hashing.Equal(hashing.FileHash(content), fp.Hash) {
				drift.Modified = append(drift.Modified, rel)
			}
		}
		for rel := range stored {
			if _, exists := current[rel]; !exists {
				drift.Removed = append(drift.Removed, rel)
			}
		}
	}

	check(e.dual.Code.Fingerprints(), e.dual.Code.accepts)
	check(e.dual.Docs.Fingerprints(), e.dual.Docs.accepts)

	drift.InSync = len(drift.Added) == 0 && len(drift.Modified) == 0 && len(drift.Removed) == 0
	return drift, nil
}

// Reconcile applies drift through the index managers. Runs under the
// flush lock; a second call while one is running returns immediately.
func (e *IntegrityEngine) Reconcile(ctx context.Context, drift *Drift) (*ReconcileResult, error) {
	if !e.flushMu.TryLock() {
		return &ReconcileResult{Success: false}, nil
	}
	defer e.flushMu.Unlock()

	if e.dual.IndexingActive() {
		// A watcher update or rebuild is mid-flight; retry next tick.
		return &ReconcileResult{Success: false}, nil
	}

	// Reconciliation is exclusive with create/delete/reindex.
	locked, err := e.dual.Lock().TryLock()
	if err != nil {
		return nil, err
	}
	if !locked {
		return &ReconcileResult{Success: false}, nil
	}
	defer func() { _ = e.dual.Lock().Unlock() }()

	started := time.Now()
	for _, m := range []*Manager{e.dual.Code, e.dual.Docs} {
		m.SetIndexingActive(true)
	}
	defer func() {
		for _, m := range []*Manager{e.dual.Code, e.dual.Docs} {
			m.SetIndexingActive(false)
		}
	}()

	result := &ReconcileResult{}
	for _, rel := range drift.Added {
		if err := ctx.Err(); err != nil {
			return result, errors.Cancelled("reconciliation cancelled", err)
		}
		if _, err := e.dual.UpdateFile(ctx, rel); err != nil {
			slog.Warn("reconcile: failed to add file",
				slog.String("path", rel),
				slog.String("error", err.Error()))
			continue
		}
		result.FilesAdded++
	}
	for _, rel := range drift.Modified {
		if err := ctx.Err(); err != nil {
			return result, errors.Cancelled("reconciliation cancelled", err)
		}
		if _, err := e.dual.UpdateFile(ctx, rel); err != nil {
			slog.Warn("reconcile: failed to update file",
				slog.String("path", rel),
				slog.String("error", err.Error()))
			continue
		}
		result.FilesModified++
	}
	for _, rel := range drift.Removed {
		if err := e.dual.DeleteFile(ctx, rel); err != nil {
			slog.Warn("reconcile: failed to remove file",
				slog.String("path", rel),
				slog.String("error", err.Error()))
			continue
		}
		result.FilesRemoved++
	}

	result.Success = true
	result.DurationMs = time.Since(started).Milliseconds()
	return result, nil
}

// CheckAndReconcile runs a drift check and applies any drift found.
func (e *IntegrityEngine) CheckAndReconcile(ctx context.Context) (*ReconcileResult, error) {
	drift, err := e.CheckDrift(ctx)
	if err != nil {
		return nil, err
	}
	if drift.InSync {
		return &ReconcileResult{Success: true}, nil
	}
	return e.Reconcile(ctx, drift)
}

// StartPeriodic runs CheckAndReconcile on the given interval until
// StopPeriodic or context cancellation. Failures are logged and
// retried on the next tick.
func (e *IntegrityEngine) StartPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPeriodicCheck
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.stopPeriodic:
				return
			case <-ticker.C:
				if _, err := e.CheckAndReconcile(ctx); err != nil {
					slog.Warn("periodic integrity check failed",
						slog.String("error", err.Error()))
				}
			}
		}
	}()
}

// StopPeriodic stops the periodic check.
func (e *IntegrityEngine) StopPeriodic() {
	e.stopOnce.Do(func() { close(e.stopPeriodic) })
}
