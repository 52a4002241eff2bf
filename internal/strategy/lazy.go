package strategy

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/blakazulu/search-mcp/internal/index"
	"github.com/blakazulu/search-mcp/internal/state"
	"github.com/blakazulu/search-mcp/internal/watcher"
)

// Lazy queues file events as dirty/deleted marks and applies them only
// on Flush. The dirty state persists across restarts.
type Lazy struct {
	lifecycle

	dual      *index.Dual
	dirty     *state.DirtyFiles
	statePath string

	// flushMu is the per-instance flush lock: a Flush while one is
	// already running is a no-op.
	flushMu sync.Mutex

	statsMu sync.Mutex
	stats   Stats
}

// NewLazy creates the lazy strategy.
func NewLazy(dual *index.Dual) *Lazy {
	return &Lazy{
		dual:      dual,
		statePath: filepath.Join(dual.IndexDir, index.DirtyFilesFile),
	}
}

// Initialize loads persisted dirty state.
func (l *Lazy) Initialize(ctx context.Context) error {
	if err := l.transition(StateUninitialized, StateInitialized); err != nil {
		return err
	}
	dirty, err := state.LoadDirtyFiles(l.statePath)
	if err != nil {
		return err
	}
	l.dirty = dirty
	return nil
}

// Start activates event intake.
func (l *Lazy) Start(ctx context.Context) error {
	return l.transition(StateInitialized, StateActive)
}

// OnFileEvent marks the path; deletions and re-adds clear each other.
func (l *Lazy) OnFileEvent(evt watcher.FileEvent) {
	if l.current() != StateActive {
		return
	}
	l.bump(func(s *Stats) { s.EventsHandled++ })

	switch evt.Operation {
	case watcher.OpDelete:
		l.dirty.MarkDeleted(evt.Path)
	default:
		l.dirty.MarkDirty(evt.Path)
	}
	// Persist on modification so a crash loses nothing.
	if err := l.dirty.Save(l.statePath); err != nil {
		slog.Warn("failed to persist dirty state", slog.String("error", err.Error()))
	}
}

// Flush processes every dirty and deleted path. A concurrent Flush is
// a no-op; a failed path is re-queued.
func (l *Lazy) Flush(ctx context.Context) error {
	if !l.flushMu.TryLock() {
		return nil
	}
	defer l.flushMu.Unlock()

	if l.current() != StateActive {
		return nil
	}

	dirtyPaths, deletedPaths := l.dirty.Take()
	if len(dirtyPaths) == 0 && len(deletedPaths) == 0 {
		return nil
	}

	var failedDirty, failedDeleted []string
	for _, rel := range dirtyPaths {
		if err := ctx.Err(); err != nil {
			failedDirty = append(failedDirty, rel)
			continue
		}
		if _, err := l.dual.UpdateFile(ctx, rel); err != nil {
			slog.Warn("lazy flush: update failed",
				slog.String("path", rel),
				slog.String("error", err.Error()))
			failedDirty = append(failedDirty, rel)
			continue
		}
		l.bump(func(s *Stats) { s.FilesUpdated++ })
	}
	for _, rel := range deletedPaths {
		if err := ctx.Err(); err != nil {
			failedDeleted = append(failedDeleted, rel)
			continue
		}
		if err := l.dual.DeleteFile(ctx, rel); err != nil {
			slog.Warn("lazy flush: delete failed",
				slog.String("path", rel),
				slog.String("error", err.Error()))
			failedDeleted = append(failedDeleted, rel)
			continue
		}
		l.bump(func(s *Stats) { s.FilesDeleted++ })
	}

	if len(failedDirty) > 0 || len(failedDeleted) > 0 {
		l.dirty.Restore(failedDirty, failedDeleted)
	}
	return l.dirty.Save(l.statePath)
}

// Stop persists pending state.
func (l *Lazy) Stop() error {
	if err := l.transition(StateActive, StateStopped); err != nil {
		if err2 := l.transition(StateInitialized, StateStopped); err2 != nil {
			return err
		}
	}
	if l.dirty != nil {
		return l.dirty.Save(l.statePath)
	}
	return nil
}

// Stats returns counters including pending set sizes.
func (l *Lazy) Stats() Stats {
	l.statsMu.Lock()
	s := l.stats
	l.statsMu.Unlock()
	s.State = l.current()
	if l.dirty != nil {
		s.PendingDirty, s.PendingDeleted = l.dirty.Counts()
	}
	return s
}

func (l *Lazy) bump(fn func(*Stats)) {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	fn(&l.stats)
}
