package strategy

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/blakazulu/search-mcp/internal/hashing"
	"github.com/blakazulu/search-mcp/internal/index"
	"github.com/blakazulu/search-mcp/internal/pathsafe"
	"github.com/blakazulu/search-mcp/internal/watcher"
)

// Realtime keeps the index fresh from a recursive file watch. Events
// are debounced per path; the stored fingerprint short-circuits events
// whose file content has not actually changed.
type Realtime struct {
	lifecycle

	dual    *index.Dual
	options watcher.Options
	watch   *watcher.Watcher

	statsMu sync.Mutex
	stats   Stats

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRealtime creates the realtime strategy.
func NewRealtime(dual *index.Dual, debounce time.Duration) *Realtime {
	return &Realtime{
		dual: dual,
		options: watcher.Options{
			DebounceWindow: debounce,
		},
	}
}

// Initialize creates the watcher without starting it.
func (r *Realtime) Initialize(ctx context.Context) error {
	if err := r.transition(StateUninitialized, StateInitialized); err != nil {
		return err
	}
	r.watch = watcher.New(r.dual.RootPath, r.dual.Policy(), r.options)
	return nil
}

// Start installs the watch set and begins consuming event batches.
func (r *Realtime) Start(ctx context.Context) error {
	if err := r.transition(StateInitialized, StateActive); err != nil {
		return err
	}

	ctx, r.cancel = context.WithCancel(ctx)
	if err := r.watch.Start(ctx); err != nil {
		return err
	}

	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		for batch := range r.watch.Events() {
			for _, evt := range batch {
				r.process(ctx, evt)
			}
		}
	}()
	return nil
}

// process applies one debounced event. Events arriving during a
// rebuild or reconciliation are skipped; the integrity engine will
// pick the change up.
func (r *Realtime) process(ctx context.Context, evt watcher.FileEvent) {
	r.bump(func(s *Stats) { s.EventsHandled++ })

	if r.dual.IndexingActive() {
		slog.Debug("skipping event during active indexing",
			slog.String("path", evt.Path))
		return
	}

	switch evt.Operation {
	case watcher.OpCreate, watcher.OpModify:
		if !r.changed(evt.Path) {
			return
		}
		if _, err := r.dual.UpdateFile(ctx, evt.Path); err != nil {
			slog.Warn("realtime update failed",
				slog.String("path", evt.Path),
				slog.String("error", err.Error()))
			return
		}
		r.bump(func(s *Stats) { s.FilesUpdated++ })
	case watcher.OpDelete:
		if err := r.dual.DeleteFile(ctx, evt.Path); err != nil {
			slog.Warn("realtime delete failed",
				slog.String("path", evt.Path),
				slog.String("error", err.Error()))
			return
		}
		r.bump(func(s *Stats) { s.FilesDeleted++ })
	}
}

// changed compares the stored fingerprint against the current file.
func (r *Realtime) changed(rel string) bool {
	decision := r.dual.Policy().ShouldIndex(filepath.Join(r.dual.RootPath, filepath.FromSlash(rel)), rel)
	if !decision.Include {
		return false
	}

	fp, tracked := r.dual.ManagerFor(rel).Fingerprints().Get(rel)
	if !tracked {
		return true
	}

	abs := filepath.Join(r.dual.RootPath, filepath.FromSlash(rel))
	info, err := os.Lstat(abs)
	if err != nil {
		return true // gone or unreadable: let UpdateFile sort it out
	}
	if fp.Size == info.Size() && fp.MTimeNS == info.ModTime().UnixNano() {
		return false
	}
	content, err := pathsafe.SafeRead(r.dual.RootPath, rel)
	if err != nil {
		return true
	}
	return !hashing.Equal(hashing.FileHash(content), fp.Hash)
}

// OnFileEvent feeds one event directly (testing hook).
func (r *Realtime) OnFileEvent(evt watcher.FileEvent) {
	if r.current() != StateActive {
		return
	}
	r.process(context.Background(), evt)
}

// Flush is a no-op: realtime has no pending set beyond the debouncer.
func (r *Realtime) Flush(ctx context.Context) error { return nil }

// Stop stops the watcher and the consumer goroutine.
func (r *Realtime) Stop() error {
	if err := r.transition(StateActive, StateStopped); err != nil {
		// Stopping an initialized-but-never-started strategy is fine.
		if err2 := r.transition(StateInitialized, StateStopped); err2 != nil {
			return err
		}
		return nil
	}
	if r.cancel != nil {
		r.cancel()
	}
	err := r.watch.Stop()
	if r.done != nil {
		<-r.done
	}
	return err
}

// Stats returns counters.
func (r *Realtime) Stats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	s := r.stats
	s.State = r.current()
	return s
}

func (r *Realtime) bump(fn func(*Stats)) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	fn(&r.stats)
}
