package strategy

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/blakazulu/search-mcp/internal/index"
	"github.com/blakazulu/search-mcp/internal/watcher"
)

// DefaultGitDebounce is the quiet period after a HEAD change before
// reconciliation runs; rebases and merges touch the reflog repeatedly.
const DefaultGitDebounce = 2 * time.Second

// Git reconciles the index after each commit by watching the reflog
// (.git/logs/HEAD). Between commits the index intentionally drifts.
type Git struct {
	lifecycle

	dual      *index.Dual
	integrity *index.IntegrityEngine
	debounce  time.Duration

	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	done   chan struct{}

	statsMu sync.Mutex
	stats   Stats
}

// NewGit creates the git strategy.
func NewGit(dual *index.Dual, integrity *index.IntegrityEngine, debounce time.Duration) *Git {
	if debounce <= 0 {
		debounce = DefaultGitDebounce
	}
	return &Git{dual: dual, integrity: integrity, debounce: debounce}
}

// headLogPath returns the reflog path for the project.
func (g *Git) headLogPath() string {
	return filepath.Join(g.dual.RootPath, ".git", "logs", "HEAD")
}

// Initialize verifies the project is a git repository.
func (g *Git) Initialize(ctx context.Context) error {
	if err := g.transition(StateUninitialized, StateInitialized); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(g.dual.RootPath, ".git")); err != nil {
		return os.ErrNotExist
	}
	return nil
}

// Start watches the reflog and reconciles after each debounced change.
func (g *Git) Start(ctx context.Context) error {
	if err := g.transition(StateInitialized, StateActive); err != nil {
		return err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	g.fsw = fsw

	// Watch the containing directory: git replaces HEAD by rename.
	logDir := filepath.Dir(g.headLogPath())
	if err := fsw.Add(logDir); err != nil {
		_ = fsw.Close()
		return err
	}

	ctx, g.cancel = context.WithCancel(ctx)
	g.done = make(chan struct{})

	go func() {
		defer close(g.done)
		var timer *time.Timer
		fire := make(chan struct{}, 1)

		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Base(evt.Name) != "HEAD" {
					continue
				}
				g.bump(func(s *Stats) { s.EventsHandled++ })
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(g.debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			case <-fire:
				g.reconcile(ctx)
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				slog.Warn("git watcher error", slog.String("error", err.Error()))
			}
		}
	}()
	return nil
}

func (g *Git) reconcile(ctx context.Context) {
	result, err := g.integrity.CheckAndReconcile(ctx)
	if err != nil {
		slog.Warn("git reconcile failed", slog.String("error", err.Error()))
		return
	}
	if result.Success {
		g.bump(func(s *Stats) {
			s.FilesUpdated += result.FilesAdded + result.FilesModified
			s.FilesDeleted += result.FilesRemoved
		})
	}
}

// OnFileEvent is ignored: the git strategy reacts to commits only.
func (g *Git) OnFileEvent(evt watcher.FileEvent) {}

// Flush runs an immediate reconciliation.
func (g *Git) Flush(ctx context.Context) error {
	if g.current() != StateActive {
		return nil
	}
	_, err := g.integrity.CheckAndReconcile(ctx)
	return err
}

// Stop stops the reflog watcher.
func (g *Git) Stop() error {
	if err := g.transition(StateActive, StateStopped); err != nil {
		if err2 := g.transition(StateInitialized, StateStopped); err2 != nil {
			return err
		}
		return nil
	}
	if g.cancel != nil {
		g.cancel()
	}
	var err error
	if g.fsw != nil {
		err = g.fsw.Close()
		<-g.done
	}
	return err
}

// Stats returns counters.
func (g *Git) Stats() Stats {
	g.statsMu.Lock()
	defer g.statsMu.Unlock()
	s := g.stats
	s.State = g.current()
	return s
}

func (g *Git) bump(fn func(*Stats)) {
	g.statsMu.Lock()
	defer g.statsMu.Unlock()
	fn(&g.stats)
}
