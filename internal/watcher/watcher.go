// Package watcher provides recursive filesystem watching with per-path
// debouncing. Events feed the indexing strategies; hardcoded deny
// directories are never added to the watch set.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/blakazulu/search-mcp/internal/policy"
)

// Operation is a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file was deleted.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one debounced file system event.
type FileEvent struct {
	// Path is relative to the watched root, forward-slashed.
	Path string

	// Operation is the coalesced operation.
	Operation Operation

	// Timestamp is when the last underlying event arrived.
	Timestamp time.Time
}

// Options configures the watcher.
type Options struct {
	// DebounceWindow is the quiet period before emitting coalesced
	// events. Default: 300ms.
	DebounceWindow time.Duration

	// MaxPendingEvents caps the debouncer's pending map. New events
	// past the cap are refused with a warning. Default: 1000.
	MaxPendingEvents int
}

// WithDefaults fills zero values.
func (o Options) WithDefaults() Options {
	if o.DebounceWindow == 0 {
		o.DebounceWindow = 300 * time.Millisecond
	}
	if o.MaxPendingEvents == 0 {
		o.MaxPendingEvents = 1000
	}
	return o
}

// Watcher watches a project tree recursively.
type Watcher struct {
	root      string
	policy    *policy.Policy
	options   Options
	debouncer *Debouncer

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	stopped bool
	done    chan struct{}
}

// New creates a watcher for root. pol filters which directories are
// watched; hardcoded denies are excluded from the watch set entirely.
func New(root string, pol *policy.Policy, opts Options) *Watcher {
	opts = opts.WithDefaults()
	return &Watcher{
		root:      root,
		policy:    pol,
		options:   opts,
		debouncer: NewDebouncer(opts.DebounceWindow, opts.MaxPendingEvents),
	}
}

// Events returns the channel of debounced event batches.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.debouncer.Output()
}

// Start begins watching. It returns after the watch set is installed;
// events flow until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw != nil {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	w.done = make(chan struct{})

	if err := w.addRecursive(w.root); err != nil {
		_ = fsw.Close()
		w.fsw = nil
		return err
	}

	go w.loop(ctx)
	return nil
}

// addRecursive installs watches on root and every watchable directory.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree: skip, keep watching the rest
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel != "." && !w.policy.IsWatchable(rel) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			slog.Warn("failed to watch directory",
				slog.String("dir", rel),
				slog.String("error", err.Error()))
		}
		return nil
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(evt)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handle(evt fsnotify.Event) {
	rel, err := filepath.Rel(w.root, evt.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if !w.policy.IsWatchable(rel) {
		return
	}

	// New directories join the watch set so nested creates are seen.
	if evt.Op&fsnotify.Create != 0 {
		if info, statErr := os.Lstat(evt.Name); statErr == nil && info.IsDir() {
			if w.policy.IsWatchable(rel) {
				_ = w.addRecursive(evt.Name)
			}
			return
		}
	}

	var op Operation
	switch {
	case evt.Op&fsnotify.Create != 0:
		op = OpCreate
	case evt.Op&fsnotify.Write != 0:
		op = OpModify
	case evt.Op&fsnotify.Remove != 0, evt.Op&fsnotify.Rename != 0:
		op = OpDelete
	default:
		return // chmod-only events carry no content change
	}

	w.debouncer.Add(FileEvent{Path: rel, Operation: op, Timestamp: time.Now()})
}

// Stop stops the watcher and the debouncer; events still pending in the
// debouncer are discarded. Safe to call twice.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true

	var err error
	if w.fsw != nil {
		err = w.fsw.Close()
		<-w.done
	}
	w.debouncer.Stop()
	return err
}
