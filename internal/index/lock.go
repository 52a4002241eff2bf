package index

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/blakazulu/search-mcp/internal/errors"
)

// IndexingLock is the exclusive lock across create_index, delete_index,
// reindex_project, and reconcile. The file lock excludes other
// processes; the mutex excludes callers within this process (the file
// lock alone is re-entrant per flock handle).
type IndexingLock struct {
	fl *flock.Flock
	mu sync.Mutex
}

// NewIndexingLock creates the lock for an index directory.
func NewIndexingLock(indexDir string) *IndexingLock {
	return &IndexingLock{fl: flock.New(filepath.Join(indexDir, LockFile))}
}

// TryLock acquires the lock without blocking. Returns false when
// another destructive operation holds it.
func (l *IndexingLock) TryLock() (bool, error) {
	if !l.mu.TryLock() {
		return false, nil
	}
	ok, err := l.fl.TryLock()
	if err != nil {
		l.mu.Unlock()
		return false, errors.Wrap(errors.ErrCodeInternal, err)
	}
	if !ok {
		l.mu.Unlock()
		return false, nil
	}
	return true, nil
}

// LockWithTimeout blocks until the lock is acquired or the deadline
// passes.
func (l *IndexingLock) LockWithTimeout(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := l.TryLock()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.Cancelled("timed out waiting for indexing lock", nil)
		}
		select {
		case <-ctx.Done():
			return errors.Cancelled("cancelled waiting for indexing lock", ctx.Err())
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Unlock releases the lock.
func (l *IndexingLock) Unlock() error {
	err := l.fl.Unlock()
	l.mu.Unlock()
	return err
}
