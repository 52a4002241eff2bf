// Package strategy implements the pluggable policies for when file
// changes reach the index: realtime (watch + debounce), lazy (mark
// dirty, flush on demand), and git (reconcile on commit).
package strategy

import (
	"context"
	"fmt"
	"sync"

	"github.com/blakazulu/search-mcp/internal/watcher"
)

// State is the strategy lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateActive
	StateStopped
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats reports a strategy's counters.
type Stats struct {
	State          State
	EventsHandled  int
	FilesUpdated   int
	FilesDeleted   int
	PendingDirty   int
	PendingDeleted int
}

// Strategy is the lifecycle every indexing strategy implements.
// Transitions: Uninitialized -> Initialized -> Active -> Stopped.
type Strategy interface {
	// Initialize prepares resources without starting event flow.
	Initialize(ctx context.Context) error

	// Start begins processing events.
	Start(ctx context.Context) error

	// Stop halts processing and persists pending state.
	Stop() error

	// OnFileEvent feeds one event (used by tests and by the git
	// strategy's HEAD watcher).
	OnFileEvent(evt watcher.FileEvent)

	// Flush forces pending work through the index.
	Flush(ctx context.Context) error

	// Stats returns counters.
	Stats() Stats
}

// lifecycle embeds the shared state machine.
type lifecycle struct {
	mu    sync.Mutex
	state State
}

func (l *lifecycle) transition(from, to State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != from {
		return fmt.Errorf("invalid state transition: %s -> %s (currently %s)", from, to, l.state)
	}
	l.state = to
	return nil
}

func (l *lifecycle) current() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}
