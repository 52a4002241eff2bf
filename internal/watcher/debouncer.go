package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces rapid file events to prevent index thrashing.
// Events for the same path within the window merge by these rules:
//   - CREATE + MODIFY = CREATE (file is still new)
//   - CREATE + DELETE = nothing (file never really existed)
//   - MODIFY + DELETE = DELETE (file is gone)
//   - DELETE + CREATE = MODIFY (file was replaced)
//
// The pending map is bounded; events past the cap are refused with a
// warning at 80% occupancy.
type Debouncer struct {
	window     time.Duration
	maxPending int

	mu      sync.Mutex
	pending map[string]*pendingEvent
	output  chan []FileEvent
	timer   *time.Timer
	stopped bool
	warned  bool
}

type pendingEvent struct {
	event   FileEvent
	firstOp Operation
}

// NewDebouncer creates a debouncer with the given window and cap.
func NewDebouncer(window time.Duration, maxPending int) *Debouncer {
	return &Debouncer{
		window:     window,
		maxPending: maxPending,
		pending:    make(map[string]*pendingEvent),
		output:     make(chan []FileEvent, 16),
	}
}

// Output returns the channel batches are emitted on.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Add queues an event, coalescing with any pending event for its path.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	existing, havePending := d.pending[event.Path]
	if !havePending {
		if len(d.pending) >= d.maxPending {
			slog.Warn("pending file events at capacity, refusing event",
				slog.String("path", event.Path),
				slog.Int("limit", d.maxPending))
			return
		}
		if !d.warned && len(d.pending) >= d.maxPending*8/10 {
			d.warned = true
			slog.Warn("pending file events above 80% of capacity",
				slog.Int("pending", len(d.pending)),
				slog.Int("limit", d.maxPending))
		}
		d.pending[event.Path] = &pendingEvent{event: event, firstOp: event.Operation}
		d.scheduleFlush()
		return
	}

	coalesced := coalesce(existing.firstOp, existing.event.Operation, event.Operation)
	if coalesced == nil {
		// CREATE then DELETE: the file never existed for the index.
		delete(d.pending, event.Path)
		return
	}
	existing.event.Operation = *coalesced
	existing.event.Timestamp = event.Timestamp
	d.scheduleFlush()
}

// coalesce merges the next op into the pending op per the table above.
func coalesce(firstOp, pendingOp, nextOp Operation) *Operation {
	result := nextOp
	switch {
	case firstOp == OpCreate && nextOp == OpDelete:
		return nil
	case firstOp == OpCreate:
		result = OpCreate
	case pendingOp == OpDelete && nextOp == OpCreate:
		result = OpModify
	case nextOp == OpCreate:
		result = OpModify
	}
	return &result
}

func (d *Debouncer) scheduleFlush() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	if d.stopped || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	batch := make([]FileEvent, 0, len(d.pending))
	for _, pe := range d.pending {
		batch = append(batch, pe.event)
	}
	d.pending = make(map[string]*pendingEvent)
	d.warned = false
	d.mu.Unlock()

	select {
	case d.output <- batch:
	default:
		// Consumer stalled: re-queue rather than drop.
		d.mu.Lock()
		for _, evt := range batch {
			if _, exists := d.pending[evt.Path]; !exists {
				d.pending[evt.Path] = &pendingEvent{event: evt, firstOp: evt.Operation}
			}
		}
		d.mu.Unlock()
		d.scheduleFlushLocked()
	}
}

func (d *Debouncer) scheduleFlushLocked() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.stopped {
		d.scheduleFlush()
	}
}

// Pending returns the number of pending events.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stop flushes nothing further and closes the output channel.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	close(d.output)
}
