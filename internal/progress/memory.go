package progress

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acme/importflow/internal/domain"
)

const subscriberBuffer = 64

type snapshotEntry struct {
	event     domain.ProgressEvent
	expiresAt time.Time
}

// MemoryTracker is an in-process Tracker: snapshots live in a TTL map,
// broadcasts go to per-job buffered channels. Safe for concurrent use.
type MemoryTracker struct {
	mu          sync.RWMutex
	ttl         time.Duration
	snapshots   map[uuid.UUID]snapshotEntry
	subscribers map[uuid.UUID]map[int]chan domain.ProgressEvent
	nextSubID   int
	now         func() time.Time
}

// NewMemoryTracker creates a tracker whose snapshots expire after ttl.
func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryTracker{
		ttl:         ttl,
		snapshots:   make(map[uuid.UUID]snapshotEntry),
		subscribers: make(map[uuid.UUID]map[int]chan domain.ProgressEvent),
		now:         time.Now,
	}
}

// WriteSnapshot stores the event as the job's latest durable state.
func (t *MemoryTracker) WriteSnapshot(ctx context.Context, event domain.ProgressEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snapshots[event.JobID] = snapshotEntry{
		event:     event,
		expiresAt: t.now().Add(t.ttl),
	}
	return nil
}

// Broadcast delivers the event to current subscribers. Fire and forget:
// a subscriber whose buffer is full misses the event rather than
// blocking the publisher.
func (t *MemoryTracker) Broadcast(ctx context.Context, event domain.ProgressEvent) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, ch := range t.subscribers[event.JobID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Publish writes the snapshot then broadcasts the same event.
func (t *MemoryTracker) Publish(ctx context.Context, event domain.ProgressEvent) error {
	if err := t.WriteSnapshot(ctx, event); err != nil {
		return err
	}
	t.Broadcast(ctx, event)
	return nil
}

// Snapshot returns the last published event, or false if absent/expired.
func (t *MemoryTracker) Snapshot(ctx context.Context, jobID uuid.UUID) (domain.ProgressEvent, bool) {
	t.mu.RLock()
	entry, ok := t.snapshots[jobID]
	t.mu.RUnlock()
	if !ok {
		return domain.ProgressEvent{}, false
	}
	if t.now().After(entry.expiresAt) {
		t.mu.Lock()
		if current, still := t.snapshots[jobID]; still && t.now().After(current.expiresAt) {
			delete(t.snapshots, jobID)
		}
		t.mu.Unlock()
		return domain.ProgressEvent{}, false
	}
	return entry.event, true
}

// Subscribe registers a listener for the job's live events. The returned
// cancel func must be called on every exit path; it closes the channel.
func (t *MemoryTracker) Subscribe(jobID uuid.UUID) (<-chan domain.ProgressEvent, func()) {
	ch := make(chan domain.ProgressEvent, subscriberBuffer)

	t.mu.Lock()
	id := t.nextSubID
	t.nextSubID++
	if t.subscribers[jobID] == nil {
		t.subscribers[jobID] = make(map[int]chan domain.ProgressEvent)
	}
	t.subscribers[jobID][id] = ch
	t.mu.Unlock()

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		subs, ok := t.subscribers[jobID]
		if !ok {
			return
		}
		if _, ok := subs[id]; !ok {
			return
		}
		delete(subs, id)
		if len(subs) == 0 {
			delete(t.subscribers, jobID)
		}
		close(ch)
	}

	return ch, cancel
}

var _ Tracker = (*MemoryTracker)(nil)
