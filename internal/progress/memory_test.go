package progress

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/importflow/internal/domain"
)

func TestMemoryTrackerSnapshot(t *testing.T) {
	tracker := NewMemoryTracker(time.Hour)
	jobID := uuid.New()

	if _, ok := tracker.Snapshot(context.Background(), jobID); ok {
		t.Fatal("unexpected snapshot for unknown job")
	}

	event := domain.ProgressEvent{JobID: jobID, State: domain.JobStatusProgress, Progress: 42, Message: "Validating"}
	if err := tracker.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	got, ok := tracker.Snapshot(context.Background(), jobID)
	if !ok {
		t.Fatal("snapshot missing after publish")
	}
	if got.Progress != 42 || got.Message != "Validating" {
		t.Errorf("snapshot = %+v", got)
	}

	// Later publishes overwrite.
	event.Progress = 100
	event.State = domain.JobStatusSuccess
	_ = tracker.Publish(context.Background(), event)
	got, _ = tracker.Snapshot(context.Background(), jobID)
	if got.Progress != 100 {
		t.Errorf("snapshot progress = %d, want latest 100", got.Progress)
	}
}

func TestMemoryTrackerSnapshotExpiry(t *testing.T) {
	tracker := NewMemoryTracker(time.Hour)
	current := time.Unix(1_700_000_000, 0)
	tracker.now = func() time.Time { return current }

	jobID := uuid.New()
	_ = tracker.Publish(context.Background(), domain.ProgressEvent{JobID: jobID, Progress: 10})

	current = current.Add(59 * time.Minute)
	if _, ok := tracker.Snapshot(context.Background(), jobID); !ok {
		t.Fatal("snapshot expired before its TTL")
	}

	current = current.Add(2 * time.Minute)
	if _, ok := tracker.Snapshot(context.Background(), jobID); ok {
		t.Fatal("snapshot survived past its TTL")
	}
	// Expired entry is evicted, not just hidden.
	tracker.mu.RLock()
	_, still := tracker.snapshots[jobID]
	tracker.mu.RUnlock()
	if still {
		t.Error("expired snapshot left in map")
	}
}

func TestMemoryTrackerSubscribe(t *testing.T) {
	tracker := NewMemoryTracker(time.Hour)
	jobID := uuid.New()

	events, cancel := tracker.Subscribe(jobID)
	defer cancel()

	tracker.Broadcast(context.Background(), domain.ProgressEvent{JobID: jobID, Progress: 1})
	tracker.Broadcast(context.Background(), domain.ProgressEvent{JobID: jobID, Progress: 2})
	tracker.Broadcast(context.Background(), domain.ProgressEvent{JobID: uuid.New(), Progress: 99})

	first := <-events
	second := <-events
	if first.Progress != 1 || second.Progress != 2 {
		t.Errorf("events out of order: %d then %d", first.Progress, second.Progress)
	}
	select {
	case event := <-events:
		t.Errorf("received event for another job: %+v", event)
	default:
	}
}

func TestMemoryTrackerCancelClosesChannel(t *testing.T) {
	tracker := NewMemoryTracker(time.Hour)
	jobID := uuid.New()

	events, cancel := tracker.Subscribe(jobID)
	cancel()

	if _, open := <-events; open {
		t.Error("channel still open after cancel")
	}

	// Cancel is idempotent and later broadcasts are safe.
	cancel()
	tracker.Broadcast(context.Background(), domain.ProgressEvent{JobID: jobID})
}

func TestMemoryTrackerBroadcastDoesNotBlock(t *testing.T) {
	tracker := NewMemoryTracker(time.Hour)
	jobID := uuid.New()

	_, cancel := tracker.Subscribe(jobID)
	defer cancel()

	// Nobody drains the subscriber; overflow events are dropped rather
	// than stalling the publisher.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer+10; i++ {
			tracker.Broadcast(context.Background(), domain.ProgressEvent{JobID: jobID, Progress: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow subscriber")
	}
}

func TestMemoryTrackerMultipleSubscribers(t *testing.T) {
	tracker := NewMemoryTracker(time.Hour)
	jobID := uuid.New()

	a, cancelA := tracker.Subscribe(jobID)
	defer cancelA()
	b, cancelB := tracker.Subscribe(jobID)
	defer cancelB()

	tracker.Broadcast(context.Background(), domain.ProgressEvent{JobID: jobID, Progress: 7})

	if event := <-a; event.Progress != 7 {
		t.Errorf("subscriber a got %+v", event)
	}
	if event := <-b; event.Progress != 7 {
		t.Errorf("subscriber b got %+v", event)
	}
}
