package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/acme/importflow/internal/domain"
	"github.com/acme/importflow/internal/task"
)

func TestDispatcherTriggerEvent(t *testing.T) {
	var mu sync.Mutex
	var payloads []map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		mu.Lock()
		payloads = append(payloads, payload)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := newStubWebhookRepo(
		domain.Webhook{ID: 1, URL: server.URL, Enabled: true, EventTypes: []string{"upload.completed"}},
		domain.Webhook{ID: 2, URL: server.URL, Enabled: true, EventTypes: []string{"upload.completed", "upload.failed"}},
		domain.Webhook{ID: 3, URL: server.URL, Enabled: true, EventTypes: []string{"upload.failed"}},
		domain.Webhook{ID: 4, URL: server.URL, Enabled: false, EventTypes: []string{"upload.completed"}},
	)

	queue := task.NewQueue(2, 8)
	var delays []time.Duration
	dispatcher := NewDispatcher(newTestEngine(repo, &delays), queue)

	scheduled, err := dispatcher.TriggerEvent(context.Background(),
		"upload.completed", map[string]any{"event": "upload.completed", "upload_id": "abc"})
	if err != nil {
		t.Fatalf("TriggerEvent() error = %v", err)
	}
	if scheduled != 2 {
		t.Errorf("scheduled = %d, want 2 (subscribed and enabled only)", scheduled)
	}

	queue.Shutdown(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(payloads) != 2 {
		t.Fatalf("server received %d deliveries, want 2", len(payloads))
	}
	for _, payload := range payloads {
		if payload["event"] != "upload.completed" {
			t.Errorf("delivered payload = %v", payload)
		}
	}
}

func TestDispatcherTriggerEventNoSubscribers(t *testing.T) {
	queue := task.NewQueue(1, 4)
	defer queue.Shutdown(context.Background())

	var delays []time.Duration
	dispatcher := NewDispatcher(newTestEngine(newStubWebhookRepo(), &delays), queue)

	scheduled, err := dispatcher.TriggerEvent(context.Background(), "upload.completed", nil)
	if err != nil {
		t.Fatalf("TriggerEvent() error = %v", err)
	}
	if scheduled != 0 {
		t.Errorf("scheduled = %d, want 0", scheduled)
	}
}
