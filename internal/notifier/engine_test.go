package notifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/acme/importflow/internal/domain"
	"github.com/acme/importflow/internal/repository"
)

type stubWebhookRepo struct {
	webhooks map[int64]domain.Webhook
	records  []domain.DeliveryRecord
}

var _ repository.WebhookRepository = (*stubWebhookRepo)(nil)

func newStubWebhookRepo(webhooks ...domain.Webhook) *stubWebhookRepo {
	repo := &stubWebhookRepo{webhooks: make(map[int64]domain.Webhook)}
	for _, w := range webhooks {
		repo.webhooks[w.ID] = w
	}
	return repo
}

func (s *stubWebhookRepo) Create(ctx context.Context, webhook domain.Webhook) (domain.Webhook, error) {
	s.webhooks[webhook.ID] = webhook
	return webhook, nil
}

func (s *stubWebhookRepo) GetByID(ctx context.Context, id int64) (domain.Webhook, error) {
	webhook, ok := s.webhooks[id]
	if !ok {
		return domain.Webhook{}, repository.ErrNotFound
	}
	return webhook, nil
}

func (s *stubWebhookRepo) List(ctx context.Context) ([]domain.Webhook, error) {
	var out []domain.Webhook
	for _, w := range s.webhooks {
		out = append(out, w)
	}
	return out, nil
}

func (s *stubWebhookRepo) ListByEvent(ctx context.Context, eventType string) ([]domain.Webhook, error) {
	var out []domain.Webhook
	for _, w := range s.webhooks {
		if w.Enabled && w.SubscribedTo(eventType) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *stubWebhookRepo) Update(ctx context.Context, webhook domain.Webhook) (domain.Webhook, error) {
	s.webhooks[webhook.ID] = webhook
	return webhook, nil
}

func (s *stubWebhookRepo) Delete(ctx context.Context, id int64) error {
	delete(s.webhooks, id)
	return nil
}

func (s *stubWebhookRepo) RecordDeliveryResult(ctx context.Context, id int64, record domain.DeliveryRecord) error {
	s.records = append(s.records, record)
	return nil
}

// newTestEngine builds an engine whose retry pacing is recorded instead
// of slept.
func newTestEngine(repo repository.WebhookRepository, delays *[]time.Duration) *Engine {
	engine := NewEngine(repo, 5*time.Second, 2*time.Second, 3, time.Minute)
	engine.sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return engine
}

func TestEngineNextDelay(t *testing.T) {
	engine := NewEngine(newStubWebhookRepo(), 0, 0, 0, time.Minute)
	want := []time.Duration{time.Minute, 2 * time.Minute, 4 * time.Minute}
	for attempt, expected := range want {
		if got := engine.NextDelay(attempt); got != expected {
			t.Errorf("NextDelay(%d) = %s, want %s", attempt, got, expected)
		}
	}
}

func TestEngineDeliverSuccess(t *testing.T) {
	var gotContentType, gotUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotUserAgent = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	repo := newStubWebhookRepo(domain.Webhook{ID: 1, URL: server.URL, Enabled: true})
	var delays []time.Duration
	engine := newTestEngine(repo, &delays)

	result, err := engine.Deliver(context.Background(), 1, map[string]any{"event": "upload.completed"})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if result.Status != domain.DeliveryStatusSuccess {
		t.Errorf("status = %s, want SUCCESS", result.Status)
	}
	if result.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", result.Attempts)
	}
	if result.ResponseCode == nil || *result.ResponseCode != http.StatusOK {
		t.Errorf("response code = %v", result.ResponseCode)
	}
	if len(delays) != 0 {
		t.Errorf("slept %v on a successful delivery", delays)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotUserAgent != userAgent {
		t.Errorf("User-Agent = %q, want %q", gotUserAgent, userAgent)
	}
	if len(repo.records) != 1 || repo.records[0].Status != domain.DeliveryStatusSuccess {
		t.Errorf("recorded outcomes = %+v", repo.records)
	}
}

func TestEngineDeliverRetriesServerErrors(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	repo := newStubWebhookRepo(domain.Webhook{ID: 1, URL: server.URL, Enabled: true})
	var delays []time.Duration
	engine := newTestEngine(repo, &delays)

	result, err := engine.Deliver(context.Background(), 1, map[string]any{"event": "upload.completed"})
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if result.Status != domain.DeliveryStatusFailed {
		t.Errorf("status = %s, want FAILED", result.Status)
	}
	if result.Attempts != 3 {
		t.Errorf("attempts = %d, want full budget of 3", result.Attempts)
	}
	if got := requests.Load(); got != 3 {
		t.Errorf("server saw %d requests, want 3", got)
	}

	wantDelays := []time.Duration{time.Minute, 2 * time.Minute}
	if len(delays) != len(wantDelays) {
		t.Fatalf("slept %v, want %v", delays, wantDelays)
	}
	for i, d := range wantDelays {
		if delays[i] != d {
			t.Errorf("delay[%d] = %s, want %s", i, delays[i], d)
		}
	}
	// Every attempt is recorded, not only the terminal one.
	if len(repo.records) != 3 {
		t.Errorf("recorded %d outcomes, want 3", len(repo.records))
	}
}

func TestEngineDeliverClientErrorIsTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	repo := newStubWebhookRepo(domain.Webhook{ID: 1, URL: server.URL, Enabled: true})
	var delays []time.Duration
	engine := newTestEngine(repo, &delays)

	result, err := engine.Deliver(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if result.Status != domain.DeliveryStatusFailed {
		t.Errorf("status = %s, want FAILED", result.Status)
	}
	if result.Attempts != 1 {
		t.Errorf("attempts = %d, want 1; 4xx must not retry", result.Attempts)
	}
	if len(delays) != 0 {
		t.Errorf("slept %v after a terminal response", delays)
	}
}

func TestEngineDeliverDisabled(t *testing.T) {
	repo := newStubWebhookRepo(domain.Webhook{ID: 1, URL: "http://127.0.0.1:1", Enabled: false})
	var delays []time.Duration
	engine := newTestEngine(repo, &delays)

	result, err := engine.Deliver(context.Background(), 1, nil)
	if !errors.Is(err, ErrWebhookDisabled) {
		t.Fatalf("Deliver() error = %v, want ErrWebhookDisabled", err)
	}
	if result.Status != domain.DeliveryStatusError {
		t.Errorf("status = %s, want ERROR", result.Status)
	}
	if result.Attempts != 0 {
		t.Errorf("attempts = %d, want 0; no request goes out", result.Attempts)
	}
	if len(repo.records) != 0 {
		t.Errorf("recorded %d outcomes for a disabled webhook", len(repo.records))
	}
}

func TestEngineDeliverUnknownWebhook(t *testing.T) {
	var delays []time.Duration
	engine := newTestEngine(newStubWebhookRepo(), &delays)

	if _, err := engine.Deliver(context.Background(), 42, nil); err == nil {
		t.Fatal("Deliver() = nil error for unknown webhook")
	}
}

func TestEngineDeliverConnectionRefused(t *testing.T) {
	// Closed port: every attempt errors, classified ERROR and retried.
	repo := newStubWebhookRepo(domain.Webhook{ID: 1, URL: "http://127.0.0.1:1", Enabled: true})
	var delays []time.Duration
	engine := newTestEngine(repo, &delays)

	result, err := engine.Deliver(context.Background(), 1, nil)
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if result.Status != domain.DeliveryStatusError {
		t.Errorf("status = %s, want ERROR", result.Status)
	}
	if result.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", result.Attempts)
	}
}

func TestEngineTestSingleAttempt(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	repo := newStubWebhookRepo(domain.Webhook{ID: 1, URL: server.URL, Enabled: true})
	var delays []time.Duration
	engine := newTestEngine(repo, &delays)

	result, err := engine.Test(context.Background(), 1, map[string]any{"event": "test"})
	if err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	if result.Attempts != 1 || requests.Load() != 1 {
		t.Errorf("test delivery retried: attempts=%d requests=%d", result.Attempts, requests.Load())
	}
	if len(delays) != 0 {
		t.Errorf("test delivery slept %v", delays)
	}
}

func TestIsTimeout(t *testing.T) {
	if isTimeout(errors.New("plain")) {
		t.Error("plain error classified as timeout")
	}
	if !isTimeout(timeoutError{}) {
		t.Error("timeout error not recognized")
	}
}

type timeoutError struct{}

func (timeoutError) Error() string { return "deadline exceeded" }
func (timeoutError) Timeout() bool { return true }
