package progress

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/acme/importflow/internal/domain"
	"github.com/acme/importflow/internal/repository"
)

type stubJobs struct {
	jobs map[uuid.UUID]domain.ImportJob
}

var _ repository.ImportJobRepository = (*stubJobs)(nil)

func (s *stubJobs) Create(ctx context.Context, job domain.ImportJob) (domain.ImportJob, error) {
	s.jobs[job.ID] = job
	return job, nil
}

func (s *stubJobs) GetByID(ctx context.Context, id uuid.UUID) (domain.ImportJob, error) {
	job, ok := s.jobs[id]
	if !ok {
		return domain.ImportJob{}, repository.ErrNotFound
	}
	return job, nil
}

func (s *stubJobs) UpdateStatus(ctx context.Context, id uuid.UUID, update domain.JobUpdate) error {
	return nil
}

func (s *stubJobs) ListRecent(ctx context.Context, limit int) ([]domain.ImportJob, error) {
	return nil, nil
}

func eventsRequest(jobID string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID+"/events", nil)
	r.SetPathValue("id", jobID)
	return r
}

func sseFrames(body string) []string {
	var frames []string
	for _, chunk := range strings.Split(body, "\n\n") {
		if strings.HasPrefix(chunk, "data: ") {
			frames = append(frames, strings.TrimPrefix(chunk, "data: "))
		}
	}
	return frames
}

func TestEventsInvalidJobID(t *testing.T) {
	handler := NewStreamHandler(NewMemoryTracker(time.Hour), &stubJobs{}, time.Second, 10*time.Millisecond)

	w := httptest.NewRecorder()
	handler.Events(w, eventsRequest("not-a-uuid"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestEventsTerminalSnapshotEndsImmediately(t *testing.T) {
	tracker := NewMemoryTracker(time.Hour)
	jobID := uuid.New()
	_ = tracker.Publish(context.Background(), domain.ProgressEvent{
		JobID: jobID, State: domain.JobStatusSuccess, Progress: 100, Message: "Import complete",
	})

	handler := NewStreamHandler(tracker, &stubJobs{}, time.Hour, 10*time.Millisecond)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		handler.Events(w, eventsRequest(jobID.String()))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close on terminal snapshot")
	}

	frames := sseFrames(w.Body.String())
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1: %q", len(frames), w.Body.String())
	}
	var event domain.ProgressEvent
	if err := json.Unmarshal([]byte(frames[0]), &event); err != nil {
		t.Fatalf("frame is not JSON: %v", err)
	}
	if event.Progress != 100 || event.Message != "Import complete" {
		t.Errorf("frame = %+v", event)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestEventsStreamsUntilTerminal(t *testing.T) {
	tracker := NewMemoryTracker(time.Hour)
	jobID := uuid.New()

	handler := NewStreamHandler(tracker, &stubJobs{}, time.Hour, 10*time.Millisecond)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		handler.Events(w, eventsRequest(jobID.String()))
		close(done)
	}()

	// Let the handler subscribe before publishing.
	time.Sleep(50 * time.Millisecond)
	_ = tracker.Publish(context.Background(), domain.ProgressEvent{JobID: jobID, State: domain.JobStatusProgress, Progress: 50, Message: "Importing products"})
	_ = tracker.Publish(context.Background(), domain.ProgressEvent{JobID: jobID, State: domain.JobStatusSuccess, Progress: 100, Message: "Import complete"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close after terminal event")
	}

	frames := sseFrames(w.Body.String())
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2: %q", len(frames), w.Body.String())
	}
}

func TestEventsTimesOutQuietStream(t *testing.T) {
	handler := NewStreamHandler(NewMemoryTracker(time.Hour), &stubJobs{}, 100*time.Millisecond, 10*time.Millisecond)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		handler.Events(w, eventsRequest(uuid.New().String()))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not honor its timeout")
	}

	if frames := sseFrames(w.Body.String()); len(frames) != 0 {
		t.Errorf("got %d frames from a quiet stream", len(frames))
	}
}

func TestJobEndpoint(t *testing.T) {
	tracker := NewMemoryTracker(time.Hour)
	jobs := &stubJobs{jobs: make(map[uuid.UUID]domain.ImportJob)}
	handler := NewStreamHandler(tracker, jobs, time.Second, 10*time.Millisecond)

	job := domain.NewImportJob("upload.csv")
	job.Status = domain.JobStatusProgress
	job.TotalRows = 100
	job.ProcessedRows = 40
	jobs.jobs[job.ID] = job

	_ = tracker.Publish(context.Background(), domain.ProgressEvent{JobID: job.ID, State: domain.JobStatusProgress, Progress: 40, Message: "Validating"})

	r := httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID.String(), nil)
	r.SetPathValue("id", job.ID.String())
	w := httptest.NewRecorder()
	handler.Job(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if response["progress"] != float64(40) {
		t.Errorf("progress = %v, want 40", response["progress"])
	}
	if _, ok := response["live_progress"]; !ok {
		t.Error("live snapshot missing from job response")
	}
}

func TestJobEndpointNotFound(t *testing.T) {
	handler := NewStreamHandler(NewMemoryTracker(time.Hour), &stubJobs{jobs: map[uuid.UUID]domain.ImportJob{}}, time.Second, 10*time.Millisecond)

	id := uuid.New().String()
	r := httptest.NewRequest(http.MethodGet, "/api/jobs/"+id, nil)
	r.SetPathValue("id", id)
	w := httptest.NewRecorder()
	handler.Job(w, r)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
