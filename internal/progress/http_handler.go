package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/acme/importflow/internal/domain"
	"github.com/acme/importflow/internal/repository"
)

// StreamHandler relays a job's live progress events to a long-lived SSE
// connection until a terminal state, the wall-clock timeout, or caller
// disconnection.
type StreamHandler struct {
	tracker      Tracker
	jobs         repository.ImportJobRepository
	timeout      time.Duration
	pollInterval time.Duration
}

// NewStreamHandler wires the live event stream endpoints.
func NewStreamHandler(tracker Tracker, jobs repository.ImportJobRepository, timeout, pollInterval time.Duration) *StreamHandler {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	return &StreamHandler{
		tracker:      tracker,
		jobs:         jobs,
		timeout:      timeout,
		pollInterval: pollInterval,
	}
}

// Events streams progress frames for one job.
func (h *StreamHandler) Events(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Subscribe before reading the snapshot so no event published in
	// between is missed.
	events, cancel := h.tracker.Subscribe(jobID)
	defer cancel()

	if snapshot, ok := h.tracker.Snapshot(r.Context(), jobID); ok {
		writeSSE(w, snapshot)
		flusher.Flush()
		if snapshot.State.Terminal() {
			return
		}
	}

	deadline := time.NewTimer(h.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			writeSSE(w, event)
			flusher.Flush()
			if event.State.Terminal() {
				return
			}
		case <-ticker.C:
			// Liveness fallback: catch a terminal snapshot whose
			// broadcast this subscriber missed.
			if snapshot, ok := h.tracker.Snapshot(r.Context(), jobID); ok && snapshot.State.Terminal() {
				writeSSE(w, snapshot)
				flusher.Flush()
				return
			}
		case <-deadline.C:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// Job returns the durable job record merged with the live snapshot.
func (h *StreamHandler) Job(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid job id", http.StatusBadRequest)
		return
	}

	job, err := h.jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSONStatus(w, http.StatusNotFound, map[string]string{"error": "Job not found"})
			return
		}
		writeJSONStatus(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	response := map[string]any{
		"id":             job.ID,
		"filename":       job.Filename,
		"status":         job.Status,
		"total_rows":     job.TotalRows,
		"processed_rows": job.ProcessedRows,
		"success_count":  job.SuccessCount,
		"error_count":    job.ErrorCount,
		"error_message":  job.ErrorMessage,
		"progress":       job.Progress(),
		"created_at":     job.CreatedAt,
		"completed_at":   job.CompletedAt,
	}
	if snapshot, ok := h.tracker.Snapshot(r.Context(), jobID); ok {
		response["live_progress"] = snapshot
	}
	writeJSONStatus(w, http.StatusOK, response)
}

// writeSSE encodes one event as a text frame of the SSE wire format.
func writeSSE(w http.ResponseWriter, event domain.ProgressEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func writeJSONStatus(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
