package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/acme/importflow/internal/domain"
	"github.com/acme/importflow/internal/repository"
	"github.com/acme/importflow/internal/task"
)

// Handler exposes webhook registration CRUD and the test-fire endpoint.
type Handler struct {
	webhooks repository.WebhookRepository
	engine   *Engine
	queue    task.Queue
}

// NewHTTPHandler wires the webhook endpoints.
func NewHTTPHandler(webhooks repository.WebhookRepository, engine *Engine, queue task.Queue) *Handler {
	return &Handler{webhooks: webhooks, engine: engine, queue: queue}
}

type webhookRequest struct {
	Name       *string   `json:"name"`
	URL        *string   `json:"url"`
	EventTypes *[]string `json:"event_types"`
	Enabled    *bool     `json:"enabled"`
}

// List returns all registrations.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	webhooks, err := h.webhooks.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if webhooks == nil {
		webhooks = []domain.Webhook{}
	}
	writeJSON(w, http.StatusOK, webhooks)
}

// Get returns one registration.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	webhook, err := h.webhooks.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Webhook not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, webhook)
}

// Create registers a webhook.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "No data provided")
		return
	}
	if req.Name == nil || req.URL == nil || req.EventTypes == nil {
		writeError(w, http.StatusBadRequest, "Missing required field: name, url and event_types are required")
		return
	}

	webhook := domain.Webhook{
		Name:       *req.Name,
		URL:        *req.URL,
		EventTypes: *req.EventTypes,
		Enabled:    true,
	}
	if req.Enabled != nil {
		webhook.Enabled = *req.Enabled
	}

	created, err := h.webhooks.Create(r.Context(), webhook)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Update modifies a registration.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "No data provided")
		return
	}

	webhook, err := h.webhooks.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Webhook not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if req.Name != nil {
		webhook.Name = *req.Name
	}
	if req.URL != nil {
		webhook.URL = *req.URL
	}
	if req.EventTypes != nil {
		webhook.EventTypes = *req.EventTypes
	}
	if req.Enabled != nil {
		webhook.Enabled = *req.Enabled
	}

	updated, err := h.webhooks.Update(r.Context(), webhook)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete removes a registration.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.webhooks.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Webhook not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Webhook deleted successfully"})
}

// Test schedules an ad-hoc connectivity check against the registration.
func (h *Handler) Test(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	webhook, err := h.webhooks.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Webhook not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	payload := map[string]any{
		"event":        "test",
		"webhook_id":   webhook.ID,
		"webhook_name": webhook.Name,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"data": map[string]any{
			"message": "This is a test webhook delivery",
		},
	}

	err = h.queue.Enqueue(task.Task{
		Name:        "webhook-test:" + strconv.FormatInt(id, 10),
		MaxAttempts: 1,
		Run: func(ctx context.Context, attempt int) error {
			_, err := h.engine.Test(ctx, id, payload)
			return err
		},
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"message":    "Webhook test initiated",
		"webhook_id": id,
	})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
