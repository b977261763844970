package products

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/acme/importflow/internal/domain"
	"github.com/acme/importflow/internal/repository"
	"github.com/acme/importflow/internal/task"
)

// Handler exposes product CRUD and the bulk delete endpoint.
type Handler struct {
	service *Service
	deleter *BulkDeleter
	jobs    repository.ImportJobRepository
	queue   task.Queue
}

// NewHTTPHandler wires the product endpoints.
func NewHTTPHandler(service *Service, deleter *BulkDeleter, jobs repository.ImportJobRepository, queue task.Queue) *Handler {
	return &Handler{service: service, deleter: deleter, jobs: jobs, queue: queue}
}

type productRequest struct {
	SKU         *string  `json:"sku"`
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
	Active      *bool    `json:"active"`
}

// List returns products matching query filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.ProductFilter{
		SKU:         query.Get("sku"),
		Name:        query.Get("name"),
		Description: query.Get("description"),
	}
	if raw := query.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid active filter")
			return
		}
		filter.Active = &active
	}
	if raw := query.Get("limit"); raw != "" {
		filter.Limit, _ = strconv.Atoi(raw)
	}
	if raw := query.Get("offset"); raw != "" {
		filter.Offset, _ = strconv.Atoi(raw)
	}

	result, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Get returns one product.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	product, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Product not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// Create inserts a product.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "No data provided")
		return
	}
	if req.SKU == nil || req.Name == nil {
		writeError(w, http.StatusBadRequest, "sku and name are required")
		return
	}

	product := domain.Product{
		SKU:    *req.SKU,
		Name:   *req.Name,
		Active: true,
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.Price != nil {
		product.Price = *req.Price
	}
	if req.Active != nil {
		product.Active = *req.Active
	}

	created, err := h.service.Create(r.Context(), product)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Update modifies a product.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "No data provided")
		return
	}

	product, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Product not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if req.SKU != nil {
		product.SKU = *req.SKU
	}
	if req.Name != nil {
		product.Name = *req.Name
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.Price != nil {
		product.Price = *req.Price
	}
	if req.Active != nil {
		product.Active = *req.Active
	}

	updated, err := h.service.Update(r.Context(), product)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete removes one product.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Product not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Product deleted successfully"})
}

// DeleteAll schedules a bulk delete job over every product.
func (h *Handler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Create(r.Context(), domain.NewImportJob("bulk_delete"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.deleter.Enqueue(h.queue, job.ID); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
	})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id")
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
