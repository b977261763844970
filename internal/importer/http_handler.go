package importer

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/acme/importflow/internal/domain"
	"github.com/acme/importflow/internal/repository"
	"github.com/acme/importflow/internal/task"
)

var allowedExtensions = map[string]bool{".csv": true, ".xlsx": true}

// Handler exposes upload acceptance and recent-upload listing.
type Handler struct {
	service   *Service
	jobs      repository.ImportJobRepository
	queue     task.Queue
	uploadDir string
}

// NewHTTPHandler wires the upload endpoints.
func NewHTTPHandler(service *Service, jobs repository.ImportJobRepository, queue task.Queue, uploadDir string) *Handler {
	return &Handler{
		service:   service,
		jobs:      jobs,
		queue:     queue,
		uploadDir: uploadDir,
	}
}

// Upload accepts a multipart file, creates a job and schedules the import.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid form data: %v", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	if strings.TrimSpace(header.Filename) == "" {
		writeError(w, http.StatusBadRequest, "No file selected")
		return
	}
	if !allowedExtensions[strings.ToLower(filepath.Ext(header.Filename))] {
		writeError(w, http.StatusBadRequest, "Invalid file type. Only CSV and XLSX files are allowed")
		return
	}

	job, err := h.jobs.Create(r.Context(), domain.NewImportJob(header.Filename))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	path, err := h.saveUpload(file, header.Filename)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.service.Enqueue(h.queue, job.ID, path); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   job.ID,
		"filename": job.Filename,
		"status":   job.Status,
	})
}

// Recent lists the latest import jobs with their progress.
func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.ListRecent(r.Context(), 10)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]map[string]any, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, map[string]any{
			"id":             job.ID,
			"filename":       job.Filename,
			"status":         job.Status,
			"total_rows":     job.TotalRows,
			"processed_rows": job.ProcessedRows,
			"success_count":  job.SuccessCount,
			"error_count":    job.ErrorCount,
			"progress":       job.Progress(),
			"created_at":     job.CreatedAt,
			"completed_at":   job.CompletedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// saveUpload stores the artifact under a timestamped unique name.
func (h *Handler) saveUpload(file io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	unique := fmt.Sprintf("%s_%s_%s",
		time.Now().UTC().Format("20060102_150405"),
		uuid.New().String()[:8],
		filepath.Base(filename),
	)
	path := filepath.Join(h.uploadDir, unique)

	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	return path, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
