package importer

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/acme/importflow/internal/domain"
	"github.com/acme/importflow/internal/progress"
	"github.com/acme/importflow/internal/repository"
	"github.com/acme/importflow/internal/task"
)

// Event types dispatched to webhook subscribers.
const (
	EventUploadCompleted = "upload.completed"
	EventUploadFailed    = "upload.failed"
)

// maxReportedErrors caps how many row failures are echoed to the
// progress channel per job.
const maxReportedErrors = 10

// Notifier fans an event out to registered webhooks.
type Notifier interface {
	TriggerEvent(ctx context.Context, eventType string, payload map[string]any) (int, error)
}

// Service runs the streaming ingestion pipeline for one job at a time.
type Service struct {
	jobs        repository.ImportJobRepository
	products    repository.ProductRepository
	tracker     progress.Tracker
	notifier    Notifier
	batchSize   int
	maxAttempts int
	retryDelay  time.Duration
}

// NewService creates the ingestion pipeline.
func NewService(
	jobs repository.ImportJobRepository,
	products repository.ProductRepository,
	tracker progress.Tracker,
	notifier Notifier,
	batchSize int,
	maxAttempts int,
	retryDelay time.Duration,
) *Service {
	if batchSize <= 0 {
		batchSize = 1000
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Service{
		jobs:        jobs,
		products:    products,
		tracker:     tracker,
		notifier:    notifier,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
	}
}

// Enqueue schedules the import of path for jobID on the queue. Failed
// attempts are retried after a fixed delay; once the budget is spent the
// job is finalized as FAILURE.
func (s *Service) Enqueue(queue task.Queue, jobID uuid.UUID, path string) error {
	return queue.Enqueue(task.Task{
		Name:        "import:" + jobID.String(),
		MaxAttempts: s.maxAttempts,
		NextDelay: func(int) time.Duration {
			return s.retryDelay
		},
		Run: func(ctx context.Context, attempt int) error {
			return s.Run(ctx, jobID, path)
		},
		OnExhausted: func(ctx context.Context, err error) {
			s.Fail(ctx, jobID, path, err)
		},
	})
}

type fileResult struct {
	processed int
	success   int
	errors    int
}

// Run executes one ingestion attempt. A returned error fails the attempt
// and leaves retry/finalization to the scheduler; partial batches already
// committed are not rolled back, re-processing relies on upsert semantics.
func (s *Service) Run(ctx context.Context, jobID uuid.UUID, path string) error {
	s.publish(ctx, jobID, domain.JobStatusStarted, 0, "Starting import", nil)
	s.updateJob(ctx, jobID, domain.JobUpdate{Status: domain.JobStatusStarted})

	totalRows, err := countRows(path)
	if err != nil {
		return fmt.Errorf("failed to count rows: %w", err)
	}

	s.publish(ctx, jobID, domain.JobStatusProgress, 0,
		fmt.Sprintf("Found %d rows", totalRows), map[string]int{"total_rows": totalRows})
	s.updateJob(ctx, jobID, domain.JobUpdate{
		Status:    domain.JobStatusProgress,
		TotalRows: &totalRows,
	})

	s.publish(ctx, jobID, domain.JobStatusProgress, 5, "Parsing file", nil)

	result, err := s.processFile(ctx, jobID, path, totalRows)
	if err != nil {
		return err
	}

	s.publish(ctx, jobID, domain.JobStatusSuccess, 100, "Import complete", map[string]int{
		"processed": result.processed,
		"success":   result.success,
		"errors":    result.errors,
	})
	s.updateJob(ctx, jobID, domain.JobUpdate{
		Status:        domain.JobStatusSuccess,
		ProcessedRows: &result.processed,
		SuccessCount:  &result.success,
		ErrorCount:    &result.errors,
	})

	s.notifyCompleted(ctx, jobID, result)
	s.removeArtifact(path)

	log.Printf("[IMPORT] job %s complete: processed=%d success=%d errors=%d",
		jobID, result.processed, result.success, result.errors)
	return nil
}

// Fail finalizes a job after the retry budget is exhausted.
func (s *Service) Fail(ctx context.Context, jobID uuid.UUID, path string, cause error) {
	message := cause.Error()
	s.publish(ctx, jobID, domain.JobStatusFailure, 0, "Failed: "+message, nil)
	s.updateJob(ctx, jobID, domain.JobUpdate{
		Status:       domain.JobStatusFailure,
		ErrorMessage: &message,
	})

	s.notifyFailed(ctx, jobID, message)
	s.removeArtifact(path)

	log.Printf("[IMPORT] job %s failed: %s", jobID, message)
}

func (s *Service) processFile(ctx context.Context, jobID uuid.UUID, path string, totalRows int) (fileResult, error) {
	var result fileResult

	source, err := openRows(path)
	if err != nil {
		return result, err
	}
	defer source.Close()

	batch := make([]domain.NormalizedRow, 0, s.batchSize)
	rowNumber := 0

	for {
		record, ok, err := source.Next()
		if err != nil {
			return result, err
		}
		if !ok {
			break
		}
		rowNumber++
		result.processed++

		outcome := CheckRow(record, rowNumber)
		if !outcome.Valid {
			result.errors++
			if result.errors <= maxReportedErrors {
				s.publish(ctx, jobID, domain.JobStatusProgress,
					percent(result.processed, totalRows),
					"Validation error: "+outcome.Reason, nil)
			}
			continue
		}

		batch = append(batch, outcome.Row)
		if len(batch) >= s.batchSize {
			if err := s.flushBatch(ctx, jobID, &batch, &result, totalRows, true); err != nil {
				return result, err
			}
		}
	}

	if len(batch) > 0 {
		if err := s.flushBatch(ctx, jobID, &batch, &result, totalRows, false); err != nil {
			return result, err
		}
	}

	return result, nil
}

// flushBatch upserts the accumulated batch; the write is atomic and its
// failure fails the whole attempt.
func (s *Service) flushBatch(ctx context.Context, jobID uuid.UUID, batch *[]domain.NormalizedRow, result *fileResult, totalRows int, report bool) error {
	upsert, err := s.products.BatchUpsert(ctx, *batch)
	if err != nil {
		return fmt.Errorf("batch upsert failed: %w", err)
	}
	result.success += upsert.Inserted + upsert.Updated
	*batch = (*batch)[:0]

	if report {
		pct := percent(result.processed, totalRows)
		message := "Validating"
		if pct >= 50 {
			message = "Importing products"
		}
		s.publish(ctx, jobID, domain.JobStatusProgress, pct, message, map[string]int{
			"processed": result.processed,
			"total":     totalRows,
		})
		s.updateJob(ctx, jobID, domain.JobUpdate{
			Status:        domain.JobStatusProgress,
			ProcessedRows: &result.processed,
		})
	}
	return nil
}

func (s *Service) notifyCompleted(ctx context.Context, jobID uuid.UUID, result fileResult) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		log.Printf("[IMPORT] failed to load job %s for notification: %v", jobID, err)
		return
	}
	payload := map[string]any{
		"event":          EventUploadCompleted,
		"upload_id":      jobID.String(),
		"filename":       job.Filename,
		"status":         "completed",
		"imported_count": result.success,
		"total_rows":     result.processed,
		"error_count":    result.errors,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := s.notifier.TriggerEvent(ctx, EventUploadCompleted, payload); err != nil {
		log.Printf("[IMPORT] failed to trigger webhooks for job %s: %v", jobID, err)
	}
}

func (s *Service) notifyFailed(ctx context.Context, jobID uuid.UUID, message string) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		log.Printf("[IMPORT] failed to load job %s for notification: %v", jobID, err)
		return
	}
	payload := map[string]any{
		"event":         EventUploadFailed,
		"upload_id":     jobID.String(),
		"filename":      job.Filename,
		"status":        "failed",
		"error_message": message,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := s.notifier.TriggerEvent(ctx, EventUploadFailed, payload); err != nil {
		log.Printf("[IMPORT] failed to trigger webhooks for job %s: %v", jobID, err)
	}
}

func (s *Service) publish(ctx context.Context, jobID uuid.UUID, state domain.JobStatus, pct int, message string, extra map[string]int) {
	// A job's percentage never regresses for a watcher: events carrying
	// a lower value than the last snapshot are raised to it.
	if snapshot, ok := s.tracker.Snapshot(ctx, jobID); ok && snapshot.Progress > pct {
		pct = snapshot.Progress
	}
	event := domain.ProgressEvent{
		JobID:    jobID,
		State:    state,
		Progress: pct,
		Message:  message,
		Extra:    extra,
	}
	if err := s.tracker.Publish(ctx, event); err != nil {
		log.Printf("[IMPORT] failed to publish progress for job %s: %v", jobID, err)
	}
}

func (s *Service) updateJob(ctx context.Context, jobID uuid.UUID, update domain.JobUpdate) {
	if err := s.jobs.UpdateStatus(ctx, jobID, update); err != nil {
		log.Printf("[IMPORT] failed to update job %s: %v", jobID, err)
	}
}

func (s *Service) removeArtifact(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("[IMPORT] failed to remove %s: %v", path, err)
	}
}

func percent(processed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(float64(processed) / float64(total) * 100)
}
