package products

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/acme/importflow/internal/domain"
	"github.com/acme/importflow/internal/progress"
	"github.com/acme/importflow/internal/repository"
	"github.com/acme/importflow/internal/task"
)

const deleteBatchSize = 1000

// BulkDeleter removes every product as a background job with progress
// events, batched to bound transaction size.
type BulkDeleter struct {
	products repository.ProductRepository
	jobs     repository.ImportJobRepository
	tracker  progress.Tracker
}

// NewBulkDeleter creates the bulk delete runner.
func NewBulkDeleter(products repository.ProductRepository, jobs repository.ImportJobRepository, tracker progress.Tracker) *BulkDeleter {
	return &BulkDeleter{products: products, jobs: jobs, tracker: tracker}
}

// Enqueue schedules the bulk delete for jobID.
func (d *BulkDeleter) Enqueue(queue task.Queue, jobID uuid.UUID) error {
	return queue.Enqueue(task.Task{
		Name:        "bulk-delete:" + jobID.String(),
		MaxAttempts: 1,
		Run: func(ctx context.Context, attempt int) error {
			return d.Run(ctx, jobID)
		},
		OnExhausted: func(ctx context.Context, err error) {
			d.fail(ctx, jobID, err)
		},
	})
}

// Run executes the bulk delete.
func (d *BulkDeleter) Run(ctx context.Context, jobID uuid.UUID) error {
	d.publish(ctx, jobID, domain.JobStatusStarted, 0, "Starting bulk delete", nil)
	d.updateJob(ctx, jobID, domain.JobUpdate{Status: domain.JobStatusStarted})

	total, err := d.products.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count products: %w", err)
	}
	totalInt := int(total)

	d.publish(ctx, jobID, domain.JobStatusProgress, 10,
		fmt.Sprintf("Found %d products to delete", totalInt), map[string]int{"total": totalInt})
	d.updateJob(ctx, jobID, domain.JobUpdate{
		Status:    domain.JobStatusProgress,
		TotalRows: &totalInt,
	})

	deleted := 0
	for {
		removed, err := d.products.DeleteBatch(ctx, deleteBatchSize)
		if err != nil {
			return fmt.Errorf("failed to delete batch: %w", err)
		}
		if removed == 0 {
			break
		}
		deleted += removed

		pct := 100
		if totalInt > 0 {
			pct = int(float64(deleted) / float64(totalInt) * 100)
		}
		d.publish(ctx, jobID, domain.JobStatusProgress, pct,
			fmt.Sprintf("Deleted %d of %d products", deleted, totalInt),
			map[string]int{"deleted": deleted, "total": totalInt})
		d.updateJob(ctx, jobID, domain.JobUpdate{
			Status:        domain.JobStatusProgress,
			ProcessedRows: &deleted,
		})
	}

	d.publish(ctx, jobID, domain.JobStatusSuccess, 100, "Bulk delete complete",
		map[string]int{"deleted": deleted})
	d.updateJob(ctx, jobID, domain.JobUpdate{
		Status:        domain.JobStatusSuccess,
		ProcessedRows: &deleted,
		SuccessCount:  &deleted,
	})

	log.Printf("[PRODUCTS] bulk delete job %s removed %d products", jobID, deleted)
	return nil
}

func (d *BulkDeleter) fail(ctx context.Context, jobID uuid.UUID, cause error) {
	message := cause.Error()
	d.publish(ctx, jobID, domain.JobStatusFailure, 0, "Failed: "+message, nil)
	d.updateJob(ctx, jobID, domain.JobUpdate{
		Status:       domain.JobStatusFailure,
		ErrorMessage: &message,
	})
}

func (d *BulkDeleter) publish(ctx context.Context, jobID uuid.UUID, state domain.JobStatus, pct int, message string, extra map[string]int) {
	// A job's percentage never regresses for a watcher: events carrying
	// a lower value than the last snapshot are raised to it.
	if snapshot, ok := d.tracker.Snapshot(ctx, jobID); ok && snapshot.Progress > pct {
		pct = snapshot.Progress
	}
	event := domain.ProgressEvent{
		JobID:    jobID,
		State:    state,
		Progress: pct,
		Message:  message,
		Extra:    extra,
	}
	if err := d.tracker.Publish(ctx, event); err != nil {
		log.Printf("[PRODUCTS] failed to publish progress for job %s: %v", jobID, err)
	}
}

func (d *BulkDeleter) updateJob(ctx context.Context, jobID uuid.UUID, update domain.JobUpdate) {
	if err := d.jobs.UpdateStatus(ctx, jobID, update); err != nil {
		log.Printf("[PRODUCTS] failed to update job %s: %v", jobID, err)
	}
}
