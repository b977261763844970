package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an import job.
type JobStatus string

const (
	JobStatusPending  JobStatus = "PENDING"
	JobStatusStarted  JobStatus = "STARTED"
	JobStatusProgress JobStatus = "PROGRESS"
	JobStatusSuccess  JobStatus = "SUCCESS"
	JobStatusFailure  JobStatus = "FAILURE"
)

// Terminal reports whether the status ends the job lifecycle.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailure
}

// ImportJob tracks one bulk ingestion execution.
type ImportJob struct {
	ID            uuid.UUID  `json:"id"`
	Filename      string     `json:"filename"`
	Status        JobStatus  `json:"status"`
	TotalRows     int        `json:"total_rows"`
	ProcessedRows int        `json:"processed_rows"`
	SuccessCount  int        `json:"success_count"`
	ErrorCount    int        `json:"error_count"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// NewImportJob creates a pending job for the given source filename.
func NewImportJob(filename string) ImportJob {
	return ImportJob{
		ID:       uuid.New(),
		Filename: filename,
		Status:   JobStatusPending,
	}
}

// Progress returns the completion percentage based on processed rows.
func (j ImportJob) Progress() int {
	if j.TotalRows == 0 {
		return 0
	}
	return int(float64(j.ProcessedRows) / float64(j.TotalRows) * 100)
}

// JobUpdate carries the fields an ingestion run may change on a job.
// Nil pointers leave the stored value untouched.
type JobUpdate struct {
	Status        JobStatus
	TotalRows     *int
	ProcessedRows *int
	SuccessCount  *int
	ErrorCount    *int
	ErrorMessage  *string
}
