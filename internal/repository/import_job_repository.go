package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/acme/importflow/internal/domain"
)

type importJobRepository struct {
	pool *pgxpool.Pool
}

// NewImportJobRepository wires a repository backed by pgxpool.
func NewImportJobRepository(pool *pgxpool.Pool) ImportJobRepository {
	return &importJobRepository{pool: pool}
}

const jobColumns = "id, filename, status, total_rows, processed_rows, success_count, error_count, error_message, created_at, completed_at"

// Create persists a new pending import job.
func (r *importJobRepository) Create(ctx context.Context, job domain.ImportJob) (domain.ImportJob, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO import_jobs (id, filename, status, total_rows, processed_rows, success_count, error_count, created_at)
		 VALUES ($1, $2, $3, 0, 0, 0, 0, now())
		 RETURNING `+jobColumns,
		job.ID, job.Filename, job.Status,
	)
	created, err := scanJob(row)
	if err != nil {
		return domain.ImportJob{}, fmt.Errorf("failed to create import job: %w", err)
	}
	return created, nil
}

// GetByID retrieves an import job.
func (r *importJobRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ImportJob, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+jobColumns+" FROM import_jobs WHERE id = $1", id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ImportJob{}, ErrNotFound
		}
		return domain.ImportJob{}, err
	}
	return job, nil
}

// UpdateStatus applies a partial job update. completed_at is stamped
// exactly when the job enters a terminal status.
func (r *importJobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, update domain.JobUpdate) error {
	sets := []string{"status = $2"}
	args := []any{id, update.Status}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.TotalRows != nil {
		add("total_rows", *update.TotalRows)
	}
	if update.ProcessedRows != nil {
		add("processed_rows", *update.ProcessedRows)
	}
	if update.SuccessCount != nil {
		add("success_count", *update.SuccessCount)
	}
	if update.ErrorCount != nil {
		add("error_count", *update.ErrorCount)
	}
	if update.ErrorMessage != nil {
		add("error_message", *update.ErrorMessage)
	}
	if update.Status.Terminal() {
		sets = append(sets, "completed_at = now()")
	}

	query := "UPDATE import_jobs SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update import job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRecent returns the latest jobs, newest first.
func (r *importJobRepository) ListRecent(ctx context.Context, limit int) ([]domain.ImportJob, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.pool.Query(ctx,
		"SELECT "+jobColumns+" FROM import_jobs ORDER BY created_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list import jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.ImportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read import jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (domain.ImportJob, error) {
	var (
		j            domain.ImportJob
		errorMessage *string
	)
	err := row.Scan(&j.ID, &j.Filename, &j.Status, &j.TotalRows, &j.ProcessedRows,
		&j.SuccessCount, &j.ErrorCount, &errorMessage, &j.CreatedAt, &j.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ImportJob{}, err
		}
		return domain.ImportJob{}, fmt.Errorf("failed to scan import job: %w", err)
	}
	if errorMessage != nil {
		j.ErrorMessage = *errorMessage
	}
	return j, nil
}
