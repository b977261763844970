package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/acme/importflow/internal/domain"
)

type webhookRepository struct {
	pool *pgxpool.Pool
}

// NewWebhookRepository wires a repository backed by pgxpool.
func NewWebhookRepository(pool *pgxpool.Pool) WebhookRepository {
	return &webhookRepository{pool: pool}
}

const webhookColumns = "id, name, url, event_types, enabled, last_delivery_status, last_delivery_code, last_delivery_seconds, created_at, updated_at"

// Create registers a new webhook.
func (r *webhookRepository) Create(ctx context.Context, webhook domain.Webhook) (domain.Webhook, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO webhooks (name, url, event_types, enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, now(), now())
		 RETURNING `+webhookColumns,
		webhook.Name, webhook.URL, webhook.EventTypes, webhook.Enabled,
	)
	created, err := scanWebhook(row)
	if err != nil {
		return domain.Webhook{}, fmt.Errorf("failed to create webhook: %w", err)
	}
	return created, nil
}

// GetByID retrieves a webhook.
func (r *webhookRepository) GetByID(ctx context.Context, id int64) (domain.Webhook, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+webhookColumns+" FROM webhooks WHERE id = $1", id)
	webhook, err := scanWebhook(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Webhook{}, ErrNotFound
		}
		return domain.Webhook{}, err
	}
	return webhook, nil
}

// List returns all webhooks, newest first.
func (r *webhookRepository) List(ctx context.Context) ([]domain.Webhook, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+webhookColumns+" FROM webhooks ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	defer rows.Close()
	return collectWebhooks(rows)
}

// ListByEvent returns enabled webhooks subscribed to the event type.
func (r *webhookRepository) ListByEvent(ctx context.Context, eventType string) ([]domain.Webhook, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+webhookColumns+" FROM webhooks WHERE enabled AND event_types ? $1", eventType)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks by event: %w", err)
	}
	defer rows.Close()
	return collectWebhooks(rows)
}

// Update overwrites the mutable registration fields.
func (r *webhookRepository) Update(ctx context.Context, webhook domain.Webhook) (domain.Webhook, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE webhooks
		 SET name = $2, url = $3, event_types = $4, enabled = $5, updated_at = now()
		 WHERE id = $1
		 RETURNING `+webhookColumns,
		webhook.ID, webhook.Name, webhook.URL, webhook.EventTypes, webhook.Enabled,
	)
	updated, err := scanWebhook(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Webhook{}, ErrNotFound
		}
		return domain.Webhook{}, fmt.Errorf("failed to update webhook: %w", err)
	}
	return updated, nil
}

// Delete removes a webhook registration.
func (r *webhookRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM webhooks WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordDeliveryResult stores the outcome of the latest delivery attempt.
func (r *webhookRepository) RecordDeliveryResult(ctx context.Context, id int64, record domain.DeliveryRecord) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE webhooks
		 SET last_delivery_status = $2, last_delivery_code = $3, last_delivery_seconds = $4, updated_at = now()
		 WHERE id = $1`,
		id, record.Status, record.ResponseCode, record.ResponseTime,
	)
	if err != nil {
		return fmt.Errorf("failed to record delivery result: %w", err)
	}
	return nil
}

func collectWebhooks(rows pgx.Rows) ([]domain.Webhook, error) {
	var webhooks []domain.Webhook
	for rows.Next() {
		webhook, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		webhooks = append(webhooks, webhook)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read webhooks: %w", err)
	}
	return webhooks, nil
}

func scanWebhook(row pgx.Row) (domain.Webhook, error) {
	var (
		w      domain.Webhook
		status *string
	)
	err := row.Scan(&w.ID, &w.Name, &w.URL, &w.EventTypes, &w.Enabled,
		&status, &w.LastDeliveryCode, &w.LastDeliverySeconds, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Webhook{}, err
		}
		return domain.Webhook{}, fmt.Errorf("failed to scan webhook: %w", err)
	}
	if status != nil {
		w.LastDeliveryStatus = *status
	}
	return w, nil
}
