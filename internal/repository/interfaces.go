package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/acme/importflow/internal/domain"
)

// ProductRepository defines data access for products.
type ProductRepository interface {
	BatchUpsert(ctx context.Context, batch []domain.NormalizedRow) (domain.UpsertResult, error)
	List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error)
	GetByID(ctx context.Context, id int64) (domain.Product, error)
	GetBySKU(ctx context.Context, sku string) (domain.Product, error)
	Create(ctx context.Context, product domain.Product) (domain.Product, error)
	Update(ctx context.Context, product domain.Product) (domain.Product, error)
	Delete(ctx context.Context, id int64) error
	DeleteBatch(ctx context.Context, limit int) (int, error)
	Count(ctx context.Context) (int64, error)
}

// ImportJobRepository defines data access for import jobs.
type ImportJobRepository interface {
	Create(ctx context.Context, job domain.ImportJob) (domain.ImportJob, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.ImportJob, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, update domain.JobUpdate) error
	ListRecent(ctx context.Context, limit int) ([]domain.ImportJob, error)
}

// WebhookRepository defines data access for webhook registrations.
type WebhookRepository interface {
	Create(ctx context.Context, webhook domain.Webhook) (domain.Webhook, error)
	GetByID(ctx context.Context, id int64) (domain.Webhook, error)
	List(ctx context.Context) ([]domain.Webhook, error)
	ListByEvent(ctx context.Context, eventType string) ([]domain.Webhook, error)
	Update(ctx context.Context, webhook domain.Webhook) (domain.Webhook, error)
	Delete(ctx context.Context, id int64) error
	RecordDeliveryResult(ctx context.Context, id int64, record domain.DeliveryRecord) error
}
