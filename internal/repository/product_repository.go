package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/acme/importflow/internal/db"
	"github.com/acme/importflow/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

type productRepository struct {
	conn *db.Connection
}

// NewProductRepository wires a repository backed by the shared connection.
func NewProductRepository(conn *db.Connection) ProductRepository {
	return &productRepository{conn: conn}
}

const productColumns = "id, sku, name, description, price, active, created_at, updated_at"

// BatchUpsert inserts the rows, updating existing products on a
// case-insensitive SKU conflict. The batch is deduplicated by SKU first
// (last occurrence wins) and written inside one transaction.
func (r *productRepository) BatchUpsert(ctx context.Context, batch []domain.NormalizedRow) (domain.UpsertResult, error) {
	result := domain.UpsertResult{}
	if len(batch) == 0 {
		return result, nil
	}

	deduped := dedupeBySKU(batch)
	now := time.Now().UTC()

	var sb strings.Builder
	args := make([]any, 0, len(deduped)*7)
	sb.WriteString("INSERT INTO products (sku, name, description, price, active, created_at, updated_at) VALUES ")
	for i, row := range deduped {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 7
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7)
		args = append(args, row.SKU, row.Name, row.Description, row.Price, row.Active, now, now)
	}
	sb.WriteString(` ON CONFLICT (lower(sku)) DO UPDATE SET
		name = EXCLUDED.name,
		description = EXCLUDED.description,
		price = EXCLUDED.price,
		active = EXCLUDED.active,
		updated_at = EXCLUDED.updated_at
		RETURNING (xmax = 0) AS inserted`)

	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sb.String(), args...)
		if err != nil {
			return fmt.Errorf("failed to upsert products: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var inserted bool
			if err := rows.Scan(&inserted); err != nil {
				return fmt.Errorf("failed to scan upsert result: %w", err)
			}
			if inserted {
				result.Inserted++
			} else {
				result.Updated++
			}
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to read upsert results: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.UpsertResult{}, err
	}

	result.Processed = len(batch)
	return result, nil
}

// dedupeBySKU keeps the last occurrence of each case-insensitive SKU,
// preserving first-seen order.
func dedupeBySKU(batch []domain.NormalizedRow) []domain.NormalizedRow {
	index := make(map[string]int, len(batch))
	deduped := make([]domain.NormalizedRow, 0, len(batch))
	for _, row := range batch {
		key := strings.ToLower(strings.TrimSpace(row.SKU))
		if key == "" {
			continue
		}
		if pos, seen := index[key]; seen {
			deduped[pos] = row
			continue
		}
		index[key] = len(deduped)
		deduped = append(deduped, row)
	}
	return deduped
}

// List retrieves products matching the filter with pagination.
func (r *productRepository) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	var (
		conditions []string
		args       []any
	)
	arg := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.SKU != "" {
		conditions = append(conditions, "lower(sku) = lower("+arg(filter.SKU)+")")
	}
	if filter.Name != "" {
		conditions = append(conditions, "name ILIKE "+arg("%"+filter.Name+"%"))
	}
	if filter.Description != "" {
		conditions = append(conditions, "description ILIKE "+arg("%"+filter.Description+"%"))
	}
	if filter.Active != nil {
		conditions = append(conditions, "active = "+arg(*filter.Active))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.conn.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM products"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := "SELECT " + productColumns + " FROM products" + where +
		" ORDER BY created_at DESC LIMIT " + arg(limit) + " OFFSET " + arg(offset)

	rows, err := r.conn.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read products: %w", err)
	}

	return products, total, nil
}

// GetByID retrieves a product by its surrogate id.
func (r *productRepository) GetByID(ctx context.Context, id int64) (domain.Product, error) {
	row := r.conn.Pool.QueryRow(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, ErrNotFound
		}
		return domain.Product{}, err
	}
	return product, nil
}

// GetBySKU retrieves a product by case-insensitive SKU.
func (r *productRepository) GetBySKU(ctx context.Context, sku string) (domain.Product, error) {
	row := r.conn.Pool.QueryRow(ctx, "SELECT "+productColumns+" FROM products WHERE lower(sku) = lower($1)", sku)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, ErrNotFound
		}
		return domain.Product{}, err
	}
	return product, nil
}

// Create inserts a single product.
func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	row := r.conn.Pool.QueryRow(ctx,
		`INSERT INTO products (sku, name, description, price, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now(), now())
		 RETURNING `+productColumns,
		product.SKU, product.Name, product.Description, product.Price, product.Active,
	)
	created, err := scanProduct(row)
	if err != nil {
		return domain.Product{}, fmt.Errorf("failed to create product: %w", err)
	}
	return created, nil
}

// Update overwrites the mutable fields of a product.
func (r *productRepository) Update(ctx context.Context, product domain.Product) (domain.Product, error) {
	row := r.conn.Pool.QueryRow(ctx,
		`UPDATE products
		 SET sku = $2, name = $3, description = $4, price = $5, active = $6, updated_at = now()
		 WHERE id = $1
		 RETURNING `+productColumns,
		product.ID, product.SKU, product.Name, product.Description, product.Price, product.Active,
	)
	updated, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, ErrNotFound
		}
		return domain.Product{}, fmt.Errorf("failed to update product: %w", err)
	}
	return updated, nil
}

// Delete removes a product by id.
func (r *productRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn.Pool.Exec(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBatch removes up to limit products and reports how many went away.
func (r *productRepository) DeleteBatch(ctx context.Context, limit int) (int, error) {
	tag, err := r.conn.Pool.Exec(ctx,
		"DELETE FROM products WHERE id IN (SELECT id FROM products ORDER BY id LIMIT $1)", limit)
	if err != nil {
		return 0, fmt.Errorf("failed to delete product batch: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Count returns the total number of products.
func (r *productRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.conn.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM products").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Price, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Product{}, err
		}
		return domain.Product{}, fmt.Errorf("failed to scan product: %w", err)
	}
	return p, nil
}
