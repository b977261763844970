package products

import (
	"context"

	"github.com/acme/importflow/internal/domain"
	"github.com/acme/importflow/internal/repository"
)

// Service covers plain product CRUD and filtered listing.
type Service struct {
	products repository.ProductRepository
}

// NewService creates the product service.
func NewService(products repository.ProductRepository) *Service {
	return &Service{products: products}
}

// ListResult is a page of products plus paging metadata.
type ListResult struct {
	Products []domain.Product `json:"products"`
	Total    int              `json:"total"`
	Limit    int              `json:"limit"`
	Offset   int              `json:"offset"`
}

// List returns products matching the filter.
func (s *Service) List(ctx context.Context, filter domain.ProductFilter) (ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	products, total, err := s.products.List(ctx, filter)
	if err != nil {
		return ListResult{}, err
	}
	if products == nil {
		products = []domain.Product{}
	}
	return ListResult{
		Products: products,
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}, nil
}

// Get returns one product by id.
func (s *Service) Get(ctx context.Context, id int64) (domain.Product, error) {
	return s.products.GetByID(ctx, id)
}

// Create inserts a product.
func (s *Service) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	return s.products.Create(ctx, product)
}

// Update overwrites a product's mutable fields.
func (s *Service) Update(ctx context.Context, product domain.Product) (domain.Product, error) {
	return s.products.Update(ctx, product)
}

// Delete removes a product.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.products.Delete(ctx, id)
}
