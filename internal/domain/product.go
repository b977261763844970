package domain

import "time"

// Product is the import target entity, keyed by a case-insensitive SKU.
type Product struct {
	ID          int64     `json:"id"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProductFilter narrows product listings. Zero values mean "no filter".
type ProductFilter struct {
	SKU         string
	Name        string
	Description string
	Active      *bool
	Limit       int
	Offset      int
}

// UpsertResult summarizes one batch upsert.
type UpsertResult struct {
	Processed int `json:"processed"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
}
