package store

import (
	"context"

	"catalog-service/internal/domain"
)

// ListProductsParams holds parameters for listing products (pagination and filtering).
// Nil filters are not applied.
type ListProductsParams struct {
	Limit    int
	Offset   int
	Unpaged  bool    // return every matching row, Limit and Offset are ignored
	Brand    *string // case-insensitive substring
	Color    *string // case-insensitive substring
	MinPrice *int64  // inclusive
	MaxPrice *int64  // inclusive
}

// ProductStorer defines the database operations for products.
type ProductStorer interface {
	FindBySKU(ctx context.Context, sku string) (*domain.Product, error)
	InsertProduct(ctx context.Context, product *domain.Product) error
	ListProducts(ctx context.Context, params ListProductsParams) ([]domain.Product, int, error) // Returns products and total count
	Ping(ctx context.Context) error
}

var _ ProductStorer = (*PostgresStore)(nil)
