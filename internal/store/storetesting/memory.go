package storetesting

import (
	"context"
	"strings"
	"sync"

	"catalog-service/internal/domain"
	"catalog-service/internal/store"
)

// MemoryStore is an in-memory store.ProductStorer for tests. It enforces SKU
// uniqueness the same way the products table does.
type MemoryStore struct {
	mu       sync.Mutex
	products []domain.Product
	nextID   int64

	// FindErr and InsertErr, when they return a non-nil error for a SKU, make the
	// matching call fail with it.
	FindErr   func(sku string) error
	InsertErr func(sku string) error
	PingErr   error
}

var _ store.ProductStorer = (*MemoryStore)(nil)

// NewMemoryStore returns a store holding seed, in order.
func NewMemoryStore(seed ...domain.Product) *MemoryStore {
	s := &MemoryStore{}
	for _, p := range seed {
		s.nextID++
		p.ID = s.nextID
		s.products = append(s.products, p)
	}
	return s
}

func (s *MemoryStore) FindBySKU(_ context.Context, sku string) (*domain.Product, error) {
	if s.FindErr != nil {
		if err := s.FindErr(sku); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.products {
		if p.SKU == sku {
			found := p
			return &found, nil
		}
	}
	return nil, store.ErrProductNotFound
}

func (s *MemoryStore) InsertProduct(_ context.Context, product *domain.Product) error {
	if s.InsertErr != nil {
		if err := s.InsertErr(product.SKU); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.products {
		if p.SKU == product.SKU {
			return store.ErrProductSKUExists
		}
	}
	s.nextID++
	product.ID = s.nextID
	s.products = append(s.products, *product)
	return nil
}

func (s *MemoryStore) ListProducts(_ context.Context, params store.ListProductsParams) ([]domain.Product, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []domain.Product{}
	for _, p := range s.products {
		if matches(p, params) {
			matched = append(matched, p)
		}
	}
	if params.Unpaged {
		return matched, len(matched), nil
	}

	total := len(matched)
	if params.Offset >= total {
		return []domain.Product{}, total, nil
	}
	end := min(params.Offset+params.Limit, total)
	return matched[params.Offset:end], total, nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return s.PingErr
}

// Products returns a copy of everything stored, in insertion order.
func (s *MemoryStore) Products() []domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Product(nil), s.products...)
}

func matches(p domain.Product, params store.ListProductsParams) bool {
	if params.Brand != nil && !containsFold(p.Brand, *params.Brand) {
		return false
	}
	if params.Color != nil && (p.Color == nil || !containsFold(*p.Color, *params.Color)) {
		return false
	}
	if params.MinPrice != nil && p.Price < *params.MinPrice {
		return false
	}
	if params.MaxPrice != nil && p.Price > *params.MaxPrice {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
