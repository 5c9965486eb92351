package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"catalog-service/internal/domain"
	"catalog-service/internal/store"
)

// Pagination defaults.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// ListQuery holds the pagination parameters shared by list and search.
type ListQuery struct {
	Page  int  `validate:"min=1"`
	Limit int  `validate:"min=1,max=100"`
	Raw   bool // every match as a flat list, Page and Limit are ignored
}

// SearchQuery adds conjunctive filters to ListQuery. Nil filters are not applied.
type SearchQuery struct {
	ListQuery
	Brand    *string
	Color    *string
	MinPrice *int64 `validate:"omitempty,min=0"`
	MaxPrice *int64 `validate:"omitempty,min=0"`
}

// NewListQuery returns a ListQuery with default pagination.
func NewListQuery() ListQuery {
	return ListQuery{Page: DefaultPage, Limit: DefaultLimit}
}

// InvalidParamsError is returned when query parameters are out of bounds.
type InvalidParamsError struct {
	Msg string
}

func (e *InvalidParamsError) Error() string {
	return "invalid query parameters: " + e.Msg
}

// Store is the read side of the catalog store.
type Store interface {
	ListProducts(ctx context.Context, params store.ListProductsParams) ([]domain.Product, int, error)
}

// Cache stores listings by key within a generation. Invalidate starts a new
// generation. Implementations must be safe for concurrent use.
type Cache interface {
	Version(ctx context.Context) (int64, error)
	Get(ctx context.Context, version int64, key string) (domain.ProductListing, bool)
	Set(ctx context.Context, version int64, key string, listing domain.ProductListing)
	Invalidate(ctx context.Context) error
}

// Service answers list and search requests.
type Service struct {
	store    Store
	cache    Cache
	validate *validator.Validate
	logger   zerolog.Logger
}

// Option configures a Service.
type Option func(s *Service)

// WithCache makes the Service read listings through c.
func WithCache(c Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// NewService returns a Service reading from st.
func NewService(st Store, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    st,
		validate: validator.New(),
		logger:   logger.With().Str("component", "query").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns every product, paginated unless q.Raw is set. Total is unfiltered.
func (s *Service) List(ctx context.Context, q ListQuery) (domain.ProductListing, error) {
	return s.Search(ctx, SearchQuery{ListQuery: q})
}

// Search returns the products matching every filter in q.
func (s *Service) Search(ctx context.Context, q SearchQuery) (domain.ProductListing, error) {
	if err := s.check(q); err != nil {
		return domain.ProductListing{}, err
	}

	// The generation is read before the store so that a listing loaded while an
	// upload invalidates the cache lands in the old generation.
	key := cacheKey(q)
	version, cached := s.cacheVersion(ctx)
	if cached {
		if listing, ok := s.cache.Get(ctx, version, key); ok {
			return listing, nil
		}
	}

	params := store.ListProductsParams{
		Unpaged:  q.Raw,
		Brand:    q.Brand,
		Color:    q.Color,
		MinPrice: q.MinPrice,
		MaxPrice: q.MaxPrice,
	}
	if !q.Raw {
		params.Limit = q.Limit
		params.Offset = (q.Page - 1) * q.Limit
	}

	products, total, err := s.store.ListProducts(ctx, params)
	if err != nil {
		return domain.ProductListing{}, fmt.Errorf("query: list products: %w", err)
	}

	var listing domain.ProductListing
	if q.Raw {
		listing = domain.NewRawListing(products)
	} else {
		listing = domain.NewPagedListing(q.Page, q.Limit, total, products)
	}

	if cached {
		s.cache.Set(ctx, version, key, listing)
	}
	return listing, nil
}

// cacheVersion reports the current cache generation and whether the cache may be used
// for this request.
func (s *Service) cacheVersion(ctx context.Context) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	version, err := s.cache.Version(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("listing cache unavailable, reading from store")
		return 0, false
	}
	return version, true
}

// Invalidate drops cached listings. It is a no-op without a cache.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx)
}

func (s *Service) check(q SearchQuery) error {
	if err := s.validate.Struct(q); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return &InvalidParamsError{Msg: describe(verrs)}
		}
		return &InvalidParamsError{Msg: err.Error()}
	}
	if q.MinPrice != nil && q.MaxPrice != nil && *q.MinPrice > *q.MaxPrice {
		return &InvalidParamsError{Msg: "minPrice must be less than or equal to maxPrice"}
	}
	return nil
}

func describe(verrs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := paramName(fe.Field())
		switch fe.Tag() {
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than or equal to %s", name, fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be less than or equal to %s", name, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", name))
		}
	}
	return strings.Join(msgs, "; ")
}

// paramName maps struct field names back to the request parameter names.
func paramName(field string) string {
	switch field {
	case "MinPrice":
		return "minPrice"
	case "MaxPrice":
		return "maxPrice"
	default:
		return strings.ToLower(field)
	}
}

func cacheKey(q SearchQuery) string {
	var b strings.Builder
	if q.Raw {
		b.WriteString("raw")
	} else {
		fmt.Fprintf(&b, "p=%d:l=%d", q.Page, q.Limit)
	}
	if q.Brand != nil {
		fmt.Fprintf(&b, ":b=%q", strings.ToLower(*q.Brand))
	}
	if q.Color != nil {
		fmt.Fprintf(&b, ":c=%q", strings.ToLower(*q.Color))
	}
	if q.MinPrice != nil {
		fmt.Fprintf(&b, ":min=%d", *q.MinPrice)
	}
	if q.MaxPrice != nil {
		fmt.Fprintf(&b, ":max=%d", *q.MaxPrice)
	}
	return b.String()
}
