package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"catalog-service/internal/domain"
)

// Predefined errors for store operations
var (
	ErrProductNotFound  = errors.New("store: product not found")
	ErrProductSKUExists = errors.New("store: product SKU already exists")
)

const uniqueViolation = "23505"

// schemaStatements create the products table and its indexes. They are idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id BIGSERIAL PRIMARY KEY,
		sku TEXT NOT NULL,
		name TEXT NOT NULL,
		brand TEXT NOT NULL,
		color TEXT,
		size TEXT,
		mrp BIGINT NOT NULL,
		price BIGINT NOT NULL,
		quantity BIGINT NOT NULL DEFAULT 0,
		CONSTRAINT products_sku_key UNIQUE (sku)
	);`,
	`CREATE INDEX IF NOT EXISTS products_brand_idx ON products (brand);`,
	`CREATE INDEX IF NOT EXISTS products_color_idx ON products (color);`,
}

const productColumns = `id, sku, name, brand, color, size, mrp, price, quantity`

// PostgresStore implements ProductStorer using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewPostgresStore creates a new PostgresStore instance.
func NewPostgresStore(db *sql.DB, logger zerolog.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// EnsureSchema creates the products table and indexes if they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: EnsureSchema failed: %w", err)
		}
	}
	return nil
}

// FindBySKU returns the product with the given SKU or ErrProductNotFound.
func (s *PostgresStore) FindBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE sku = $1 LIMIT 1;`

	p, err := scanProduct(s.db.QueryRowContext(ctx, query, sku))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("store: FindBySKU failed to scan row: %w", err)
	}
	return p, nil
}

// InsertProduct stores a product in its own transaction and sets product.ID.
// A failed insert is rolled back and leaves earlier inserts untouched.
func (s *PostgresStore) InsertProduct(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (sku, name, brand, color, size, mrp, price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id;
	`
	return runInTransaction(ctx, s.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, query,
			product.SKU, product.Name, product.Brand, product.Color, product.Size,
			product.MRP, product.Price, product.Quantity,
		).Scan(&product.ID)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				if strings.Contains(pqErr.Constraint, "products_sku_key") || strings.Contains(pqErr.Detail, "Key (sku)") {
					return ErrProductSKUExists
				}
			}
			return fmt.Errorf("store: InsertProduct failed to scan row: %w", err)
		}
		return nil
	})
}

// ListProducts returns the products matching params ordered by id, plus the total
// number of matching rows.
func (s *PostgresStore) ListProducts(ctx context.Context, params ListProductsParams) ([]domain.Product, int, error) {
	var queryArgs []interface{}
	var whereClauses []string
	argID := 1

	if params.Brand != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("brand ILIKE $%d", argID))
		queryArgs = append(queryArgs, containsPattern(*params.Brand))
		argID++
	}
	if params.Color != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("color ILIKE $%d", argID))
		queryArgs = append(queryArgs, containsPattern(*params.Color))
		argID++
	}
	if params.MinPrice != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("price >= $%d", argID))
		queryArgs = append(queryArgs, *params.MinPrice)
		argID++
	}
	if params.MaxPrice != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("price <= $%d", argID))
		queryArgs = append(queryArgs, *params.MaxPrice)
		argID++
	}

	whereCondition := ""
	if len(whereClauses) > 0 {
		whereCondition = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	dataQuery := "SELECT " + productColumns + " FROM products" + whereCondition + " ORDER BY id ASC"

	if params.Unpaged {
		products, err := s.queryProducts(ctx, dataQuery, queryArgs...)
		if err != nil {
			return nil, 0, err
		}
		return products, len(products), nil
	}

	countQuery := "SELECT COUNT(*) FROM products" + whereCondition
	var totalCount int
	if err := s.db.QueryRowContext(ctx, countQuery, queryArgs...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("store: ListProducts failed to count products: %w", err)
	}

	if totalCount == 0 {
		return []domain.Product{}, 0, nil
	}

	dataQuery = fmt.Sprintf("%s LIMIT $%d OFFSET $%d", dataQuery, argID, argID+1)
	products, err := s.queryProducts(ctx, dataQuery, append(queryArgs, params.Limit, params.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	return products, totalCount, nil
}

func (s *PostgresStore) queryProducts(ctx context.Context, query string, args ...interface{}) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: ListProducts failed to query products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("store: ListProducts failed to scan product row: %w", err)
		}
		products = append(products, *p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("store: ListProducts iteration error: %w", err)
	}
	return products, nil
}

// Ping checks that the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	if s.db == nil {
		return nil
	}
	s.logger.Info().Msg("closing database connection pool")
	if err := s.db.Close(); err != nil {
		s.logger.Error().Err(err).Msg("failed to close database connection pool")
		return err
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Brand, &p.Color, &p.Size, &p.MRP, &p.Price, &p.Quantity)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// containsPattern builds an ILIKE pattern matching needle anywhere, with LIKE
// metacharacters in needle taken literally.
func containsPattern(needle string) string {
	escaper := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + escaper.Replace(needle) + "%"
}

func runInTransaction(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: can't begin transaction: %w", err)
	}

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("store: can't rollback transaction: %w (rollback reason: %w)", rbErr, err)
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store: can't commit transaction: %w", err)
	}
	return nil
}
