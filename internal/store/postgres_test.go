package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-service/internal/domain"
)

var productRowColumns = []string{"id", "sku", "name", "brand", "color", "size", "mrp", "price", "quantity"}

// Helper function to create a mock DB and PostgresStore for testing
func newMockDBAndStore(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresStore) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err, "Failed to create sqlmock")

	store := NewPostgresStore(db, zerolog.Nop())
	require.NotNil(t, store, "Store should not be nil")

	return db, mock, store
}

func TestPostgresStore_EnsureSchema(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS products")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS products_brand_idx")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS products_color_idx")).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet(), "SQLmock expectations were not met")
}

func TestPostgresStore_EnsureSchema_Error(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS products")).WillReturnError(errors.New("permission denied"))

	err := store.EnsureSchema(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindBySKU(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	query := regexp.QuoteMeta("SELECT id, sku, name, brand, color, size, mrp, price, quantity FROM products WHERE sku = $1 LIMIT 1;")
	rows := sqlmock.NewRows(productRowColumns).AddRow(7, "SKU-1", "Tee", "Acme", "red", nil, 500, 450, 3)
	mock.ExpectQuery(query).WithArgs("SKU-1").WillReturnRows(rows)

	product, err := store.FindBySKU(context.Background(), "SKU-1")
	require.NoError(t, err)
	require.NotNil(t, product)
	assert.Equal(t, int64(7), product.ID)
	assert.Equal(t, "SKU-1", product.SKU)
	assert.Equal(t, lo.ToPtr("red"), product.Color)
	assert.Nil(t, product.Size)
	assert.Equal(t, int64(450), product.Price)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindBySKU_NotFound(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE sku = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(productRowColumns))

	product, err := store.FindBySKU(context.Background(), "missing")
	assert.Nil(t, product)
	assert.True(t, errors.Is(err, ErrProductNotFound), "expected ErrProductNotFound, got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindBySKU_DBError(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE sku = $1")).
		WithArgs("SKU-1").
		WillReturnError(errors.New("connection reset"))

	_, err := store.FindBySKU(context.Background(), "SKU-1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrProductNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func insertQuery() string {
	return regexp.QuoteMeta("INSERT INTO products (sku, name, brand, color, size, mrp, price, quantity) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id;")
}

func TestPostgresStore_InsertProduct(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	product := &domain.Product{
		SKU: "SKU-1", Name: "Tee", Brand: "Acme", Color: lo.ToPtr("red"),
		MRP: 500, Price: 450, Quantity: 3,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(insertQuery()).
		WithArgs("SKU-1", "Tee", "Acme", "red", nil, int64(500), int64(450), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectCommit()

	require.NoError(t, store.InsertProduct(context.Background(), product))
	assert.Equal(t, int64(42), product.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertProduct_SKUExists(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	product := &domain.Product{SKU: "SKU-1", Name: "Tee", Brand: "Acme", MRP: 500, Price: 450}

	mock.ExpectBegin()
	mock.ExpectQuery(insertQuery()).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "products_sku_key"})
	mock.ExpectRollback()

	err := store.InsertProduct(context.Background(), product)
	assert.True(t, errors.Is(err, ErrProductSKUExists), "expected ErrProductSKUExists, got %v", err)
	assert.Zero(t, product.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertProduct_OtherError(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	product := &domain.Product{SKU: "SKU-1", Name: "Tee", Brand: "Acme", MRP: 500, Price: 450}

	mock.ExpectBegin()
	mock.ExpectQuery(insertQuery()).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.InsertProduct(context.Background(), product)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrProductSKUExists))
	assert.Contains(t, err.Error(), "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertProduct_BeginError(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	err := store.InsertProduct(context.Background(), &domain.Product{SKU: "SKU-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "can't begin transaction")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListProducts_Paged(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM products")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery(regexp.QuoteMeta("FROM products ORDER BY id ASC LIMIT $1 OFFSET $2")).
		WithArgs(10, 10).
		WillReturnRows(sqlmock.NewRows(productRowColumns).
			AddRow(11, "SKU-11", "Tee", "Acme", nil, nil, 500, 450, 1).
			AddRow(12, "SKU-12", "Cap", "Acme", nil, nil, 300, 300, 0))

	products, total, err := store.ListProducts(context.Background(), ListProductsParams{Limit: 10, Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	require.Len(t, products, 2)
	assert.Equal(t, "SKU-11", products[0].SKU)
	assert.Equal(t, "SKU-12", products[1].SKU)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListProducts_Filters(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	params := ListProductsParams{
		Limit:    5,
		Brand:    lo.ToPtr("Nike"),
		Color:    lo.ToPtr("50%_off"),
		MinPrice: lo.ToPtr(int64(100)),
		MaxPrice: lo.ToPtr(int64(900)),
	}
	where := " WHERE brand ILIKE $1 AND color ILIKE $2 AND price >= $3 AND price <= $4"

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM products"+where)).
		WithArgs("%Nike%", `%50\%\_off%`, int64(100), int64(900)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM products"+where+" ORDER BY id ASC LIMIT $5 OFFSET $6")).
		WithArgs("%Nike%", `%50\%\_off%`, int64(100), int64(900), 5, 0).
		WillReturnRows(sqlmock.NewRows(productRowColumns).
			AddRow(3, "SKU-3", "Runner", "Nike", "50%_off", "42", 1000, 800, 5))

	products, total, err := store.ListProducts(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, products, 1)
	assert.Equal(t, "Nike", products[0].Brand)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListProducts_ZeroCountSkipsDataQuery(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM products WHERE brand ILIKE $1")).
		WithArgs("%nobody%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	products, total, err := store.ListProducts(context.Background(), ListProductsParams{Limit: 10, Brand: lo.ToPtr("nobody")})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.NotNil(t, products)
	assert.Empty(t, products)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListProducts_Unpaged(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectQuery(`FROM products ORDER BY id ASC$`).
		WillReturnRows(sqlmock.NewRows(productRowColumns).
			AddRow(1, "SKU-1", "Tee", "Acme", nil, nil, 500, 450, 1).
			AddRow(2, "SKU-2", "Cap", "Acme", nil, nil, 300, 300, 0).
			AddRow(3, "SKU-3", "Bag", "Acme", nil, nil, 900, 800, 2))

	products, total, err := store.ListProducts(context.Background(), ListProductsParams{Unpaged: true, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, products, 3)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListProducts_CountError(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM products")).WillReturnError(errors.New("timeout"))

	_, _, err := store.ListProducts(context.Background(), ListProductsParams{Limit: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to count products")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close(t *testing.T) {
	_, mock, store := newMockDBAndStore(t)

	mock.ExpectClose()
	require.NoError(t, store.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestContainsPattern(t *testing.T) {
	tests := map[string]string{
		"nike":     "%nike%",
		"50%":      `%50\%%`,
		"a_b":      `%a\_b%`,
		`back\sla`: `%back\\sla%`,
		"":         "%%",
	}
	for needle, want := range tests {
		assert.Equal(t, want, containsPattern(needle), "needle %q", needle)
	}
}
