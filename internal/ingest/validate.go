package ingest

import (
	"strconv"
	"strings"

	"github.com/samber/lo"

	"catalog-service/internal/domain"
)

// Column names every upload must carry.
const (
	ColumnSKU      = "sku"
	ColumnName     = "name"
	ColumnBrand    = "brand"
	ColumnColor    = "color"
	ColumnSize     = "size"
	ColumnMRP      = "mrp"
	ColumnPrice    = "price"
	ColumnQuantity = "quantity"
)

// RequiredColumns lists the recognized header names.
var RequiredColumns = []string{
	ColumnSKU, ColumnName, ColumnBrand, ColumnColor, ColumnSize, ColumnMRP, ColumnPrice, ColumnQuantity,
}

// Row failure reasons that callers may match on.
const (
	ReasonPriceAboveMRP    = "price must be less than or equal to mrp"
	ReasonNegativeQuantity = "quantity must be greater than or equal to 0"
	ReasonDuplicateSKU     = "duplicate sku"
	ReasonDatabaseError    = "database error while inserting row"
	ReasonInterrupted      = "upload interrupted before row was processed"
)

// ValidateRow checks a normalized row and returns either the cleaned product or the
// list of every problem found, in a fixed order. A missing key and a blank value are
// treated alike.
func ValidateRow(row map[string]string) (*domain.Product, []string) {
	var reasons []string

	for _, field := range []string{ColumnSKU, ColumnName, ColumnBrand} {
		if isBlank(row, field) {
			reasons = append(reasons, field+" is required")
		}
	}

	mrp, reasons := parseInt(row, ColumnMRP, reasons)
	price, reasons := parseInt(row, ColumnPrice, reasons)
	quantity, reasons := parseInt(row, ColumnQuantity, reasons)

	if mrp != nil && price != nil && *price > *mrp {
		reasons = append(reasons, ReasonPriceAboveMRP)
	}
	if quantity != nil && *quantity < 0 {
		reasons = append(reasons, ReasonNegativeQuantity)
	}

	if len(reasons) > 0 {
		return nil, reasons
	}

	return &domain.Product{
		SKU:      strings.TrimSpace(row[ColumnSKU]),
		Name:     strings.TrimSpace(row[ColumnName]),
		Brand:    strings.TrimSpace(row[ColumnBrand]),
		Color:    optional(row, ColumnColor),
		Size:     optional(row, ColumnSize),
		MRP:      *mrp,
		Price:    *price,
		Quantity: *quantity,
	}, nil
}

func isBlank(row map[string]string, field string) bool {
	v, ok := row[field]
	return !ok || strings.TrimSpace(v) == ""
}

func parseInt(row map[string]string, field string, reasons []string) (*int64, []string) {
	if isBlank(row, field) {
		return nil, append(reasons, field+" is required")
	}
	n, err := strconv.ParseInt(strings.TrimSpace(row[field]), 10, 64)
	if err != nil {
		return nil, append(reasons, field+" must be an integer")
	}
	return &n, reasons
}

func optional(row map[string]string, field string) *string {
	if isBlank(row, field) {
		return nil
	}
	return lo.ToPtr(strings.TrimSpace(row[field]))
}
