package domain

import "encoding/json"

// Product represents a product in the catalog.
// The json tags correspond to the fields returned by the read endpoints.
type Product struct {
	ID       int64   `json:"-"`
	SKU      string  `json:"sku"`
	Name     string  `json:"name"`
	Brand    string  `json:"brand"`
	Color    *string `json:"color"` // nil when the upload left the cell blank
	Size     *string `json:"size"`
	MRP      int64   `json:"mrp"`
	Price    int64   `json:"price"`
	Quantity int64   `json:"quantity"`
}

// RowOutcome reports why a single CSV row was not stored. Row holds every header
// column; columns the record was too short for are null.
type RowOutcome struct {
	RowNumber int                `json:"row_number"` // header is row 1
	Row       map[string]*string `json:"row"`
	Reasons   []string           `json:"reasons"`
}

// UploadSummary is the result of ingesting one CSV file.
type UploadSummary struct {
	Filename string       `json:"filename"`
	Stored   int          `json:"stored"`
	Failed   []RowOutcome `json:"failed"`
}

// ProductPage is one page of a product listing.
type ProductPage struct {
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
	Total int       `json:"total"`
	Items []Product `json:"items"`
}

// ProductListing is either a page envelope or, when Raw is set, a flat list of
// every matching product.
type ProductListing struct {
	Raw   bool
	Items []Product
	Page  ProductPage
}

// NewRawListing returns a listing that marshals as a flat JSON array.
func NewRawListing(items []Product) ProductListing {
	if items == nil {
		items = []Product{}
	}
	return ProductListing{Raw: true, Items: items}
}

// NewPagedListing returns a listing that marshals as a page envelope.
func NewPagedListing(page, limit, total int, items []Product) ProductListing {
	if items == nil {
		items = []Product{}
	}
	return ProductListing{Page: ProductPage{Page: page, Limit: limit, Total: total, Items: items}}
}

// MarshalJSON picks the wire shape from the Raw tag.
func (l ProductListing) MarshalJSON() ([]byte, error) {
	if l.Raw {
		items := l.Items
		if items == nil {
			items = []Product{}
		}
		return json.Marshal(items)
	}
	page := l.Page
	if page.Items == nil {
		page.Items = []Product{}
	}
	return json.Marshal(page)
}
