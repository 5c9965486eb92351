package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"catalog-service/internal/domain"
	"catalog-service/internal/store"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Repository is the storage the pipeline writes to.
type Repository interface {
	// FindBySKU returns store.ErrProductNotFound when no product has the SKU.
	FindBySKU(ctx context.Context, sku string) (*domain.Product, error)
	// InsertProduct commits one product or rolls back without side effects.
	InsertProduct(ctx context.Context, product *domain.Product) error
}

// Pipeline validates CSV uploads and stores the valid rows one at a time.
type Pipeline struct {
	repo   Repository
	logger zerolog.Logger
}

// NewPipeline returns a Pipeline writing to repo.
func NewPipeline(repo Repository, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		repo:   repo,
		logger: logger.With().Str("component", "ingest").Logger(),
	}
}

// Ingest processes one uploaded file. Problems with the file itself are returned as
// *RejectionError and nothing is stored. Problems with individual rows end up in the
// summary's Failed list and never stop the remaining rows from being processed.
//
// Rows are handled strictly in file order and every insert is committed before the
// next duplicate lookup, so a SKU repeated inside one file is stored once.
//
// If ctx ends mid-batch the rows not yet reached are reported as failed with
// ReasonInterrupted, and the summary is returned together with ctx.Err().
func (p *Pipeline) Ingest(ctx context.Context, filename string, data []byte) (*domain.UploadSummary, error) {
	if !strings.HasSuffix(strings.ToLower(filename), ".csv") {
		return nil, reject(ErrNotCSV, "")
	}
	if !utf8.Valid(data) {
		return nil, reject(ErrNotUTF8, "")
	}

	records, err := readRecords(bytes.TrimPrefix(data, utf8BOM))
	if err != nil {
		return nil, err
	}

	header := normalizeHeader(records[0])
	if missing := lo.Without(RequiredColumns, header...); len(missing) > 0 {
		sort.Strings(missing)
		return nil, missingColumns(missing)
	}

	summary := &domain.UploadSummary{
		Filename: filename,
		Failed:   []domain.RowOutcome{},
	}

	var interrupted error
	for i, record := range records[1:] {
		rowNumber := i + 2
		if interrupted == nil {
			interrupted = ctx.Err()
		}

		var reasons []string
		if interrupted != nil {
			reasons = []string{ReasonInterrupted}
		} else {
			reasons = p.ingestRow(ctx, rowNumber, normalizeRow(header, record))
		}

		if len(reasons) > 0 {
			summary.Failed = append(summary.Failed, domain.RowOutcome{
				RowNumber: rowNumber,
				Row:       outcomeRow(header, record),
				Reasons:   reasons,
			})
			continue
		}
		summary.Stored++
	}

	event := p.logger.Info()
	if interrupted != nil {
		event = p.logger.Warn().Err(interrupted)
	}
	event.Str("filename", filename).
		Int("rows", len(records)-1).
		Int("stored", summary.Stored).
		Int("failed", len(summary.Failed)).
		Msg("upload processed")

	return summary, interrupted
}

// ingestRow returns nil when the row was stored and the failure reasons otherwise.
func (p *Pipeline) ingestRow(ctx context.Context, rowNumber int, row map[string]string) []string {
	product, reasons := ValidateRow(row)
	if len(reasons) > 0 {
		return reasons
	}

	// The lookup only rejects early. Two uploads racing on the same SKU can both get
	// past it, the unique index on sku decides which insert wins.
	_, err := p.repo.FindBySKU(ctx, product.SKU)
	switch {
	case err == nil:
		return []string{ReasonDuplicateSKU}
	case !errors.Is(err, store.ErrProductNotFound):
		p.logger.Error().Err(err).Int("row", rowNumber).Str("sku", product.SKU).Msg("duplicate lookup failed")
		return []string{ReasonDatabaseError}
	}

	if err := p.repo.InsertProduct(ctx, product); err != nil {
		if errors.Is(err, store.ErrProductSKUExists) {
			return []string{ReasonDuplicateSKU}
		}
		p.logger.Error().Err(err).Int("row", rowNumber).Str("sku", product.SKU).Msg("insert failed")
		return []string{ReasonDatabaseError}
	}
	return nil
}

// readRecords parses the whole file up front so a broken file is refused before any
// row is stored.
func readRecords(data []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, reject(ErrMalformedCSV, err.Error())
	}
	if len(records) == 0 {
		return nil, reject(ErrMissingHeader, "")
	}
	return records, nil
}

func normalizeHeader(fields []string) []string {
	return lo.Map(fields, func(f string, _ int) string {
		return strings.ToLower(strings.TrimSpace(f))
	})
}

// normalizeRow keys the record by header name. Cells past the header are dropped and
// header columns the record is too short for are left out.
func normalizeRow(header, record []string) map[string]string {
	row := make(map[string]string, len(header))
	for i, name := range header {
		if i >= len(record) {
			break
		}
		row[name] = strings.TrimSpace(record[i])
	}
	return row
}

// outcomeRow is the reported form of a record: every header column, null where the
// record is too short.
func outcomeRow(header, record []string) map[string]*string {
	row := make(map[string]*string, len(header))
	for i, name := range header {
		if i >= len(record) {
			row[name] = nil
			continue
		}
		row[name] = lo.ToPtr(strings.TrimSpace(record[i]))
	}
	return row
}
