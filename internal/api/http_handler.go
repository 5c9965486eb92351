package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"catalog-service/internal/domain"
	"catalog-service/internal/ingest"
	"catalog-service/internal/query"
)

const (
	// DefaultMaxUploadBytes caps the multipart body of POST /upload.
	DefaultMaxUploadBytes int64 = 50 << 20

	uploadField   = "file"
	healthTimeout = 2 * time.Second
	bannerMessage = "Product catalog service. See /products and /upload."
)

// Ingester processes uploaded CSV files.
type Ingester interface {
	Ingest(ctx context.Context, filename string, data []byte) (*domain.UploadSummary, error)
}

// Querier answers list and search requests.
type Querier interface {
	List(ctx context.Context, q query.ListQuery) (domain.ProductListing, error)
	Search(ctx context.Context, q query.SearchQuery) (domain.ProductListing, error)
	Invalidate(ctx context.Context) error
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Archiver keeps a copy of accepted uploads.
type Archiver interface {
	Store(ctx context.Context, uploadID uuid.UUID, filename string, data []byte) (string, error)
}

// Notifier announces processed uploads.
type Notifier interface {
	UploadCompleted(ctx context.Context, uploadID uuid.UUID, summary *domain.UploadSummary) error
}

// HTTPHandler holds dependencies for HTTP handlers.
type HTTPHandler struct {
	ingester       Ingester
	querier        Querier
	pinger         Pinger
	archiver       Archiver
	notifier       Notifier
	maxUploadBytes int64
	logger         zerolog.Logger
}

// HTTPOption configures an HTTPHandler.
type HTTPOption func(h *HTTPHandler)

// WithArchiver stores a copy of every accepted upload.
func WithArchiver(a Archiver) HTTPOption {
	return func(h *HTTPHandler) { h.archiver = a }
}

// WithNotifier publishes an event after every accepted upload.
func WithNotifier(n Notifier) HTTPOption {
	return func(h *HTTPHandler) { h.notifier = n }
}

// WithMaxUploadBytes overrides DefaultMaxUploadBytes.
func WithMaxUploadBytes(n int64) HTTPOption {
	return func(h *HTTPHandler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// NewHTTPHandler creates a new HTTPHandler with dependencies.
func NewHTTPHandler(ing Ingester, q Querier, p Pinger, logger zerolog.Logger, opts ...HTTPOption) *HTTPHandler {
	h := &HTTPHandler{
		ingester:       ing,
		querier:        q,
		pinger:         p,
		maxUploadBytes: DefaultMaxUploadBytes,
		logger:         logger.With().Str("component", "http").Logger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// --- Helpers ---

// ErrorResponse defines the structure for JSON error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

func respondWithError(w http.ResponseWriter, r *http.Request, code int, message string) {
	respondWithJSON(w, r, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, r *http.Request, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("failed to encode JSON response")
		}
	}
}

// --- Service Handlers ---

func (h *HTTPHandler) Root(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, r, http.StatusOK, map[string]string{"message": bannerMessage})
}

func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	dbStatus := "healthy"
	if err := h.pinger.Ping(ctx); err != nil {
		dbStatus = "unhealthy"
		h.logger.Warn().Err(err).Msg("health check database ping failed")
	}
	// Always 200, the payload carries the database status.
	respondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok", Database: dbStatus})
}

// --- Upload Handler ---

// UploadProducts stores the rows of a CSV upload. Rows are committed one at a time, so
// once the body is read the upload runs to completion even if the client goes away,
// and the server read and write deadlines are lifted for it.
func (h *HTTPHandler) UploadProducts(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	if r.ContentLength > h.maxUploadBytes {
		respondWithError(w, r, http.StatusRequestEntityTooLarge, h.tooLargeMessage())
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondWithError(w, r, http.StatusRequestEntityTooLarge, h.tooLargeMessage())
			return
		}
		respondWithError(w, r, http.StatusBadRequest, "A CSV file must be sent in the 'file' form field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error().Err(err).Str("filename", header.Filename).Msg("failed to read uploaded file")
		respondWithError(w, r, http.StatusBadRequest, "Uploaded file could not be read")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	summary, err := h.ingester.Ingest(ctx, header.Filename, data)
	if err != nil {
		var rejection *ingest.RejectionError
		if errors.As(err, &rejection) {
			respondWithError(w, r, http.StatusBadRequest, rejection.Error())
			return
		}
		if summary == nil {
			h.logger.Error().Err(err).Str("filename", header.Filename).Msg("upload processing failed")
			respondWithError(w, r, http.StatusInternalServerError, "Failed to process upload")
			return
		}
		// Interrupted mid-batch: the rows already committed are real, so report them.
		h.logger.Warn().Err(err).Str("filename", header.Filename).Int("stored", summary.Stored).
			Msg("upload interrupted, reporting partial summary")
	}

	h.afterUpload(ctx, header.Filename, data, summary)
	respondWithJSON(w, r, http.StatusOK, summary)
}

// afterUpload runs the side effects of an accepted upload. Their failures are logged
// and never change the response.
func (h *HTTPHandler) afterUpload(ctx context.Context, filename string, data []byte, summary *domain.UploadSummary) {
	uploadID := uuid.New()
	logger := h.logger.With().Str("upload_id", uploadID.String()).Str("filename", filename).Logger()

	if summary.Stored > 0 {
		if err := h.querier.Invalidate(ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to invalidate listing cache")
		}
	}
	if h.archiver != nil {
		key, err := h.archiver.Store(ctx, uploadID, filename, data)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to archive upload")
		} else {
			logger.Debug().Str("key", key).Msg("upload archived")
		}
	}
	if h.notifier != nil {
		if err := h.notifier.UploadCompleted(ctx, uploadID, summary); err != nil {
			logger.Warn().Err(err).Msg("failed to publish upload event")
		}
	}
}

func (h *HTTPHandler) tooLargeMessage() string {
	return fmt.Sprintf("Upload exceeds the maximum size of %d bytes", h.maxUploadBytes)
}

// --- Product Handlers ---

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		respondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	listing, err := h.querier.List(r.Context(), q)
	if err != nil {
		h.respondWithQueryError(w, r, err)
		return
	}
	respondWithJSON(w, r, http.StatusOK, listing)
}

func (h *HTTPHandler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	q, err := parseSearchQuery(r)
	if err != nil {
		respondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	listing, err := h.querier.Search(r.Context(), q)
	if err != nil {
		h.respondWithQueryError(w, r, err)
		return
	}
	respondWithJSON(w, r, http.StatusOK, listing)
}

func (h *HTTPHandler) respondWithQueryError(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *query.InvalidParamsError
	if errors.As(err, &invalid) {
		respondWithError(w, r, http.StatusBadRequest, invalid.Error())
		return
	}
	h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("product query failed")
	respondWithError(w, r, http.StatusInternalServerError, "Failed to retrieve products")
}

func parseListQuery(r *http.Request) (query.ListQuery, error) {
	values := r.URL.Query()
	q := query.NewListQuery()

	if v := values.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			return q, fmt.Errorf("invalid query parameters: page must be an integer")
		}
		q.Page = page
	}
	if v := values.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return q, fmt.Errorf("invalid query parameters: limit must be an integer")
		}
		q.Limit = limit
	}
	if v := values.Get("raw"); v != "" {
		raw, err := parseBool(v)
		if err != nil {
			return q, fmt.Errorf("invalid query parameters: raw must be a boolean")
		}
		q.Raw = raw
	}
	return q, nil
}

func parseSearchQuery(r *http.Request) (query.SearchQuery, error) {
	lq, err := parseListQuery(r)
	if err != nil {
		return query.SearchQuery{}, err
	}
	q := query.SearchQuery{ListQuery: lq}
	values := r.URL.Query()

	if v := values.Get("brand"); v != "" {
		q.Brand = &v
	}
	if v := values.Get("color"); v != "" {
		q.Color = &v
	}
	if q.MinPrice, err = parsePrice(values.Get("minPrice"), "minPrice"); err != nil {
		return q, err
	}
	if q.MaxPrice, err = parsePrice(values.Get("maxPrice"), "maxPrice"); err != nil {
		return q, err
	}
	return q, nil
}

func parsePrice(v, name string) (*int64, error) {
	if v == "" {
		return nil, nil
	}
	price, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid query parameters: %s must be an integer", name)
	}
	return &price, nil
}

// parseBool accepts the usual query-string spellings of a boolean.
func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "1", "t", "true", "y", "yes", "on":
		return true, nil
	case "0", "f", "false", "n", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", v)
}

// --- Route Registration ---

// RegisterRoutes sets up the HTTP routes for the service. Uploads are exempt from the
// request timeout.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Post("/upload", h.UploadProducts)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/", h.Root)
		r.Get("/health", h.Health)
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Get("/search", h.SearchProducts)
		})
	})
}
