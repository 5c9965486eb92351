package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

// requestTimeout bounds every route except POST /upload.
const requestTimeout = 60 * time.Second

// NewRouter builds the chi router with the base middleware stack and the service routes.
func NewRouter(logger zerolog.Logger, h *HTTPHandler) *chi.Mux {
	router := chi.NewRouter()
	setupBaseMiddleware(router, logger)
	h.RegisterRoutes(router)
	return router
}

func setupBaseMiddleware(router *chi.Mux, logger zerolog.Logger) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(hlog.NewHandler(logger))
	router.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	router.Use(middleware.Recoverer)
}
