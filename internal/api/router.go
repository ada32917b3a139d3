package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"erpsync/internal/middleware"
)

// RouterOptions configures the middleware stack.
type RouterOptions struct {
	APIKey             string
	RateLimit          middleware.RateLimitConfig
	CORSAllowedOrigins []string
}

// NewRouter builds the chi router for the console. ctx bounds the rate
// limiter's background sweeper.
func NewRouter(ctx context.Context, h *Handler, opts RouterOptions, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", middleware.APIKeyHeader, middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))
	if opts.RateLimit.RequestsPerSecond > 0 {
		r.Use(middleware.RateLimiter(ctx, opts.RateLimit))
	}

	r.Get("/healthz", h.health)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.APIKey(opts.APIKey))

		r.Get("/source/tables", h.listSourceTables)
		r.Post("/provision", h.provision)
		r.Post("/sync", h.syncSelected)
		r.Post("/sync/all", h.syncAll)
		r.Post("/sync/full", h.fullSync)
		r.Get("/destination/tables/{table}/columns", h.existingColumns)
		r.Post("/reset/drop-all", h.dropAll)
		r.Post("/reset/truncate-all", h.truncateAll)
		r.Post("/reset/truncate/{table}", h.truncateOne)
	})

	return r
}
