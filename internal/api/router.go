package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the health and files routes behind recovery, metrics and
// request logging.
func NewRouter(files *FilesHandler, health *HealthHandler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware())
	r.Use(RequestLogger(logger))

	r.Get("/health/live", health.Live)
	r.Get("/health/ready", health.Ready)
	r.Get("/metrics", health.Metrics)

	r.Route("/api/v1/files", func(r chi.Router) {
		r.Post("/", files.Upload)
		r.Get("/", files.List)
		r.Get("/{id}/status", files.Status)
		r.Post("/{id}/retry", files.Retry)
		r.Get("/{id}/preview", files.Preview)
		r.Delete("/{id}", files.Delete)
	})

	return r
}
