package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)

	// Public route (no auth required)
	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(h.token))
		r.Get("/sync/status", h.Status)
		r.Post("/sync/trigger", h.Trigger)
		r.Post("/app/state", h.AppState)
	})

	return r
}
