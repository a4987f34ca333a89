package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	// Session creation allocates server memory: burst of 50, then 10/second.
	sessionLimiter := NewRateLimiter(50, 100*time.Millisecond)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(SnapshotMiddleware(h.catalog))

		// Public routes
		r.Get("/health", h.Health)

		// Protected routes (auth required)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))
			r.Get("/facets", h.Facets)
			r.Post("/products/filter", h.FilterProducts)
			r.Post("/chips/preview", h.PreviewChips)
			r.Post("/chips/availability", h.ChipAvailability)
			r.Post("/chat", h.Chat)

			r.With(sessionLimiter.Middleware).Post("/sessions", h.CreateSession)
			r.Get("/sessions/{id}", h.GetSession)
			r.Delete("/sessions/{id}", h.DeleteSession)
			r.Post("/sessions/{id}/turns", h.SessionTurn)
		})
	})

	return r
}
