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

	// Burst of 50 deletes, then 5/second
	deletes := NewDeleteRateLimiter(50, 200*time.Millisecond)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.token))
			r.Use(IdentityMiddleware(h.ident))

			r.Post("/sync", h.Sync)
			r.Get("/sync/status", h.SyncStatus)
			r.Post("/lifecycle/{event}", h.Lifecycle)

			r.Get("/workouts", h.ListWorkouts)
			r.Post("/workouts", h.CreateWorkout)
			r.Patch("/workouts/{id}", h.UpdateWorkout)
			r.With(deletes.Middleware).Delete("/workouts/{id}", h.DeleteWorkout)

			r.Get("/calendar", h.Calendar)
			r.Get("/stats", h.Stats)

			r.Get("/feed", h.Feed)
			r.Post("/feed/{id}/reactions", h.AddReaction)
			r.With(deletes.Middleware).Delete("/feed/{id}/reactions/{reaction}", h.RemoveReaction)

			r.With(deletes.Middleware).Delete("/groups/{id}", h.DeleteGroup)
		})
	})

	return r
}
