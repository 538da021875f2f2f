package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter assembles the read-only API. Every route is a GET; mutation
// stays with the CLI owning the browser session.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/jobs", h.ListJobs)
		r.Get("/jobs/search", h.SearchJobs)
		r.Get("/jobs/{externalID}", h.GetJob)

		r.Get("/searches", h.ListSearches)
		r.Get("/searches/{searchID}", h.GetSearch)
		r.Get("/searches/{searchID}/jobs", h.GetSearchJobs)
		r.Get("/searches/{searchID}/errors", h.GetSearchErrors)

		r.Get("/stats", h.GetStats)
	})

	return r
}
