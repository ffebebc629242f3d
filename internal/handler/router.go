package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/appforge-dev/appforge/internal/middleware"
	"github.com/appforge-dev/appforge/internal/store"
)

// NewRouter builds the API router.
func NewRouter(h *Handler, s *store.Store, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api/projects/{projectId}", func(r chi.Router) {
		r.Use(middleware.ProjectContext(s))

		r.Route("/sandbox", func(r chi.Router) {
			r.Post("/", h.CreateSandbox)
			r.Get("/", h.GetSandbox)
			r.Delete("/", h.DeleteSandbox)
			r.Post("/pause", h.PauseSandbox)
			r.Post("/resume", h.ResumeSandbox)
			r.Post("/restart", h.RestartSandbox)
			r.Post("/ensure", h.EnsureSandbox)
			r.Post("/keepalive", h.KeepAlive)
			r.Get("/exec", h.ExecSocket)
		})

		r.Get("/deployments/{deploymentId}/logs", h.StreamDeploymentLogs)
	})

	return r
}
