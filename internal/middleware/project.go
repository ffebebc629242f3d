// Package middleware provides chi middleware for request scoping.
package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/appforge-dev/appforge/internal/model"
	"github.com/appforge-dev/appforge/internal/store"
)

type contextKey string

const projectKey contextKey = "project"

// ProjectContext middleware validates that the project identified by the
// {projectId} URL parameter exists and stores it in the request context.
// This keeps handlers from acting on guessed project IDs.
//
// Must be mounted inside a route that defines {projectId}, e.g.:
//
//	r.Route("/{projectId}", func(r chi.Router) {
//	    r.Use(middleware.ProjectContext(s))
//	    ...
//	})
func ProjectContext(s *store.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			projectID := chi.URLParam(r, "projectId")
			if projectID == "" {
				http.Error(w, `{"error":"Project ID required"}`, http.StatusBadRequest)
				return
			}

			project, err := s.GetProjectByID(r.Context(), projectID)
			if err != nil {
				http.Error(w, `{"error":"Project not found"}`, http.StatusNotFound)
				return
			}

			ctx := context.WithValue(r.Context(), projectKey, project)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetProject extracts the project from context (set by ProjectContext).
func GetProject(ctx context.Context) *model.Project {
	if p, ok := ctx.Value(projectKey).(*model.Project); ok {
		return p
	}
	return nil
}

// GetProjectID extracts the project ID from context, or "" when absent.
func GetProjectID(ctx context.Context) string {
	if p := GetProject(ctx); p != nil {
		return p.ID
	}
	return ""
}
