// Package handler implements the HTTP API.
package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/appforge-dev/appforge/internal/deploy"
	"github.com/appforge-dev/appforge/internal/sandbox"
	"github.com/appforge-dev/appforge/internal/service"
	"github.com/appforge-dev/appforge/internal/stream"
)

// Handler carries the services the HTTP API dispatches to.
type Handler struct {
	sandboxService *service.SandboxService
	provider       sandbox.Provider
	logProvider    deploy.LogProvider
	streamCfg      stream.Config
	logger         *zap.Logger
}

// New creates the API handler.
func New(sandboxService *service.SandboxService, provider sandbox.Provider, logProvider deploy.LogProvider, logger *zap.Logger) *Handler {
	return &Handler{
		sandboxService: sandboxService,
		provider:       provider,
		logProvider:    logProvider,
		streamCfg:      stream.DefaultConfig(),
		logger:         logger.With(zap.String("component", "api")),
	}
}

// JSON writes v as a JSON response.
func (h *Handler) JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("failed to encode response", zap.Error(err))
	}
}

// Error writes an error response.
func (h *Handler) Error(w http.ResponseWriter, status int, msg string) {
	h.JSON(w, status, map[string]string{"error": msg})
}
