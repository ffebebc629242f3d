package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/appforge-dev/appforge/internal/stream"
)

// StreamDeploymentLogs tails a deployment's build log over SSE. The stream
// always ends with a terminal frame, {done:true} or {error}, unless the
// client disconnects first, which cancels the poll loop and heartbeat via
// the request context.
// GET /api/projects/{projectId}/deployments/{deploymentId}/logs
func (h *Handler) StreamDeploymentLogs(w http.ResponseWriter, r *http.Request) {
	deploymentID := chi.URLParam(r, "deploymentId")
	if deploymentID == "" {
		h.Error(w, http.StatusBadRequest, "deploymentId is required")
		return
	}

	sse, err := stream.NewSSEWriter(w)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer sse.Close()

	session := stream.NewSession(deploymentID, h.logProvider, h.streamCfg, h.logger)
	session.Run(r.Context(), sse)

	h.logger.Debug("log stream ended",
		zap.String("deployment_id", deploymentID))
}
