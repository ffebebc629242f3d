package handler

import (
	"errors"
	"net/http"

	"github.com/appforge-dev/appforge/internal/middleware"
	"github.com/appforge-dev/appforge/internal/store"
)

// CreateSandbox provisions a sandbox for the project.
// POST /api/projects/{projectId}/sandbox
func (h *Handler) CreateSandbox(w http.ResponseWriter, r *http.Request) {
	state, err := h.sandboxService.Create(r.Context(), middleware.GetProjectID(r.Context()))
	if err != nil {
		h.Error(w, http.StatusBadGateway, err.Error())
		return
	}
	h.JSON(w, http.StatusCreated, state)
}

// GetSandbox returns the project's sandbox state.
// GET /api/projects/{projectId}/sandbox
func (h *Handler) GetSandbox(w http.ResponseWriter, r *http.Request) {
	state, err := h.sandboxService.Get(r.Context(), middleware.GetProjectID(r.Context()))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "no sandbox for project")
			return
		}
		h.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.JSON(w, http.StatusOK, state)
}

// PauseSandbox stops the project's sandbox.
// POST /api/projects/{projectId}/sandbox/pause
func (h *Handler) PauseSandbox(w http.ResponseWriter, r *http.Request) {
	state, err := h.sandboxService.Pause(r.Context(), middleware.GetProjectID(r.Context()))
	if err != nil {
		h.Error(w, http.StatusBadGateway, err.Error())
		return
	}
	h.JSON(w, http.StatusOK, state)
}

// ResumeSandbox starts a paused sandbox. When the provider reports the
// handle gone this still responds 200 with needsRestart set; the client
// branches on the field, not the HTTP status.
// POST /api/projects/{projectId}/sandbox/resume
func (h *Handler) ResumeSandbox(w http.ResponseWriter, r *http.Request) {
	state, err := h.sandboxService.Resume(r.Context(), middleware.GetProjectID(r.Context()))
	if err != nil {
		h.Error(w, http.StatusBadGateway, err.Error())
		return
	}
	h.JSON(w, http.StatusOK, state)
}

// RestartSandbox provisions a fresh sandbox for the project.
// POST /api/projects/{projectId}/sandbox/restart
func (h *Handler) RestartSandbox(w http.ResponseWriter, r *http.Request) {
	state, err := h.sandboxService.Restart(r.Context(), middleware.GetProjectID(r.Context()))
	if err != nil {
		h.Error(w, http.StatusBadGateway, err.Error())
		return
	}
	h.JSON(w, http.StatusOK, state)
}

// DeleteSandbox releases the project's sandbox.
// DELETE /api/projects/{projectId}/sandbox
func (h *Handler) DeleteSandbox(w http.ResponseWriter, r *http.Request) {
	if err := h.sandboxService.Delete(r.Context(), middleware.GetProjectID(r.Context())); err != nil {
		h.Error(w, http.StatusBadGateway, err.Error())
		return
	}
	h.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// EnsureSandbox makes the sandbox active, starting it if needed.
// POST /api/projects/{projectId}/sandbox/ensure
func (h *Handler) EnsureSandbox(w http.ResponseWriter, r *http.Request) {
	state, err := h.sandboxService.EnsureRunning(r.Context(), middleware.GetProjectID(r.Context()))
	if err != nil {
		h.Error(w, http.StatusBadGateway, err.Error())
		return
	}
	h.JSON(w, http.StatusOK, state)
}

// KeepAlive resets the sandbox's idle timer while a client is present.
// Always responds 200; a gone handle is reported through needsRestart.
// POST /api/projects/{projectId}/sandbox/keepalive
func (h *Handler) KeepAlive(w http.ResponseWriter, r *http.Request) {
	result := h.sandboxService.KeepAlive(r.Context(), middleware.GetProjectID(r.Context()))
	h.JSON(w, http.StatusOK, result)
}
