package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/appforge-dev/appforge/internal/middleware"
	"github.com/appforge-dev/appforge/internal/sandbox"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origin is enforced by the CORS layer in front of the API.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// execMessage is one command request from the client.
type execMessage struct {
	Command string `json:"command"`
	Cwd     string `json:"cwd,omitempty"`
}

// execReply is the result of one command.
type execReply struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
	Error    string `json:"error,omitempty"`
}

// ExecSocket runs commands in the project's sandbox over a websocket.
// The client sends {command,cwd} messages and receives one
// {stdout,stderr,exitCode} reply per command.
// GET /api/projects/{projectId}/sandbox/exec
func (h *Handler) ExecSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := middleware.GetProjectID(ctx)

	state, err := h.sandboxService.Get(ctx, projectID)
	if err != nil || state.SandboxID == "" {
		h.Error(w, http.StatusNotFound, "no sandbox for project")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	for {
		var msg execMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("exec socket closed unexpectedly", zap.Error(err))
			}
			return
		}
		if strings.TrimSpace(msg.Command) == "" {
			continue
		}

		result, err := h.provider.Exec(ctx, state.SandboxID, []string{"sh", "-c", msg.Command}, sandbox.ExecOptions{
			Cwd:     msg.Cwd,
			Timeout: 2 * time.Minute,
		})
		reply := execReply{}
		switch {
		case errors.Is(err, sandbox.ErrNotFound):
			reply.Error = "sandbox not found"
		case err != nil:
			reply.Error = err.Error()
		default:
			reply.Stdout = result.Stdout
			reply.Stderr = result.Stderr
			reply.ExitCode = result.ExitCode
		}

		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}
