package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/appforge-dev/appforge/internal/database"
	"github.com/appforge-dev/appforge/internal/deploy"
	"github.com/appforge-dev/appforge/internal/model"
	"github.com/appforge-dev/appforge/internal/sandbox"
	"github.com/appforge-dev/appforge/internal/sandbox/mock"
	"github.com/appforge-dev/appforge/internal/service"
	"github.com/appforge-dev/appforge/internal/store"
	"github.com/appforge-dev/appforge/internal/stream"
)

// scriptedLogs serves a fixed event batch and status for streaming tests.
type scriptedLogs struct {
	events []deploy.Event
	status deploy.Status
}

func (s *scriptedLogs) FetchEvents(ctx context.Context, deploymentID string) ([]deploy.Event, error) {
	return s.events, nil
}

func (s *scriptedLogs) FetchStatus(ctx context.Context, deploymentID string) (deploy.Status, error) {
	return s.status, nil
}

type apiSetup struct {
	server    *httptest.Server
	provider  *mock.Provider
	projectID string
}

func newAPISetup(t *testing.T, logs deploy.LogProvider) *apiSetup {
	t.Helper()

	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	s := store.New(db)

	project := &model.Project{Name: "api-test", Framework: "nextjs"}
	if err := s.CreateProject(context.Background(), project); err != nil {
		t.Fatalf("create project: %v", err)
	}

	provider := mock.NewProvider()
	svc := service.NewSandboxService(s, provider, 10*time.Minute, zap.NewNop())

	h := New(svc, provider, logs, zap.NewNop())
	h.streamCfg = stream.Config{
		ActiveDelay:       time.Millisecond,
		IdleDelay:         time.Millisecond,
		StatusCheckEvery:  2,
		HeartbeatInterval: 0,
	}

	server := httptest.NewServer(NewRouter(h, s, []string{"*"}))
	t.Cleanup(server.Close)

	return &apiSetup{server: server, provider: provider, projectID: project.ID}
}

func (a *apiSetup) post(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(a.server.URL+path, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s response: %v", path, err)
	}
	return resp, body
}

func TestKeepAliveContract(t *testing.T) {
	a := newAPISetup(t, &scriptedLogs{})
	base := "/api/projects/" + a.projectID + "/sandbox"

	if resp, _ := a.post(t, base); resp.StatusCode != http.StatusCreated {
		t.Fatalf("create sandbox status = %d", resp.StatusCode)
	}

	resp, body := a.post(t, base+"/keepalive")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("keepalive status = %d, want 200", resp.StatusCode)
	}
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
	if id, _ := body["sandboxId"].(string); id == "" {
		t.Error("keepalive response missing sandboxId")
	}

	// Provider forgets the handle: still HTTP 200, the field flips.
	a.provider.ListDirFunc = func(ctx context.Context, id, path string) ([]sandbox.DirEntry, error) {
		return nil, sandbox.ErrNotFound
	}
	resp, body = a.post(t, base+"/keepalive")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("keepalive status = %d, want 200 even when the sandbox is gone", resp.StatusCode)
	}
	if body["success"] != false {
		t.Errorf("success = %v, want false", body["success"])
	}
	if body["needsRestart"] != true {
		t.Errorf("needsRestart = %v, want true", body["needsRestart"])
	}
}

func TestResumeExpiredRespondsOK(t *testing.T) {
	a := newAPISetup(t, &scriptedLogs{})
	base := "/api/projects/" + a.projectID + "/sandbox"

	a.post(t, base)
	a.provider.StartFunc = func(ctx context.Context, id string) error {
		return sandbox.ErrNotFound
	}

	resp, body := a.post(t, base+"/resume")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resume status = %d, want 200", resp.StatusCode)
	}
	if body["needsRestart"] != true {
		t.Errorf("needsRestart = %v, want true", body["needsRestart"])
	}
}

func TestUnknownProjectRejected(t *testing.T) {
	a := newAPISetup(t, &scriptedLogs{})

	resp, err := http.Post(a.server.URL+"/api/projects/no-such-project/sandbox/keepalive", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for unknown project", resp.StatusCode)
	}
}

func TestStreamDeploymentLogs(t *testing.T) {
	logs := &scriptedLogs{
		events: []deploy.Event{
			{ID: "evt-1", Type: "stdout", Text: "build ok", CreatedAt: 1700000000000},
		},
		status: deploy.StatusReady,
	}
	a := newAPISetup(t, logs)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.server.URL+"/api/projects/"+a.projectID+"/deployments/dpl-1/logs", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET logs: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 512)
	for {
		n, err := resp.Body.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			break
		}
	}
	body := string(buf)

	if !strings.Contains(body, ": connected") {
		t.Error("stream missing the connected comment")
	}
	if got := strings.Count(body, `"log":"build ok"`); got != 1 {
		t.Errorf("log frame count = %d, want 1:\n%s", got, body)
	}
	if got := strings.Count(body, `{"done":true}`); got != 1 {
		t.Errorf("done frame count = %d, want 1:\n%s", got, body)
	}
}
