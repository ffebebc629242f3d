package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/appforge-dev/appforge/internal/database"
	"github.com/appforge-dev/appforge/internal/model"
	"github.com/appforge-dev/appforge/internal/sandbox"
	"github.com/appforge-dev/appforge/internal/sandbox/mock"
	"github.com/appforge-dev/appforge/internal/store"
)

type testSetup struct {
	svc       *SandboxService
	provider  *mock.Provider
	store     *store.Store
	projectID string
}

func newTestSetup(t *testing.T, framework string) *testSetup {
	t.Helper()

	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	s := store.New(db)

	project := &model.Project{Name: "test-project", Framework: framework}
	if err := s.CreateProject(context.Background(), project); err != nil {
		t.Fatalf("create project: %v", err)
	}

	provider := mock.NewProvider()
	return &testSetup{
		svc:       NewSandboxService(s, provider, 10*time.Minute, zap.NewNop()),
		provider:  provider,
		store:     s,
		projectID: project.ID,
	}
}

func TestCreatePauseResume(t *testing.T) {
	ts := newTestSetup(t, "nextjs")
	ctx := context.Background()

	created, err := ts.svc.Create(ctx, ts.projectID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.SandboxID == "" || created.SandboxURL == "" {
		t.Fatalf("active sandbox must have id and url, got %+v", created)
	}
	if created.Status != model.SandboxStatusActive {
		t.Errorf("status = %q, want active", created.Status)
	}

	paused, err := ts.svc.Pause(ctx, ts.projectID)
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if paused.Status != model.SandboxStatusPaused {
		t.Errorf("status after pause = %q, want paused", paused.Status)
	}

	record, err := ts.store.GetSandboxByProjectID(ctx, ts.projectID)
	if err != nil {
		t.Fatalf("load record: %v", err)
	}
	if record.PausedAt == nil {
		t.Error("PausedAt not recorded on pause")
	}

	resumed, err := ts.svc.Resume(ctx, ts.projectID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.NeedsRestart {
		t.Error("resume of a live sandbox must not signal needsRestart")
	}
	if resumed.Status != model.SandboxStatusActive {
		t.Errorf("status after resume = %q, want active", resumed.Status)
	}
	// nextjs dev servers listen on 3000; the preview URL must carry it.
	if !strings.HasPrefix(resumed.SandboxURL, "https://3000-") {
		t.Errorf("sandbox URL %q does not use the nextjs default port", resumed.SandboxURL)
	}
}

func TestFrameworkPortInURL(t *testing.T) {
	tests := []struct {
		framework string
		wantPort  string
	}{
		{"nextjs", "3000"},
		{"vite", "5173"},
		{"astro", "4321"},
		{"unknown-framework", "3000"},
	}

	for _, tt := range tests {
		t.Run(tt.framework, func(t *testing.T) {
			ts := newTestSetup(t, tt.framework)
			created, err := ts.svc.Create(context.Background(), ts.projectID)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			wantPrefix := fmt.Sprintf("https://%s-", tt.wantPort)
			if !strings.HasPrefix(created.SandboxURL, wantPrefix) {
				t.Errorf("URL = %q, want prefix %q", created.SandboxURL, wantPrefix)
			}
		})
	}
}

func TestResumeExpiredSignalsRestart(t *testing.T) {
	ts := newTestSetup(t, "nextjs")
	ctx := context.Background()

	created, err := ts.svc.Create(ctx, ts.projectID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Provider forgot the handle: the retention window lapsed.
	ts.provider.StartFunc = func(ctx context.Context, id string) error {
		return sandbox.ErrNotFound
	}

	state, err := ts.svc.Resume(ctx, ts.projectID)
	if err != nil {
		t.Fatalf("Resume of an expired sandbox must not error, got %v", err)
	}
	if !state.NeedsRestart {
		t.Fatal("expected needsRestart after provider not-found")
	}
	if state.Status != model.SandboxStatusExpired {
		t.Errorf("status = %q, want expired", state.Status)
	}

	// The old handle stays on the record for audit.
	record, err := ts.store.GetSandboxByProjectID(ctx, ts.projectID)
	if err != nil {
		t.Fatalf("load record: %v", err)
	}
	if record.SandboxID != created.SandboxID {
		t.Errorf("expired record lost its handle: %q != %q", record.SandboxID, created.SandboxID)
	}

	// Restart provisions a brand-new handle, never reusing the old one.
	ts.provider.StartFunc = nil
	restarted, err := ts.svc.Restart(ctx, ts.projectID)
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if restarted.SandboxID == created.SandboxID {
		t.Errorf("restart reused the expired handle %q", created.SandboxID)
	}
	if restarted.Status != model.SandboxStatusActive {
		t.Errorf("status after restart = %q, want active", restarted.Status)
	}
}

func TestPauseVerifiesHandleFirst(t *testing.T) {
	ts := newTestSetup(t, "nextjs")
	ctx := context.Background()

	if _, err := ts.svc.Create(ctx, ts.projectID); err != nil {
		t.Fatalf("Create: %v", err)
	}

	stopCalled := false
	ts.provider.GetFunc = func(ctx context.Context, id string) (*sandbox.Sandbox, error) {
		return nil, sandbox.ErrNotFound
	}
	ts.provider.StopFunc = func(ctx context.Context, id string) error {
		stopCalled = true
		return nil
	}

	state, err := ts.svc.Pause(ctx, ts.projectID)
	if err != nil {
		t.Fatalf("Pause of an expired sandbox must not error, got %v", err)
	}
	if !state.NeedsRestart {
		t.Error("expected needsRestart when the handle is gone")
	}
	if stopCalled {
		t.Error("stop must not be issued against a handle that no longer exists")
	}
}

func TestKeepAliveNeverPropagatesFailures(t *testing.T) {
	ts := newTestSetup(t, "nextjs")
	ctx := context.Background()

	if _, err := ts.svc.Create(ctx, ts.projectID); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Transient probe failure: the caller path completes normally.
	ts.provider.ListDirFunc = func(ctx context.Context, id, path string) ([]sandbox.DirEntry, error) {
		return nil, errors.New("provider briefly unreachable")
	}
	result := ts.svc.KeepAlive(ctx, ts.projectID)
	if !result.Success {
		t.Error("transient probe failure must not flip success")
	}
	if result.NeedsRestart {
		t.Error("transient probe failure must not signal needsRestart")
	}

	// Handle gone: needsRestart, still no error path.
	ts.provider.ListDirFunc = func(ctx context.Context, id, path string) ([]sandbox.DirEntry, error) {
		return nil, sandbox.ErrNotFound
	}
	result = ts.svc.KeepAlive(ctx, ts.projectID)
	if result.Success {
		t.Error("gone handle must report success=false")
	}
	if !result.NeedsRestart {
		t.Error("gone handle must signal needsRestart")
	}

	record, err := ts.store.GetSandboxByProjectID(ctx, ts.projectID)
	if err != nil {
		t.Fatalf("load record: %v", err)
	}
	if record.Status != model.SandboxStatusExpired {
		t.Errorf("record status = %q, want expired", record.Status)
	}
}

func TestKeepAliveUpdatesLastChecked(t *testing.T) {
	ts := newTestSetup(t, "nextjs")
	ctx := context.Background()

	if _, err := ts.svc.Create(ctx, ts.projectID); err != nil {
		t.Fatalf("Create: %v", err)
	}

	result := ts.svc.KeepAlive(ctx, ts.projectID)
	if !result.Success {
		t.Fatalf("KeepAlive: %+v", result)
	}

	record, err := ts.store.GetSandboxByProjectID(ctx, ts.projectID)
	if err != nil {
		t.Fatalf("load record: %v", err)
	}
	if record.LastCheckedAt == nil {
		t.Error("LastCheckedAt not updated by keepalive")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	ts := newTestSetup(t, "nextjs")
	ctx := context.Background()

	if _, err := ts.svc.Create(ctx, ts.projectID); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := ts.svc.Delete(ctx, ts.projectID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Second delete: record and handle are both gone already.
	if err := ts.svc.Delete(ctx, ts.projectID); err != nil {
		t.Fatalf("second Delete must be a no-op, got %v", err)
	}

	if len(ts.provider.Sandboxes()) != 0 {
		t.Error("provider still holds sandboxes after delete")
	}
}

func TestEnsureRunningStartsStoppedSandbox(t *testing.T) {
	ts := newTestSetup(t, "vite")
	ctx := context.Background()

	created, err := ts.svc.Create(ctx, ts.projectID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := ts.provider.Stop(ctx, created.SandboxID); err != nil {
		t.Fatalf("stop via provider: %v", err)
	}

	state, err := ts.svc.EnsureRunning(ctx, ts.projectID)
	if err != nil {
		t.Fatalf("EnsureRunning: %v", err)
	}
	if state.Status != model.SandboxStatusActive {
		t.Errorf("status = %q, want active", state.Status)
	}

	handle, err := ts.provider.Get(ctx, created.SandboxID)
	if err != nil {
		t.Fatalf("provider get: %v", err)
	}
	if handle.Status != sandbox.StatusRunning {
		t.Errorf("provider status = %q, want running", handle.Status)
	}
}

func TestEnsureRunningOnLiveSandboxIsCheap(t *testing.T) {
	ts := newTestSetup(t, "nextjs")
	ctx := context.Background()

	if _, err := ts.svc.Create(ctx, ts.projectID); err != nil {
		t.Fatalf("Create: %v", err)
	}

	startCalled := false
	ts.provider.StartFunc = func(ctx context.Context, id string) error {
		startCalled = true
		return nil
	}

	if _, err := ts.svc.EnsureRunning(ctx, ts.projectID); err != nil {
		t.Fatalf("EnsureRunning: %v", err)
	}
	if startCalled {
		t.Error("liveness probe succeeded, start should not have been attempted")
	}
}

func TestEnsureRunningExpiredSignalsRestart(t *testing.T) {
	ts := newTestSetup(t, "nextjs")
	ctx := context.Background()

	if _, err := ts.svc.Create(ctx, ts.projectID); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ts.provider.ListDirFunc = func(ctx context.Context, id, path string) ([]sandbox.DirEntry, error) {
		return nil, sandbox.ErrNotFound
	}
	ts.provider.StartFunc = func(ctx context.Context, id string) error {
		return sandbox.ErrNotFound
	}

	state, err := ts.svc.EnsureRunning(ctx, ts.projectID)
	if err != nil {
		t.Fatalf("EnsureRunning must not error on expiry, got %v", err)
	}
	if !state.NeedsRestart {
		t.Error("expected needsRestart when probe and start both report not-found")
	}
}

func TestCreateProvisionFailure(t *testing.T) {
	ts := newTestSetup(t, "nextjs")
	ctx := context.Background()

	ts.provider.CreateFunc = func(ctx context.Context, opts sandbox.CreateOptions) (*sandbox.Sandbox, error) {
		return nil, fmt.Errorf("%w: missing credentials", sandbox.ErrProvision)
	}

	if _, err := ts.svc.Create(ctx, ts.projectID); !errors.Is(err, sandbox.ErrProvision) {
		t.Fatalf("want ErrProvision, got %v", err)
	}
}
