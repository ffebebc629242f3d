// Package service implements the application services that handlers call.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/appforge-dev/appforge/internal/model"
	"github.com/appforge-dev/appforge/internal/sandbox"
	"github.com/appforge-dev/appforge/internal/store"
)

// Default resource profile for project sandboxes.
const (
	sandboxCPUCores = 2
	sandboxMemoryMB = 4096
	sandboxDiskMB   = 10240
)

// SandboxState is the API-facing view of a project's sandbox.
type SandboxState struct {
	SandboxID  string `json:"sandboxId,omitempty"`
	SandboxURL string `json:"sandboxUrl,omitempty"`
	Status     string `json:"status,omitempty"`

	// NeedsRestart is set when the provider reports the handle gone.
	// Expiry of a paused sandbox is an expected, recoverable condition;
	// callers branch on this field rather than on an error.
	NeedsRestart bool `json:"needsRestart,omitempty"`
}

// KeepAliveResult is the response shape of the keep-alive endpoint.
type KeepAliveResult struct {
	Success      bool   `json:"success"`
	SandboxID    string `json:"sandboxId,omitempty"`
	NeedsRestart bool   `json:"needsRestart,omitempty"`
}

// SandboxService owns the sandbox lifecycle for projects. The remote
// provider is the source of truth for whether a sandbox actually runs; the
// service holds no in-process locks and re-confirms the handle before every
// mutating operation.
type SandboxService struct {
	store    *store.Store
	provider sandbox.Provider
	logger   *zap.Logger
	autoIdle time.Duration
}

// NewSandboxService creates a sandbox service.
func NewSandboxService(s *store.Store, p sandbox.Provider, autoIdle time.Duration, logger *zap.Logger) *SandboxService {
	return &SandboxService{
		store:    s,
		provider: p,
		logger:   logger.With(zap.String("service", "sandbox")),
		autoIdle: autoIdle,
	}
}

// Create provisions a sandbox for the project and persists its record.
// If the project already has a record, the old handle is replaced the same
// way Restart replaces it.
func (s *SandboxService) Create(ctx context.Context, projectID string) (*SandboxState, error) {
	project, err := s.store.GetProjectByID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}

	record, err := s.store.GetSandboxByProjectID(ctx, projectID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load sandbox record: %w", err)
	}
	if record == nil {
		record = &model.SandboxRecord{
			ProjectID: projectID,
			Framework: project.Framework,
		}
		if err := s.provision(ctx, record); err != nil {
			return nil, err
		}
		if err := s.store.CreateSandbox(ctx, record); err != nil {
			return nil, fmt.Errorf("persist sandbox record: %w", err)
		}
		return stateOf(record), nil
	}

	return s.Restart(ctx, projectID)
}

// Get returns the current sandbox state for a project.
func (s *SandboxService) Get(ctx context.Context, projectID string) (*SandboxState, error) {
	record, err := s.store.GetSandboxByProjectID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load sandbox record: %w", err)
	}
	return stateOf(record), nil
}

// Pause stops the project's sandbox, transitioning active to paused.
// The handle is re-confirmed first so we never issue a stop against an
// already-expired handle; a gone handle yields needsRestart, not an error.
func (s *SandboxService) Pause(ctx context.Context, projectID string) (*SandboxState, error) {
	record, err := s.store.GetSandboxByProjectID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load sandbox record: %w", err)
	}

	if _, err := s.provider.Get(ctx, record.SandboxID); err != nil {
		if errors.Is(err, sandbox.ErrNotFound) {
			return s.markExpired(ctx, record), nil
		}
		return nil, fmt.Errorf("verify sandbox %s: %w", record.SandboxID, err)
	}

	if err := s.provider.Stop(ctx, record.SandboxID); err != nil {
		if errors.Is(err, sandbox.ErrNotFound) {
			return s.markExpired(ctx, record), nil
		}
		return nil, fmt.Errorf("stop sandbox %s: %w", record.SandboxID, err)
	}

	now := time.Now()
	record.Status = model.SandboxStatusPaused
	record.PausedAt = &now
	if err := s.store.UpdateSandbox(ctx, record); err != nil {
		return nil, fmt.Errorf("persist sandbox record: %w", err)
	}
	return stateOf(record), nil
}

// Resume starts a paused sandbox, transitioning paused to active. When the
// provider reports the handle gone the record moves to expired and the
// caller is told to restart instead of receiving an error.
func (s *SandboxService) Resume(ctx context.Context, projectID string) (*SandboxState, error) {
	record, err := s.store.GetSandboxByProjectID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load sandbox record: %w", err)
	}

	if err := s.provider.Start(ctx, record.SandboxID); err != nil {
		if errors.Is(err, sandbox.ErrNotFound) {
			return s.markExpired(ctx, record), nil
		}
		return nil, fmt.Errorf("start sandbox %s: %w", record.SandboxID, err)
	}

	handle, err := s.provider.Get(ctx, record.SandboxID)
	if err != nil {
		if errors.Is(err, sandbox.ErrNotFound) {
			return s.markExpired(ctx, record), nil
		}
		return nil, fmt.Errorf("fetch sandbox %s after start: %w", record.SandboxID, err)
	}

	now := time.Now()
	record.Status = model.SandboxStatusActive
	record.ResumedAt = &now
	// The preview address is re-derived on every (re)start; providers may
	// move resumed sandboxes to a different host.
	record.SandboxURL = s.provider.URL(handle, model.DefaultPort(record.Framework))
	if err := s.store.UpdateSandbox(ctx, record); err != nil {
		return nil, fmt.Errorf("persist sandbox record: %w", err)
	}
	return stateOf(record), nil
}

// Restart provisions a brand-new handle for the project, ignoring the old
// one. Used when expiry was detected and the caller wants a clean
// environment rather than resumption.
func (s *SandboxService) Restart(ctx context.Context, projectID string) (*SandboxState, error) {
	record, err := s.store.GetSandboxByProjectID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load sandbox record: %w", err)
	}

	oldID := record.SandboxID
	if err := s.provision(ctx, record); err != nil {
		return nil, err
	}
	if err := s.store.UpdateSandbox(ctx, record); err != nil {
		return nil, fmt.Errorf("persist sandbox record: %w", err)
	}

	// Best-effort cleanup of the replaced handle. Expired handles are
	// usually gone already; Delete treats that as success.
	if oldID != "" {
		if err := s.provider.Delete(ctx, oldID); err != nil {
			s.logger.Warn("failed to release replaced sandbox",
				zap.String("sandbox_id", oldID), zap.Error(err))
		}
	}

	return stateOf(record), nil
}

// Delete releases the project's sandbox and removes its record. Idempotent:
// a missing record or an already-gone handle is not an error.
func (s *SandboxService) Delete(ctx context.Context, projectID string) error {
	record, err := s.store.GetSandboxByProjectID(ctx, projectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load sandbox record: %w", err)
	}

	if record.SandboxID != "" {
		if err := s.provider.Delete(ctx, record.SandboxID); err != nil {
			return fmt.Errorf("delete sandbox %s: %w", record.SandboxID, err)
		}
	}
	return s.store.DeleteSandbox(ctx, projectID)
}

// EnsureRunning makes the project's sandbox active if at all possible:
// a cheap liveness probe first, then a start attempt. Only a failed start
// surfaces as an error.
func (s *SandboxService) EnsureRunning(ctx context.Context, projectID string) (*SandboxState, error) {
	record, err := s.store.GetSandboxByProjectID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load sandbox record: %w", err)
	}

	if _, err := s.provider.ListDir(ctx, record.SandboxID, "/"); err == nil {
		return s.touch(ctx, record), nil
	}

	if err := s.provider.Start(ctx, record.SandboxID); err != nil {
		if errors.Is(err, sandbox.ErrNotFound) {
			return s.markExpired(ctx, record), nil
		}
		return nil, fmt.Errorf("start sandbox %s: %w", record.SandboxID, err)
	}
	return s.Resume(ctx, projectID)
}

// KeepAlive probes the sandbox so the provider's auto-idle timer resets.
// Fire-and-forget: failures are logged, never returned, and never affect
// the caller's flow. Only a provider not-found flips needsRestart.
func (s *SandboxService) KeepAlive(ctx context.Context, projectID string) *KeepAliveResult {
	record, err := s.store.GetSandboxByProjectID(ctx, projectID)
	if err != nil {
		s.logger.Debug("keepalive: no sandbox record",
			zap.String("project_id", projectID), zap.Error(err))
		return &KeepAliveResult{Success: false, NeedsRestart: true}
	}

	if _, err := s.provider.ListDir(ctx, record.SandboxID, "/"); err != nil {
		if errors.Is(err, sandbox.ErrNotFound) {
			s.markExpired(ctx, record)
			return &KeepAliveResult{Success: false, NeedsRestart: true}
		}
		// Transient probe failure. The next keepalive tick retries.
		s.logger.Warn("keepalive probe failed",
			zap.String("sandbox_id", record.SandboxID), zap.Error(err))
		return &KeepAliveResult{Success: true, SandboxID: record.SandboxID}
	}

	s.touch(ctx, record)
	return &KeepAliveResult{Success: true, SandboxID: record.SandboxID}
}

// provision allocates a fresh handle and rewrites the record's handle
// fields. An expired record's old SandboxID is never passed back to the
// provider as a handle to start.
func (s *SandboxService) provision(ctx context.Context, record *model.SandboxRecord) error {
	port := model.DefaultPort(record.Framework)
	handle, err := s.provider.Create(ctx, sandbox.CreateOptions{
		Metadata:     map[string]string{"projectId": record.ProjectID},
		PublicAccess: true,
		Env:          map[string]string{"PORT": fmt.Sprintf("%d", port)},
		Resources: sandbox.ResourceConfig{
			CPUCores: sandboxCPUCores,
			MemoryMB: sandboxMemoryMB,
			DiskMB:   sandboxDiskMB,
		},
		AutoIdleMinutes: int(s.autoIdle.Minutes()),
		Ports:           []int{port},
	})
	if err != nil {
		return fmt.Errorf("provision sandbox: %w", err)
	}

	now := time.Now()
	record.SandboxID = handle.ID
	record.SandboxURL = s.provider.URL(handle, port)
	record.Status = model.SandboxStatusActive
	record.ResumedAt = &now

	s.logger.Info("sandbox provisioned",
		zap.String("project_id", record.ProjectID),
		zap.String("sandbox_id", handle.ID),
		zap.String("url", record.SandboxURL))
	return nil
}

// markExpired records that the provider no longer knows the handle. The
// SandboxID stays on the record for audit but is never reused.
func (s *SandboxService) markExpired(ctx context.Context, record *model.SandboxRecord) *SandboxState {
	record.Status = model.SandboxStatusExpired
	if err := s.store.UpdateSandbox(ctx, record); err != nil {
		s.logger.Warn("failed to persist expired status",
			zap.String("project_id", record.ProjectID), zap.Error(err))
	}
	state := stateOf(record)
	state.NeedsRestart = true
	return state
}

// touch updates LastCheckedAt best-effort.
func (s *SandboxService) touch(ctx context.Context, record *model.SandboxRecord) *SandboxState {
	now := time.Now()
	record.LastCheckedAt = &now
	if err := s.store.UpdateSandbox(ctx, record); err != nil {
		s.logger.Debug("failed to persist last-checked timestamp",
			zap.String("project_id", record.ProjectID), zap.Error(err))
	}
	return stateOf(record)
}

func stateOf(record *model.SandboxRecord) *SandboxState {
	return &SandboxState{
		SandboxID:  record.SandboxID,
		SandboxURL: record.SandboxURL,
		Status:     record.Status,
	}
}
