// Package mock provides a mock implementation of sandbox.Provider for testing.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/appforge-dev/appforge/internal/sandbox"
)

// Provider is a mock sandbox provider for testing.
type Provider struct {
	mu        sync.RWMutex
	sandboxes map[string]*sandbox.Sandbox
	nextID    int

	// Configurable behaviors for testing
	CreateFunc  func(ctx context.Context, opts sandbox.CreateOptions) (*sandbox.Sandbox, error)
	GetFunc     func(ctx context.Context, id string) (*sandbox.Sandbox, error)
	StartFunc   func(ctx context.Context, id string) error
	StopFunc    func(ctx context.Context, id string) error
	DeleteFunc  func(ctx context.Context, id string) error
	ExecFunc    func(ctx context.Context, id string, cmd []string, opts sandbox.ExecOptions) (*sandbox.ExecResult, error)
	ListDirFunc func(ctx context.Context, id, path string) ([]sandbox.DirEntry, error)
}

// NewProvider creates a new mock provider with default behavior.
func NewProvider() *Provider {
	return &Provider{
		sandboxes: make(map[string]*sandbox.Sandbox),
	}
}

// Create creates a mock sandbox in the running state.
func (p *Provider) Create(ctx context.Context, opts sandbox.CreateOptions) (*sandbox.Sandbox, error) {
	if p.CreateFunc != nil {
		return p.CreateFunc(ctx, opts)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	now := time.Now()
	s := &sandbox.Sandbox{
		ID:        fmt.Sprintf("mock-sbx-%d", p.nextID),
		Status:    sandbox.StatusRunning,
		Template:  opts.Template,
		Host:      "mock.local",
		CreatedAt: now,
		StartedAt: &now,
		Metadata:  opts.Metadata,
		Env:       opts.Env,
	}
	p.sandboxes[s.ID] = s
	return copySandbox(s), nil
}

// Get returns a mock sandbox.
func (p *Provider) Get(ctx context.Context, id string) (*sandbox.Sandbox, error) {
	if p.GetFunc != nil {
		return p.GetFunc(ctx, id)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	s, exists := p.sandboxes[id]
	if !exists {
		return nil, sandbox.ErrNotFound
	}
	return copySandbox(s), nil
}

// Start starts a mock sandbox.
func (p *Provider) Start(ctx context.Context, id string) error {
	if p.StartFunc != nil {
		return p.StartFunc(ctx, id)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	s, exists := p.sandboxes[id]
	if !exists {
		return sandbox.ErrNotFound
	}
	s.Status = sandbox.StatusRunning
	now := time.Now()
	s.StartedAt = &now
	s.StoppedAt = nil
	return nil
}

// Stop stops a mock sandbox.
func (p *Provider) Stop(ctx context.Context, id string) error {
	if p.StopFunc != nil {
		return p.StopFunc(ctx, id)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	s, exists := p.sandboxes[id]
	if !exists {
		return sandbox.ErrNotFound
	}
	s.Status = sandbox.StatusStopped
	now := time.Now()
	s.StoppedAt = &now
	return nil
}

// Delete removes a mock sandbox. Idempotent.
func (p *Provider) Delete(ctx context.Context, id string) error {
	if p.DeleteFunc != nil {
		return p.DeleteFunc(ctx, id)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.sandboxes, id)
	return nil
}

// Exec runs a mock command.
func (p *Provider) Exec(ctx context.Context, id string, cmd []string, opts sandbox.ExecOptions) (*sandbox.ExecResult, error) {
	if p.ExecFunc != nil {
		return p.ExecFunc(ctx, id, cmd, opts)
	}

	p.mu.RLock()
	_, exists := p.sandboxes[id]
	p.mu.RUnlock()

	if !exists {
		return nil, sandbox.ErrNotFound
	}
	return &sandbox.ExecResult{ExitCode: 0, Stdout: "mock output\n"}, nil
}

// ListDir lists a mock directory.
func (p *Provider) ListDir(ctx context.Context, id, path string) ([]sandbox.DirEntry, error) {
	if p.ListDirFunc != nil {
		return p.ListDirFunc(ctx, id, path)
	}

	p.mu.RLock()
	s, exists := p.sandboxes[id]
	p.mu.RUnlock()

	if !exists {
		return nil, sandbox.ErrNotFound
	}
	if s.Status != sandbox.StatusRunning {
		return nil, sandbox.ErrNotRunning
	}
	return []sandbox.DirEntry{
		{Name: "package.json"},
		{Name: "src", IsDir: true},
	}, nil
}

// URL derives a predictable preview URL for assertions.
func (p *Provider) URL(s *sandbox.Sandbox, port int) string {
	return fmt.Sprintf("https://%d-%s.%s", port, s.ID, s.Host)
}

// Sandboxes returns all sandboxes (for test assertions).
func (p *Provider) Sandboxes() map[string]*sandbox.Sandbox {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make(map[string]*sandbox.Sandbox, len(p.sandboxes))
	for k, v := range p.sandboxes {
		result[k] = copySandbox(v)
	}
	return result
}

func copySandbox(s *sandbox.Sandbox) *sandbox.Sandbox {
	cpy := *s
	return &cpy
}
