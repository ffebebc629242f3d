// Package cloudbox implements sandbox.Provider against the hosted cloudbox
// REST API. Sandboxes are ephemeral micro-VMs addressed as
// https://{port}-{id}.{domain}.
package cloudbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/appforge-dev/appforge/internal/sandbox"
)

const (
	// defaultDomain is the default cloudbox API domain.
	defaultDomain = "cloudbox.dev"

	// defaultTemplate is the default sandbox template (Node-based with
	// the appforge toolchain preinstalled).
	defaultTemplate = "appforge-node22"

	// defaultAutoIdleMinutes is the provider-side idle timer applied when
	// the caller does not declare one.
	defaultAutoIdleMinutes = 10

	// httpTimeout bounds individual API calls.
	httpTimeout = 60 * time.Second
)

// Config holds configuration for the cloudbox provider.
type Config struct {
	// APIKey authenticates against the cloudbox control plane (required).
	APIKey string

	// Domain is the cloudbox domain. Defaults to "cloudbox.dev".
	Domain string

	// APIURL is the control plane URL. Defaults to "https://api.{Domain}".
	APIURL string

	// Template is the default sandbox template ID.
	Template string
}

// Provider is a sandbox.Provider backed by the cloudbox REST API.
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New creates a cloudbox provider. Fails when no API key is configured so
// that misconfiguration surfaces at startup rather than on first use.
func New(cfg Config, logger *zap.Logger) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: cloudbox API key is required", sandbox.ErrProvision)
	}
	if cfg.Domain == "" {
		cfg.Domain = defaultDomain
	}
	if cfg.APIURL == "" {
		cfg.APIURL = fmt.Sprintf("https://api.%s", cfg.Domain)
	}
	if cfg.Template == "" {
		cfg.Template = defaultTemplate
	}

	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: httpTimeout},
		logger: logger.With(zap.String("component", "cloudbox")),
	}, nil
}

type createRequest struct {
	TemplateID      string            `json:"templateId"`
	CPUCores        int               `json:"cpuCores,omitempty"`
	MemoryMB        int               `json:"memoryMb,omitempty"`
	DiskMB          int               `json:"diskMb,omitempty"`
	EnvVars         map[string]string `json:"envVars,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	PublicAccess    bool              `json:"publicAccess"`
	AutoIdleMinutes int               `json:"autoIdleMinutes"`
}

type sandboxResponse struct {
	SandboxID string            `json:"sandboxId"`
	State     string            `json:"state"`
	Domain    string            `json:"domain"`
	Template  string            `json:"templateId"`
	StartedAt *time.Time        `json:"startedAt"`
	EndedAt   *time.Time        `json:"endedAt"`
	Metadata  map[string]string `json:"metadata"`
}

// Create provisions a new sandbox and waits for it to start.
func (p *Provider) Create(ctx context.Context, opts sandbox.CreateOptions) (*sandbox.Sandbox, error) {
	template := opts.Template
	if template == "" {
		template = p.cfg.Template
	}
	autoIdle := opts.AutoIdleMinutes
	if autoIdle <= 0 {
		autoIdle = defaultAutoIdleMinutes
	}

	req := createRequest{
		TemplateID:      template,
		CPUCores:        opts.Resources.CPUCores,
		MemoryMB:        opts.Resources.MemoryMB,
		DiskMB:          opts.Resources.DiskMB,
		EnvVars:         opts.Env,
		Metadata:        opts.Metadata,
		PublicAccess:    opts.PublicAccess,
		AutoIdleMinutes: autoIdle,
	}

	var resp sandboxResponse
	if err := p.call(ctx, http.MethodPost, "/v2/sandboxes", req, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", sandbox.ErrProvision, err)
	}

	p.logger.Info("sandbox created",
		zap.String("sandbox_id", resp.SandboxID),
		zap.String("template", template))

	return p.toSandbox(&resp), nil
}

// Get fetches a sandbox by ID. The API has grown three generations of fetch
// endpoints and deployments may sit behind any of them, so discovery walks
// them in priority order: the v2 fetch, the legacy fetch, then connect.
// ErrNotFound is returned only once all three are exhausted. This fallback
// lives here and nowhere else.
func (p *Provider) Get(ctx context.Context, id string) (*sandbox.Sandbox, error) {
	attempts := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/v2/sandboxes/" + id},
		{http.MethodGet, "/sandboxes/" + id},
		{http.MethodPost, "/sandboxes/" + id + "/connect"},
	}

	var lastErr error
	for _, a := range attempts {
		var resp sandboxResponse
		err := p.call(ctx, a.method, a.path, nil, &resp)
		if err == nil {
			return p.toSandbox(&resp), nil
		}
		if !isNotFound(err) {
			return nil, err
		}
		lastErr = err
	}

	p.logger.Debug("sandbox not found on any fetch endpoint",
		zap.String("sandbox_id", id), zap.Error(lastErr))
	return nil, sandbox.ErrNotFound
}

// Start resumes a stopped sandbox.
func (p *Provider) Start(ctx context.Context, id string) error {
	err := p.call(ctx, http.MethodPost, "/v2/sandboxes/"+id+"/start", nil, nil)
	if isNotFound(err) {
		return sandbox.ErrNotFound
	}
	return err
}

// Stop pauses a running sandbox. The filesystem is retained until the
// provider's retention window lapses.
func (p *Provider) Stop(ctx context.Context, id string) error {
	err := p.call(ctx, http.MethodPost, "/v2/sandboxes/"+id+"/stop", nil, nil)
	if isNotFound(err) {
		return sandbox.ErrNotFound
	}
	return err
}

// Delete releases a sandbox. Deleting an already-gone handle is a no-op.
func (p *Provider) Delete(ctx context.Context, id string) error {
	err := p.call(ctx, http.MethodDelete, "/v2/sandboxes/"+id, nil, nil)
	if isNotFound(err) {
		return nil
	}
	return err
}

type execRequest struct {
	Cmd            []string          `json:"cmd"`
	Cwd            string            `json:"cwd,omitempty"`
	EnvVars        map[string]string `json:"envVars,omitempty"`
	TimeoutSeconds int               `json:"timeoutSeconds,omitempty"`
}

type execResponse struct {
	ExitCode int    `json:"exitCode"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// Exec runs a command inside the sandbox via the control plane.
func (p *Provider) Exec(ctx context.Context, id string, cmd []string, opts sandbox.ExecOptions) (*sandbox.ExecResult, error) {
	req := execRequest{
		Cmd:            cmd,
		Cwd:            opts.Cwd,
		EnvVars:        opts.Env,
		TimeoutSeconds: int(opts.Timeout.Seconds()),
	}

	var resp execResponse
	err := p.call(ctx, http.MethodPost, "/v2/sandboxes/"+id+"/exec", req, &resp)
	if isNotFound(err) {
		return nil, sandbox.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sandbox.ErrExecFailed, err)
	}
	return &sandbox.ExecResult{
		ExitCode: resp.ExitCode,
		Stdout:   resp.Stdout,
		Stderr:   resp.Stderr,
	}, nil
}

type listDirResponse struct {
	Entries []struct {
		Name  string `json:"name"`
		IsDir bool   `json:"isDir"`
	} `json:"entries"`
}

// ListDir lists a directory inside the sandbox.
func (p *Provider) ListDir(ctx context.Context, id, path string) ([]sandbox.DirEntry, error) {
	if path == "" {
		path = "/"
	}

	var resp listDirResponse
	err := p.call(ctx, http.MethodGet, "/v2/sandboxes/"+id+"/files?path="+path, nil, &resp)
	if isNotFound(err) {
		return nil, sandbox.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	entries := make([]sandbox.DirEntry, len(resp.Entries))
	for i, e := range resp.Entries {
		entries[i] = sandbox.DirEntry{Name: e.Name, IsDir: e.IsDir}
	}
	return entries, nil
}

// URL derives the externally reachable address for a port on the sandbox.
func (p *Provider) URL(s *sandbox.Sandbox, port int) string {
	host := s.Host
	if host == "" {
		host = p.cfg.Domain
	}
	return fmt.Sprintf("https://%d-%s.%s", port, s.ID, host)
}

func (p *Provider) toSandbox(resp *sandboxResponse) *sandbox.Sandbox {
	status := sandbox.StatusRunning
	if resp.State == "stopped" || resp.State == "paused" {
		status = sandbox.StatusStopped
	}
	domain := resp.Domain
	if domain == "" {
		domain = p.cfg.Domain
	}
	return &sandbox.Sandbox{
		ID:        resp.SandboxID,
		Status:    status,
		Template:  resp.Template,
		Host:      domain,
		StartedAt: resp.StartedAt,
		StoppedAt: resp.EndedAt,
		Metadata:  resp.Metadata,
	}
}

// apiError carries the HTTP status so callers can classify not-found.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("cloudbox API error: status %d: %s", e.Status, e.Body)
}

func isNotFound(err error) bool {
	if ae, ok := err.(*apiError); ok {
		return ae.Status == http.StatusNotFound || ae.Status == http.StatusMethodNotAllowed
	}
	return false
}

// call performs one control-plane request, JSON in and out.
func (p *Provider) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.cfg.APIURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-API-Key", p.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("cloudbox API call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &apiError{Status: resp.StatusCode, Body: string(data)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
