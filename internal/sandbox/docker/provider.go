// Package docker implements sandbox.Provider on top of the local Docker
// daemon. It exists for self-hosted installs where projects run in
// containers on the appforge host instead of cloudbox micro-VMs.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	containerTypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/appforge-dev/appforge/internal/sandbox"
)

const (
	// containerPrefix names appforge-managed containers.
	containerPrefix = "appforge-sbx-"

	// labelManaged marks containers owned by this provider.
	labelManaged = "appforge.managed"

	// stopTimeoutSeconds is how long Docker waits before force-killing.
	stopTimeoutSeconds = 10

	// portMetadataPrefix keys host-port mappings in sandbox metadata.
	portMetadataPrefix = "port."
)

// Config holds configuration for the Docker provider.
type Config struct {
	// Host is the address the published ports are reachable on.
	// Defaults to "localhost".
	Host string

	// DefaultImage is used when CreateOptions carries no template.
	DefaultImage string
}

// Provider is a sandbox.Provider backed by the local Docker daemon.
type Provider struct {
	cfg    Config
	client *client.Client
	logger *zap.Logger
}

// New creates a Docker provider, connecting via the ambient Docker
// environment (DOCKER_HOST etc.).
func New(cfg Config, logger *zap.Logger) (*Provider, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("%w: connect to docker daemon: %v", sandbox.ErrProvision, err)
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	return &Provider{
		cfg:    cfg,
		client: cli,
		logger: logger.With(zap.String("component", "docker-sandbox")),
	}, nil
}

// Create creates and starts a container for the project.
func (p *Provider) Create(ctx context.Context, opts sandbox.CreateOptions) (*sandbox.Sandbox, error) {
	image := opts.Template
	if image == "" {
		image = p.cfg.DefaultImage
	}
	if image == "" {
		return nil, fmt.Errorf("%w: no sandbox image configured", sandbox.ErrProvision)
	}

	env := make([]string, 0, len(opts.Env))
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}

	labels := map[string]string{labelManaged: "true"}
	for k, v := range opts.Metadata {
		labels[k] = v
	}

	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, port := range opts.Ports {
		cp, err := nat.NewPort("tcp", strconv.Itoa(port))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid port %d: %v", sandbox.ErrProvision, port, err)
		}
		exposed[cp] = struct{}{}
		// HostPort left empty: Docker assigns a free ephemeral port.
		bindings[cp] = []nat.PortBinding{{HostIP: "0.0.0.0"}}
	}

	resources := containerTypes.Resources{}
	if opts.Resources.MemoryMB > 0 {
		resources.Memory = int64(opts.Resources.MemoryMB) * 1024 * 1024
	}
	if opts.Resources.CPUCores > 0 {
		resources.NanoCPUs = int64(opts.Resources.CPUCores) * 1e9
	}

	name := containerPrefix + uuid.NewString()
	created, err := p.client.ContainerCreate(ctx,
		&containerTypes.Config{
			Image:        image,
			Env:          env,
			Labels:       labels,
			ExposedPorts: exposed,
		},
		&containerTypes.HostConfig{
			PortBindings: bindings,
			Resources:    resources,
		},
		nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("%w: create container: %v", sandbox.ErrProvision, err)
	}

	if err := p.client.ContainerStart(ctx, created.ID, containerTypes.StartOptions{}); err != nil {
		return nil, fmt.Errorf("%w: start container: %v", sandbox.ErrProvision, err)
	}

	s, err := p.Get(ctx, created.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: inspect after start: %v", sandbox.ErrProvision, err)
	}

	p.logger.Info("sandbox container started",
		zap.String("sandbox_id", s.ID),
		zap.String("image", image))
	return s, nil
}

// Get inspects a container and maps it to a sandbox.
func (p *Provider) Get(ctx context.Context, id string) (*sandbox.Sandbox, error) {
	info, err := p.client.ContainerInspect(ctx, id)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil, sandbox.ErrNotFound
		}
		return nil, fmt.Errorf("inspect container: %w", err)
	}

	status := sandbox.StatusStopped
	if info.State != nil && info.State.Running {
		status = sandbox.StatusRunning
	}

	metadata := map[string]string{}
	if info.NetworkSettings != nil {
		for cp, binds := range info.NetworkSettings.Ports {
			if len(binds) == 0 {
				continue
			}
			metadata[portMetadataPrefix+cp.Port()] = binds[0].HostPort
		}
	}

	s := &sandbox.Sandbox{
		ID:       info.ID,
		Status:   status,
		Host:     p.cfg.Host,
		Metadata: metadata,
	}
	if info.Config != nil {
		s.Template = info.Config.Image
	}
	if created, err := time.Parse(time.RFC3339Nano, info.Created); err == nil {
		s.CreatedAt = created
	}
	return s, nil
}

// Start starts a stopped container.
func (p *Provider) Start(ctx context.Context, id string) error {
	err := p.client.ContainerStart(ctx, id, containerTypes.StartOptions{})
	if cerrdefs.IsNotFound(err) {
		return sandbox.ErrNotFound
	}
	return err
}

// Stop stops a running container gracefully.
func (p *Provider) Stop(ctx context.Context, id string) error {
	timeout := stopTimeoutSeconds
	err := p.client.ContainerStop(ctx, id, containerTypes.StopOptions{Timeout: &timeout})
	if cerrdefs.IsNotFound(err) {
		return sandbox.ErrNotFound
	}
	return err
}

// Delete force-removes a container. Idempotent.
func (p *Provider) Delete(ctx context.Context, id string) error {
	err := p.client.ContainerRemove(ctx, id, containerTypes.RemoveOptions{Force: true})
	if cerrdefs.IsNotFound(err) {
		return nil
	}
	return err
}

// Exec runs a command inside the container and captures its output.
func (p *Provider) Exec(ctx context.Context, id string, cmd []string, opts sandbox.ExecOptions) (*sandbox.ExecResult, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	env := make([]string, 0, len(opts.Env))
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}

	execID, err := p.client.ContainerExecCreate(ctx, id, containerTypes.ExecOptions{
		Cmd:          cmd,
		WorkingDir:   opts.Cwd,
		Env:          env,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil, sandbox.ErrNotFound
		}
		return nil, fmt.Errorf("%w: create exec: %v", sandbox.ErrExecFailed, err)
	}

	attach, err := p.client.ContainerExecAttach(ctx, execID.ID, containerTypes.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: attach exec: %v", sandbox.ErrExecFailed, err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return nil, fmt.Errorf("%w: read exec output: %v", sandbox.ErrExecFailed, err)
	}

	inspect, err := p.client.ContainerExecInspect(ctx, execID.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: inspect exec: %v", sandbox.ErrExecFailed, err)
	}

	return &sandbox.ExecResult{
		ExitCode: inspect.ExitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// ListDir lists a directory via exec. Entries ending in "/" are directories.
func (p *Provider) ListDir(ctx context.Context, id, path string) ([]sandbox.DirEntry, error) {
	if path == "" {
		path = "/"
	}

	result, err := p.Exec(ctx, id, []string{"ls", "-1p", path}, sandbox.ExecOptions{})
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("%w: ls exited %d: %s", sandbox.ErrExecFailed, result.ExitCode, strings.TrimSpace(result.Stderr))
	}

	var entries []sandbox.DirEntry
	for _, line := range strings.Split(result.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, "/") {
			entries = append(entries, sandbox.DirEntry{Name: strings.TrimSuffix(line, "/"), IsDir: true})
		} else {
			entries = append(entries, sandbox.DirEntry{Name: line})
		}
	}
	return entries, nil
}

// URL maps a container port to its published host port. Falls back to the
// raw port on the configured host when no mapping was recorded.
func (p *Provider) URL(s *sandbox.Sandbox, port int) string {
	hostPort := strconv.Itoa(port)
	if mapped, ok := s.Metadata[portMetadataPrefix+hostPort]; ok && mapped != "" {
		hostPort = mapped
	}
	return fmt.Sprintf("http://%s:%s", p.cfg.Host, hostPort)
}
