// Package sandbox provides an abstraction for remote sandbox execution
// environments. It supports multiple backends: the hosted cloudbox API and
// local Docker containers.
package sandbox

import (
	"context"
	"time"
)

// Provider abstracts sandbox execution environments.
// Each project gets one dedicated sandbox, managed through this interface.
type Provider interface {
	// Create provisions a new sandbox and starts it.
	Create(ctx context.Context, opts CreateOptions) (*Sandbox, error)

	// Get returns the current state of a sandbox.
	// Returns ErrNotFound if the provider no longer knows the handle.
	Get(ctx context.Context, id string) (*Sandbox, error)

	// Start resumes a previously stopped sandbox.
	Start(ctx context.Context, id string) error

	// Stop pauses a running sandbox. The remote filesystem is retained.
	Stop(ctx context.Context, id string) error

	// Delete releases a sandbox and its resources.
	// Deleting a sandbox that is already gone is not an error.
	Delete(ctx context.Context, id string) error

	// Exec runs a non-interactive command in the sandbox.
	Exec(ctx context.Context, id string, cmd []string, opts ExecOptions) (*ExecResult, error)

	// ListDir lists the entries of a directory inside the sandbox.
	// Listing the root directory doubles as a cheap liveness probe.
	ListDir(ctx context.Context, id, path string) ([]DirEntry, error)

	// URL returns the externally reachable address for the given port
	// on the sandbox.
	URL(s *Sandbox, port int) string
}

// Sandbox represents a provisioned sandbox instance.
type Sandbox struct {
	ID        string            // Provider-issued handle ID
	Status    Status            // running, stopped
	Template  string            // Image/template the sandbox was built from
	Host      string            // Provider-specific host component for URL derivation
	CreatedAt time.Time         // When the sandbox was provisioned
	StartedAt *time.Time        // When the sandbox was last started (nil if unknown)
	StoppedAt *time.Time        // When the sandbox was stopped (nil if running)
	Metadata  map[string]string // Provider-specific metadata
	Env       map[string]string // Environment variables set on the sandbox
}

// Status represents the provider-side state of a sandbox.
type Status string

const (
	StatusRunning Status = "running" // Sandbox is running
	StatusStopped Status = "stopped" // Sandbox is paused, filesystem retained
)

// CreateOptions configures sandbox creation.
type CreateOptions struct {
	Template string            // Image/template (e.g. "appforge-node22")
	Env      map[string]string // Environment variables
	Metadata map[string]string // Tags for identification

	// PublicAccess exposes the workload port without auth. App previews
	// are meant to be shared, so this defaults to true at call sites.
	PublicAccess bool

	// AutoIdleMinutes is the provider-side idle timer after which an
	// unused sandbox is stopped automatically (0 = provider default).
	AutoIdleMinutes int

	// Ports lists workload ports that must be reachable from outside.
	// The cloudbox backend routes every port, so it ignores this; the
	// Docker backend publishes them to host ports at create time.
	Ports []int

	// Resources declares the resource profile for the sandbox.
	Resources ResourceConfig
}

// ResourceConfig declares the resource profile for a sandbox.
type ResourceConfig struct {
	CPUCores int // vCPUs (0 = provider default)
	MemoryMB int // Memory in MB (0 = provider default)
	DiskMB   int // Disk space in MB (0 = provider default)
}

// ExecOptions configures non-interactive command execution.
type ExecOptions struct {
	Cwd     string            // Working directory for the command
	Env     map[string]string // Additional environment variables
	Timeout time.Duration     // Max command runtime (0 = no limit)
}

// ExecResult contains the result of a non-interactive command execution.
type ExecResult struct {
	ExitCode int    // Exit code of the command
	Stdout   string // Standard output
	Stderr   string // Standard error
}

// DirEntry is a single entry returned by ListDir.
type DirEntry struct {
	Name  string // Base name of the entry
	IsDir bool   // Whether the entry is a directory
}
