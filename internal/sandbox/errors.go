package sandbox

import "errors"

// Sentinel errors for sandbox operations.
var (
	// ErrNotFound indicates the provider no longer knows the sandbox handle.
	// This is an expected steady-state outcome: stopped sandboxes expire
	// after their retention window, and callers recover by restarting.
	ErrNotFound = errors.New("sandbox not found")

	// ErrProvision indicates the sandbox could not be created or started,
	// usually missing credentials or a provider outage. Not retried.
	ErrProvision = errors.New("sandbox provisioning failed")

	// ErrNotRunning indicates the sandbox is not running when it should be.
	ErrNotRunning = errors.New("sandbox not running")

	// ErrExecFailed indicates command execution failed.
	ErrExecFailed = errors.New("command execution failed")
)
