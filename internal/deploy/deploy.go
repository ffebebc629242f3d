// Package deploy defines the build-log capability consumed by the log
// streamer: fetching a deployment's event log and its terminal status.
package deploy

import (
	"context"
	"errors"
	"strconv"
)

// LogProvider is the deployment platform capability the streamer polls.
type LogProvider interface {
	// FetchEvents returns the full event log for a deployment. Providers
	// may redeliver or reorder events; callers deduplicate by event ID.
	FetchEvents(ctx context.Context, deploymentID string) ([]Event, error)

	// FetchStatus returns the deployment's current ready state.
	FetchStatus(ctx context.Context, deploymentID string) (Status, error)
}

// Event is one build-log event.
type Event struct {
	ID string // Provider event ID; may be empty on older platform versions

	// CreatedAt is the event creation time in Unix milliseconds.
	CreatedAt int64

	Type string // stdout, stderr, command, delimiter, ...
	Text string

	// ReadyState is set on events that themselves announce a deployment
	// state transition; empty for plain log output.
	ReadyState Status
}

// Key returns the deduplication key for the event: the provider ID when
// present, otherwise a composite of creation time and type. The fallback
// can collide for two same-millisecond events of the same type; that
// mirrors the platform's own cursor semantics and is accepted as-is.
func (e Event) Key() string {
	if e.ID != "" {
		return e.ID
	}
	return fmtKey(e.CreatedAt, e.Type)
}

// Status is a deployment's ready state.
type Status string

const (
	StatusQueued   Status = "QUEUED"
	StatusBuilding Status = "BUILDING"
	StatusReady    Status = "READY"
	StatusError    Status = "ERROR"
	StatusCanceled Status = "CANCELED"
)

// Terminal reports whether no further build events will follow.
func (s Status) Terminal() bool {
	switch s {
	case StatusReady, StatusError, StatusCanceled:
		return true
	}
	return false
}

// ErrBadPayload indicates the platform returned data we cannot parse.
// Unlike a transient fetch failure, this is fatal to the stream session.
var ErrBadPayload = errors.New("malformed deployment payload")

func fmtKey(createdAt int64, typ string) string {
	return strconv.FormatInt(createdAt, 10) + "-" + typ
}
