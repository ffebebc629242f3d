// Package stream relays a deployment's build log to one connected client.
// Each HTTP connection owns exactly one Session; the session dies with the
// connection and is never reused.
package stream

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/appforge-dev/appforge/internal/deploy"
)

// State names the phases of a stream session.
type State int

const (
	// StatePolling: waiting on the next provider fetch.
	StatePolling State = iota
	// StateRelaying: pushing fresh events to the client.
	StateRelaying
	// StateCompleting: terminal state observed, final frame pending.
	StateCompleting
	// StateClosed: terminal frame sent (or client gone); no further writes.
	StateClosed
)

// Config tunes the poll loop.
type Config struct {
	// ActiveDelay follows a tick that produced new events.
	ActiveDelay time.Duration
	// IdleDelay follows a tick that produced nothing.
	IdleDelay time.Duration
	// StatusCheckEvery is the number of consecutive idle ticks between
	// cross-checks of the provider's status endpoint. Event streams can go
	// quiet before the status flips, but checking every idle tick would be
	// wasteful.
	StatusCheckEvery int
	// HeartbeatInterval paces comment frames that keep intermediary
	// proxies from timing out the connection.
	HeartbeatInterval time.Duration
}

// DefaultConfig returns the production cadence.
func DefaultConfig() Config {
	return Config{
		ActiveDelay:       100 * time.Millisecond,
		IdleDelay:         500 * time.Millisecond,
		StatusCheckEvery:  5,
		HeartbeatInterval: 10 * time.Second,
	}
}

// FrameWriter is the output channel a session pushes frames into. Writes
// must be safe to call concurrently and must become silent no-ops once the
// underlying transport is closed.
type FrameWriter interface {
	Comment(text string)
	Data(v any) error
}

// Frame shapes on the wire. One of Log/Done/Error is populated per frame.
type logFrame struct {
	Log       string `json:"log"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
}

type doneFrame struct {
	Done bool `json:"done"`
}

type errorFrame struct {
	Error string `json:"error"`
}

// Session tails one deployment's build log for one client.
type Session struct {
	deploymentID string
	provider     deploy.LogProvider
	cfg          Config
	logger       *zap.Logger

	state     State
	seen      map[string]struct{}
	pollCount int
	idleTicks int
}

// NewSession creates a session for the deployment.
func NewSession(deploymentID string, provider deploy.LogProvider, cfg Config, logger *zap.Logger) *Session {
	return &Session{
		deploymentID: deploymentID,
		provider:     provider,
		cfg:          cfg,
		logger: logger.With(
			zap.String("component", "log-stream"),
			zap.String("deployment_id", deploymentID)),
		state: StatePolling,
		seen:  make(map[string]struct{}),
	}
}

// State returns the session's current phase.
func (s *Session) State() State {
	return s.state
}

// Run polls the provider and relays frames until the deployment reaches a
// terminal state or ctx is cancelled. The client always receives a terminal
// frame, done or error, unless it disconnected first. Run never returns
// before the session is closed.
func (s *Session) Run(ctx context.Context, w FrameWriter) {
	w.Comment("connected")

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go s.heartbeat(hbCtx, w)

	for {
		select {
		case <-ctx.Done():
			// Client disconnected: close without further frames.
			s.state = StateClosed
			return
		default:
		}

		delay, err := s.tick(ctx, w)
		if err != nil {
			s.state = StateCompleting
			s.logger.Warn("log stream failed", zap.Error(err))
			if werr := w.Data(errorFrame{Error: err.Error()}); werr != nil {
				s.logger.Debug("failed to write error frame", zap.Error(werr))
			}
			s.state = StateClosed
			return
		}
		if s.state == StateCompleting {
			if werr := w.Data(doneFrame{Done: true}); werr != nil {
				s.logger.Debug("failed to write done frame", zap.Error(werr))
			}
			s.state = StateClosed
			return
		}

		select {
		case <-ctx.Done():
			s.state = StateClosed
			return
		case <-time.After(delay):
		}
	}
}

// tick performs one poll: fetch, dedup, relay, completion check. It returns
// the delay before the next tick, or an error only when the failure is
// fatal to the session. Transient fetch failures are logged and retried on
// the next tick.
func (s *Session) tick(ctx context.Context, w FrameWriter) (time.Duration, error) {
	s.pollCount++

	events, err := s.provider.FetchEvents(ctx, s.deploymentID)
	if err != nil {
		if errors.Is(err, deploy.ErrBadPayload) {
			return 0, err
		}
		s.logger.Debug("event fetch failed, retrying next tick",
			zap.Int("poll", s.pollCount), zap.Error(err))
		return s.cfg.IdleDelay, nil
	}

	fresh := s.selectFresh(events)
	if len(fresh) == 0 {
		s.idleTicks++
		if shouldCheckStatus(s.idleTicks, s.cfg.StatusCheckEvery) {
			status, err := s.provider.FetchStatus(ctx, s.deploymentID)
			if err != nil {
				if errors.Is(err, deploy.ErrBadPayload) {
					return 0, err
				}
				s.logger.Debug("status fetch failed, retrying next tick",
					zap.Int("poll", s.pollCount), zap.Error(err))
				return s.cfg.IdleDelay, nil
			}
			if status.Terminal() {
				s.state = StateCompleting
				return 0, nil
			}
		}
		s.state = StatePolling
		return s.cfg.IdleDelay, nil
	}

	s.state = StateRelaying
	s.idleTicks = 0
	for _, event := range fresh {
		for _, line := range renderLines(event) {
			if err := w.Data(logFrame{
				Log:       line,
				Timestamp: formatTimestamp(event.CreatedAt),
				Type:      event.Type,
			}); err != nil {
				s.logger.Debug("failed to write log frame", zap.Error(err))
			}
		}
	}

	if fresh[len(fresh)-1].ReadyState.Terminal() {
		s.state = StateCompleting
		return 0, nil
	}
	return s.cfg.ActiveDelay, nil
}

// heartbeat emits comment frames on a fixed cadence, independent of the
// poll loop, until ctx is cancelled.
func (s *Session) heartbeat(ctx context.Context, w FrameWriter) {
	interval := s.cfg.HeartbeatInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Comment("heartbeat")
		}
	}
}

// selectFresh returns the events not yet relayed, in delivery order, and
// records them as seen. The seen set only grows: an event ID, once relayed,
// is never relayed again for the lifetime of the session.
func (s *Session) selectFresh(events []deploy.Event) []deploy.Event {
	var fresh []deploy.Event
	for _, e := range events {
		key := e.Key()
		if _, ok := s.seen[key]; ok {
			continue
		}
		s.seen[key] = struct{}{}
		fresh = append(fresh, e)
	}
	return fresh
}

// shouldCheckStatus decides whether an idle tick warrants the extra status
// request.
func shouldCheckStatus(idleTicks, every int) bool {
	if every <= 0 {
		return true
	}
	return idleTicks%every == 0
}
