// Package keepalive implements the presence-driven keep-alive policy used
// by appforge clients: ping the server's keep-alive endpoint while the
// consuming view is foreground-visible, and go quiet the moment it is not,
// so idle sessions let their sandbox cool down.
package keepalive

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is the cadence between pings while visible.
const DefaultInterval = 5 * time.Minute

// Controller schedules keep-alive pings from visibility changes. The policy
// is level-triggered: repeated SetVisible calls with the same level are
// no-ops, and at most one interval timer is live at any time, no matter how
// fast visibility flips.
type Controller struct {
	interval time.Duration
	ping     func(ctx context.Context) error
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc // non-nil iff the interval timer is running
	closed bool
}

// New creates a controller. ping is called once immediately on becoming
// visible and then every interval until visibility is lost. Ping errors are
// logged and never affect scheduling.
func New(interval time.Duration, ping func(ctx context.Context) error, logger *zap.Logger) *Controller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Controller{
		interval: interval,
		ping:     ping,
		logger:   logger.With(zap.String("component", "keepalive")),
	}
}

// SetVisible reports the current visibility level.
func (c *Controller) SetVisible(visible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if visible == (c.cancel != nil) {
		// Level unchanged.
		return
	}

	if !visible {
		c.cancel()
		c.cancel = nil
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(ctx)
}

// Running reports whether the interval timer is live (for observability).
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Close stops the controller permanently.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// run pings immediately, then on every interval tick, until cancelled.
func (c *Controller) run(ctx context.Context) {
	c.doPing(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.doPing(ctx)
		}
	}
}

func (c *Controller) doPing(ctx context.Context) {
	if err := c.ping(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("keep-alive ping failed", zap.Error(err))
	}
}
