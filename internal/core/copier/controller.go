package copier

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPollInterval bounds how long a paused worker sleeps before it
// re-checks the controller.
const DefaultPollInterval = time.Second

// Controller is the pause/cancel signal shared by every worker of a copy.
// Reads are lock-free; the zero value is ready to use.
type Controller struct {
	paused    atomic.Bool
	cancelled atomic.Bool

	mu   sync.Mutex
	wake chan struct{}
}

// NewController creates a running controller.
func NewController() *Controller {
	return &Controller{}
}

// Pause suspends workers at their next poll point. It has no effect once
// the controller is cancelled.
func (c *Controller) Pause() {
	if c.cancelled.Load() {
		return
	}
	c.paused.Store(true)
}

// Resume lets paused workers continue.
func (c *Controller) Resume() {
	c.paused.Store(false)
	c.broadcast()
}

// Cancel stops every worker at its next poll point. Cancellation is
// permanent for the lifetime of the controller.
func (c *Controller) Cancel() {
	c.cancelled.Store(true)
	c.broadcast()
}

// IsPaused reports whether the controller is paused.
func (c *Controller) IsPaused() bool {
	return c.paused.Load()
}

// IsCancelled reports whether the controller has been cancelled.
func (c *Controller) IsCancelled() bool {
	return c.cancelled.Load()
}

func (c *Controller) wakeup() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wake == nil {
		c.wake = make(chan struct{})
	}
	return c.wake
}

func (c *Controller) broadcast() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wake != nil {
		close(c.wake)
	}
	c.wake = make(chan struct{})
}

// waitWhilePaused blocks while the controller is paused. It wakes up on
// Resume or Cancel, and re-checks at least every interval. It returns false
// when the caller must stop (cancelled controller or done context).
func (c *Controller) waitWhilePaused(ctx context.Context, interval time.Duration) bool {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	for c.IsPaused() && !c.IsCancelled() {
		wake := c.wakeup()
		// Resume may have landed between the check above and taking wake.
		if !c.IsPaused() || c.IsCancelled() {
			break
		}
		timer := time.NewTimer(interval)
		select {
		case <-wake:
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return false
		}
		timer.Stop()
	}
	return !c.IsCancelled()
}
