// Package fake provides a deterministic, manually-advanced
// implementation of pkg/simkernel, used by this module's own test
// suite to drive the batch and serverless services through simulated
// time without wall-clock sleeps or flakiness. It is test tooling,
// not a production simulation kernel.
package fake

import (
	"context"
	"sync"
	"time"
)

// Clock is a virtual clock that only advances when Advance is called.
// Sleep blocks the caller until enough Advance calls have pushed the
// clock past the requested wake time, matching a cooperative
// suspension point's semantics.
type Clock struct {
	mu   sync.Mutex
	now  time.Time
	wake chan struct{}
}

// NewClock creates a virtual clock starting at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start, wake: make(chan struct{})}
}

// Now returns the current simulated instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and wakes every goroutine
// blocked in Sleep whose deadline has now passed.
func (c *Clock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	old := c.wake
	c.wake = make(chan struct{})
	c.mu.Unlock()
	close(old)
}

// Sleep blocks until the clock has advanced by at least d, or ctx is
// canceled.
func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	target := c.Now().Add(d)
	for {
		c.mu.Lock()
		if !c.now.Before(target) {
			c.mu.Unlock()
			return nil
		}
		wake := c.wake
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		}
	}
}
