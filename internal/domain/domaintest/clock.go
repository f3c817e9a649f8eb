// Package domaintest provides deterministic doubles for time and OTP code
// generation.
package domaintest

import (
	"sync"
	"time"

	"github.com/aelexs/messaging-gateway/internal/domain"
)

// FakeClock is a manually driven domain.Clock. OTP expiry and store TTL
// tests move it forward with Advance rather than sleeping.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ domain.Clock = (*FakeClock)(nil)

// NewFakeClock starts the clock at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now implements domain.Clock.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set jumps to t, which may be in the past.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Past reports whether deadline has been reached.
func (c *FakeClock) Past(deadline time.Time) bool {
	return !c.Now().Before(deadline)
}
