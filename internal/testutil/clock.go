package testutil

import (
	"context"
	"sync"
	"time"
)

// Clock is a manual [scribe.Clock] for tests. Now only moves when the test
// calls Advance or when Sleep is called; Sleep advances the clock by the
// requested duration instead of blocking.
type Clock struct {
	mu      sync.Mutex
	current time.Time
	sleeps  []time.Duration

	// OnSleep, when set, runs after every Sleep with the new time. Tests use
	// it to release a lock "while" a caller is waiting.
	OnSleep func(now time.Time)
}

// NewClock returns a clock initialized to a fixed UTC start time.
func NewClock() *Clock {
	return &Clock{current: time.Date(2025, time.February, 5, 1, 30, 16, 0, time.UTC)}
}

// NewClockAt returns a clock starting at t.
func NewClockAt(t time.Time) *Clock {
	return &Clock{current: t.UTC()}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.current
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.mu.Unlock()
}

// Sleep records d and advances the clock. It fails only when ctx is done.
func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.current = c.current.Add(d)
	c.sleeps = append(c.sleeps, d)
	now := c.current
	hook := c.OnSleep
	c.mu.Unlock()

	if hook != nil {
		hook(now)
	}

	return nil
}

// Sleeps returns every duration passed to Sleep so far.
func (c *Clock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]time.Duration(nil), c.sleeps...)
}
