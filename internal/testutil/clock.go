package testutil

import (
	"sync"
	"time"
)

// Clock is a thread-safe deterministic wall clock for tests.
//
// Each call to Now advances the clock by a fixed step, so the same test
// scenario always sees the same sequence of timestamps. This is what makes
// golden-file comparison of audit trails byte-identical across runs.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewClock creates a clock whose first Now() returns base, advancing by
// step on each call. A zero step defaults to one second.
func NewClock(base time.Time, step time.Duration) *Clock {
	if step == 0 {
		step = time.Second
	}
	return &Clock{next: base, step: step}
}

// Now returns the current tick and advances the clock by one step.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = c.next.Add(c.step)
	return now
}

// Peek returns the timestamp the next Now() call will produce, without
// advancing.
func (c *Clock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}
