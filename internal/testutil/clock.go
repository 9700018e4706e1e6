// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"sync"
	"time"
)

// FakeClock is a manually driven time source satisfying any interface with a
// Now() time.Time method. Time moves only through Advance, Set, or the
// configured per-call step.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

// NewFakeClock creates a FakeClock frozen at initial. A zero initial time is
// replaced by a fixed reference instant so test output is reproducible.
func NewFakeClock(initial time.Time) *FakeClock {
	if initial.IsZero() {
		initial = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &FakeClock{current: initial}
}

// NewSteppingClock creates a FakeClock that advances by step after every Now
// call. It lets streaming code observe wall-clock progress between reads
// without the test sleeping.
func NewSteppingClock(initial time.Time, step time.Duration) *FakeClock {
	c := NewFakeClock(initial)
	c.step = step
	return c
}

// Now returns the current fake time, then applies the step (if any).
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.current
	c.current = c.current.Add(c.step)
	return now
}

// Advance moves the fake time forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// Set pins the fake time to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}
