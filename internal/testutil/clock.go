package testutil

import (
	"sync"
	"time"
)

// ManualClock provides deterministic time for loop and sequencer tests.
type ManualClock struct {
	mu  sync.RWMutex
	now time.Time
}

func NewManualClock() *ManualClock {
	return &ManualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *ManualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
