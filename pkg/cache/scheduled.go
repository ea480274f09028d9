package cache

import (
	"sync"
	"time"
)

// Scheduled clears the inner cache when the flush interval has elapsed
// since the last clear. The check runs on every access; no goroutine is started.
type Scheduled struct {
	delegate  Cache
	interval  time.Duration
	now       func() time.Time
	mu        sync.Mutex
	lastClear time.Time
}

// NewScheduled wraps delegate with a flush interval.
func NewScheduled(delegate Cache, interval time.Duration) *Scheduled {
	return newScheduledWithClock(delegate, interval, time.Now)
}

func newScheduledWithClock(delegate Cache, interval time.Duration, now func() time.Time) *Scheduled {
	return &Scheduled{delegate: delegate, interval: interval, now: now, lastClear: now()}
}

func (c *Scheduled) ID() string { return c.delegate.ID() }

func (c *Scheduled) Get(key *CacheKey) (any, bool, error) {
	if c.clearWhenStale() {
		return nil, false, nil
	}
	return c.delegate.Get(key)
}

func (c *Scheduled) Put(key *CacheKey, value any) error {
	c.clearWhenStale()
	return c.delegate.Put(key, value)
}

func (c *Scheduled) Remove(key *CacheKey) {
	c.clearWhenStale()
	c.delegate.Remove(key)
}

func (c *Scheduled) Clear() {
	c.mu.Lock()
	c.lastClear = c.now()
	c.mu.Unlock()
	c.delegate.Clear()
}

func (c *Scheduled) Size() int {
	c.clearWhenStale()
	return c.delegate.Size()
}

func (c *Scheduled) clearWhenStale() bool {
	c.mu.Lock()
	stale := c.now().Sub(c.lastClear) > c.interval
	c.mu.Unlock()
	if stale {
		c.Clear()
	}
	return stale
}
