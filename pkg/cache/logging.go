package cache

import (
	"log/slog"
	"sync/atomic"
)

// Logging tracks the hit ratio of the inner cache and logs it on every Get.
type Logging struct {
	delegate Cache
	logger   *slog.Logger
	requests atomic.Int64
	hits     atomic.Int64
}

// NewLogging wraps delegate. A nil logger discards output.
func NewLogging(delegate Cache, logger *slog.Logger) *Logging {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Logging{delegate: delegate, logger: logger}
}

func (c *Logging) ID() string { return c.delegate.ID() }

func (c *Logging) Get(key *CacheKey) (any, bool, error) {
	requests := c.requests.Add(1)
	v, ok, err := c.delegate.Get(key)
	hits := c.hits.Load()
	if ok {
		hits = c.hits.Add(1)
	}
	c.logger.Debug("cache lookup",
		"cache", c.ID(),
		"hit", ok,
		"hit_ratio", float64(hits)/float64(requests),
	)
	return v, ok, err
}

func (c *Logging) Put(key *CacheKey, value any) error { return c.delegate.Put(key, value) }

func (c *Logging) Remove(key *CacheKey) { c.delegate.Remove(key) }

func (c *Logging) Clear() { c.delegate.Clear() }

func (c *Logging) Size() int { return c.delegate.Size() }

// HitRatio returns hits divided by requests, 0 before the first request.
func (c *Logging) HitRatio() float64 {
	requests := c.requests.Load()
	if requests == 0 {
		return 0
	}
	return float64(c.hits.Load()) / float64(requests)
}
