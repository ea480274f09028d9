package cache

import "sync"

// Synchronized serializes every operation on the inner cache.
type Synchronized struct {
	mu       sync.Mutex
	delegate Cache
}

// NewSynchronized wraps delegate.
func NewSynchronized(delegate Cache) *Synchronized {
	return &Synchronized{delegate: delegate}
}

func (c *Synchronized) ID() string { return c.delegate.ID() }

func (c *Synchronized) Get(key *CacheKey) (any, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate.Get(key)
}

func (c *Synchronized) Put(key *CacheKey, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate.Put(key, value)
}

func (c *Synchronized) Remove(key *CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate.Remove(key)
}

func (c *Synchronized) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate.Clear()
}

func (c *Synchronized) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delegate.Size()
}
