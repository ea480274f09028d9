package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSize is the capacity of eviction decorators when none is configured.
const DefaultSize = 1024

// LRU bounds the inner cache to size entries, evicting the least recently
// accessed key. Both Get and Put count as access.
type LRU struct {
	delegate Cache
	keys     *lru.Cache[string, *CacheKey]
}

// NewLRU wraps delegate. A size below one uses DefaultSize.
func NewLRU(delegate Cache, size int) (*LRU, error) {
	if size < 1 {
		size = DefaultSize
	}
	c := &LRU{delegate: delegate}
	keys, err := lru.NewWithEvict(size, func(_ string, evicted *CacheKey) {
		c.delegate.Remove(evicted)
	})
	if err != nil {
		return nil, cacheError(delegate.ID(), "failed to create lru index").WithCause(err)
	}
	c.keys = keys
	return c, nil
}

func (c *LRU) ID() string { return c.delegate.ID() }

func (c *LRU) Get(key *CacheKey) (any, bool, error) {
	c.keys.Get(key.String())
	return c.delegate.Get(key)
}

func (c *LRU) Put(key *CacheKey, value any) error {
	if err := c.delegate.Put(key, value); err != nil {
		return err
	}
	c.keys.Add(key.String(), key)
	return nil
}

func (c *LRU) Remove(key *CacheKey) {
	c.keys.Remove(key.String())
	c.delegate.Remove(key)
}

func (c *LRU) Clear() {
	c.keys.Purge()
	c.delegate.Clear()
}

func (c *LRU) Size() int { return c.delegate.Size() }
