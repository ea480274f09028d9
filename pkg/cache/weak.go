package cache

import (
	"container/list"
	"weak"
)

// entry boxes a cached value so it can be referenced weakly.
type entry struct {
	value any
}

// Weak holds values through weak pointers: entries vanish once the garbage
// collector reclaims a value nobody else references.
type Weak struct {
	delegate Cache
}

// NewWeak wraps delegate.
func NewWeak(delegate Cache) *Weak {
	return &Weak{delegate: delegate}
}

func (c *Weak) ID() string { return c.delegate.ID() }

func (c *Weak) Get(key *CacheKey) (any, bool, error) {
	return getWeak(c.delegate, key)
}

func (c *Weak) Put(key *CacheKey, value any) error {
	return c.delegate.Put(key, weak.Make(&entry{value: value}))
}

func (c *Weak) Remove(key *CacheKey) { c.delegate.Remove(key) }

func (c *Weak) Clear() { c.delegate.Clear() }

func (c *Weak) Size() int { return c.delegate.Size() }

// Soft is Weak plus a window of strong references to the most recently
// written or read values, which keeps hot entries alive across collections.
type Soft struct {
	delegate  Cache
	hardLinks *list.List
	hardSize  int
}

// DefaultHardLinks is the strong reference window of Soft caches.
const DefaultHardLinks = 256

// NewSoft wraps delegate. A hardLinks below one uses DefaultHardLinks.
func NewSoft(delegate Cache, hardLinks int) *Soft {
	if hardLinks < 1 {
		hardLinks = DefaultHardLinks
	}
	return &Soft{delegate: delegate, hardLinks: list.New(), hardSize: hardLinks}
}

func (c *Soft) ID() string { return c.delegate.ID() }

func (c *Soft) Get(key *CacheKey) (any, bool, error) {
	raw, ok, err := c.delegate.Get(key)
	if !ok || err != nil {
		return raw, ok, err
	}
	p, isWeak := raw.(weak.Pointer[entry])
	if !isWeak {
		return raw, true, nil
	}
	e := p.Value()
	if e == nil {
		c.delegate.Remove(key)
		return nil, false, nil
	}
	c.hold(e)
	return e.value, true, nil
}

func (c *Soft) Put(key *CacheKey, value any) error {
	e := &entry{value: value}
	c.hold(e)
	return c.delegate.Put(key, weak.Make(e))
}

func (c *Soft) Remove(key *CacheKey) { c.delegate.Remove(key) }

func (c *Soft) Clear() {
	c.hardLinks.Init()
	c.delegate.Clear()
}

func (c *Soft) Size() int { return c.delegate.Size() }

func (c *Soft) hold(e *entry) {
	c.hardLinks.PushFront(e)
	for c.hardLinks.Len() > c.hardSize {
		c.hardLinks.Remove(c.hardLinks.Back())
	}
}

func getWeak(delegate Cache, key *CacheKey) (any, bool, error) {
	raw, ok, err := delegate.Get(key)
	if !ok || err != nil {
		return raw, ok, err
	}
	p, isWeak := raw.(weak.Pointer[entry])
	if !isWeak {
		return raw, true, nil
	}
	e := p.Value()
	if e == nil {
		delegate.Remove(key)
		return nil, false, nil
	}
	return e.value, true, nil
}
