package cache

import "container/list"

// FIFO bounds the inner cache to size entries, evicting the oldest inserted key.
type FIFO struct {
	delegate Cache
	size     int
	order    *list.List
	elems    map[string]*list.Element
}

// NewFIFO wraps delegate. A size below one uses DefaultSize.
func NewFIFO(delegate Cache, size int) *FIFO {
	if size < 1 {
		size = DefaultSize
	}
	return &FIFO{delegate: delegate, size: size, order: list.New(), elems: make(map[string]*list.Element)}
}

func (c *FIFO) ID() string { return c.delegate.ID() }

func (c *FIFO) Get(key *CacheKey) (any, bool, error) { return c.delegate.Get(key) }

func (c *FIFO) Put(key *CacheKey, value any) error {
	k := key.String()
	if _, ok := c.elems[k]; !ok {
		c.elems[k] = c.order.PushBack(key)
		if c.order.Len() > c.size {
			oldest := c.order.Remove(c.order.Front()).(*CacheKey)
			delete(c.elems, oldest.String())
			c.delegate.Remove(oldest)
		}
	}
	return c.delegate.Put(key, value)
}

func (c *FIFO) Remove(key *CacheKey) {
	if e, ok := c.elems[key.String()]; ok {
		c.order.Remove(e)
		delete(c.elems, key.String())
	}
	c.delegate.Remove(key)
}

func (c *FIFO) Clear() {
	c.order.Init()
	clear(c.elems)
	c.delegate.Clear()
}

func (c *FIFO) Size() int { return c.delegate.Size() }
