package cache

// Perpetual is the base store: an unbounded map without eviction. It is not
// safe for concurrent use on its own; Builder wraps it in Synchronized.
type Perpetual struct {
	id      string
	entries map[string]any
}

// NewPerpetual creates an empty base store.
func NewPerpetual(id string) *Perpetual {
	return &Perpetual{id: id, entries: make(map[string]any)}
}

func (c *Perpetual) ID() string { return c.id }

func (c *Perpetual) Get(key *CacheKey) (any, bool, error) {
	v, ok := c.entries[key.String()]
	return v, ok, nil
}

func (c *Perpetual) Put(key *CacheKey, value any) error {
	c.entries[key.String()] = value
	return nil
}

func (c *Perpetual) Remove(key *CacheKey) { delete(c.entries, key.String()) }

func (c *Perpetual) Clear() { clear(c.entries) }

func (c *Perpetual) Size() int { return len(c.entries) }
