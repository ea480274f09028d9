package cache

import (
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Blocking allows at most one computation in flight per key. A Get that
// misses keeps the key locked until the caller stores the computed value
// with Put or gives up with Remove; concurrent Gets of that key wait.
type Blocking struct {
	delegate Cache
	timeout  time.Duration
	latches  *xsync.MapOf[string, chan struct{}]
}

// NewBlocking wraps delegate. A zero timeout waits indefinitely.
func NewBlocking(delegate Cache, timeout time.Duration) *Blocking {
	return &Blocking{
		delegate: delegate,
		timeout:  timeout,
		latches:  xsync.NewMapOf[string, chan struct{}](),
	}
}

func (c *Blocking) ID() string { return c.delegate.ID() }

func (c *Blocking) Get(key *CacheKey) (any, bool, error) {
	k := key.String()
	if err := c.acquire(k); err != nil {
		return nil, false, err
	}
	v, ok, err := c.delegate.Get(key)
	if ok || err != nil {
		c.release(k)
	}
	return v, ok, err
}

func (c *Blocking) Put(key *CacheKey, value any) error {
	defer c.release(key.String())
	return c.delegate.Put(key, value)
}

// Remove only releases the lock held for key; the entry itself stays.
func (c *Blocking) Remove(key *CacheKey) { c.release(key.String()) }

func (c *Blocking) Clear() { c.delegate.Clear() }

func (c *Blocking) Size() int { return c.delegate.Size() }

func (c *Blocking) acquire(k string) error {
	for {
		latch := make(chan struct{})
		held, loaded := c.latches.LoadOrStore(k, latch)
		if !loaded {
			return nil
		}
		if c.timeout <= 0 {
			<-held
			continue
		}
		timer := time.NewTimer(c.timeout)
		select {
		case <-held:
			timer.Stop()
		case <-timer.C:
			return cacheError(c.ID(), "key %s", k).WithCause(ErrLockTimeout)
		}
	}
}

func (c *Blocking) release(k string) {
	if latch, ok := c.latches.LoadAndDelete(k); ok {
		close(latch)
	}
}
