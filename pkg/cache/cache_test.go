package cache

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leapstack-labs/leapmap/internal/testutil"
	"github.com/leapstack-labs/leapmap/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(i int) *CacheKey { return NewCacheKey("ns.find", 0, 100, "select ?", i) }

func TestCacheKey_Equality(t *testing.T) {
	a := NewCacheKey("users.find", 0, 10, "select * from users where id = ?", int64(1))
	b := NewCacheKey("users.find", 0, 10, "select * from users where id = ?", int64(1))
	assert.True(t, a.Equal(b), "identical components must produce equal keys")
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Equal(t, a.String(), b.String())

	tests := []struct {
		name  string
		other *CacheKey
	}{
		{name: "different bound value", other: NewCacheKey("users.find", 0, 10, "select * from users where id = ?", int64(2))},
		{name: "reordered components", other: NewCacheKey("users.find", 10, 0, "select * from users where id = ?", int64(1))},
		{name: "appended component", other: NewCacheKey("users.find", 0, 10, "select * from users where id = ?", int64(1), nil)},
		{name: "string vs int", other: NewCacheKey("users.find", 0, 10, "select * from users where id = ?", "1")},
		{name: "split string", other: NewCacheKey("users.find", 0, 10, "select * from users where id =", " ?", int64(1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, a.Equal(tt.other))
			assert.NotEqual(t, a.Hash(), tt.other.Hash())
		})
	}
}

func TestCacheKey_UpdateAndClone(t *testing.T) {
	k := NewCacheKey("a")
	c := k.Clone()
	k.Update([]int{1, 2})
	assert.Equal(t, 2, k.Count())
	assert.Equal(t, 1, c.Count())
	c.Update([]int{1, 2})
	assert.True(t, k.Equal(c))

	m1 := NewCacheKey(map[string]int{"x": 1, "y": 2})
	m2 := NewCacheKey(map[string]int{"y": 2, "x": 1})
	assert.True(t, m1.Equal(m2), "map components are order independent")
}

func TestLRU_EvictsLeastRecentlyAccessed(t *testing.T) {
	c, err := NewLRU(NewPerpetual("ns"), 3)
	require.NoError(t, err)

	for i := range 3 {
		require.NoError(t, c.Put(key(i), i))
	}
	// Touch key 0 so key 1 becomes the eldest.
	_, ok, err := c.Get(key(0))
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.Put(key(3), 3))
	assert.Equal(t, 3, c.Size())

	_, ok, _ = c.Get(key(1))
	assert.False(t, ok, "least recently accessed key should be evicted")
	for _, i := range []int{0, 2, 3} {
		v, ok, _ := c.Get(key(i))
		assert.True(t, ok, "key %d should survive", i)
		assert.Equal(t, i, v)
	}
}

func TestFIFO_EvictsOldestInsert(t *testing.T) {
	c := NewFIFO(NewPerpetual("ns"), 2)
	require.NoError(t, c.Put(key(0), 0))
	require.NoError(t, c.Put(key(1), 1))
	_, _, _ = c.Get(key(0))
	require.NoError(t, c.Put(key(2), 2))

	_, ok, _ := c.Get(key(0))
	assert.False(t, ok, "fifo ignores reads")
	assert.Equal(t, 2, c.Size())

	c.Remove(key(1))
	assert.Equal(t, 1, c.Size())
	c.Clear()
	assert.Zero(t, c.Size())
}

func TestBlocking_SingleComputation(t *testing.T) {
	c := NewBlocking(NewSynchronized(NewPerpetual("ns")), 0)
	k := key(42)

	const callers = 16
	var computations atomic.Int32
	results := make([]any, callers)
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			v, ok, err := c.Get(k)
			assert.NoError(t, err)
			if !ok {
				computations.Add(1)
				time.Sleep(10 * time.Millisecond)
				v = "computed"
				assert.NoError(t, c.Put(k, v))
			}
			results[i] = v
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), computations.Load(), "exactly one computation expected")
	for i, r := range results {
		assert.Equal(t, "computed", r, "caller %d", i)
	}
}

func TestBlocking_RemoveReleasesAndTimeout(t *testing.T) {
	c := NewBlocking(NewSynchronized(NewPerpetual("ns")), 20*time.Millisecond)
	k := key(1)

	_, ok, err := c.Get(k)
	require.NoError(t, err)
	require.False(t, ok)

	// Lock is held: a second Get times out.
	_, _, err = c.Get(k)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockTimeout))
	assert.True(t, errors.Is(err, core.ErrCache))

	c.Remove(k)
	_, ok, err = c.Get(k)
	require.NoError(t, err, "lock should be free after Remove")
	assert.False(t, ok)
	c.Remove(k)
}

type payload struct {
	Name string
	Tags []string
}

func TestSerialized_CopiesOnReadAndWrite(t *testing.T) {
	c := NewSerialized(NewPerpetual("ns"))
	orig := &payload{Name: "a", Tags: []string{"x"}}
	require.NoError(t, c.Put(key(1), []any{orig, nil, int64(3)}))
	orig.Name = "mutated"

	v, ok, err := c.Get(key(1))
	require.NoError(t, err)
	require.True(t, ok)
	list := v.([]any)
	require.Len(t, list, 3)
	got := list[0].(*payload)
	assert.Equal(t, "a", got.Name)
	assert.Nil(t, list[1])
	assert.Equal(t, int64(3), list[2])

	got.Name = "changed by reader"
	again, _, _ := c.Get(key(1))
	assert.Equal(t, "a", again.([]any)[0].(*payload).Name)

	err = c.Put(key(2), make(chan int))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrCache))
}

func TestScheduled_FlushesAfterInterval(t *testing.T) {
	now := time.Unix(0, 0)
	c := newScheduledWithClock(NewPerpetual("ns"), time.Minute, func() time.Time { return now })

	require.NoError(t, c.Put(key(1), 1))
	_, ok, _ := c.Get(key(1))
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok, _ = c.Get(key(1))
	assert.False(t, ok)
	assert.Zero(t, c.Size())
}

func TestWeak_EntriesCollected(t *testing.T) {
	c := NewWeak(NewPerpetual("ns"))
	func() {
		require.NoError(t, c.Put(key(1), &payload{Name: "tmp"}))
	}()

	assert.Eventually(t, func() bool {
		runtime.GC()
		_, ok, _ := c.Get(key(1))
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestSoft_HardLinksKeepRecentValues(t *testing.T) {
	c := NewSoft(NewPerpetual("ns"), 1)
	require.NoError(t, c.Put(key(1), &payload{Name: "kept"}))
	runtime.GC()

	v, ok, err := c.Get(key(1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "kept", v.(*payload).Name)
}

func TestLogging_HitRatio(t *testing.T) {
	c := NewLogging(NewPerpetual("ns"), testutil.NewTestLogger(t))
	require.NoError(t, c.Put(key(1), 1))
	_, _, _ = c.Get(key(1))
	_, _, _ = c.Get(key(2))
	assert.InDelta(t, 0.5, c.HitRatio(), 0.0001)
}

type customCache struct {
	*Perpetual
	Capacity    int           `mapstructure:"capacity"`
	Region      string        `mapstructure:"region"`
	TTL         time.Duration `mapstructure:"ttl"`
	initialized bool
}

func (c *customCache) Initialize() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive")
	}
	c.initialized = true
	return nil
}

func TestBuilder_Chain(t *testing.T) {
	c, err := NewBuilder("users").Size(2).FlushInterval(time.Hour).Blocking(true, time.Second).Build()
	require.NoError(t, err)
	assert.Equal(t, "users", c.ID())

	logging, ok := c.(*Logging)
	require.True(t, ok, "logging is outermost")
	blocking, ok := logging.delegate.(*Blocking)
	require.True(t, ok)
	synced, ok := blocking.delegate.(*Synchronized)
	require.True(t, ok)
	ser, ok := synced.delegate.(*Serialized)
	require.True(t, ok)
	sched, ok := ser.delegate.(*Scheduled)
	require.True(t, ok)
	lruCache, ok := sched.delegate.(*LRU)
	require.True(t, ok)
	_, ok = lruCache.delegate.(*Perpetual)
	require.True(t, ok)

	_, err = NewBuilder("x").Eviction("random").Build()
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrCache))
}

func TestBuilder_CustomImplementation(t *testing.T) {
	impls := NewImplementations()
	var built *customCache
	require.NoError(t, impls.Register("Custom", func(id string) Cache {
		built = &customCache{Perpetual: NewPerpetual(id)}
		return built
	}))
	require.Error(t, impls.Register("custom", nil), "duplicate name")

	c, err := NewBuilder("orders").
		Implementation("custom", impls).
		Properties(map[string]any{"capacity": "10", "region": "eu", "ttl": "5s"}).
		Build()
	require.NoError(t, err)
	assert.Equal(t, "orders", c.ID())
	assert.Equal(t, 10, built.Capacity)
	assert.Equal(t, "eu", built.Region)
	assert.Equal(t, 5*time.Second, built.TTL)
	assert.True(t, built.initialized)

	_, err = NewBuilder("orders").Implementation("custom", impls).Properties(map[string]any{"unknown": 1}).Build()
	require.Error(t, err)

	_, err = NewBuilder("orders").Implementation("custom", impls).Properties(map[string]any{"capacity": 0}).Build()
	require.Error(t, err)

	_, err = NewBuilder("orders").Implementation("missing", impls).Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "custom")
}
