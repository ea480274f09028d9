// Package cache implements the second-level statement cache: a CacheKey,
// a perpetual base store and decorators that add eviction, thread safety,
// per-key blocking, copy semantics, scheduled flushing and logging.
//
// Decorators each own the next inner Cache exclusively; Builder assembles a
// chain in a fixed order:
//
//	logging → blocking → synchronized → serialized → scheduled → eviction → base
package cache

import (
	"errors"

	"github.com/leapstack-labs/leapmap/pkg/core"
)

// Cache is a second-level cache store or decorator.
type Cache interface {
	// ID identifies the cache, normally the namespace that owns it.
	ID() string
	// Get returns the cached value and whether it was present.
	Get(key *CacheKey) (any, bool, error)
	// Put stores value under key.
	Put(key *CacheKey, value any) error
	// Remove drops key. Blocking caches also release a lock held for key.
	Remove(key *CacheKey)
	// Clear drops every entry.
	Clear()
	// Size returns the number of entries held.
	Size() int
}

// ErrLockTimeout is returned by a blocking cache when a per-key lock cannot
// be acquired in time.
var ErrLockTimeout = errors.New("timed out waiting for cache lock")

func cacheError(id string, format string, args ...any) *core.Error {
	return core.Errorf(core.ErrCache, format, args...).WithResource(id)
}
