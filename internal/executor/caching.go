package executor

import (
	"context"
	"iter"
	"log/slog"

	"github.com/leapstack-labs/leapmap/pkg/adapter"
	"github.com/leapstack-labs/leapmap/pkg/cache"
	"github.com/leapstack-labs/leapmap/pkg/core"
	"github.com/leapstack-labs/leapmap/pkg/mapping"
)

// CachingExecutor serves selects from the namespace cache of their statement
// and clears that cache before writes.
type CachingExecutor struct {
	delegate *SimpleExecutor
	cfg      *mapping.Configuration
}

func (e *CachingExecutor) Query(ctx context.Context, ms *mapping.MappedStatement, param any, bounds mapping.RowBounds) ([]any, error) {
	c := ms.Cache
	if c == nil {
		return e.delegate.Query(ctx, ms, param, bounds)
	}
	if ms.FlushCache {
		c.Clear()
	}
	if !ms.UseCache {
		return e.delegate.Query(ctx, ms, param, bounds)
	}

	bound, values, err := e.delegate.render(ms, param)
	if err != nil {
		return nil, err
	}
	key := CacheKey(ms, bounds, bound.SQL, values)

	cached, ok, err := c.Get(key)
	if err != nil {
		return nil, core.Wrap(core.ErrCache, ms.ID, err)
	}
	if ok {
		if list, isList := cached.([]any); isList {
			return list, nil
		}
	}

	list, err := e.delegate.query(ctx, ms, bound, values, bounds)
	if err != nil {
		// releases a blocking cache lock without storing the failure
		c.Remove(key)
		return nil, err
	}
	if err := c.Put(key, list); err != nil {
		return nil, core.Wrap(core.ErrCache, ms.ID, err)
	}
	return list, nil
}

func (e *CachingExecutor) QueryCursor(ctx context.Context, ms *mapping.MappedStatement, param any, bounds mapping.RowBounds) (iter.Seq2[any, error], error) {
	if ms.Cache != nil && ms.FlushCache {
		ms.Cache.Clear()
	}
	return e.delegate.QueryCursor(ctx, ms, param, bounds)
}

func (e *CachingExecutor) Update(ctx context.Context, ms *mapping.MappedStatement, param any) (int64, error) {
	if ms.Cache != nil && ms.FlushCache {
		e.delegate.logger.Debug("clearing cache before write",
			slog.String("statement", e.cfg.Settings().LogPrefix+ms.ID),
			slog.String("cache", ms.Cache.ID()))
		ms.Cache.Clear()
	}
	return e.delegate.Update(ctx, ms, param)
}

func (e *CachingExecutor) FlushCaches() { e.delegate.FlushCaches() }

func (e *CachingExecutor) ClearLocalCache() { e.delegate.ClearLocalCache() }

// CacheKey builds the second-level cache key of one select: statement id,
// row bounds, rendered SQL and every bound value in placeholder order.
func CacheKey(ms *mapping.MappedStatement, bounds mapping.RowBounds, sql string, values []adapter.BoundValue) *cache.CacheKey {
	bounds = bounds.Normalize()
	key := cache.NewCacheKey(ms.ID, bounds.Offset, bounds.Limit, sql)
	for _, v := range values {
		key.Update(v.Value)
	}
	return key
}
