// Package executor runs mapped statements against an adapter: render the
// template, bind parameters, execute and map results. Selects go through a
// local cache scoped to the session or to one top-level statement; the
// caching executor adds the namespace second-level cache on top.
package executor

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapmap/internal/mapper"
	"github.com/leapstack-labs/leapmap/pkg/adapter"
	"github.com/leapstack-labs/leapmap/pkg/cache"
	"github.com/leapstack-labs/leapmap/pkg/config"
	"github.com/leapstack-labs/leapmap/pkg/core"
	"github.com/leapstack-labs/leapmap/pkg/mapping"
)

// Executor executes mapped statements.
type Executor interface {
	// Query runs a select and returns the mapped rows.
	Query(ctx context.Context, ms *mapping.MappedStatement, param any, bounds mapping.RowBounds) ([]any, error)
	// QueryCursor renders and binds immediately and executes when the
	// returned sequence is ranged over. Cursors bypass the cache.
	QueryCursor(ctx context.Context, ms *mapping.MappedStatement, param any, bounds mapping.RowBounds) (iter.Seq2[any, error], error)
	// Update runs an insert, update or delete and returns the affected rows.
	Update(ctx context.Context, ms *mapping.MappedStatement, param any) (int64, error)
	// FlushCaches clears every second-level cache of the configuration.
	FlushCaches()
	// ClearLocalCache drops the results held by the local cache.
	ClearLocalCache()
}

// Option configures an executor.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger overrides the configuration logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New returns the executor for cfg: a caching executor when caches are
// enabled, else the plain one.
func New(cfg *mapping.Configuration, adp adapter.Adapter, opts ...Option) Executor {
	o := options{logger: cfg.Logger()}
	for _, opt := range opts {
		opt(&o)
	}
	id := uuid.NewString()
	simple := &SimpleExecutor{
		cfg:     cfg,
		adapter: adp,
		logger:  o.logger.With(slog.String("session", id)),
	}
	if cfg.Settings().LocalCacheScope == config.LocalCacheSession {
		simple.local = cache.NewSynchronized(cache.NewPerpetual("local:" + id))
	}
	if !cfg.Settings().CacheEnabled {
		simple.root = simple
		return simple
	}
	caching := &CachingExecutor{delegate: simple, cfg: cfg}
	simple.root = caching
	return caching
}

// SimpleExecutor executes every call against the adapter.
type SimpleExecutor struct {
	cfg     *mapping.Configuration
	adapter adapter.Adapter
	logger  *slog.Logger
	// root runs nested selects so they go through the cache when one wraps
	// this executor.
	root Executor
	// local is the session scoped local cache; nil under statement scope.
	local cache.Cache
}

type localCacheKey struct{}

// localCache returns the local cache of a select and the context its nested
// selects run with. owned is set when the cache lives for this call only.
func (e *SimpleExecutor) localCache(ctx context.Context) (cache.Cache, context.Context, bool) {
	if e.local != nil {
		return e.local, ctx, false
	}
	if c, ok := ctx.Value(localCacheKey{}).(cache.Cache); ok {
		return c, ctx, false
	}
	c := cache.NewSynchronized(cache.NewPerpetual("local"))
	return c, context.WithValue(ctx, localCacheKey{}, c), true
}

// ClearLocalCache drops the session scoped local cache.
func (e *SimpleExecutor) ClearLocalCache() {
	if e.local != nil {
		e.local.Clear()
	}
}

// SelectNested implements mapper.NestedLoader.
func (e *SimpleExecutor) SelectNested(ctx context.Context, statementID string, param any) ([]any, error) {
	ms, err := e.cfg.MappedStatement(statementID)
	if err != nil {
		return nil, err
	}
	return e.root.Query(ctx, ms, param, mapping.DefaultRowBounds)
}

func (e *SimpleExecutor) Query(ctx context.Context, ms *mapping.MappedStatement, param any, bounds mapping.RowBounds) ([]any, error) {
	bound, values, err := e.render(ms, param)
	if err != nil {
		return nil, err
	}
	return e.query(ctx, ms, bound, values, bounds)
}

func (e *SimpleExecutor) query(ctx context.Context, ms *mapping.MappedStatement, bound *mapping.BoundSQL, values []adapter.BoundValue, bounds mapping.RowBounds) ([]any, error) {
	local, ctx, owned := e.localCache(ctx)
	if owned {
		defer local.Clear()
	}
	if ms.FlushCache {
		local.Clear()
	}

	key := CacheKey(ms, bounds, bound.SQL, values)
	if cached, ok, _ := local.Get(key); ok {
		if list, isList := cached.([]any); isList {
			return list, nil
		}
	}
	list, err := e.fetch(ctx, ms, bound, values, bounds)
	if err != nil {
		return nil, err
	}
	_ = local.Put(key, list)
	return list, nil
}

func (e *SimpleExecutor) fetch(ctx context.Context, ms *mapping.MappedStatement, bound *mapping.BoundSQL, values []adapter.BoundValue, bounds mapping.RowBounds) ([]any, error) {
	cur, err := e.open(ctx, ms, bound, values)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close() }()

	return mapper.NewResultMapper(e.cfg, ms, e, e.logger).MapResults(ctx, cur, bounds)
}

func (e *SimpleExecutor) QueryCursor(ctx context.Context, ms *mapping.MappedStatement, param any, bounds mapping.RowBounds) (iter.Seq2[any, error], error) {
	bound, values, err := e.render(ms, param)
	if err != nil {
		return nil, err
	}
	return func(yield func(any, error) bool) {
		cur, err := e.open(ctx, ms, bound, values)
		if err != nil {
			yield(nil, err)
			return
		}
		defer func() { _ = cur.Close() }()

		for v, err := range mapper.NewResultMapper(e.cfg, ms, e, e.logger).Stream(ctx, cur, bounds) {
			if !yield(v, err) || err != nil {
				return
			}
		}
	}, nil
}

func (e *SimpleExecutor) Update(ctx context.Context, ms *mapping.MappedStatement, param any) (int64, error) {
	e.ClearLocalCache()
	bound, values, err := e.render(ms, param)
	if err != nil {
		return 0, err
	}
	st, err := e.prepare(ctx, ms, bound, values)
	if err != nil {
		return 0, err
	}
	defer func() { _ = st.Close() }()

	res, err := st.Exec(ctx)
	if err != nil {
		return 0, core.Wrap(core.ErrExecution, ms.ID, err)
	}
	if ms.KeyProperty != "" && res.HasLastInsertID && e.cfg.Settings().UseGeneratedKeys {
		if err := mapper.AssignGeneratedKey(e.cfg, ms, param, res.LastInsertID); err != nil {
			return 0, err
		}
	}
	return res.RowsAffected, nil
}

// FlushCaches clears all caches of the configuration.
func (e *SimpleExecutor) FlushCaches() {
	for _, c := range e.cfg.Caches() {
		c.Clear()
	}
}

// render produces the SQL and the bound values of one call.
func (e *SimpleExecutor) render(ms *mapping.MappedStatement, param any) (*mapping.BoundSQL, []adapter.BoundValue, error) {
	bound, err := ms.BoundSQL(param)
	if err != nil {
		return nil, nil, err
	}
	values, err := mapper.BindParameters(e.cfg, ms, bound)
	if err != nil {
		return nil, nil, err
	}
	return bound, values, nil
}

func (e *SimpleExecutor) prepare(ctx context.Context, ms *mapping.MappedStatement, bound *mapping.BoundSQL, values []adapter.BoundValue) (adapter.Statement, error) {
	settings := e.cfg.Settings()
	opts := adapter.StatementOptions{Timeout: ms.Timeout, FetchSize: ms.FetchSize}
	if opts.Timeout == 0 {
		opts.Timeout = settings.DefaultStatementTimeout
	}
	if opts.FetchSize == 0 {
		opts.FetchSize = settings.DefaultFetchSize
	}

	e.logger.Debug("executing statement",
		slog.String("statement", settings.LogPrefix+ms.ID),
		slog.String("sql", bound.SQL),
		slog.Int("params", len(values)))

	st, err := e.adapter.Prepare(ctx, bound.SQL, opts)
	if err != nil {
		return nil, core.Wrap(core.ErrExecution, ms.ID, err)
	}
	for i, v := range values {
		if err := st.Bind(i+1, v.Value, v.Hint); err != nil {
			_ = st.Close()
			return nil, core.Wrap(core.ErrBinding, ms.ID, err)
		}
	}
	return st, nil
}

// open executes a query and returns its cursor; the statement is closed
// together with the cursor.
func (e *SimpleExecutor) open(ctx context.Context, ms *mapping.MappedStatement, bound *mapping.BoundSQL, values []adapter.BoundValue) (adapter.Cursor, error) {
	st, err := e.prepare(ctx, ms, bound, values)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	cur, err := st.Query(ctx)
	if err != nil {
		_ = st.Close()
		return nil, core.Wrap(core.ErrExecution, ms.ID, err)
	}
	e.logger.Debug("query opened",
		slog.String("statement", e.cfg.Settings().LogPrefix+ms.ID),
		slog.Duration("elapsed", time.Since(start)))
	return &stmtCursor{Cursor: cur, st: st}, nil
}

type stmtCursor struct {
	adapter.Cursor
	st adapter.Statement
}

func (c *stmtCursor) Close() error {
	err := c.Cursor.Close()
	if cerr := c.st.Close(); err == nil {
		err = cerr
	}
	return err
}

var _ mapper.NestedLoader = (*SimpleExecutor)(nil)
