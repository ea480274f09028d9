// Package session is the entry point for running mapped statements by id.
package session

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"reflect"

	"github.com/leapstack-labs/leapmap/internal/executor"
	"github.com/leapstack-labs/leapmap/internal/reflection"
	"github.com/leapstack-labs/leapmap/pkg/adapter"
	"github.com/leapstack-labs/leapmap/pkg/core"
	"github.com/leapstack-labs/leapmap/pkg/mapping"
)

// Session executes the statements of one configuration against one adapter.
// It is safe for concurrent use when the adapter is.
type Session struct {
	cfg      *mapping.Configuration
	adapter  adapter.Adapter
	executor executor.Executor
	logger   *slog.Logger
	// owned is set when Open created the adapter.
	owned bool
}

// Option configures a Session.
type Option func(*Session)

// WithLogger overrides the configuration logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a session over an adapter the caller connects and closes.
func New(cfg *mapping.Configuration, adp adapter.Adapter, opts ...Option) *Session {
	s := &Session{cfg: cfg, adapter: adp, logger: cfg.Logger()}
	for _, opt := range opts {
		opt(s)
	}
	s.executor = executor.New(cfg, adp, executor.WithLogger(s.logger))
	return s
}

// Open creates and connects the adapter registered for dbCfg.Type. Close
// releases it.
func Open(ctx context.Context, cfg *mapping.Configuration, dbCfg adapter.Config, opts ...Option) (*Session, error) {
	if dbCfg.StatementCacheSize == 0 {
		dbCfg.StatementCacheSize = cfg.Settings().StatementCacheSize
	}
	adp, err := adapter.NewAdapter(dbCfg, cfg.Logger())
	if err != nil {
		return nil, core.Wrap(core.ErrConfiguration, "", err).WithResource(dbCfg.Type)
	}
	if err := adp.Connect(ctx, dbCfg); err != nil {
		return nil, core.Wrap(core.ErrExecution, "", err).WithResource(dbCfg.Type)
	}
	s := New(cfg, adp, opts...)
	s.owned = true
	return s, nil
}

// Close closes the adapter when the session opened it.
func (s *Session) Close() error {
	if !s.owned {
		return nil
	}
	return s.adapter.Close()
}

// Configuration returns the configuration the session runs.
func (s *Session) Configuration() *mapping.Configuration { return s.cfg }

// Adapter returns the database adapter.
func (s *Session) Adapter() adapter.Adapter { return s.adapter }

// SelectOne returns the single row of a select, or nil when there is none.
// More than one row is an execution error.
func (s *Session) SelectOne(ctx context.Context, id string, param any) (any, error) {
	list, err := s.SelectList(ctx, id, param)
	if err != nil {
		return nil, err
	}
	switch len(list) {
	case 0:
		return nil, nil
	case 1:
		return list[0], nil
	}
	return nil, core.Errorf(core.ErrExecution, "expected one result (or none) but found %d", len(list)).WithStatement(id)
}

// SelectList returns every row of a select. At most one RowBounds is used.
func (s *Session) SelectList(ctx context.Context, id string, param any, bounds ...mapping.RowBounds) ([]any, error) {
	ms, err := s.statement(id, true)
	if err != nil {
		return nil, err
	}
	return s.executor.Query(ctx, ms, param, rowBounds(bounds))
}

// SelectMap returns the rows of a select keyed by the mapKey property of
// each row. Later rows replace earlier ones with the same key.
func (s *Session) SelectMap(ctx context.Context, id string, param any, mapKey string, bounds ...mapping.RowBounds) (map[any]any, error) {
	list, err := s.SelectList(ctx, id, param, bounds...)
	if err != nil {
		return nil, err
	}
	out := make(map[any]any, len(list))
	for _, v := range list {
		key, err := reflection.Resolve(v, mapKey)
		if err != nil {
			return nil, core.Wrap(core.ErrMapping, id, err).WithResource(mapKey)
		}
		if key != nil && !reflect.TypeOf(key).Comparable() {
			return nil, core.Errorf(core.ErrMapping, "map key %s of type %T is not comparable", mapKey, key).WithStatement(id)
		}
		out[key] = v
	}
	return out, nil
}

// SelectCursor returns the rows of a select as a sequence. The query runs
// when the sequence is ranged over; stopping early closes the cursor.
func (s *Session) SelectCursor(ctx context.Context, id string, param any, bounds ...mapping.RowBounds) (iter.Seq2[any, error], error) {
	ms, err := s.statement(id, true)
	if err != nil {
		return nil, err
	}
	return s.executor.QueryCursor(ctx, ms, param, rowBounds(bounds))
}

// Insert runs an insert and returns the affected rows.
func (s *Session) Insert(ctx context.Context, id string, param any) (int64, error) {
	return s.update(ctx, id, param)
}

// Update runs an update and returns the affected rows.
func (s *Session) Update(ctx context.Context, id string, param any) (int64, error) {
	return s.update(ctx, id, param)
}

// Delete runs a delete and returns the affected rows.
func (s *Session) Delete(ctx context.Context, id string, param any) (int64, error) {
	return s.update(ctx, id, param)
}

// FlushCaches clears every second-level cache of the configuration.
func (s *Session) FlushCaches() { s.executor.FlushCaches() }

// ClearLocalCache drops the results the session keeps under the session
// local cache scope.
func (s *Session) ClearLocalCache() { s.executor.ClearLocalCache() }

func (s *Session) update(ctx context.Context, id string, param any) (int64, error) {
	ms, err := s.statement(id, false)
	if err != nil {
		return 0, err
	}
	return s.executor.Update(ctx, ms, param)
}

// statement looks id up and checks it is (or is not) a select.
func (s *Session) statement(id string, query bool) (*mapping.MappedStatement, error) {
	ms, err := s.cfg.MappedStatement(id)
	if err != nil {
		return nil, err
	}
	switch isSelect := ms.Kind == core.KindSelect; {
	case query && !isSelect:
		return nil, core.Errorf(core.ErrExecution, "%s statement cannot run as a query", ms.Kind).WithStatement(ms.ID)
	case !query && isSelect:
		return nil, core.Errorf(core.ErrExecution, "select statement cannot run as a write").WithStatement(ms.ID)
	}
	return ms, nil
}

func rowBounds(bounds []mapping.RowBounds) mapping.RowBounds {
	if len(bounds) == 0 {
		return mapping.DefaultRowBounds
	}
	return bounds[0].Normalize()
}

// =============================================================================
// Typed helpers
// =============================================================================

// One runs SelectOne and converts the row to T. No row yields the zero T.
func One[T any](ctx context.Context, s *Session, id string, param any) (T, error) {
	var zero T
	v, err := s.SelectOne(ctx, id, param)
	if err != nil {
		return zero, err
	}
	return As[T](v, id)
}

// List runs SelectList and converts every row to T.
func List[T any](ctx context.Context, s *Session, id string, param any, bounds ...mapping.RowBounds) ([]T, error) {
	list, err := s.SelectList(ctx, id, param, bounds...)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(list))
	for _, v := range list {
		t, err := As[T](v, id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// As converts a mapped row to T, adding or removing one level of pointer
// and converting between numeric kinds.
func As[T any](v any, statementID string) (T, error) {
	var zero T
	if v == nil {
		return zero, nil
	}
	if t, ok := v.(T); ok {
		return t, nil
	}
	target := reflect.TypeOf((*T)(nil)).Elem()
	out, err := Convert(reflect.ValueOf(v), target)
	if err != nil {
		return zero, core.Wrap(core.ErrMapping, statementID, err)
	}
	return out.Interface().(T), nil
}

// Convert adapts v to target the way mapped rows are handed to callers.
func Convert(v reflect.Value, target reflect.Type) (reflect.Value, error) {
	switch {
	case !v.IsValid():
		return reflect.Zero(target), nil
	case v.Type().AssignableTo(target):
		out := reflect.New(target).Elem()
		out.Set(v)
		return out, nil
	case target.Kind() == reflect.Pointer && v.Type().AssignableTo(target.Elem()):
		p := reflect.New(target.Elem())
		p.Elem().Set(v)
		return p, nil
	case v.Kind() == reflect.Pointer && v.Type().Elem().AssignableTo(target):
		if v.IsNil() {
			return reflect.Zero(target), nil
		}
		return v.Elem(), nil
	case v.Type().ConvertibleTo(target) && v.Kind() != reflect.String && target.Kind() != reflect.String:
		return v.Convert(target), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot convert %s to %s", v.Type(), target)
}
