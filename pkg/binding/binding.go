// Package binding fills the function fields of mapper structs with
// implementations that run the statement of the same name.
//
//	type UserMapper struct {
//		FindByID func(ctx context.Context, id int64) (*User, error)
//		Search   func(ctx context.Context, name string, rb mapping.RowBounds) ([]User, error) `params:"name"`
//		Insert   func(ctx context.Context, u *User) (int64, error)
//	}
//
//	var users UserMapper
//	err := binding.Bind(sess, &users)
//
// The statement id is "<namespace>.<field>" with the first letter of the
// field lowered, unless a stmt tag names it. The namespace comes from a
// Namespace() string method on the struct, WithNamespace, or the struct type
// name, in that order.
package binding

import (
	"fmt"
	"log/slog"
	"reflect"
	"unicode"
	"unicode/utf8"

	"github.com/leapstack-labs/leapmap/pkg/core"
	"github.com/leapstack-labs/leapmap/pkg/session"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"
)

// Namespacer is implemented by mapper structs that name their namespace.
type Namespacer interface {
	Namespace() string
}

// Option configures a Bind call.
type Option func(*bindOptions)

type bindOptions struct {
	namespace string
}

// WithNamespace sets the namespace of a struct without a Namespace method.
func WithNamespace(ns string) Option {
	return func(o *bindOptions) { o.namespace = ns }
}

// Factory binds mapper structs to one session. Dispatch tables are built
// once per struct type and namespace and shared by every later Bind.
type Factory struct {
	sess   *session.Session
	logger *slog.Logger
	tables *xsync.MapOf[tableKey, *table]
	group  singleflight.Group
}

type tableKey struct {
	typ       reflect.Type
	namespace string
}

// table is the dispatch table of one mapper struct type. Fields without a
// usable statement keep their error; it is reported only when Bind would
// have to implement the field.
type table struct {
	namespace string
	entries   []entry
}

type entry struct {
	index int
	sig   *MethodSignature
	err   error
}

// NewFactory creates a factory for sess.
func NewFactory(sess *session.Session) *Factory {
	return &Factory{
		sess:   sess,
		logger: sess.Configuration().Logger(),
		tables: xsync.NewMapOf[tableKey, *table](),
	}
}

// Bind is NewFactory(sess).Bind(target, opts...).
func Bind(sess *session.Session, target any, opts ...Option) error {
	return NewFactory(sess).Bind(target, opts...)
}

// Bind fills every nil function field of the struct target points to.
// Fields that are already set, unexported or tagged stmt:"-" are left alone.
func (f *Factory) Bind(target any, opts ...Option) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return core.Errorf(core.ErrConfiguration, "bind target must be a non-nil pointer to a struct, got %T", target)
	}
	var o bindOptions
	for _, opt := range opts {
		opt(&o)
	}
	namespace := o.namespace
	if n, ok := target.(Namespacer); ok {
		namespace = n.Namespace()
	}
	st := rv.Elem().Type()
	if namespace == "" {
		namespace = st.Name()
	}

	tbl, err := f.table(st, namespace)
	if err != nil {
		return err
	}
	for _, e := range tbl.entries {
		if e.err != nil && rv.Elem().Field(e.index).IsNil() {
			return e.err
		}
	}
	for _, e := range tbl.entries {
		if field := rv.Elem().Field(e.index); field.IsNil() {
			field.Set(reflect.MakeFunc(e.sig.funcType, f.invoker(e.sig)))
		}
	}
	return nil
}

// table returns the cached dispatch table, building it once even when
// several goroutines bind the same type concurrently.
func (f *Factory) table(t reflect.Type, namespace string) (*table, error) {
	key := tableKey{typ: t, namespace: namespace}
	if tbl, ok := f.tables.Load(key); ok {
		return tbl, nil
	}
	res, err, _ := f.group.Do(fmt.Sprintf("%s|%s|%s", t.PkgPath(), t.String(), namespace), func() (any, error) {
		if tbl, ok := f.tables.Load(key); ok {
			return tbl, nil
		}
		tbl := f.buildTable(t, namespace)
		f.tables.Store(key, tbl)
		return tbl, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*table), nil
}

func (f *Factory) buildTable(t reflect.Type, namespace string) *table {
	cfg := f.sess.Configuration()
	tbl := &table{namespace: namespace}
	for i := range t.NumField() {
		field := t.Field(i)
		if !field.IsExported() || field.Type.Kind() != reflect.Func {
			continue
		}
		tag := field.Tag.Get(TagStatement)
		if tag == "-" {
			continue
		}
		id := namespace + "." + tag
		if tag == "" {
			id = namespace + "." + lowerFirst(field.Name)
			if !cfg.HasStatement(id) && cfg.HasStatement(namespace+"."+field.Name) {
				id = namespace + "." + field.Name
			}
		}
		e := entry{index: i}
		if ms, err := cfg.MappedStatement(id); err != nil {
			e.err = core.Wrap(core.ErrConfiguration, "", err).WithResource(t.String() + "." + field.Name)
		} else if e.sig, err = resolveSignature(field, i, ms, cfg.Settings().UseActualParamName); err != nil {
			e.err = core.Wrap(core.ErrConfiguration, ms.ID, err).WithResource(t.String() + "." + field.Name)
		}
		tbl.entries = append(tbl.entries, e)
	}
	f.logger.Debug("mapper bound",
		slog.String("type", t.String()),
		slog.String("namespace", namespace),
		slog.Int("fields", len(tbl.entries)))
	return tbl
}

// lowerFirst maps an exported field name to the usual statement id:
// FindByID becomes findByID.
func lowerFirst(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToLower(r)) + name[size:]
}
