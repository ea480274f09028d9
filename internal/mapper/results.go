package mapper

import (
	"context"
	"iter"
	"log/slog"
	"reflect"
	"strings"

	"github.com/leapstack-labs/leapmap/internal/reflection"
	"github.com/leapstack-labs/leapmap/pkg/adapter"
	"github.com/leapstack-labs/leapmap/pkg/cache"
	"github.com/leapstack-labs/leapmap/pkg/config"
	"github.com/leapstack-labs/leapmap/pkg/core"
	"github.com/leapstack-labs/leapmap/pkg/lazy"
	"github.com/leapstack-labs/leapmap/pkg/mapping"
	"github.com/leapstack-labs/leapmap/pkg/typehandler"
)

// NestedLoader runs the statements referenced by nested select mappings.
type NestedLoader interface {
	SelectNested(ctx context.Context, statementID string, param any) ([]any, error)
}

// ResultMapper maps the rows of one statement execution. It is not safe for
// concurrent use; create one per execution.
type ResultMapper struct {
	cfg      *mapping.Configuration
	settings *config.Settings
	handlers *typehandler.Registry
	ms       *mapping.MappedStatement
	loader   NestedLoader
	logger   *slog.Logger

	// nested is set when the statement groups rows into nested result maps.
	nested bool

	// autoMappings caches the auto-mapped columns per result map and prefix.
	autoMappings map[string][]autoMapping

	// objects holds grouped objects by row key while mapping nested results.
	objects map[string]*node

	warned map[string]bool
}

// NewResultMapper creates a mapper for ms. loader may be nil when the result
// maps contain no nested selects.
func NewResultMapper(cfg *mapping.Configuration, ms *mapping.MappedStatement, loader NestedLoader, logger *slog.Logger) *ResultMapper {
	if logger == nil {
		logger = cfg.Logger()
	}
	return &ResultMapper{
		cfg:          cfg,
		settings:     cfg.Settings(),
		handlers:     cfg.TypeHandlers(),
		ms:           ms,
		loader:       loader,
		logger:       logger,
		nested:       ms.HasNestedResultMaps(),
		autoMappings: make(map[string][]autoMapping),
		objects:      make(map[string]*node),
		warned:       make(map[string]bool),
	}
}

type autoMapping struct {
	index int
	prop  *reflection.Property
}

// node is a mapped value under construction. Nested result objects are kept
// as pointers and linked into their parents only when mapping completes, so
// value-typed properties receive fully populated copies.
type node struct {
	value reflect.Value
	links []*link
	done  bool
}

type link struct {
	prop     *reflection.Property
	many     bool
	children []*node
	seen     map[*node]bool
}

func (n *node) link(prop *reflection.Property, many bool, child *node) {
	for _, l := range n.links {
		if l.prop == prop {
			if !l.seen[child] {
				l.seen[child] = true
				l.children = append(l.children, child)
			}
			return
		}
	}
	n.links = append(n.links, &link{prop: prop, many: many, children: []*node{child}, seen: map[*node]bool{child: true}})
}

// row is a snapshot of the current cursor row.
type row struct {
	cols  []string
	index map[string]int
	vals  []any
}

func (r *row) get(column string) (any, bool) {
	i, ok := r.index[strings.ToUpper(column)]
	if !ok {
		return nil, false
	}
	return r.vals[i], true
}

func newRowReader(cols []string) func(adapter.Cursor) *row {
	index := make(map[string]int, len(cols))
	for i, c := range cols {
		key := strings.ToUpper(c)
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}
	return func(cur adapter.Cursor) *row {
		vals := make([]any, len(cols))
		for i := range vals {
			vals[i] = cur.Value(i)
		}
		return &row{cols: cols, index: index, vals: vals}
	}
}

// MapResults consumes cur and returns one value per result object. Values
// have the type of the statement's result map; rows that map to nothing
// yield nil elements. The cursor is not closed.
func (m *ResultMapper) MapResults(ctx context.Context, cur adapter.Cursor, bounds mapping.RowBounds) ([]any, error) {
	rm, err := m.resultMap()
	if err != nil {
		return nil, err
	}
	bounds = bounds.Normalize()
	if m.nested && m.settings.SafeRowBoundsEnabled && !bounds.IsDefault() {
		return nil, core.Errorf(core.ErrMapping,
			"statements with nested result maps cannot be safely constrained by row bounds; disable safe_row_bounds_enabled to allow it").
			WithStatement(m.ms.ID)
	}

	read := newRowReader(cur.Columns())
	var nodes []*node
	skipped := 0
	for cur.Next() {
		if err := ctx.Err(); err != nil {
			return nil, core.Wrap(core.ErrExecution, m.ms.ID, err)
		}
		if skipped < bounds.Offset {
			skipped++
			continue
		}
		r := read(cur)

		if !m.nested {
			if len(nodes) >= bounds.Limit {
				break
			}
			n, err := m.rowValue(ctx, rm, r, "", "")
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
			continue
		}

		key := m.rowKey(rm, r, "")
		if parent, ok := m.objects[key]; ok && key != "" {
			if _, err := m.applyNestedResultMappings(ctx, rm, r, "", key, parent); err != nil {
				return nil, err
			}
			continue
		}
		if len(nodes) >= bounds.Limit {
			break
		}
		n, err := m.rowValue(ctx, rm, r, "", key)
		if err != nil {
			return nil, err
		}
		if n != nil && key != "" {
			m.objects[key] = n
		}
		nodes = append(nodes, n)
	}
	if err := cur.Err(); err != nil {
		return nil, core.Wrap(core.ErrExecution, m.ms.ID, err)
	}
	return m.finish(rm, nodes)
}

// Stream maps rows one at a time. Statements with nested result maps are
// mapped completely before the first value is yielded.
func (m *ResultMapper) Stream(ctx context.Context, cur adapter.Cursor, bounds mapping.RowBounds) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		if m.nested {
			values, err := m.MapResults(ctx, cur, bounds)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, v := range values {
				if !yield(v, nil) {
					return
				}
			}
			return
		}

		rm, err := m.resultMap()
		if err != nil {
			yield(nil, err)
			return
		}
		bounds = bounds.Normalize()
		read := newRowReader(cur.Columns())
		skipped, mapped := 0, 0
		for mapped < bounds.Limit && cur.Next() {
			if skipped < bounds.Offset {
				skipped++
				continue
			}
			n, err := m.rowValue(ctx, rm, read(cur), "", "")
			if err == nil {
				var v []any
				v, err = m.finish(rm, []*node{n})
				if err == nil {
					mapped++
					if !yield(v[0], nil) {
						return
					}
					continue
				}
			}
			yield(nil, err)
			return
		}
		if err := cur.Err(); err != nil {
			yield(nil, core.Wrap(core.ErrExecution, m.ms.ID, err))
		}
	}
}

func (m *ResultMapper) resultMap() (*mapping.ResultMap, error) {
	rm := m.ms.ResultMap()
	if rm == nil {
		return nil, core.Errorf(core.ErrMapping, "statement declares no result map or result type").WithStatement(m.ms.ID)
	}
	return rm, nil
}

// finish links nested objects and converts every node to the result map type.
func (m *ResultMapper) finish(rm *mapping.ResultMap, nodes []*node) ([]any, error) {
	out := make([]any, len(nodes))
	for i, n := range nodes {
		if n == nil {
			continue
		}
		v, err := m.materialize(n)
		if err != nil {
			return nil, err
		}
		if rm.Type != nil && rm.Type.Kind() == reflect.Struct && v.Kind() == reflect.Pointer {
			v = v.Elem()
		}
		out[i] = v.Interface()
	}
	return out, nil
}

func (m *ResultMapper) materialize(n *node) (reflect.Value, error) {
	if n.done {
		return n.value, nil
	}
	n.done = true
	for _, l := range n.links {
		field := l.prop.Field(n.value.Elem())
		if !l.many {
			child, err := m.materialize(l.children[0])
			if err != nil {
				return reflect.Value{}, err
			}
			v, err := m.fit(child, field.Type(), l.prop.Name)
			if err != nil {
				return reflect.Value{}, err
			}
			field.Set(v)
			continue
		}
		slice := field
		for _, c := range l.children {
			child, err := m.materialize(c)
			if err != nil {
				return reflect.Value{}, err
			}
			v, err := m.fit(child, field.Type().Elem(), l.prop.Name)
			if err != nil {
				return reflect.Value{}, err
			}
			slice = reflect.Append(slice, v)
		}
		field.Set(slice)
	}
	return n.value, nil
}

// fit adapts a mapped value (pointers for structs) to target.
func (m *ResultMapper) fit(v reflect.Value, target reflect.Type, property string) (reflect.Value, error) {
	switch {
	case !v.IsValid():
		return reflect.Zero(target), nil
	case v.Type().AssignableTo(target):
		return v, nil
	case v.Kind() == reflect.Pointer && v.Type().Elem().AssignableTo(target):
		return v.Elem(), nil
	case target.Kind() == reflect.Pointer && v.Type().AssignableTo(target.Elem()):
		p := reflect.New(target.Elem())
		p.Elem().Set(v)
		return p, nil
	case v.Type().ConvertibleTo(target) && v.Kind() != reflect.Pointer:
		return v.Convert(target), nil
	}
	return reflect.Value{}, core.Errorf(core.ErrMapping, "cannot assign %s to property %s of type %s", v.Type(), property, target).
		WithStatement(m.ms.ID)
}

// =============================================================================
// Row values
// =============================================================================

// rowValue maps r with rm. It returns nil when the row maps to nothing.
func (m *ResultMapper) rowValue(ctx context.Context, rm *mapping.ResultMap, r *row, prefix, key string) (*node, error) {
	switch {
	case m.isScalar(rm):
		return m.scalarValue(rm, r, prefix)
	case rm.IsMap():
		return m.mapValue(rm, r, prefix)
	}

	t := rm.Type
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, core.Errorf(core.ErrMapping, "result map %s: no type handler for %s", rm.ID, rm.Type).WithStatement(m.ms.ID)
	}
	obj := &node{value: reflect.New(t)}

	var group *lazy.Group
	if m.settings.AggressiveLazyLoading {
		group = lazy.NewGroup()
	}

	found := false
	if m.shouldAutoMap(rm) {
		f, err := m.applyAutoMappings(rm, r, prefix, obj.value)
		if err != nil {
			return nil, err
		}
		found = f
	}
	f, err := m.applyPropertyMappings(ctx, rm, r, prefix, obj.value, group)
	if err != nil {
		return nil, err
	}
	found = found || f

	if rm.HasNestedResultMaps {
		f, err := m.applyNestedResultMappings(ctx, rm, r, prefix, key, obj)
		if err != nil {
			return nil, err
		}
		found = found || f
	}

	if !found && !m.settings.ReturnInstanceForEmptyRow {
		return nil, nil
	}
	return obj, nil
}

func (m *ResultMapper) isScalar(rm *mapping.ResultMap) bool {
	if rm.Type == nil || rm.IsMap() {
		return false
	}
	return m.handlers.Has(rm.Type)
}

func (m *ResultMapper) scalarValue(rm *mapping.ResultMap, r *row, prefix string) (*node, error) {
	raw, handler, ok := m.scalarColumn(rm, r, prefix)
	if !ok || raw == nil {
		return nil, nil
	}
	v, err := m.handlers.FromDatabase(raw, rm.Type, handler)
	if err != nil {
		return nil, core.Wrap(core.ErrMapping, m.ms.ID, err).WithResource(rm.ID)
	}
	return &node{value: v}, nil
}

// scalarColumn picks the column of a scalar result: the first mapped column,
// else the first column carrying prefix, else the first column.
func (m *ResultMapper) scalarColumn(rm *mapping.ResultMap, r *row, prefix string) (any, string, bool) {
	for _, rmap := range rm.Mappings {
		if rmap.Column != "" && !rmap.IsNested() {
			v, ok := r.get(prefix + rmap.Column)
			return v, rmap.Handler, ok
		}
	}
	for i, c := range r.cols {
		if prefix == "" || hasPrefixFold(c, prefix) {
			return r.vals[i], "", true
		}
	}
	return nil, "", false
}

func (m *ResultMapper) mapValue(rm *mapping.ResultMap, r *row, prefix string) (*node, error) {
	mt := rm.Type
	if mt == nil || mt.Kind() == reflect.Interface {
		mt = reflect.TypeFor[map[string]any]()
	}
	if mt.Key().Kind() != reflect.String {
		return nil, core.Errorf(core.ErrMapping, "result map %s: map results need string keys, got %s", rm.ID, mt).
			WithStatement(m.ms.ID)
	}

	renames := make(map[string]*mapping.ResultMapping)
	for _, rmap := range rm.Mappings {
		if rmap.Column != "" && !rmap.IsNested() {
			renames[strings.ToUpper(prefix+rmap.Column)] = rmap
		}
	}

	out := reflect.MakeMap(mt)
	found := false
	for i, col := range r.cols {
		if prefix != "" && !hasPrefixFold(col, prefix) {
			continue
		}
		raw := r.vals[i]
		if raw == nil && !m.settings.CallSettersOnNulls {
			continue
		}
		key, handler := col[len(prefix):], ""
		if rmap, ok := renames[strings.ToUpper(col)]; ok {
			key, handler = rmap.Property, rmap.Handler
		}
		v, err := m.handlers.FromDatabase(raw, mt.Elem(), handler)
		if err != nil {
			return nil, core.Wrap(core.ErrMapping, m.ms.ID, err).WithResource(col)
		}
		out.SetMapIndex(reflect.ValueOf(key).Convert(mt.Key()), v)
		found = found || raw != nil
	}
	if !found && !m.settings.ReturnInstanceForEmptyRow {
		return nil, nil
	}
	return &node{value: out}, nil
}

// shouldAutoMap applies the result map override, else the configured
// behavior: partial auto-maps only statements without nested result maps.
func (m *ResultMapper) shouldAutoMap(rm *mapping.ResultMap) bool {
	if rm.AutoMapping != nil {
		return *rm.AutoMapping
	}
	switch m.settings.AutoMappingBehavior {
	case config.AutoMappingFull:
		return true
	case config.AutoMappingPartial:
		return !m.nested
	}
	return false
}

func (m *ResultMapper) applyAutoMappings(rm *mapping.ResultMap, r *row, prefix string, obj reflect.Value) (bool, error) {
	mappings, err := m.autoMappingsFor(rm, r, prefix)
	if err != nil {
		return false, err
	}
	found := false
	for _, am := range mappings {
		raw := r.vals[am.index]
		if raw == nil && !m.settings.CallSettersOnNulls {
			continue
		}
		if err := m.setProperty(obj, am.prop, raw, ""); err != nil {
			return false, err
		}
		found = found || raw != nil
	}
	return found, nil
}

// autoMappingsFor matches unmapped columns to properties once per result map
// and prefix and applies the unknown column policy to the rest.
func (m *ResultMapper) autoMappingsFor(rm *mapping.ResultMap, r *row, prefix string) ([]autoMapping, error) {
	cacheKey := rm.ID + ":" + prefix
	if am, ok := m.autoMappings[cacheKey]; ok {
		return am, nil
	}

	meta := reflection.MustOf(rm.Type)
	mappedProps := make(map[string]bool)
	for _, rmap := range rm.Mappings {
		mappedProps[reflection.Fold(rmap.Property)] = true
	}

	var out []autoMapping
	for i, col := range r.cols {
		label := col
		if prefix != "" {
			if !hasPrefixFold(col, prefix) {
				continue
			}
			label = col[len(prefix):]
		}
		if rm.IsMappedColumn(label) {
			continue
		}
		prop, ok := meta.FindProperty(label, m.settings.MapUnderscoreToCamelCase)
		if ok && mappedProps[reflection.Fold(prop.Name)] {
			continue
		}
		if ok && m.mappable(prop.Type) {
			out = append(out, autoMapping{index: i, prop: prop})
			continue
		}
		if err := m.unknownColumn(rm, col); err != nil {
			return nil, err
		}
	}
	m.autoMappings[cacheKey] = out
	return out, nil
}

func (m *ResultMapper) mappable(t reflect.Type) bool {
	return t.Kind() == reflect.Interface || m.handlers.Has(t)
}

func (m *ResultMapper) unknownColumn(rm *mapping.ResultMap, column string) error {
	switch m.settings.AutoMappingUnknownColumnBehavior {
	case config.UnknownColumnFailing:
		return core.Errorf(core.ErrMapping, "unknown column %q for result map %s (%s)", column, rm.ID, rm.Type).
			WithStatement(m.ms.ID)
	case config.UnknownColumnWarning:
		if !m.warned[rm.ID+":"+column] {
			m.warned[rm.ID+":"+column] = true
			m.logger.Warn("unknown column in auto-mapping",
				slog.String("statement", m.settings.LogPrefix+m.ms.ID),
				slog.String("result_map", rm.ID),
				slog.String("column", column))
		}
	}
	return nil
}

func (m *ResultMapper) applyPropertyMappings(ctx context.Context, rm *mapping.ResultMap, r *row, prefix string, obj reflect.Value, group *lazy.Group) (bool, error) {
	meta := reflection.MustOf(rm.Type)
	found := false
	for _, rmap := range rm.Mappings {
		if rmap.NestedResultMapID != "" {
			continue
		}
		prop, ok := meta.FindProperty(rmap.Property, false)
		if !ok {
			return false, core.Errorf(core.ErrMapping, "result map %s: no property %q on %s", rm.ID, rmap.Property, rm.Type).
				WithStatement(m.ms.ID)
		}
		if rmap.NestedSelectID != "" {
			f, err := m.applyNestedSelect(ctx, rmap, r, prefix, obj, prop, group)
			if err != nil {
				return false, err
			}
			found = found || f
			continue
		}
		if rmap.Column == "" {
			continue
		}
		raw, ok := r.get(prefix + rmap.Column)
		if !ok || (raw == nil && !m.settings.CallSettersOnNulls) {
			continue
		}
		if err := m.setProperty(obj, prop, raw, rmap.Handler); err != nil {
			return false, err
		}
		found = found || raw != nil
	}
	return found, nil
}

func (m *ResultMapper) setProperty(obj reflect.Value, prop *reflection.Property, raw any, handler string) error {
	v, err := m.handlers.FromDatabase(raw, prop.Type, handler)
	if err != nil {
		return core.Wrap(core.ErrMapping, m.ms.ID, err).WithResource(prop.Name)
	}
	if err := prop.Set(obj, v); err != nil {
		return core.Wrap(core.ErrMapping, m.ms.ID, err).WithResource(prop.Name)
	}
	return nil
}

// =============================================================================
// Nested result maps
// =============================================================================

// applyNestedResultMappings maps the nested objects of r into parent.
// Objects already seen under the same parent are only descended into.
func (m *ResultMapper) applyNestedResultMappings(ctx context.Context, rm *mapping.ResultMap, r *row, parentPrefix, parentKey string, parent *node) (bool, error) {
	if rm.IsMap() || m.isScalar(rm) {
		return false, nil
	}
	meta := reflection.MustOf(rm.Type)
	found := false
	for _, rmap := range rm.Mappings {
		if rmap.NestedResultMapID == "" {
			continue
		}
		nestedRM, err := m.cfg.ResultMap(rmap.NestedResultMapID)
		if err != nil {
			return false, core.Wrap(core.ErrMapping, m.ms.ID, err)
		}
		prefix := parentPrefix + rmap.ColumnPrefix
		if !anyNotNull(rmap, r, prefix) {
			continue
		}
		prop, ok := meta.FindProperty(rmap.Property, false)
		if !ok {
			return false, core.Errorf(core.ErrMapping, "result map %s: no property %q on %s", rm.ID, rmap.Property, rm.Type).
				WithStatement(m.ms.ID)
		}

		var combined string
		if k := m.rowKey(nestedRM, r, prefix); k != "" && parentKey != "" {
			combined = k + "|" + parentKey
		}
		if child, known := m.objects[combined]; known && combined != "" {
			if nestedRM.HasNestedResultMaps {
				if _, err := m.applyNestedResultMappings(ctx, nestedRM, r, prefix, combined, child); err != nil {
					return false, err
				}
			}
			found = true
			continue
		}

		child, err := m.rowValue(ctx, nestedRM, r, prefix, combined)
		if err != nil {
			return false, err
		}
		if child == nil {
			continue
		}
		if combined != "" {
			m.objects[combined] = child
		}
		parent.link(prop, isCollection(prop.Type), child)
		found = true
	}
	return found, nil
}

// rowKey identifies the object r maps to under rm: the result map id plus
// the non-null id column values. An empty key disables grouping.
func (m *ResultMapper) rowKey(rm *mapping.ResultMap, r *row, prefix string) string {
	key := cache.NewCacheKey(rm.ID)
	n := 0
	add := func(column string, v any) {
		if v != nil {
			key.UpdateAll(strings.ToUpper(column), v)
			n++
		}
	}
	if len(rm.IDMappings) > 0 {
		for _, im := range rm.IDMappings {
			if im.Column == "" || im.IsNested() {
				continue
			}
			if v, ok := r.get(prefix + im.Column); ok {
				add(im.Column, v)
			}
		}
	} else {
		for i, col := range r.cols {
			if prefix == "" || hasPrefixFold(col, prefix) {
				add(col, r.vals[i])
			}
		}
	}
	if n == 0 {
		return ""
	}
	return key.String()
}

// anyNotNull reports whether the nested object of rmap has data in r: any
// of its not-null columns, else any column carrying its prefix.
func anyNotNull(rmap *mapping.ResultMapping, r *row, prefix string) bool {
	if len(rmap.NotNullColumns) > 0 {
		for _, c := range rmap.NotNullColumns {
			if v, ok := r.get(prefix + c); ok && v != nil {
				return true
			}
		}
		return false
	}
	if prefix == "" {
		return true
	}
	for i, col := range r.cols {
		if hasPrefixFold(col, prefix) && r.vals[i] != nil {
			return true
		}
	}
	return false
}

// =============================================================================
// Nested selects
// =============================================================================

var cellType = reflect.TypeFor[lazy.Cell]()

func (m *ResultMapper) applyNestedSelect(ctx context.Context, rmap *mapping.ResultMapping, r *row, prefix string, obj reflect.Value, prop *reflection.Property, group *lazy.Group) (bool, error) {
	param, ok := nestedParam(rmap, r, prefix)
	if !ok {
		return false, nil
	}
	if m.loader == nil {
		return false, core.Errorf(core.ErrMapping, "nested select %s has no loader", rmap.NestedSelectID).WithStatement(m.ms.ID)
	}

	field := prop.Field(obj)
	if field.Addr().Type().Implements(cellType) {
		cell := field.Addr().Interface().(lazy.Cell)
		target := cell.ElemType()
		detached := context.WithoutCancel(ctx)
		loader := func() (any, error) {
			rows, err := m.loader.SelectNested(detached, rmap.NestedSelectID, param)
			if err != nil {
				return nil, err
			}
			v, err := m.collect(rows, target, prop.Name)
			if err != nil {
				return nil, err
			}
			return v.Interface(), nil
		}
		var g *lazy.Group
		if rmap.Lazy {
			g = group
		}
		cell.Install(loader, g, m.settings.LazyLoadTriggerMethods)
		if !rmap.Lazy {
			if err := cell.Load(); err != nil {
				return false, err
			}
		}
		return true, nil
	}

	rows, err := m.loader.SelectNested(ctx, rmap.NestedSelectID, param)
	if err != nil {
		return false, err
	}
	v, err := m.collect(rows, field.Type(), prop.Name)
	if err != nil {
		return false, err
	}
	field.Set(v)
	return true, nil
}

// nestedParam builds the argument of a nested select: the column value, or
// a map of composite columns. ok is false when every column is NULL.
func nestedParam(rmap *mapping.ResultMapping, r *row, prefix string) (any, bool) {
	if len(rmap.Composites) == 0 {
		v, ok := r.get(prefix + rmap.Column)
		return v, ok && v != nil
	}
	param := make(map[string]any, len(rmap.Composites))
	hasValue := false
	for _, c := range rmap.Composites {
		v, _ := r.get(prefix + c.Column)
		param[c.Property] = v
		hasValue = hasValue || v != nil
	}
	return param, hasValue
}

// collect shapes nested select rows into target: a slice for collections,
// a single value otherwise.
func (m *ResultMapper) collect(rows []any, target reflect.Type, property string) (reflect.Value, error) {
	if isCollection(target) {
		out := reflect.MakeSlice(target, 0, len(rows))
		for _, x := range rows {
			v, err := m.fit(reflect.ValueOf(x), target.Elem(), property)
			if err != nil {
				return reflect.Value{}, err
			}
			out = reflect.Append(out, v)
		}
		return out, nil
	}
	switch len(rows) {
	case 0:
		return reflect.Zero(target), nil
	case 1:
		return m.fit(reflect.ValueOf(rows[0]), target, property)
	}
	return reflect.Value{}, core.Errorf(core.ErrMapping, "nested select for property %s returned %d rows, expected at most one", property, len(rows)).
		WithStatement(m.ms.ID)
}

func isCollection(t reflect.Type) bool {
	return t.Kind() == reflect.Slice && t.Elem().Kind() != reflect.Uint8
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
