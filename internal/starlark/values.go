package starlark

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/leapstack-labs/leapmap/internal/reflection"
	"go.starlark.net/starlark"
)

// goStruct exposes the properties of a Go struct as attributes.
type goStruct struct {
	v       reflect.Value
	meta    *reflection.StructMeta
	lenient bool
}

var (
	_ starlark.HasAttrs        = (*goStruct)(nil)
	_ starlark.IterableMapping = (*goMap)(nil)
	_ starlark.HasAttrs        = (*goMap)(nil)
	_ starlark.Indexable       = (*goSlice)(nil)
	_ starlark.Sequence        = (*goSlice)(nil)
)

func (s *goStruct) String() string        { return fmt.Sprint(s.v.Interface()) }
func (s *goStruct) Type() string          { return s.v.Type().String() }
func (s *goStruct) Freeze()               {}
func (s *goStruct) Truth() starlark.Bool  { return starlark.True }
func (s *goStruct) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: %s", s.Type()) }

func (s *goStruct) Attr(name string) (starlark.Value, error) {
	p, ok := s.meta.FindProperty(name, false)
	if !ok {
		if s.lenient {
			return starlark.None, nil
		}
		return nil, nil // starlark reports "has no .name field or method"
	}
	f, ok := p.Get(s.v)
	if !ok {
		return starlark.None, nil
	}
	return wrapValue(f, s.lenient)
}

func (s *goStruct) AttrNames() []string {
	props := s.meta.Properties()
	names := make([]string, len(props))
	for i, p := range props {
		names[i] = p.Name
	}
	return names
}

// goMap exposes a Go map. Keys may be read with m["k"] or m.k; a missing key is None.
type goMap struct {
	v       reflect.Value
	lenient bool
}

func (m *goMap) String() string        { return fmt.Sprint(m.v.Interface()) }
func (m *goMap) Type() string          { return "map" }
func (m *goMap) Freeze()               {}
func (m *goMap) Truth() starlark.Bool  { return m.v.Len() > 0 }
func (m *goMap) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: map") }
func (m *goMap) Len() int              { return m.v.Len() }

func (m *goMap) Get(k starlark.Value) (starlark.Value, bool, error) {
	goKey, err := ToGo(k)
	if err != nil {
		return nil, false, err
	}
	key, err := convertKey(goKey, m.v.Type().Key())
	if err != nil {
		return nil, false, err
	}
	e := m.v.MapIndex(key)
	if !e.IsValid() {
		return starlark.None, true, nil
	}
	x, err := wrapValue(e, m.lenient)
	return x, true, err
}

func (m *goMap) Attr(name string) (starlark.Value, error) {
	x, _, err := m.Get(starlark.String(name))
	return x, err
}

func (m *goMap) AttrNames() []string {
	names := make([]string, 0, m.v.Len())
	for _, k := range m.sortedKeys() {
		names = append(names, fmt.Sprint(k.Interface()))
	}
	return names
}

func (m *goMap) Iterate() starlark.Iterator {
	keys := m.sortedKeys()
	vals := make([]starlark.Value, 0, len(keys))
	for _, k := range keys {
		x, err := wrapValue(k, m.lenient)
		if err != nil {
			x = starlark.String(fmt.Sprint(k.Interface()))
		}
		vals = append(vals, x)
	}
	return &sliceIterator{vals: vals}
}

func (m *goMap) Items() []starlark.Tuple {
	keys := m.sortedKeys()
	items := make([]starlark.Tuple, 0, len(keys))
	for _, k := range keys {
		kv, err := wrapValue(k, m.lenient)
		if err != nil {
			kv = starlark.String(fmt.Sprint(k.Interface()))
		}
		vv, err := wrapValue(m.v.MapIndex(k), m.lenient)
		if err != nil {
			vv = starlark.None
		}
		items = append(items, starlark.Tuple{kv, vv})
	}
	return items
}

// sortedKeys orders keys by their printed form so iteration is deterministic.
func (m *goMap) sortedKeys() []reflect.Value {
	keys := m.v.MapKeys()
	slices.SortFunc(keys, func(a, b reflect.Value) int {
		return strings.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
	})
	return keys
}

// goSlice exposes a Go slice or array.
type goSlice struct {
	v       reflect.Value
	lenient bool
}

func (s *goSlice) String() string        { return fmt.Sprint(s.v.Interface()) }
func (s *goSlice) Type() string          { return "list" }
func (s *goSlice) Freeze()               {}
func (s *goSlice) Truth() starlark.Bool  { return s.v.Len() > 0 }
func (s *goSlice) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable: list") }
func (s *goSlice) Len() int              { return s.v.Len() }

func (s *goSlice) Index(i int) starlark.Value {
	x, err := wrapValue(s.v.Index(i), s.lenient)
	if err != nil {
		return starlark.None
	}
	return x
}

func (s *goSlice) Iterate() starlark.Iterator {
	vals := make([]starlark.Value, s.v.Len())
	for i := range vals {
		vals[i] = s.Index(i)
	}
	return &sliceIterator{vals: vals}
}

type sliceIterator struct {
	vals []starlark.Value
	i    int
}

func (it *sliceIterator) Next(p *starlark.Value) bool {
	if it.i >= len(it.vals) {
		return false
	}
	*p = it.vals[it.i]
	it.i++
	return true
}

func (it *sliceIterator) Done() {}

func convertKey(k any, kt reflect.Type) (reflect.Value, error) {
	if k == nil {
		return reflect.Zero(kt), nil
	}
	rv := reflect.ValueOf(k)
	if rv.Type().AssignableTo(kt) {
		return rv, nil
	}
	if rv.Type().ConvertibleTo(kt) && rv.Kind() != reflect.String {
		return rv.Convert(kt), nil
	}
	if rv.Kind() == reflect.String && kt.Kind() == reflect.String {
		return rv.Convert(kt), nil
	}
	return reflect.Value{}, fmt.Errorf("map key %v is not assignable to %s", k, kt)
}

// Entry is one element of an iterated collection. GoIndex and GoItem hold
// the original Go values when the collection wraps a Go slice or map.
type Entry struct {
	Index, Item     starlark.Value
	GoIndex, GoItem any
}

// Entries returns the elements of a collection: (key, value) for mappings
// and (position, element) for other iterables.
func Entries(v starlark.Value) ([]Entry, error) {
	switch c := v.(type) {
	case *goSlice:
		out := make([]Entry, c.v.Len())
		for i := range out {
			e := c.v.Index(i)
			out[i] = Entry{Index: starlark.MakeInt(i), Item: c.Index(i), GoIndex: i, GoItem: e.Interface()}
		}
		return out, nil
	case *goMap:
		keys := c.sortedKeys()
		out := make([]Entry, len(keys))
		for i, k := range keys {
			kv, err := wrapValue(k, c.lenient)
			if err != nil {
				return nil, err
			}
			e := c.v.MapIndex(k)
			vv, err := wrapValue(e, c.lenient)
			if err != nil {
				return nil, err
			}
			out[i] = Entry{Index: kv, Item: vv, GoIndex: k.Interface(), GoItem: e.Interface()}
		}
		return out, nil
	case starlark.IterableMapping:
		items := c.Items()
		out := make([]Entry, len(items))
		for i, kv := range items {
			gk, err := ToGo(kv[0])
			if err != nil {
				return nil, err
			}
			gv, err := ToGo(kv[1])
			if err != nil {
				return nil, err
			}
			out[i] = Entry{Index: kv[0], Item: kv[1], GoIndex: gk, GoItem: gv}
		}
		return out, nil
	case starlark.Iterable:
		iter := c.Iterate()
		defer iter.Done()
		var out []Entry
		var x starlark.Value
		for i := 0; iter.Next(&x); i++ {
			gv, err := ToGo(x)
			if err != nil {
				return nil, err
			}
			out = append(out, Entry{Index: starlark.MakeInt(i), Item: x, GoIndex: i, GoItem: gv})
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s is not iterable", v.Type())
}
