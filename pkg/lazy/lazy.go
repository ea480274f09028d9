// Package lazy provides Value, a cell that is either loaded or holds a loader
// that produces its value on first access. Result mapping installs loaders
// for nested selects when lazy loading is enabled.
package lazy

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Loader produces the value of a cell.
type Loader func() (any, error)

// Cell is implemented by *Value[T] for every T. Result mappers use it to
// install loaders without knowing T.
type Cell interface {
	Install(loader Loader, group *Group, triggers []string)
	Loaded() bool
	Load() error
	ElemType() reflect.Type
}

// Value is a lazily loaded T. The zero Value is loaded and holds the zero T.
// Copies of a Value share the same cell.
type Value[T any] struct {
	s *state[T]
}

type state[T any] struct {
	mu       sync.Mutex
	loaded   bool
	value    T
	loader   Loader
	group    *Group
	triggers []string
}

// Of returns a loaded Value holding v.
func Of[T any](v T) Value[T] {
	return Value[T]{s: &state[T]{loaded: true, value: v}}
}

// Deferred returns an unloaded Value that calls loader on first access.
func Deferred[T any](loader func() (T, error)) Value[T] {
	var v Value[T]
	v.Install(func() (any, error) { return loader() }, nil, nil)
	return v
}

// Install replaces the cell with an unloaded one. group, when non-nil, makes
// the first access load every cell of the group. triggers lists the methods
// (String, Equal, MarshalJSON) that force loading.
func (v *Value[T]) Install(loader Loader, group *Group, triggers []string) {
	v.s = &state[T]{loader: loader, group: group, triggers: triggers}
	if group != nil {
		group.add(v)
	}
}

// Get returns the value, running the loader exactly once.
func (v Value[T]) Get() (T, error) {
	if v.s == nil {
		var zero T
		return zero, nil
	}
	if g := v.s.group; g != nil && !v.Loaded() {
		if err := g.Load(); err != nil {
			var zero T
			return zero, err
		}
	}
	if err := v.Load(); err != nil {
		var zero T
		return zero, err
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.value, nil
}

// MustGet is Get for callers that treat load failures as fatal.
func (v Value[T]) MustGet() T {
	x, err := v.Get()
	if err != nil {
		panic(err)
	}
	return x
}

// Loaded reports whether the value is available without calling the loader.
func (v Value[T]) Loaded() bool {
	if v.s == nil {
		return true
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.loaded
}

// Load runs the loader of this cell if it has not run successfully yet.
// A failed load leaves the cell unloaded.
func (v Value[T]) Load() error {
	if v.s == nil {
		return nil
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.loaded {
		return nil
	}
	raw, err := v.s.loader()
	if err != nil {
		return err
	}
	if raw != nil {
		x, ok := raw.(T)
		if !ok {
			return fmt.Errorf("lazy loader returned %T, expected %s", raw, v.ElemType())
		}
		v.s.value = x
	}
	v.s.loaded = true
	v.s.loader = nil
	return nil
}

// Set stores x and marks the cell loaded; a pending loader is discarded.
func (v *Value[T]) Set(x T) {
	if v.s == nil {
		v.s = &state[T]{}
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.value = x
	v.s.loaded = true
	v.s.loader = nil
}

// ElemType returns the reflect.Type of T.
func (v Value[T]) ElemType() reflect.Type {
	return reflect.TypeFor[T]()
}

func (v Value[T]) triggers(method string) bool {
	if v.s == nil {
		return false
	}
	for _, m := range v.s.triggers {
		if strings.EqualFold(strings.TrimSpace(m), method) {
			return true
		}
	}
	return false
}

// String formats the value. Unloaded cells print a placeholder unless String
// is a trigger method.
func (v Value[T]) String() string {
	if !v.Loaded() && !v.triggers("String") {
		return fmt.Sprintf("lazy.Value[%s](unloaded)", v.ElemType())
	}
	x, err := v.Get()
	if err != nil {
		return fmt.Sprintf("lazy.Value[%s](error: %v)", v.ElemType(), err)
	}
	return fmt.Sprint(x)
}

// MarshalJSON encodes the value. Unloaded cells encode as null unless
// MarshalJSON is a trigger method.
func (v Value[T]) MarshalJSON() ([]byte, error) {
	if !v.Loaded() && !v.triggers("MarshalJSON") {
		return []byte("null"), nil
	}
	x, err := v.Get()
	if err != nil {
		return nil, err
	}
	return json.Marshal(x)
}

// EncodeMsgpack loads the value and encodes it, so serialized copies held by
// read-write caches are complete.
func (v Value[T]) EncodeMsgpack(enc *msgpack.Encoder) error {
	x, err := v.Get()
	if err != nil {
		return err
	}
	return enc.Encode(x)
}

// DecodeMsgpack decodes into a loaded cell.
func (v *Value[T]) DecodeMsgpack(dec *msgpack.Decoder) error {
	var x T
	if err := dec.Decode(&x); err != nil {
		return err
	}
	v.Set(x)
	return nil
}

// Equal compares values. Unloaded cells compare by identity unless Equal is
// a trigger method.
func (v Value[T]) Equal(o Value[T]) bool {
	if v.s == o.s {
		return true
	}
	if (!v.Loaded() || !o.Loaded()) && !v.triggers("Equal") && !o.triggers("Equal") {
		return false
	}
	a, errA := v.Get()
	b, errB := o.Get()
	if errA != nil || errB != nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// =============================================================================
// Groups
// =============================================================================

// Group ties the lazy cells of one result object together so that the first
// access of any of them loads all of them.
type Group struct {
	mu    sync.Mutex
	cells []Cell
}

// NewGroup creates an empty group.
func NewGroup() *Group { return &Group{} }

func (g *Group) add(c Cell) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cells = append(g.cells, c)
}

// Load loads every cell of the group, stopping at the first error.
func (g *Group) Load() error {
	g.mu.Lock()
	cells := append([]Cell(nil), g.cells...)
	g.mu.Unlock()
	for _, c := range cells {
		if err := c.Load(); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of cells in the group.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cells)
}
