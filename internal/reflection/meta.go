// Package reflection builds per-type property accessor tables and evaluates
// property paths such as "user.address.city" or "items[0].name" against Go values.
//
// Accessor tables are computed once per struct type and cached; lookups after
// that are map reads plus a field index walk.
package reflection

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/text/cases"
)

// TagName is the struct tag used to rename or skip a property.
// It accepts "-", "name", ",inline" and "name,inline".
const TagName = "db"

// Property is one settable, gettable field of a struct type.
type Property struct {
	Name  string
	Type  reflect.Type
	index []int
}

// Get returns the property value of the struct v. The second result is false
// when an embedded pointer on the path is nil.
func (p *Property) Get(v reflect.Value) (reflect.Value, bool) {
	v = indirect(v)
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	f, err := v.FieldByIndexErr(p.index)
	if err != nil {
		return reflect.Value{}, false
	}
	return f, true
}

// Field returns the addressable field of v, allocating nil embedded pointers
// on the way. v must be addressable.
func (p *Property) Field(v reflect.Value) reflect.Value {
	v = indirect(v)
	for i, x := range p.index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}

// Set assigns x to the property of v. x must be assignable to the property type.
func (p *Property) Set(v reflect.Value, x reflect.Value) error {
	f := p.Field(v)
	if !f.CanSet() {
		return fmt.Errorf("property %s is not settable", p.Name)
	}
	if !x.IsValid() {
		f.SetZero()
		return nil
	}
	if !x.Type().AssignableTo(f.Type()) {
		return fmt.Errorf("cannot assign %s to property %s of type %s", x.Type(), p.Name, f.Type())
	}
	f.Set(x)
	return nil
}

// StructMeta is the accessor table of one struct type.
type StructMeta struct {
	Type   reflect.Type
	props  []*Property
	byName map[string]*Property
	folded map[string]*Property
	camel  map[string]*Property
}

var (
	metaCache = xsync.NewMapOf[reflect.Type, *StructMeta]()
	folder    = cases.Fold()
)

// Of returns the accessor table of t, which must be a struct or pointer to struct.
func Of(t reflect.Type) (*StructMeta, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("type %s is not a struct", t)
	}
	if m, ok := metaCache.Load(t); ok {
		return m, nil
	}
	m, _ := metaCache.LoadOrStore(t, buildMeta(t))
	return m, nil
}

// MustOf is like Of but panics for non-struct types.
func MustOf(t reflect.Type) *StructMeta {
	m, err := Of(t)
	if err != nil {
		panic(err)
	}
	return m
}

// Properties returns the properties in declaration order.
func (m *StructMeta) Properties() []*Property { return m.props }

// Property returns the property with the exact name (field name or tag name).
func (m *StructMeta) Property(name string) (*Property, bool) {
	p, ok := m.byName[name]
	return p, ok
}

// FindProperty resolves a property name or column label to a property:
// exact match first, then a case-folded match, then (when underscoreToCamel
// is set) a case-folded match with underscores removed.
func (m *StructMeta) FindProperty(name string, underscoreToCamel bool) (*Property, bool) {
	if p, ok := m.byName[name]; ok {
		return p, true
	}
	if p, ok := m.folded[Fold(name)]; ok {
		return p, true
	}
	if underscoreToCamel {
		if p, ok := m.camel[Fold(strings.ReplaceAll(name, "_", ""))]; ok {
			return p, true
		}
	}
	return nil, false
}

// Fold returns the case-folded form of s used for property matching.
func Fold(s string) string {
	return folder.String(s)
}

func buildMeta(rt reflect.Type) *StructMeta {
	m := &StructMeta{
		Type:   rt,
		byName: make(map[string]*Property),
		folded: make(map[string]*Property),
		camel:  make(map[string]*Property),
	}

	var walk func(t reflect.Type, base []int, forceInline bool)
	walk = func(t reflect.Type, base []int, forceInline bool) {
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t.Kind() != reflect.Struct {
			return
		}
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if sf.PkgPath != "" && !sf.Anonymous {
				continue
			}
			tag := sf.Tag.Get(TagName)
			name, inline, omit := parseTag(tag)
			if omit {
				continue
			}
			path := append(append([]int(nil), base...), i)
			if inline || (sf.Anonymous && (forceInline || tag == "")) {
				ft := sf.Type
				if ft.Kind() == reflect.Pointer {
					ft = ft.Elem()
				}
				if ft.Kind() == reflect.Struct {
					walk(sf.Type, path, inline)
					continue
				}
			}
			if sf.PkgPath != "" {
				continue
			}
			m.add(&Property{Name: sf.Name, Type: sf.Type, index: path}, name)
		}
	}
	walk(rt, nil, false)
	return m
}

// add registers p under its field name and tag alias. Shallower fields win
// because they are visited first.
func (m *StructMeta) add(p *Property, alias string) {
	if _, dup := m.byName[p.Name]; dup {
		return
	}
	m.props = append(m.props, p)
	for _, n := range []string{p.Name, alias} {
		if n == "" {
			continue
		}
		if _, ok := m.byName[n]; !ok {
			m.byName[n] = p
		}
		if f := Fold(n); m.folded[f] == nil {
			m.folded[f] = p
		}
		if c := Fold(strings.ReplaceAll(n, "_", "")); m.camel[c] == nil {
			m.camel[c] = p
		}
	}
}

func parseTag(tag string) (name string, inline bool, omit bool) {
	if tag == "-" {
		return "", false, true
	}
	for _, part := range strings.Split(tag, ",") {
		switch {
		case part == "inline":
			inline = true
		case part != "" && name == "":
			name = part
		}
	}
	return name, inline, false
}

func indirect(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return v
		}
		v = v.Elem()
	}
	return v
}
