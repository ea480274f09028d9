package mapping

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapmap/internal/reflection"
	"github.com/leapstack-labs/leapmap/pkg/core"
)

// ParameterMapping describes one positional placeholder of a rendered statement.
type ParameterMapping struct {
	// Property is the path resolved against additional parameters first, then
	// the parameter object: "user.id", "__frch_item_0".
	Property string
	DBType   core.DBType
	// Handler names a type handler registered with the type handler registry.
	Handler string
}

// BoundSQL is the result of rendering a statement for one invocation.
// It is created fresh per call and never shared.
type BoundSQL struct {
	SQL               string
	ParameterMappings []ParameterMapping
	ParameterObject   any

	additional map[string]any
}

// NewBoundSQL creates a BoundSQL.
func NewBoundSQL(sql string, mappings []ParameterMapping, param any) *BoundSQL {
	return &BoundSQL{SQL: sql, ParameterMappings: mappings, ParameterObject: param}
}

// SetAdditionalParameter records a value produced while rendering (foreach
// items, bind variables). Additional parameters shadow the parameter object.
func (b *BoundSQL) SetAdditionalParameter(name string, v any) {
	if b.additional == nil {
		b.additional = make(map[string]any)
	}
	b.additional[name] = v
}

// AdditionalParameters returns the values recorded while rendering.
func (b *BoundSQL) AdditionalParameters() map[string]any {
	return b.additional
}

// HasAdditionalParameter reports whether the root of path was recorded while rendering.
func (b *BoundSQL) HasAdditionalParameter(path string) bool {
	_, ok := b.additional[reflection.Root(path)]
	return ok
}

// ResolveAdditional resolves path against the additional parameters.
func (b *BoundSQL) ResolveAdditional(path string) (any, error) {
	return reflection.Resolve(b.additional, path)
}

// SQLSource produces the BoundSQL of a statement for a parameter object.
type SQLSource interface {
	BoundSQL(param any) (*BoundSQL, error)
}

// StaticSQL is an SQLSource whose SQL and mappings never change.
type StaticSQL struct {
	SQL      string
	Mappings []ParameterMapping
}

// BoundSQL returns the static SQL bound to param.
func (s *StaticSQL) BoundSQL(param any) (*BoundSQL, error) {
	return NewBoundSQL(s.SQL, s.Mappings, param), nil
}

// =============================================================================
// ParamMap
// =============================================================================

// ParamMap carries several named arguments of one call. Unlike a plain map,
// looking up a missing name is a binding error listing the available names.
type ParamMap map[string]any

// Get returns the named argument.
func (p ParamMap) Get(name string) (any, error) {
	v, ok := p[name]
	if !ok {
		return nil, core.Errorf(core.ErrBinding, "parameter %q not found, available parameters are [%s]", name, strings.Join(p.Names(), ", "))
	}
	return v, nil
}

// Names returns the argument names in sorted order.
func (p ParamMap) Names() []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// String renders the names for diagnostics.
func (p ParamMap) String() string {
	return fmt.Sprintf("ParamMap%v", p.Names())
}
