// Package mapper converts between call arguments, bound statement values and
// result rows. The parameter side resolves placeholder paths against the
// argument object; the result side turns cursor rows into scalars, maps or
// structs as described by a statement's result map.
package mapper

import (
	"errors"
	"reflect"

	"github.com/leapstack-labs/leapmap/internal/reflection"
	"github.com/leapstack-labs/leapmap/pkg/adapter"
	"github.com/leapstack-labs/leapmap/pkg/core"
	"github.com/leapstack-labs/leapmap/pkg/mapping"
)

// BindParameters resolves the value of every parameter mapping of bound, in
// placeholder order, and converts it with the configured type handlers.
//
// Lookup order for a property path:
//  1. Additional parameters recorded while rendering (foreach items, bind)
//  2. The parameter object itself when its type binds as a single value
//  3. The named arguments of a ParamMap
//  4. A struct or map property path
func BindParameters(cfg *mapping.Configuration, ms *mapping.MappedStatement, bound *mapping.BoundSQL) ([]adapter.BoundValue, error) {
	nullHint := NullHint(cfg)
	values := make([]adapter.BoundValue, 0, len(bound.ParameterMappings))
	for _, pm := range bound.ParameterMappings {
		raw, err := parameterValue(cfg, bound, pm.Property)
		if err != nil {
			return nil, core.Wrap(core.ErrBinding, ms.ID, err).WithResource(pm.Property)
		}
		v, err := cfg.TypeHandlers().ToDatabase(raw, pm.DBType, pm.Handler)
		if err != nil {
			return nil, core.Wrap(core.ErrBinding, ms.ID, err).WithResource(pm.Property)
		}
		hint := pm.DBType
		if v == nil && hint == core.DBTypeUnset {
			hint = nullHint
		}
		values = append(values, adapter.BoundValue{Value: v, Hint: hint})
	}
	return values, nil
}

// NullHint returns the type hint sent for untyped null values.
func NullHint(cfg *mapping.Configuration) core.DBType {
	t, ok := core.ParseDBType(cfg.Settings().DBTypeForNull)
	if !ok || t == core.DBTypeUnset {
		return core.DBTypeNull
	}
	return t
}

func parameterValue(cfg *mapping.Configuration, bound *mapping.BoundSQL, path string) (any, error) {
	if bound.HasAdditionalParameter(path) {
		return bound.ResolveAdditional(path)
	}

	param := bound.ParameterObject
	if param == nil {
		return nil, nil
	}
	if cfg.TypeHandlers().Has(reflect.TypeOf(param)) {
		return param, nil
	}

	lenient := cfg.Settings().LenientPropertyAccess
	if pm, ok := param.(mapping.ParamMap); ok {
		root := reflection.Root(path)
		arg, err := pm.Get(root)
		if err != nil {
			if lenient {
				return nil, nil
			}
			return nil, err
		}
		if root == path {
			return arg, nil
		}
		return resolve(arg, path[len(root):], lenient)
	}
	return resolve(param, path, lenient)
}

// resolve evaluates path against v. rest may start with "." or "[".
func resolve(v any, path string, lenient bool) (any, error) {
	if path != "" && path[0] == '.' {
		path = path[1:]
	}
	if path != "" && path[0] == '[' {
		path = "_" + path
		v = map[string]any{"_": v}
	}
	out, err := reflection.Resolve(v, path)
	if err != nil && lenient && errors.Is(err, reflection.ErrNotFound) {
		return nil, nil
	}
	return out, err
}

// AssignGeneratedKey stores an insert's generated key into the property of
// param. param must be a pointer to a struct or a string-keyed map, or a
// ParamMap with exactly one such argument.
func AssignGeneratedKey(cfg *mapping.Configuration, ms *mapping.MappedStatement, param any, id int64) error {
	if pm, ok := param.(mapping.ParamMap); ok {
		if len(pm) != 1 {
			return core.Errorf(core.ErrBinding, "cannot assign generated key %q: %d named parameters", ms.KeyProperty, len(pm)).
				WithStatement(ms.ID)
		}
		for _, arg := range pm {
			param = arg
		}
	}

	rv := reflect.ValueOf(param)
	switch {
	case rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String && !rv.IsNil():
		elem := rv.Type().Elem()
		v, err := cfg.TypeHandlers().FromDatabase(id, elem, "")
		if err != nil {
			return core.Wrap(core.ErrBinding, ms.ID, err).WithResource(ms.KeyProperty)
		}
		rv.SetMapIndex(reflect.ValueOf(ms.KeyProperty).Convert(rv.Type().Key()), v)
		return nil
	case rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Kind() == reflect.Struct:
		meta := reflection.MustOf(rv.Type())
		prop, ok := meta.FindProperty(ms.KeyProperty, false)
		if !ok {
			return core.Errorf(core.ErrBinding, "no property %q on %s for the generated key", ms.KeyProperty, rv.Type()).
				WithStatement(ms.ID)
		}
		v, err := cfg.TypeHandlers().FromDatabase(id, prop.Type, "")
		if err != nil {
			return core.Wrap(core.ErrBinding, ms.ID, err).WithResource(ms.KeyProperty)
		}
		if err := prop.Set(rv, v); err != nil {
			return core.Wrap(core.ErrBinding, ms.ID, err).WithResource(ms.KeyProperty)
		}
		return nil
	}
	return core.Errorf(core.ErrBinding, "cannot assign generated key %q to %T; pass a pointer to a struct or a map", ms.KeyProperty, param).
		WithStatement(ms.ID)
}
