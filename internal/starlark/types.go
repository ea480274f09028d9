// Package starlark evaluates the expressions embedded in dynamic SQL
// templates. Parameter objects are exposed to Starlark through read-only
// wrappers over their Go values, so expression results can be unwrapped
// back to the original Go values.
package starlark

import (
	"fmt"
	"reflect"

	"github.com/leapstack-labs/leapmap/internal/reflection"
	"go.starlark.net/starlark"
)

// loadable is satisfied by lazily loaded properties.
type loadable interface {
	Load() error
	Loaded() bool
}

// GoToStarlark converts a Go value to a Starlark value. Scalars are
// converted; structs, maps and slices are wrapped.
func GoToStarlark(v any) (starlark.Value, error) {
	return Wrap(v, false)
}

// Wrap converts v to a Starlark value. With lenient set, reading a missing
// struct property yields None instead of failing.
func Wrap(v any, lenient bool) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}
	if sv, ok := v.(starlark.Value); ok {
		return sv, nil
	}
	return wrapValue(reflect.ValueOf(v), lenient)
}

func wrapValue(rv reflect.Value, lenient bool) (starlark.Value, error) {
	for {
		if !rv.IsValid() {
			return starlark.None, nil
		}
		if rv.CanInterface() {
			if l, ok := rv.Interface().(loadable); ok {
				inner, err := loadCell(rv, l)
				if err != nil {
					return nil, err
				}
				rv = inner
				continue
			}
		}
		if rv.Kind() != reflect.Pointer && rv.Kind() != reflect.Interface {
			break
		}
		if rv.IsNil() {
			return starlark.None, nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Bool:
		return starlark.Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return starlark.MakeInt64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return starlark.MakeUint64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return starlark.Float(rv.Float()), nil
	case reflect.String:
		return starlark.String(rv.String()), nil
	case reflect.Slice:
		if rv.IsNil() {
			return starlark.None, nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return starlark.Bytes(rv.Bytes()), nil
		}
		return &goSlice{v: rv, lenient: lenient}, nil
	case reflect.Array:
		return &goSlice{v: rv, lenient: lenient}, nil
	case reflect.Map:
		if rv.IsNil() {
			return starlark.None, nil
		}
		return &goMap{v: rv, lenient: lenient}, nil
	case reflect.Struct:
		meta, err := reflection.Of(rv.Type())
		if err != nil {
			return nil, err
		}
		return &goStruct{v: rv, meta: meta, lenient: lenient}, nil
	default:
		return nil, fmt.Errorf("unsupported type: %s", rv.Type())
	}
}

// loadCell forces a lazy property and returns its loaded value.
func loadCell(rv reflect.Value, l loadable) (reflect.Value, error) {
	if err := l.Load(); err != nil {
		return reflect.Value{}, err
	}
	get := rv.MethodByName("Get")
	if !get.IsValid() {
		return reflect.Value{}, fmt.Errorf("lazy value %s has no Get method", rv.Type())
	}
	out := get.Call(nil)
	if len(out) == 2 && !out[1].IsNil() {
		return reflect.Value{}, out[1].Interface().(error)
	}
	return out[0], nil
}

// ToGo converts a Starlark value back to a Go value. Wrapped Go values are
// returned as they were passed in.
func ToGo(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case nil, starlark.NoneType:
		return nil, nil

	case *goStruct:
		return val.v.Interface(), nil

	case *goMap:
		return val.v.Interface(), nil

	case *goSlice:
		return val.v.Interface(), nil

	case starlark.String:
		return string(val), nil

	case starlark.Bytes:
		return []byte(val), nil

	case starlark.Int:
		i64, ok := val.Int64()
		if !ok {
			if u64, ok := val.Uint64(); ok {
				return u64, nil
			}
			return val.String(), nil
		}
		return i64, nil

	case starlark.Float:
		return float64(val), nil

	case starlark.Bool:
		return bool(val), nil

	case *starlark.List:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := ToGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			result[i] = gv
		}
		return result, nil

	case starlark.Tuple:
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := ToGo(val.Index(i))
			if err != nil {
				return nil, fmt.Errorf("tuple index %d: %w", i, err)
			}
			result[i] = gv
		}
		return result, nil

	case *starlark.Dict:
		result := make(map[string]any)
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string, got %s", item[0].Type())
			}
			gv, err := ToGo(item[1])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", key, err)
			}
			result[string(key)] = gv
		}
		return result, nil

	default:
		return val.String(), nil
	}
}
