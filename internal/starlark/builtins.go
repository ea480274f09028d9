package starlark

import (
	"go.starlark.net/starlark"
)

// Predeclared returns the globals available to every template expression:
// null, true and false as aliases of None, True and False, plus helpers
// for the checks SQL templates make most often.
func Predeclared() starlark.StringDict {
	return starlark.StringDict{
		"null":     starlark.None,
		"true":     starlark.True,
		"false":    starlark.False,
		"empty":    starlark.NewBuiltin("empty", builtinEmpty),
		"notEmpty": starlark.NewBuiltin("notEmpty", builtinNotEmpty),
	}
}

// builtinEmpty reports whether x is None or has no elements / characters.
func builtinEmpty(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	return starlark.Bool(isEmpty(x)), nil
}

func builtinNotEmpty(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	return starlark.Bool(!isEmpty(x)), nil
}

func isEmpty(x starlark.Value) bool {
	switch v := x.(type) {
	case starlark.NoneType:
		return true
	case starlark.String:
		return len(v) == 0
	case starlark.Bytes:
		return len(v) == 0
	case starlark.Sequence:
		return v.Len() == 0
	}
	return false
}

// Truthy applies template condition semantics to an evaluated expression:
// None is false, booleans are themselves, numbers are true (zero included)
// and strings or collections are true when non-empty.
func Truthy(v starlark.Value) bool {
	switch x := v.(type) {
	case nil, starlark.NoneType:
		return false
	case starlark.Bool:
		return bool(x)
	case starlark.Int, starlark.Float:
		return true
	case starlark.String:
		return len(x) > 0
	case starlark.Bytes:
		return len(x) > 0
	case starlark.Sequence:
		return x.Len() > 0
	}
	return bool(v.Truth())
}
