package reflection

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// ErrNotFound is matched by PropertyError when a path segment does not exist.
var ErrNotFound = errors.New("property not found")

// PropertyError describes a path segment that could not be resolved.
type PropertyError struct {
	Path    string
	Segment string
	Type    string
	Reason  string
}

func (e *PropertyError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot resolve %q in path %q on %s: %s", e.Segment, e.Path, e.Type, e.Reason)
	}
	return fmt.Sprintf("no property %q in path %q on %s", e.Segment, e.Path, e.Type)
}

// Is reports whether the target is ErrNotFound.
func (e *PropertyError) Is(target error) bool { return target == ErrNotFound }

// PathToken is one dotted segment of a property path: a name followed by
// zero or more bracketed indexes.
type PathToken struct {
	Name    string
	Indexes []string
}

// Tokenize splits "a.b[0][k].c" into tokens.
func Tokenize(path string) ([]PathToken, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("empty property path")
	}
	var tokens []PathToken
	for _, seg := range strings.Split(path, ".") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			return nil, fmt.Errorf("empty segment in property path %q", path)
		}
		tok := PathToken{}
		open := strings.IndexByte(seg, '[')
		if open < 0 {
			tok.Name = seg
			tokens = append(tokens, tok)
			continue
		}
		tok.Name = seg[:open]
		rest := seg[open:]
		for rest != "" {
			if rest[0] != '[' {
				return nil, fmt.Errorf("unexpected %q in property path %q", rest, path)
			}
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return nil, fmt.Errorf("unclosed index in property path %q", path)
			}
			tok.Indexes = append(tok.Indexes, strings.Trim(rest[1:end], `"' `))
			rest = rest[end+1:]
		}
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

// Root returns the first name of a path ("user" for "user.name[0]").
func Root(path string) string {
	end := strings.IndexAny(path, ".[")
	if end < 0 {
		return strings.TrimSpace(path)
	}
	return strings.TrimSpace(path[:end])
}

// Resolve evaluates path against root. A nil value part-way through the path
// yields nil without error; a segment that does not exist yields a
// PropertyError matching ErrNotFound.
func Resolve(root any, path string) (any, error) {
	tokens, err := Tokenize(path)
	if err != nil {
		return nil, err
	}
	v := reflect.ValueOf(root)
	for _, tok := range tokens {
		if tok.Name != "" {
			if v, err = child(v, tok.Name, path); err != nil {
				return nil, err
			}
		}
		for _, idx := range tok.Indexes {
			if v, err = index(v, idx, path); err != nil {
				return nil, err
			}
		}
		if isNil(v) {
			return nil, nil
		}
	}
	if !v.IsValid() {
		return nil, nil
	}
	return v.Interface(), nil
}

// Child returns the named member of v: a map entry or a struct property.
func Child(v any, name string) (any, error) {
	r, err := child(reflect.ValueOf(v), name, name)
	if err != nil {
		return nil, err
	}
	if !r.IsValid() || isNil(r) {
		return nil, nil
	}
	return r.Interface(), nil
}

// HasProperty reports whether name resolves on v without error.
func HasProperty(v any, name string) bool {
	_, err := child(reflect.ValueOf(v), name, name)
	return err == nil
}

func child(v reflect.Value, name, path string) (reflect.Value, error) {
	v = indirect(v)
	if !v.IsValid() || isNil(v) {
		return reflect.Value{}, nil
	}
	switch v.Kind() {
	case reflect.Map:
		key, err := mapKey(v.Type().Key(), name)
		if err != nil {
			return reflect.Value{}, &PropertyError{Path: path, Segment: name, Type: v.Type().String(), Reason: err.Error()}
		}
		e := v.MapIndex(key)
		if !e.IsValid() {
			return reflect.Value{}, &PropertyError{Path: path, Segment: name, Type: v.Type().String()}
		}
		return e, nil
	case reflect.Struct:
		m := MustOf(v.Type())
		p, ok := m.FindProperty(name, false)
		if !ok {
			return reflect.Value{}, &PropertyError{Path: path, Segment: name, Type: v.Type().String()}
		}
		f, ok := p.Get(v)
		if !ok {
			return reflect.Value{}, nil
		}
		return f, nil
	default:
		return reflect.Value{}, &PropertyError{Path: path, Segment: name, Type: v.Type().String()}
	}
}

func index(v reflect.Value, idx, path string) (reflect.Value, error) {
	v = indirect(v)
	if !v.IsValid() || isNil(v) {
		return reflect.Value{}, nil
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array, reflect.String:
		i, err := strconv.Atoi(idx)
		if err != nil {
			return reflect.Value{}, &PropertyError{Path: path, Segment: "[" + idx + "]", Type: v.Type().String(), Reason: "index is not an integer"}
		}
		if i < 0 || i >= v.Len() {
			return reflect.Value{}, &PropertyError{Path: path, Segment: "[" + idx + "]", Type: v.Type().String(), Reason: fmt.Sprintf("index out of range (len %d)", v.Len())}
		}
		return v.Index(i), nil
	case reflect.Map, reflect.Struct:
		return child(v, idx, path)
	default:
		return reflect.Value{}, &PropertyError{Path: path, Segment: "[" + idx + "]", Type: v.Type().String(), Reason: "not indexable"}
	}
}

func mapKey(kt reflect.Type, name string) (reflect.Value, error) {
	switch kt.Kind() {
	case reflect.String:
		return reflect.ValueOf(name).Convert(kt), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(name, 10, 64)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(n).Convert(kt), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(name, 10, 64)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(n).Convert(kt), nil
	case reflect.Interface:
		return reflect.ValueOf(name), nil
	default:
		return reflect.Value{}, fmt.Errorf("unsupported map key type %s", kt)
	}
}

func isNil(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}
