package starlark

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/leapstack-labs/leapmap/internal/reflection"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// ParameterName is the global that always holds the whole parameter object.
const ParameterName = "_parameter"

// ScalarName additionally holds a parameter object that has no properties.
const ScalarName = "value"

// ExecutionContext holds the globals of one template render: the parameter
// object's properties plus variables introduced by bind and foreach.
type ExecutionContext struct {
	globals starlark.StringDict
	pool    *ThreadPool
	lenient bool

	// mu protects globals while binds are added
	mu sync.RWMutex
}

// ContextOption is a functional option for configuring ExecutionContext.
type ContextOption func(*ExecutionContext)

// WithThreadPool evaluates expressions on threads taken from pool.
func WithThreadPool(pool *ThreadPool) ContextOption {
	return func(ctx *ExecutionContext) {
		ctx.pool = pool
	}
}

// WithLenient makes reads of missing struct properties yield None.
func WithLenient(lenient bool) ContextOption {
	return func(ctx *ExecutionContext) {
		ctx.lenient = lenient
	}
}

// NewContext creates an execution context exposing param. Maps with string
// keys and structs have each key or property exposed as a global; struct
// properties are also reachable in lower camel and lower case. Any other
// value is exposed as "value". The whole object is always "_parameter".
func NewContext(param any, opts ...ContextOption) (*ExecutionContext, error) {
	ctx := &ExecutionContext{globals: Predeclared()}
	for _, opt := range opts {
		opt(ctx)
	}

	whole, err := Wrap(param, ctx.lenient)
	if err != nil {
		return nil, fmt.Errorf("parameter object: %w", err)
	}
	ctx.globals[ParameterName] = whole

	rv := reflect.ValueOf(param)
	for rv.IsValid() && (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) && !rv.IsNil() {
		rv = rv.Elem()
	}
	switch {
	case !rv.IsValid():
	case rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String:
		iter := rv.MapRange()
		for iter.Next() {
			v, err := wrapValue(iter.Value(), ctx.lenient)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", iter.Key().String(), err)
			}
			ctx.globals[iter.Key().String()] = v
		}
	case rv.Kind() == reflect.Struct && !isOpaqueStruct(rv.Type()):
		meta, err := reflection.Of(rv.Type())
		if err != nil {
			return nil, err
		}
		for _, p := range meta.Properties() {
			f, ok := p.Get(rv)
			v := starlark.Value(starlark.None)
			if ok {
				if v, err = wrapValue(f, ctx.lenient); err != nil {
					return nil, fmt.Errorf("parameter property %s: %w", p.Name, err)
				}
			}
			ctx.globals[p.Name] = v
			for _, alias := range []string{lowerFirst(p.Name), strings.ToLower(p.Name)} {
				if _, taken := ctx.globals[alias]; !taken {
					ctx.globals[alias] = v
				}
			}
		}
	default:
		ctx.globals[ScalarName] = whole
	}
	return ctx, nil
}

// isOpaqueStruct reports struct types without exported properties, such as
// time.Time, which are treated as scalars.
func isOpaqueStruct(t reflect.Type) bool {
	meta, err := reflection.Of(t)
	return err != nil || len(meta.Properties()) == 0
}

func lowerFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[n:]
}

// Globals returns the combined globals dictionary for Starlark execution.
func (ctx *ExecutionContext) Globals() starlark.StringDict {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return ctx.globals
}

// Bind sets a global for the rest of the render.
func (ctx *ExecutionContext) Bind(name string, v starlark.Value) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	next := make(starlark.StringDict, len(ctx.globals)+1)
	for k, x := range ctx.globals {
		next[k] = x
	}
	next[name] = v
	ctx.globals = next
}

// env combines the globals with locals; locals take precedence.
func (ctx *ExecutionContext) env(locals starlark.StringDict) starlark.StringDict {
	globals := ctx.Globals()
	if len(locals) == 0 {
		return globals
	}
	combined := make(starlark.StringDict, len(globals)+len(locals))
	for k, v := range globals {
		combined[k] = v
	}
	for k, v := range locals {
		combined[k] = v
	}
	return combined
}

// Lenient reports whether missing properties evaluate to None.
func (ctx *ExecutionContext) Lenient() bool { return ctx.lenient }

// EvalExpr evaluates a single Starlark expression and returns the result.
func (ctx *ExecutionContext) EvalExpr(expr string, filename string, line int) (starlark.Value, error) {
	return ctx.EvalExprWithLocals(expr, filename, line, nil)
}

// EvalExprWithLocals evaluates a Starlark expression with additional local variables.
// Loop variables of enclosing foreach blocks are passed as locals.
func (ctx *ExecutionContext) EvalExprWithLocals(expr string, filename string, line int, locals starlark.StringDict) (starlark.Value, error) {
	thread := ctx.thread(filename)
	if ctx.pool != nil {
		defer ctx.pool.Put(thread)
	}

	globals := ctx.env(locals)

	result, err := starlark.Eval(thread, filename, expr, globals) //nolint:staticcheck // SA1019: will migrate to EvalOptions later
	if err != nil && ctx.lenient {
		if names := undefinedNames(err); len(names) > 0 {
			retry := make(starlark.StringDict, len(globals)+len(names))
			for k, v := range globals {
				retry[k] = v
			}
			for _, n := range names {
				retry[n] = starlark.None
			}
			result, err = starlark.Eval(thread, filename, expr, retry) //nolint:staticcheck // SA1019: will migrate to EvalOptions later
		}
	}
	if err != nil {
		return nil, &EvalError{
			File:    filename,
			Line:    line,
			Expr:    expr,
			Message: err.Error(),
		}
	}

	return result, nil
}

// EvalExprString evaluates a Starlark expression and returns the string result.
func (ctx *ExecutionContext) EvalExprString(expr string, filename string, line int) (string, error) {
	return ctx.EvalExprStringWithLocals(expr, filename, line, nil)
}

// EvalExprStringWithLocals evaluates a Starlark expression with local variables and returns the string result.
func (ctx *ExecutionContext) EvalExprStringWithLocals(expr string, filename string, line int, locals starlark.StringDict) (string, error) {
	result, err := ctx.EvalExprWithLocals(expr, filename, line, locals)
	if err != nil {
		return "", err
	}

	switch v := result.(type) {
	case starlark.String:
		return string(v), nil
	case starlark.NoneType:
		return "", nil
	default:
		return result.String(), nil
	}
}

// EvalCondition evaluates a test expression under template truthiness.
// The boolean structure of the expression (not, and, or, parentheses and
// conditional expressions) is walked here so Truthy applies at every level;
// only the operands are evaluated by Starlark.
func (ctx *ExecutionContext) EvalCondition(expr string, filename string, line int, locals starlark.StringDict) (bool, error) {
	tree, err := syntax.LegacyFileOptions().ParseExpr(filename, expr, 0)
	if err != nil {
		return false, &EvalError{File: filename, Line: line, Expr: expr, Message: err.Error()}
	}

	env := ctx.env(locals)
	if ctx.lenient {
		env = withUndefinedAsNone(tree, env)
	}

	thread := ctx.thread(filename)
	if ctx.pool != nil {
		defer ctx.pool.Put(thread)
	}
	ok, err := condition(thread, tree, env)
	if err != nil {
		return false, &EvalError{File: filename, Line: line, Expr: expr, Message: err.Error()}
	}
	return ok, nil
}

func condition(thread *starlark.Thread, e syntax.Expr, env starlark.StringDict) (bool, error) {
	switch x := e.(type) {
	case *syntax.ParenExpr:
		return condition(thread, x.X, env)
	case *syntax.UnaryExpr:
		if x.Op == syntax.NOT {
			ok, err := condition(thread, x.X, env)
			return !ok, err
		}
	case *syntax.BinaryExpr:
		switch x.Op {
		case syntax.AND:
			ok, err := condition(thread, x.X, env)
			if err != nil || !ok {
				return false, err
			}
			return condition(thread, x.Y, env)
		case syntax.OR:
			ok, err := condition(thread, x.X, env)
			if err != nil || ok {
				return ok, err
			}
			return condition(thread, x.Y, env)
		}
	case *syntax.CondExpr:
		ok, err := condition(thread, x.Cond, env)
		if err != nil {
			return false, err
		}
		if ok {
			return condition(thread, x.True, env)
		}
		return condition(thread, x.False, env)
	}

	v, err := starlark.EvalExprOptions(syntax.LegacyFileOptions(), thread, e, env)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

// withUndefinedAsNone returns env extended with None for every free name
// in tree that env and the universe do not define.
func withUndefinedAsNone(tree syntax.Expr, env starlark.StringDict) starlark.StringDict {
	var missing []string
	var visit func(n syntax.Node) bool
	visit = func(n syntax.Node) bool {
		switch x := n.(type) {
		case *syntax.DotExpr:
			syntax.Walk(x.X, visit)
			return false
		case *syntax.Ident:
			_, defined := env[x.Name]
			_, builtin := starlark.Universe[x.Name]
			if !defined && !builtin {
				missing = append(missing, x.Name)
			}
		}
		return true
	}
	syntax.Walk(tree, visit)
	if len(missing) == 0 {
		return env
	}

	out := make(starlark.StringDict, len(env)+len(missing))
	for k, v := range env {
		out[k] = v
	}
	for _, name := range missing {
		out[name] = starlark.None
	}
	return out
}

func (ctx *ExecutionContext) thread(name string) *starlark.Thread {
	if ctx.pool != nil {
		return ctx.pool.Get(name)
	}
	return &starlark.Thread{
		Name:  name,
		Print: func(_ *starlark.Thread, _ string) {},
	}
}

// undefinedNames extracts the names of a resolve error about undefined globals.
func undefinedNames(err error) []string {
	var list resolve.ErrorList
	if !errors.As(err, &list) {
		return nil
	}
	var names []string
	for _, e := range list {
		rest, ok := strings.CutPrefix(e.Msg, "undefined: ")
		if !ok || rest == "" {
			return nil
		}
		names = append(names, strings.Fields(rest)[0])
	}
	return names
}

// EvalError represents an error during Starlark expression evaluation.
type EvalError struct {
	File    string
	Line    int
	Expr    string
	Message string
}

func (e *EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: error evaluating %q: %s", e.File, e.Line, e.Expr, e.Message)
	}
	return fmt.Sprintf("%s: error evaluating %q: %s", e.File, e.Expr, e.Message)
}
