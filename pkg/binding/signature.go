package binding

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/leapstack-labs/leapmap/pkg/core"
	"github.com/leapstack-labs/leapmap/pkg/mapping"
)

// Struct tags read from mapper fields.
const (
	// TagStatement overrides the statement id: `stmt:"findByID"`, or
	// `stmt:"-"` for fields that are not bound.
	TagStatement = "stmt"
	// TagParams names the arguments: `params:"name,age"`.
	TagParams = "params"
	// TagMapKey selects the property keying map results: `mapkey:"ID"`.
	TagMapKey = "mapkey"
)

// ReturnShape classifies what a mapper function returns.
type ReturnShape int

// ReturnShape values.
const (
	ReturnVoid     ReturnShape = iota // error
	ReturnAffected                    // (int, error) on writes
	ReturnBool                        // (bool, error) on writes
	ReturnOne                         // (T, error)
	ReturnMany                        // ([]T, error)
	ReturnMap                         // (map[K]V, error) with a mapkey tag
	ReturnCursor                      // (iter.Seq2[T, error], error)
)

func (s ReturnShape) String() string {
	switch s {
	case ReturnVoid:
		return "void"
	case ReturnAffected:
		return "affected rows"
	case ReturnBool:
		return "bool"
	case ReturnOne:
		return "one"
	case ReturnMany:
		return "many"
	case ReturnMap:
		return "map"
	case ReturnCursor:
		return "cursor"
	}
	return "unknown"
}

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	boundsType  = reflect.TypeOf(mapping.RowBounds{})
)

// MethodSignature is the resolved dispatch entry of one mapper field.
type MethodSignature struct {
	Field       string
	FieldIndex  int
	StatementID string
	Kind        core.StatementKind
	// ParamNames names the ordinary arguments in order.
	ParamNames []string
	// named is set when ParamNames came from the params tag.
	named bool

	// ctxIndex and boundsIndex locate the special arguments, -1 when absent.
	ctxIndex    int
	boundsIndex int

	Returns ReturnShape
	// Result is the type returned to the caller (the T of the shapes above).
	Result reflect.Type
	MapKey string

	funcType reflect.Type
	// elemType is the row type of many, map values and cursor items.
	elemType reflect.Type
	keyType  reflect.Type
}

func (sig *MethodSignature) String() string {
	return fmt.Sprintf("%s -> %s (%s)", sig.Field, sig.StatementID, sig.Returns)
}

// param builds the parameter object of one call from the ordinary arguments.
// A single unnamed argument is passed as is; otherwise arguments are
// collected in a ParamMap under their names.
func (sig *MethodSignature) param(args []reflect.Value) any {
	var vals []any
	for i, a := range args {
		if i == sig.ctxIndex || i == sig.boundsIndex {
			continue
		}
		vals = append(vals, a.Interface())
	}
	switch {
	case len(vals) == 0:
		return nil
	case len(vals) == 1 && !sig.named:
		return vals[0]
	}
	pm := make(mapping.ParamMap, len(vals))
	for i, v := range vals {
		pm[sig.ParamNames[i]] = v
	}
	return pm
}

func (sig *MethodSignature) context(args []reflect.Value) context.Context {
	if sig.ctxIndex < 0 || args[sig.ctxIndex].IsNil() {
		return context.Background()
	}
	return args[sig.ctxIndex].Interface().(context.Context)
}

func (sig *MethodSignature) bounds(args []reflect.Value) []mapping.RowBounds {
	if sig.boundsIndex < 0 {
		return nil
	}
	return []mapping.RowBounds{args[sig.boundsIndex].Interface().(mapping.RowBounds)}
}

// resolveSignature classifies the field against its statement.
func resolveSignature(field reflect.StructField, index int, ms *mapping.MappedStatement, useParamNames bool) (*MethodSignature, error) {
	ft := field.Type
	sig := &MethodSignature{
		Field:       field.Name,
		FieldIndex:  index,
		StatementID: ms.ID,
		Kind:        ms.Kind,
		ctxIndex:    -1,
		boundsIndex: -1,
		funcType:    ft,
		MapKey:      field.Tag.Get(TagMapKey),
	}

	ordinary := 0
	for i := range ft.NumIn() {
		in := ft.In(i)
		switch {
		case in == contextType:
			if i != 0 {
				return nil, fmt.Errorf("context.Context must be the first argument")
			}
			sig.ctxIndex = i
		case in == boundsType:
			if sig.boundsIndex >= 0 {
				return nil, fmt.Errorf("more than one RowBounds argument")
			}
			sig.boundsIndex = i
		default:
			ordinary++
		}
	}
	if ft.IsVariadic() {
		return nil, fmt.Errorf("variadic mapper functions are not supported")
	}
	if sig.boundsIndex >= 0 && ms.Kind != core.KindSelect {
		return nil, fmt.Errorf("RowBounds argument on a %s statement", ms.Kind)
	}

	if tag, ok := field.Tag.Lookup(TagParams); ok && useParamNames {
		names := strings.Split(tag, ",")
		for i := range names {
			names[i] = strings.TrimSpace(names[i])
		}
		if len(names) != ordinary {
			return nil, fmt.Errorf("params tag names %d arguments, function takes %d", len(names), ordinary)
		}
		sig.ParamNames = names
		sig.named = true
	} else {
		for i := range ordinary {
			sig.ParamNames = append(sig.ParamNames, fmt.Sprintf("param%d", i+1))
		}
	}

	if err := sig.classifyReturn(); err != nil {
		return nil, err
	}
	return sig, nil
}

func (sig *MethodSignature) classifyReturn() error {
	ft := sig.funcType
	switch ft.NumOut() {
	case 1:
		if ft.Out(0) != errorType {
			return fmt.Errorf("single result must be error")
		}
		if sig.Kind == core.KindSelect {
			return fmt.Errorf("select functions must return a result")
		}
		sig.Returns = ReturnVoid
		return nil
	case 2:
		if ft.Out(1) != errorType {
			return fmt.Errorf("last result must be error")
		}
	default:
		return fmt.Errorf("functions must return error or (T, error)")
	}

	out := ft.Out(0)
	sig.Result = out
	if sig.Kind.IsWrite() {
		switch out.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			sig.Returns = ReturnAffected
		case reflect.Bool:
			sig.Returns = ReturnBool
		default:
			return fmt.Errorf("%s functions return error, (int, error) or (bool, error), not %s", sig.Kind, out)
		}
		return nil
	}

	switch {
	case isSeq2(out):
		sig.Returns = ReturnCursor
		sig.elemType = out.In(0).In(0)
	case out.Kind() == reflect.Slice && out.Elem().Kind() != reflect.Uint8:
		sig.Returns = ReturnMany
		sig.elemType = out.Elem()
	case out.Kind() == reflect.Map && sig.MapKey != "":
		sig.Returns = ReturnMap
		sig.keyType = out.Key()
		sig.elemType = out.Elem()
	default:
		if sig.MapKey != "" {
			return fmt.Errorf("mapkey tag on a function returning %s", out)
		}
		sig.Returns = ReturnOne
	}
	return nil
}

// isSeq2 reports whether t has the shape of iter.Seq2[T, error].
func isSeq2(t reflect.Type) bool {
	if t.Kind() != reflect.Func || t.NumIn() != 1 || t.NumOut() != 0 {
		return false
	}
	yield := t.In(0)
	return yield.Kind() == reflect.Func &&
		yield.NumIn() == 2 && yield.In(1) == errorType &&
		yield.NumOut() == 1 && yield.Out(0).Kind() == reflect.Bool
}
