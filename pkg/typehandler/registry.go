// Package typehandler converts values between Go types and database driver
// values. A Registry resolves handlers by Go type, by name (the handler=
// option of placeholders and result mappings) and by database type hint.
package typehandler

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapmap/pkg/core"
)

// Handler converts one family of values to and from the database.
type Handler interface {
	// ToDatabase converts a non-nil Go value into a driver value.
	ToDatabase(v any, hint core.DBType) (any, error)
	// FromDatabase converts a raw driver value into a value of type target.
	// raw is never nil.
	FromDatabase(raw any, target reflect.Type) (any, error)
}

// Registry holds type handlers. The zero value is not usable; use NewRegistry.
type Registry struct {
	mu sync.RWMutex

	// byType maps exact Go types to handlers: time.Time → timeHandler
	byType map[reflect.Type]Handler

	// byName maps handler names used in mappings: "json" → JSONHandler
	byName map[string]Handler

	// byDBType maps database type hints to handlers used when no Go type handler matches.
	byDBType map[core.DBType]Handler
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	uuidType    = reflect.TypeOf(uuid.UUID{})
	bytesType   = reflect.TypeOf([]byte(nil))
	valuerType  = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
)

// NewRegistry creates a registry with the built-in handlers registered.
func NewRegistry() *Registry {
	r := &Registry{
		byType:   make(map[reflect.Type]Handler),
		byName:   make(map[string]Handler),
		byDBType: make(map[core.DBType]Handler),
	}
	r.Register(timeType, TimeHandler{})
	r.Register(uuidType, UUIDHandler{})
	r.Register(bytesType, BytesHandler{})
	r.RegisterNamed("json", JSONHandler{})
	r.RegisterNamed("uuid", UUIDHandler{})
	r.RegisterNamed("text", TextHandler{})
	r.RegisterNamed("time", TimeHandler{})
	r.RegisterDBType(core.DBTypeJSON, JSONHandler{})
	r.RegisterDBType(core.DBTypeUUID, UUIDHandler{})
	return r
}

// Register associates h with the Go type t, replacing any previous handler.
func (r *Registry) Register(t reflect.Type, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[t] = h
}

// RegisterNamed makes h available under name.
func (r *Registry) RegisterNamed(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[name] = h
}

// RegisterDBType associates h with a database type hint.
func (r *Registry) RegisterDBType(dt core.DBType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byDBType[dt] = h
}

// Named returns the handler registered under name.
func (r *Registry) Named(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byName[name]
	return h, ok
}

// Lookup returns the handler for values of type t. Pointer types resolve to
// their element type; types without a registered handler fall back to the
// kind-based scalar handler, the driver.Valuer pass-through or the hint handler.
func (r *Registry) Lookup(t reflect.Type, hint core.DBType) (Handler, bool) {
	for t.Kind() == reflect.Pointer {
		if t.Implements(valuerType) || t.Implements(scannerType) {
			return valuerHandler{}, true
		}
		t = t.Elem()
	}

	r.mu.RLock()
	h, ok := r.byType[t]
	if !ok && hint != core.DBTypeUnset && !isScalarKind(t.Kind()) {
		h, ok = r.byDBType[hint]
	}
	r.mu.RUnlock()
	if ok {
		return h, true
	}

	switch {
	case t.Implements(valuerType) || reflect.PointerTo(t).Implements(scannerType):
		return valuerHandler{}, true
	case isScalarKind(t.Kind()):
		return scalarHandler{}, true
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
		return BytesHandler{}, true
	}
	return nil, false
}

// Has reports whether values of type t can be bound directly as a single parameter.
func (r *Registry) Has(t reflect.Type) bool {
	_, ok := r.Lookup(t, core.DBTypeUnset)
	return ok
}

// ToDatabase converts v using the named handler when given, otherwise the
// handler resolved from v's type and hint. nil and nil pointers become nil.
func (r *Registry) ToDatabase(v any, hint core.DBType, handlerName string) (any, error) {
	if isNilValue(v) {
		return nil, nil
	}
	h, err := r.resolve(reflect.TypeOf(v), hint, handlerName)
	if err != nil {
		return nil, err
	}
	out, err := h.ToDatabase(v, hint)
	if err != nil {
		to := hint.String()
		if to == "" {
			to = "driver value"
		}
		return nil, &ConversionError{From: reflect.TypeOf(v).String(), To: to, Cause: err}
	}
	return out, nil
}

// FromDatabase converts raw into a value of type target. A nil raw value
// yields the zero value of target.
func (r *Registry) FromDatabase(raw any, target reflect.Type, handlerName string) (reflect.Value, error) {
	if raw == nil {
		return reflect.Zero(target), nil
	}
	if target.Kind() == reflect.Pointer && !target.Implements(scannerType) {
		elem, err := r.FromDatabase(raw, target.Elem(), handlerName)
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(target.Elem())
		p.Elem().Set(elem)
		return p, nil
	}
	if target.Kind() == reflect.Interface && handlerName == "" {
		return reflect.ValueOf(copyRaw(raw)), nil
	}
	h, err := r.resolve(target, core.DBTypeUnset, handlerName)
	if err != nil {
		return reflect.Value{}, err
	}
	out, err := h.FromDatabase(raw, target)
	if err != nil {
		return reflect.Value{}, &ConversionError{From: fmt.Sprintf("%T", raw), To: target.String(), Cause: err}
	}
	v := reflect.ValueOf(out)
	if !v.IsValid() {
		return reflect.Zero(target), nil
	}
	if v.Type() != target {
		if !v.Type().ConvertibleTo(target) {
			return reflect.Value{}, &ConversionError{From: v.Type().String(), To: target.String()}
		}
		v = v.Convert(target)
	}
	return v, nil
}

func (r *Registry) resolve(t reflect.Type, hint core.DBType, handlerName string) (Handler, error) {
	if handlerName != "" {
		h, ok := r.Named(handlerName)
		if !ok {
			return nil, &UnknownHandlerError{Name: handlerName}
		}
		return h, nil
	}
	h, ok := r.Lookup(t, hint)
	if !ok {
		return nil, &UnsupportedTypeError{Type: t.String()}
	}
	return h, nil
}

func isScalarKind(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func copyRaw(raw any) any {
	if b, ok := raw.([]byte); ok {
		return append([]byte(nil), b...)
	}
	return raw
}

// =============================================================================
// Errors
// =============================================================================

// UnsupportedTypeError is returned when no handler is registered for a type.
type UnsupportedTypeError struct {
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("no type handler registered for %s", e.Type)
}

// UnknownHandlerError is returned for a handler name that was never registered.
type UnknownHandlerError struct {
	Name string
}

func (e *UnknownHandlerError) Error() string {
	return fmt.Sprintf("unknown type handler %q", e.Name)
}

// ConversionError wraps a failed conversion.
type ConversionError struct {
	From  string
	To    string
	Cause error
}

func (e *ConversionError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("cannot convert %s to %s", e.From, e.To)
	}
	return fmt.Sprintf("cannot convert %s to %s: %v", e.From, e.To, e.Cause)
}

func (e *ConversionError) Unwrap() error { return e.Cause }
