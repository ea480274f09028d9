package typehandler

import (
	"database/sql"
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapmap/pkg/core"
)

// timeLayouts are tried in order when a driver returns a time as text.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// scalarHandler covers bool, string and numeric kinds, named types included.
type scalarHandler struct{}

func (scalarHandler) ToDatabase(v any, _ core.DBType) (any, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("value %d overflows int64", u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	}
	return nil, fmt.Errorf("unsupported kind %s", rv.Kind())
}

func (scalarHandler) FromDatabase(raw any, target reflect.Type) (any, error) {
	out := reflect.New(target).Elem()
	switch target.Kind() {
	case reflect.String:
		s, err := asString(raw)
		if err != nil {
			return nil, err
		}
		out.SetString(s)
	case reflect.Bool:
		b, err := asBool(raw)
		if err != nil {
			return nil, err
		}
		out.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := asInt(raw)
		if err != nil {
			return nil, err
		}
		if out.OverflowInt(n) {
			return nil, fmt.Errorf("value %d overflows %s", n, target)
		}
		out.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := asInt(raw)
		if err != nil {
			return nil, err
		}
		if n < 0 || out.OverflowUint(uint64(n)) {
			return nil, fmt.Errorf("value %d overflows %s", n, target)
		}
		out.SetUint(uint64(n))
	case reflect.Float32, reflect.Float64:
		f, err := asFloat(raw)
		if err != nil {
			return nil, err
		}
		out.SetFloat(f)
	default:
		return nil, fmt.Errorf("unsupported kind %s", target.Kind())
	}
	return out.Interface(), nil
}

// valuerHandler passes driver.Valuer values through and scans into sql.Scanner targets.
type valuerHandler struct{}

func (valuerHandler) ToDatabase(v any, _ core.DBType) (any, error) { return v, nil }

func (valuerHandler) FromDatabase(raw any, target reflect.Type) (any, error) {
	if target.Kind() == reflect.Pointer {
		p := reflect.New(target.Elem())
		if err := p.Interface().(sql.Scanner).Scan(raw); err != nil {
			return nil, err
		}
		return p.Interface(), nil
	}
	p := reflect.New(target)
	s, ok := p.Interface().(sql.Scanner)
	if !ok {
		return nil, fmt.Errorf("%s does not implement sql.Scanner", target)
	}
	if err := s.Scan(raw); err != nil {
		return nil, err
	}
	return p.Elem().Interface(), nil
}

// TimeHandler converts time.Time values. Text values are parsed with common layouts.
type TimeHandler struct{}

func (TimeHandler) ToDatabase(v any, hint core.DBType) (any, error) {
	t, ok := v.(time.Time)
	if !ok {
		if p, isPtr := v.(*time.Time); isPtr {
			t = *p
		} else {
			return nil, fmt.Errorf("expected time.Time, got %T", v)
		}
	}
	if hint == core.DBTypeDate {
		return t.Format(time.DateOnly), nil
	}
	return t, nil
}

func (TimeHandler) FromDatabase(raw any, _ reflect.Type) (any, error) {
	switch x := raw.(type) {
	case time.Time:
		return x, nil
	case int64:
		return time.Unix(x, 0).UTC(), nil
	case string:
		return parseTime(x)
	case []byte:
		return parseTime(string(x))
	}
	return nil, fmt.Errorf("unsupported time source %T", raw)
}

// UUIDHandler binds UUIDs as their canonical string form.
type UUIDHandler struct{}

func (UUIDHandler) ToDatabase(v any, _ core.DBType) (any, error) {
	switch x := v.(type) {
	case uuid.UUID:
		return x.String(), nil
	case *uuid.UUID:
		return x.String(), nil
	case string:
		id, err := uuid.Parse(x)
		if err != nil {
			return nil, err
		}
		return id.String(), nil
	}
	return nil, fmt.Errorf("expected uuid.UUID, got %T", v)
}

func (UUIDHandler) FromDatabase(raw any, target reflect.Type) (any, error) {
	var id uuid.UUID
	var err error
	switch x := raw.(type) {
	case uuid.UUID:
		id = x
	case [16]byte:
		id = uuid.UUID(x)
	case []byte:
		if len(x) == 16 {
			id, err = uuid.FromBytes(x)
		} else {
			id, err = uuid.ParseBytes(x)
		}
	case string:
		id, err = uuid.Parse(x)
	default:
		return nil, fmt.Errorf("unsupported uuid source %T", raw)
	}
	if err != nil {
		return nil, err
	}
	if target.Kind() == reflect.String {
		return id.String(), nil
	}
	return id, nil
}

// BytesHandler copies byte slices so results never alias driver buffers.
type BytesHandler struct{}

func (BytesHandler) ToDatabase(v any, _ core.DBType) (any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() != reflect.Uint8 {
		return nil, fmt.Errorf("expected []byte, got %T", v)
	}
	return rv.Bytes(), nil
}

func (BytesHandler) FromDatabase(raw any, _ reflect.Type) (any, error) {
	switch x := raw.(type) {
	case []byte:
		return append([]byte(nil), x...), nil
	case string:
		return []byte(x), nil
	}
	return nil, fmt.Errorf("unsupported bytes source %T", raw)
}

// JSONHandler stores values as JSON documents.
type JSONHandler struct{}

func (JSONHandler) ToDatabase(v any, _ core.DBType) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (JSONHandler) FromDatabase(raw any, target reflect.Type) (any, error) {
	var data []byte
	switch x := raw.(type) {
	case []byte:
		data = x
	case string:
		data = []byte(x)
	default:
		return nil, fmt.Errorf("unsupported json source %T", raw)
	}
	p := reflect.New(target)
	if err := json.Unmarshal(data, p.Interface()); err != nil {
		return nil, err
	}
	return p.Elem().Interface(), nil
}

// TextHandler binds encoding.TextMarshaler (or fmt.Stringer) values as text
// and reads them back through encoding.TextUnmarshaler.
type TextHandler struct{}

func (TextHandler) ToDatabase(v any, _ core.DBType) (any, error) {
	switch x := v.(type) {
	case encoding.TextMarshaler:
		b, err := x.MarshalText()
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case fmt.Stringer:
		return x.String(), nil
	}
	return fmt.Sprint(v), nil
}

func (TextHandler) FromDatabase(raw any, target reflect.Type) (any, error) {
	s, err := asString(raw)
	if err != nil {
		return nil, err
	}
	p := reflect.New(target)
	if u, ok := p.Interface().(encoding.TextUnmarshaler); ok {
		if err := u.UnmarshalText([]byte(s)); err != nil {
			return nil, err
		}
		return p.Elem().Interface(), nil
	}
	return scalarHandler{}.FromDatabase(s, target)
}

// =============================================================================
// Raw value coercion
// =============================================================================

func asString(raw any) (string, error) {
	switch x := raw.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	case time.Time:
		return x.Format(time.RFC3339Nano), nil
	case fmt.Stringer:
		return x.String(), nil
	}
	return fmt.Sprint(raw), nil
}

func asInt(raw any) (int64, error) {
	switch x := raw.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", x)
		}
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("value %v has a fractional part", x)
		}
		return int64(x), nil
	case float32:
		return asInt(float64(x))
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	}
	return 0, fmt.Errorf("unsupported integer source %T", raw)
}

func asFloat(raw any) (float64, error) {
	switch x := raw.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	}
	return 0, fmt.Errorf("unsupported float source %T", raw)
}

func asBool(raw any) (bool, error) {
	switch x := raw.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case int:
		return x != 0, nil
	case []byte:
		return strconv.ParseBool(strings.TrimSpace(string(x)))
	case string:
		return strconv.ParseBool(strings.TrimSpace(x))
	}
	return false, fmt.Errorf("unsupported boolean source %T", raw)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format %q", s)
}
