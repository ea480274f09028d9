package cache

import (
	"encoding/hex"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// keySeparator separates encoded components in String output.
const keySeparator = "::"

// CacheKey is an ordered composite of statement id, row bounds, SQL and bound
// values. Two keys are equal when their components are equal in the same
// order; appending or reordering a component changes the hash.
type CacheKey struct {
	parts  []string
	digest *xxhash.Digest
}

// NewCacheKey creates a key from components.
func NewCacheKey(components ...any) *CacheKey {
	k := &CacheKey{digest: xxhash.New()}
	k.UpdateAll(components...)
	return k
}

// Update appends one component.
func (k *CacheKey) Update(v any) {
	if k.digest == nil {
		k.digest = xxhash.New()
	}
	part := encodeComponent(v)
	k.parts = append(k.parts, part)
	_, _ = k.digest.WriteString(part)
	_, _ = k.digest.WriteString(keySeparator)
}

// UpdateAll appends components in order.
func (k *CacheKey) UpdateAll(vs ...any) {
	for _, v := range vs {
		k.Update(v)
	}
}

// Count returns the number of components.
func (k *CacheKey) Count() int { return len(k.parts) }

// Hash returns the order-sensitive xxhash of the components.
func (k *CacheKey) Hash() uint64 {
	if k.digest == nil {
		return xxhash.Sum64(nil)
	}
	return k.digest.Sum64()
}

// Equal reports component-wise equality.
func (k *CacheKey) Equal(o *CacheKey) bool {
	if k == nil || o == nil {
		return k == o
	}
	if len(k.parts) != len(o.parts) || k.Hash() != o.Hash() {
		return false
	}
	for i := range k.parts {
		if k.parts[i] != o.parts[i] {
			return false
		}
	}
	return true
}

// String returns the canonical encoding; equal keys have equal strings.
func (k *CacheKey) String() string {
	return strconv.Itoa(len(k.parts)) + keySeparator + strings.Join(k.parts, keySeparator)
}

// Clone returns an independent copy.
func (k *CacheKey) Clone() *CacheKey {
	c := &CacheKey{parts: append([]string(nil), k.parts...)}
	if k.digest != nil {
		d := *k.digest
		c.digest = &d
	}
	return c
}

// encodeComponent renders v with a type tag and, for text, a length prefix so
// that distinct component sequences never encode to the same string.
func encodeComponent(v any) string {
	if v == nil {
		return "nil"
	}
	switch x := v.(type) {
	case string:
		return "s" + strconv.Itoa(len(x)) + ":" + x
	case []byte:
		return "x:" + hex.EncodeToString(x)
	case bool:
		return "b:" + strconv.FormatBool(x)
	case int:
		return "i:" + strconv.FormatInt(int64(x), 10)
	case int64:
		return "i:" + strconv.FormatInt(x, 10)
	case int32:
		return "i:" + strconv.FormatInt(int64(x), 10)
	case int16:
		return "i:" + strconv.FormatInt(int64(x), 10)
	case int8:
		return "i:" + strconv.FormatInt(int64(x), 10)
	case uint:
		return "u:" + strconv.FormatUint(uint64(x), 10)
	case uint64:
		return "u:" + strconv.FormatUint(x, 10)
	case uint32:
		return "u:" + strconv.FormatUint(uint64(x), 10)
	case float64:
		return "f:" + strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return "f:" + strconv.FormatFloat(float64(x), 'g', -1, 32)
	case time.Time:
		return "t:" + x.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		s := x.String()
		return fmt.Sprintf("%T%d:%s", v, len(s), s)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return encodeComponent(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = encodeComponent(rv.Index(i).Interface())
		}
		return fmt.Sprintf("[%d]{%s}", len(parts), strings.Join(parts, ","))
	case reflect.Map:
		parts := make([]string, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			parts = append(parts, encodeComponent(iter.Key().Interface())+"="+encodeComponent(iter.Value().Interface()))
		}
		sort.Strings(parts)
		return fmt.Sprintf("map[%d]{%s}", len(parts), strings.Join(parts, ","))
	}
	s := fmt.Sprintf("%#v", v)
	return fmt.Sprintf("%T%d:%s", v, len(s), s)
}
