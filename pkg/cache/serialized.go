package cache

import (
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// Serialized stores msgpack-encoded copies so callers never share cached
// instances: every Put copies on write and every Get decodes a fresh value.
// Result lists ([]any) are encoded element by element to keep element types.
type Serialized struct {
	delegate Cache
}

// NewSerialized wraps delegate.
func NewSerialized(delegate Cache) *Serialized {
	return &Serialized{delegate: delegate}
}

type serializedValue struct {
	typ   reflect.Type
	data  []byte
	elems []serializedValue
	list  bool
}

func (c *Serialized) ID() string { return c.delegate.ID() }

func (c *Serialized) Get(key *CacheKey) (any, bool, error) {
	raw, ok, err := c.delegate.Get(key)
	if !ok || err != nil {
		return raw, ok, err
	}
	sv, isSerialized := raw.(*serializedValue)
	if !isSerialized {
		return raw, true, nil
	}
	v, err := c.decode(sv)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (c *Serialized) Put(key *CacheKey, value any) error {
	if value == nil {
		return c.delegate.Put(key, nil)
	}
	sv, err := c.encode(value)
	if err != nil {
		return err
	}
	return c.delegate.Put(key, sv)
}

func (c *Serialized) Remove(key *CacheKey) { c.delegate.Remove(key) }

func (c *Serialized) Clear() { c.delegate.Clear() }

func (c *Serialized) Size() int { return c.delegate.Size() }

func (c *Serialized) encode(value any) (*serializedValue, error) {
	if list, ok := value.([]any); ok {
		sv := &serializedValue{list: true, elems: make([]serializedValue, len(list))}
		for i, e := range list {
			if e == nil {
				continue
			}
			enc, err := c.encode(e)
			if err != nil {
				return nil, err
			}
			sv.elems[i] = *enc
		}
		return sv, nil
	}
	data, err := msgpack.Marshal(value)
	if err != nil {
		return nil, cacheError(c.ID(), "failed to serialize %T", value).WithCause(err)
	}
	return &serializedValue{typ: reflect.TypeOf(value), data: data}, nil
}

func (c *Serialized) decode(sv *serializedValue) (any, error) {
	if sv.list {
		out := make([]any, len(sv.elems))
		for i := range sv.elems {
			if sv.elems[i].typ == nil && !sv.elems[i].list {
				continue
			}
			v, err := c.decode(&sv.elems[i])
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
	target := reflect.New(sv.typ)
	if err := msgpack.Unmarshal(sv.data, target.Interface()); err != nil {
		return nil, cacheError(c.ID(), "failed to deserialize %s", sv.typ).WithCause(err)
	}
	return target.Elem().Interface(), nil
}
