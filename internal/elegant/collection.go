package elegant

import (
	"encoding/json"
	"reflect"

	"github.com/spf13/cast"
)

// Collection is an ordered list of models. It shares the models it holds.
type Collection struct {
	items []*Model
}

// NewCollection wraps the models.
func NewCollection(models ...*Model) *Collection {
	return &Collection{items: append([]*Model{}, models...)}
}

// All returns the models.
func (c *Collection) All() []*Model {
	return append([]*Model(nil), c.items...)
}

// Len returns the number of models.
func (c *Collection) Len() int {
	return len(c.items)
}

// IsEmpty reports whether the collection holds no models.
func (c *Collection) IsEmpty() bool {
	return len(c.items) == 0
}

// First returns the leading model, nil when empty.
func (c *Collection) First() *Model {
	if len(c.items) == 0 {
		return nil
	}
	return c.items[0]
}

// Find returns the first model whose primary key equals key, or nil. Keys are
// compared loosely, so 1, 1.0 and "1" match.
func (c *Collection) Find(key any) *Model {
	if model, ok := key.(*Model); ok {
		key = model.GetKey()
	}
	for _, m := range c.items {
		if sameKey(m.GetKey(), key) {
			return m
		}
	}
	return nil
}

// Contains reports whether a model with the primary key is present.
func (c *Collection) Contains(key any) bool {
	return c.Find(key) != nil
}

// Keys returns the primary keys in order.
func (c *Collection) Keys() []any {
	keys := make([]any, len(c.items))
	for i, m := range c.items {
		keys[i] = m.GetKey()
	}
	return keys
}

// Filter returns the models for which fn returns true.
func (c *Collection) Filter(fn func(*Model) bool) *Collection {
	out := make([]*Model, 0, len(c.items))
	for _, m := range c.items {
		if fn(m) {
			out = append(out, m)
		}
	}
	return &Collection{items: out}
}

// Each calls fn for every model until it returns false.
func (c *Collection) Each(fn func(i int, m *Model) bool) {
	for i, m := range c.items {
		if !fn(i, m) {
			return
		}
	}
}

// ToMaps serializes every model.
func (c *Collection) ToMaps() []map[string]any {
	out := make([]map[string]any, len(c.items))
	for i, m := range c.items {
		out[i] = m.ToMap()
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (c *Collection) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.ToMaps())
}

func sameKey(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	as, aErr := cast.ToStringE(a)
	bs, bErr := cast.ToStringE(b)
	return aErr == nil && bErr == nil && as == bs
}

func containsKey(keys []any, key any) bool {
	for _, k := range keys {
		if sameKey(k, key) {
			return true
		}
	}
	return false
}

func uniqueKeys(keys []any) []any {
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		if !containsKey(out, k) {
			out = append(out, k)
		}
	}
	return out
}
