package thingsboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"strconv"
)

// JSONObject is a free-form JSON object such as additionalInfo. Servers send
// it as an object, as a string holding a serialized object, as null or as an
// empty string; all of these decode, the last two to nil.
type JSONObject map[string]any

func (o *JSONObject) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if isNull(data) {
		*o = nil
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if len(bytes.TrimSpace([]byte(s))) == 0 {
			*o = nil
			return nil
		}
		data = []byte(s)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("thingsboard: expected JSON object: %w", err)
	}
	*o = m
	return nil
}

// Collection holds dashboard members that the server stores either as a
// JSON array or as an object keyed by id. Both decode; key order of the
// object form is preserved and the value re-encodes in its source shape.
type Collection[T any] struct {
	keys  []string
	items []T
	keyed bool
}

// NewList builds a positional collection.
func NewList[T any](items ...T) Collection[T] {
	return Collection[T]{items: items}
}

// NewKeyed builds an empty keyed collection.
func NewKeyed[T any]() Collection[T] {
	return Collection[T]{keyed: true}
}

// Len returns the number of members.
func (c Collection[T]) Len() int { return len(c.items) }

// Keyed reports whether the collection came from (or will encode to) an object.
func (c Collection[T]) Keyed() bool { return c.keyed }

// Keys returns the object keys in source order, or nil for a list.
func (c Collection[T]) Keys() []string {
	if !c.keyed {
		return nil
	}
	return append([]string(nil), c.keys...)
}

// At returns the i-th member in source order.
func (c Collection[T]) At(i int) T { return c.items[i] }

// Get returns the member stored under key. Positional collections accept
// the decimal index as key.
func (c Collection[T]) Get(key string) (T, bool) {
	var zero T
	if !c.keyed {
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(c.items) {
			return zero, false
		}
		return c.items[i], true
	}
	for i, k := range c.keys {
		if k == key {
			return c.items[i], true
		}
	}
	return zero, false
}

// Items returns the members in source order.
func (c Collection[T]) Items() []T {
	return append([]T(nil), c.items...)
}

// All iterates members with their key (or decimal index for lists).
func (c Collection[T]) All() iter.Seq2[string, T] {
	return func(yield func(string, T) bool) {
		for i, item := range c.items {
			key := strconv.Itoa(i)
			if c.keyed {
				key = c.keys[i]
			}
			if !yield(key, item) {
				return
			}
		}
	}
}

// Append adds members at the end. On a keyed collection each new member
// is stored under its decimal position, skipping keys already taken.
func (c *Collection[T]) Append(items ...T) {
	if !c.keyed {
		c.items = append(c.items, items...)
		return
	}
	for _, item := range items {
		c.Set(c.freeKey(len(c.items)), item)
	}
}

// Set stores item under key, replacing an existing member in place. A
// positional collection becomes keyed, its members keyed by position.
func (c *Collection[T]) Set(key string, item T) {
	if !c.keyed {
		c.keyed = true
		c.keys = make([]string, len(c.items))
		for i := range c.items {
			c.keys[i] = strconv.Itoa(i)
		}
	}
	for i, k := range c.keys {
		if k == key {
			c.items[i] = item
			return
		}
	}
	c.keys = append(c.keys, key)
	c.items = append(c.items, item)
}

func (c *Collection[T]) freeKey(n int) string {
	for ; ; n++ {
		key := strconv.Itoa(n)
		if _, taken := c.Get(key); !taken {
			return key
		}
	}
}

func (c *Collection[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*c = Collection[T]{}
	if isNull(data) {
		return nil
	}
	switch data[0] {
	case '[':
		return json.Unmarshal(data, &c.items)
	case '{':
		c.keyed = true
		dec := json.NewDecoder(bytes.NewReader(data))
		if _, err := dec.Token(); err != nil {
			return err
		}
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return err
			}
			key, _ := tok.(string)
			var item T
			if err := dec.Decode(&item); err != nil {
				return fmt.Errorf("thingsboard: member %q: %w", key, err)
			}
			c.keys = append(c.keys, key)
			c.items = append(c.items, item)
		}
		return nil
	}
	return fmt.Errorf("thingsboard: expected JSON array or object, got %s", truncatePreview(data))
}

func (c Collection[T]) MarshalJSON() ([]byte, error) {
	if !c.keyed {
		if c.items == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(c.items)
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range c.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(c.items[i])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
