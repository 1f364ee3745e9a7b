package headers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Header is a single key/value entry of a Map.
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Map is an ordered mapping of header keys to values. Keys are unique and keep
// the position of their first Set. The zero value is an empty map ready to use.
type Map struct {
	keys   []string
	values map[string]string
}

// New creates an empty header map
func New() *Map {
	return &Map{}
}

// FromMap builds a Map from a Go map. Go maps have no order, so keys are
// sorted to keep the encoded form deterministic.
func FromMap(m map[string]string) *Map {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := &Map{keys: keys, values: make(map[string]string, len(m))}
	for _, k := range keys {
		h.values[k] = m[k]
	}
	return h
}

// FromPairs builds a Map from alternating keys and values, in order.
func FromPairs(kv ...string) (*Map, error) {
	if len(kv)%2 != 0 {
		return nil, fmt.Errorf("%w: odd number of key/value arguments (%d)", ErrInvalidInput, len(kv))
	}
	h := New()
	for i := 0; i < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h, nil
}

// Set stores value under key. An existing key keeps its position.
func (h *Map) Set(key, value string) {
	if h.values == nil {
		h.values = make(map[string]string)
	}
	if _, ok := h.values[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.values[key] = value
}

// Get returns the value stored under key.
func (h *Map) Get(key string) (string, bool) {
	if h == nil {
		return "", false
	}
	v, ok := h.values[key]
	return v, ok
}

// Has reports whether key is present.
func (h *Map) Has(key string) bool {
	_, ok := h.Get(key)
	return ok
}

// Delete removes key and reports whether it was present.
func (h *Map) Delete(key string) bool {
	if h == nil {
		return false
	}
	if _, ok := h.values[key]; !ok {
		return false
	}
	delete(h.values, key)
	for i, k := range h.keys {
		if k == key {
			h.keys = append(h.keys[:i], h.keys[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of entries.
func (h *Map) Len() int {
	if h == nil {
		return 0
	}
	return len(h.keys)
}

// Keys returns the keys in insertion order.
func (h *Map) Keys() []string {
	if h == nil {
		return nil
	}
	out := make([]string, len(h.keys))
	copy(out, h.keys)
	return out
}

// Entries returns the entries in insertion order.
func (h *Map) Entries() []Header {
	if h == nil {
		return nil
	}
	out := make([]Header, 0, len(h.keys))
	for _, k := range h.keys {
		out = append(out, Header{Key: k, Value: h.values[k]})
	}
	return out
}

// Range calls fn for each entry in insertion order until fn returns false.
func (h *Map) Range(fn func(key, value string) bool) {
	if h == nil {
		return
	}
	for _, k := range h.keys {
		if !fn(k, h.values[k]) {
			return
		}
	}
}

// Clone returns an independent copy.
func (h *Map) Clone() *Map {
	if h == nil {
		return nil
	}
	c := &Map{keys: make([]string, len(h.keys)), values: make(map[string]string, len(h.values))}
	copy(c.keys, h.keys)
	for k, v := range h.values {
		c.values[k] = v
	}
	return c
}

// Equal reports structural equality: the same key set with the same value per
// key. Order is ignored. A nil map equals an empty one.
func (h *Map) Equal(other *Map) bool {
	if h.Len() != other.Len() {
		return false
	}
	for _, k := range h.Keys() {
		v, ok := other.Get(k)
		if !ok || v != h.values[k] {
			return false
		}
	}
	return true
}

// ToMap copies the entries into a plain Go map.
func (h *Map) ToMap() map[string]string {
	out := make(map[string]string, h.Len())
	h.Range(func(k, v string) bool {
		out[k] = v
		return true
	})
	return out
}

// String renders the map as {k=v, ...} for logs and test output.
func (h *Map) String() string {
	var b bytes.Buffer
	b.WriteByte('{')
	i := 0
	h.Range(func(k, v string) bool {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q=%q", k, v)
		i++
		return true
	})
	b.WriteByte('}')
	return b.String()
}

// MarshalJSON writes the map as a JSON object with keys in insertion order.
func (h *Map) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range h.Keys() {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(h.values[k])
		if err != nil {
			return nil, err
		}
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// UnmarshalJSON reads a JSON object of string values, keeping document order.
func (h *Map) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("headers: expected JSON object, got %v", tok)
	}

	out := New()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("headers: expected string key, got %v", tok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("headers: value for %q: %w", key, err)
		}
		out.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*h = *out
	return nil
}
