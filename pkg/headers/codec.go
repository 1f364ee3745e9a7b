package headers

import (
	"encoding/binary"
	"math"
	"unicode/utf8"
)

const (
	// PrefixSize is the width of every count and length field.
	PrefixSize = 4

	// entryOverhead is the fixed cost of one entry: key and value prefixes.
	entryOverhead = 2 * PrefixSize
)

// Codec encodes and decodes header maps. It holds no state; the zero value and
// NewCodec are interchangeable.
type Codec struct{}

// NewCodec creates a new header codec
func NewCodec() *Codec {
	return &Codec{}
}

// Encode serializes h. See the package documentation for the layout.
func (c *Codec) Encode(h *Map) ([]byte, error) {
	return Encode(h)
}

// Decode parses a buffer produced by Encode.
func (c *Codec) Decode(data []byte) (*Map, error) {
	return Decode(data)
}

// EncodedSize returns the number of bytes Encode produces for h.
func EncodedSize(h *Map) int {
	size := PrefixSize
	h.Range(func(k, v string) bool {
		size += entryOverhead + len(k) + len(v)
		return true
	})
	return size
}

// Encode serializes h into [Count]{[KeyLen][Key][ValueLen][Value]}*.
// A nil map encodes the same as an empty one.
func Encode(h *Map) ([]byte, error) {
	n := h.Len()
	if uint64(n) > math.MaxUint32 {
		return nil, encodeError(-1, "%d entries exceed the count prefix", n)
	}

	for i, k := range h.Keys() {
		v, _ := h.Get(k)
		if !utf8.ValidString(k) {
			return nil, encodeError(i, "key %q is not valid utf-8", k)
		}
		if !utf8.ValidString(v) {
			return nil, encodeError(i, "value for key %q is not valid utf-8", k)
		}
		if uint64(len(k)) > math.MaxUint32 || uint64(len(v)) > math.MaxUint32 {
			return nil, encodeError(i, "key %q or its value exceeds the length prefix", k)
		}
	}

	buf := make([]byte, EncodedSize(h))
	binary.LittleEndian.PutUint32(buf[0:], uint32(n))
	off := PrefixSize
	h.Range(func(k, v string) bool {
		off = putString(buf, off, k)
		off = putString(buf, off, v)
		return true
	})

	return buf, nil
}

// Decode parses data into a Map. It never modifies data and the result does
// not alias it. Any structural problem fails the whole decode.
func Decode(data []byte) (*Map, error) {
	if len(data) < PrefixSize {
		return nil, corruptError(-1, 0, "buffer of %d bytes is too short for the entry count", len(data))
	}

	count := binary.LittleEndian.Uint32(data[0:PrefixSize])
	off := PrefixSize

	// Each entry needs at least its two length prefixes.
	if uint64(count)*entryOverhead > uint64(len(data)-off) {
		return nil, corruptError(-1, 0, "declared %d entries cannot fit in %d remaining bytes", count, len(data)-off)
	}

	h := &Map{
		keys:   make([]string, 0, count),
		values: make(map[string]string, count),
	}

	for i := 0; i < int(count); i++ {
		key, next, err := readString(data, off, i, "key")
		if err != nil {
			return nil, err
		}
		value, end, err := readString(data, next, i, "value")
		if err != nil {
			return nil, err
		}
		if _, dup := h.values[key]; dup {
			return nil, corruptError(i, off, "duplicate key %q", key)
		}
		h.keys = append(h.keys, key)
		h.values[key] = value
		off = end
	}

	if off != len(data) {
		return nil, corruptError(-1, off, "%d trailing bytes after %d declared entries", len(data)-off, count)
	}

	return h, nil
}

// putString writes a length-prefixed string at off and returns the next offset.
func putString(buf []byte, off int, s string) int {
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(s)))
	off += PrefixSize
	return off + copy(buf[off:], s)
}

// readString reads a length-prefixed string at off and returns it with the
// offset just past it.
func readString(data []byte, off, index int, field string) (string, int, error) {
	if len(data)-off < PrefixSize {
		return "", 0, corruptError(index, off, "buffer ends inside the %s length", field)
	}
	n := uint64(binary.LittleEndian.Uint32(data[off : off+PrefixSize]))
	off += PrefixSize

	if n > uint64(len(data)-off) {
		return "", 0, corruptError(index, off-PrefixSize, "%s length %d exceeds %d remaining bytes", field, n, len(data)-off)
	}

	raw := data[off : off+int(n)]
	if !utf8.Valid(raw) {
		return "", 0, utf8Error(index, off, field)
	}

	// string(raw) copies, so the map never aliases the caller's buffer.
	return string(raw), off + int(n), nil
}
