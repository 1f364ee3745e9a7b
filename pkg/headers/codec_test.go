package headers

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"sync"
	"testing"
)

func mustPairs(t *testing.T, kv ...string) *Map {
	t.Helper()
	h, err := FromPairs(kv...)
	if err != nil {
		t.Fatalf("FromPairs failed: %v", err)
	}
	return h
}

func TestCodec_EncodeDecodeRoundTrip(t *testing.T) {
	codec := NewCodec()

	testCases := []struct {
		name string
		h    *Map
	}{
		{
			name: "empty map",
			h:    New(),
		},
		{
			name: "single entry",
			h:    mustPairs(t, "key1", "value1"),
		},
		{
			name: "two entries",
			h:    mustPairs(t, "key1", "value1", "key2", "value2"),
		},
		{
			name: "empty value",
			h:    mustPairs(t, "NServiceBus.ExceptionInfo.StackTrace", ""),
		},
		{
			name: "empty key",
			h:    mustPairs(t, "", "orphan"),
		},
		{
			name: "non-ascii",
			h:    mustPairs(t, "🔑 clé", "🎯 valeur avec émojis", "ключ", "значение"),
		},
		{
			name: "delimiter characters",
			h:    mustPairs(t, "a=b;c", "x\ny\r\nz", "nul\x00key", "tab\tvalue,comma:colon"),
		},
		{
			name: "large value",
			h:    mustPairs(t, "stack", strings.Repeat("at Handler.Invoke()\n", 2000)),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := codec.Encode(tc.h)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			if len(encoded) != EncodedSize(tc.h) {
				t.Errorf("Size mismatch: got %d, want %d", len(encoded), EncodedSize(tc.h))
			}

			decoded, err := codec.Decode(encoded)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if !decoded.Equal(tc.h) {
				t.Errorf("Round trip mismatch: got %s, want %s", decoded, tc.h)
			}

			// Order survives a single encode/decode cycle.
			got, want := decoded.Keys(), tc.h.Keys()
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("Key order mismatch at %d: got %q, want %q", i, got[i], want[i])
				}
			}
		})
	}
}

func TestEncode_PinnedLayout(t *testing.T) {
	h := mustPairs(t, "key1", "value1", "key2", "value2")

	encoded, err := Encode(h)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if len(encoded) != 40 {
		t.Fatalf("Encoded size changed: got %d, want 40", len(encoded))
	}

	expected := []byte{
		0x02, 0x00, 0x00, 0x00, // count
		0x04, 0x00, 0x00, 0x00, 'k', 'e', 'y', '1',
		0x06, 0x00, 0x00, 0x00, 'v', 'a', 'l', 'u', 'e', '1',
		0x04, 0x00, 0x00, 0x00, 'k', 'e', 'y', '2',
		0x06, 0x00, 0x00, 0x00, 'v', 'a', 'l', 'u', 'e', '2',
	}
	if !bytes.Equal(encoded, expected) {
		t.Errorf("Layout drift:\n got  %x\n want %x", encoded, expected)
	}
}

func TestEncodedSize(t *testing.T) {
	testCases := []struct {
		name         string
		h            *Map
		expectedSize int
	}{
		{name: "nil map", h: nil, expectedSize: 4},
		{name: "empty map", h: New(), expectedSize: 4},
		{name: "one entry", h: mustPairs(t, "a", "bc"), expectedSize: 4 + 4 + 1 + 4 + 2},
		// é is two bytes in UTF-8
		{name: "multibyte", h: mustPairs(t, "é", "é"), expectedSize: 4 + 4 + 2 + 4 + 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EncodedSize(tc.h); got != tc.expectedSize {
				t.Errorf("Size mismatch: got %d, want %d", got, tc.expectedSize)
			}
		})
	}
}

func TestEncode_Deterministic(t *testing.T) {
	h := mustPairs(t, "NServiceBus.FailedQ", "orders@host", "NServiceBus.TimeOfFailure", "2026-10-18 10:00:00:000000 Z")

	first, err := Encode(h)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Encode(h)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("Encode is not deterministic on call %d", i)
		}
	}

	fromMap := FromMap(map[string]string{"b": "2", "a": "1", "c": "3"})
	a, _ := Encode(fromMap)
	b, _ := Encode(FromMap(map[string]string{"c": "3", "a": "1", "b": "2"}))
	if !bytes.Equal(a, b) {
		t.Error("FromMap should produce the same bytes regardless of Go map iteration order")
	}
}

func TestEncode_NilMap(t *testing.T) {
	encoded, err := Encode(nil)
	if err != nil {
		t.Fatalf("Encode(nil) failed: %v", err)
	}
	if !bytes.Equal(encoded, []byte{0, 0, 0, 0}) {
		t.Errorf("Encode(nil) = %x, want 00000000", encoded)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded == nil || decoded.Len() != 0 {
		t.Errorf("Expected empty non-nil map, got %v", decoded)
	}
}

func TestEncode_InvalidInput(t *testing.T) {
	testCases := []struct {
		name string
		h    *Map
	}{
		{name: "invalid utf-8 key", h: mustPairs(t, "ok", "ok", string([]byte{0xff, 0xfe}), "v")},
		{name: "invalid utf-8 value", h: mustPairs(t, "k", string([]byte{'a', 0xc3}))},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Encode(tc.h)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("Expected ErrInvalidInput, got %v", err)
			}
			var herr *Error
			if !errors.As(err, &herr) || herr.Op != "encode" {
				t.Errorf("Expected *Error with encode op, got %#v", err)
			}
		})
	}
}

func TestDecode_LookupAfterDecode(t *testing.T) {
	encoded, err := Encode(mustPairs(t, "key1", "value1", "key2", "value2"))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.Len() != 2 {
		t.Fatalf("Expected 2 entries, got %d", decoded.Len())
	}
	if v, ok := decoded.Get("key1"); !ok || v != "value1" {
		t.Errorf("key1 = %q, %v; want value1", v, ok)
	}
	if v, ok := decoded.Get("key2"); !ok || v != "value2" {
		t.Errorf("key2 = %q, %v; want value2", v, ok)
	}
}

func TestDecode_Truncation(t *testing.T) {
	encoded, err := Encode(mustPairs(t, "key1", "value1", "ключ", "значение", "empty", ""))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	for cut := 1; cut <= len(encoded); cut++ {
		truncated := encoded[:len(encoded)-cut]
		decoded, err := Decode(truncated)
		if !errors.Is(err, ErrCorruptData) {
			t.Fatalf("Truncating %d bytes: expected ErrCorruptData, got %v", cut, err)
		}
		if decoded != nil {
			t.Fatalf("Truncating %d bytes returned a partial map: %s", cut, decoded)
		}
	}
}

func TestDecode_MalformedData(t *testing.T) {
	valid, err := Encode(mustPairs(t, "key1", "value1", "key2", "value2"))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	tamper := func(offset int, v uint32) []byte {
		buf := append([]byte(nil), valid...)
		binary.LittleEndian.PutUint32(buf[offset:], v)
		return buf
	}

	testCases := []struct {
		name string
		data []byte
		want error
	}{
		{name: "nil buffer", data: nil, want: ErrCorruptData},
		{name: "short count", data: []byte{0x01, 0x00}, want: ErrCorruptData},
		{name: "key length past end", data: tamper(4, 1000), want: ErrCorruptData},
		{name: "key length max", data: tamper(4, 0xFFFFFFFF), want: ErrCorruptData},
		{name: "value length past end", data: tamper(12, 1000), want: ErrCorruptData},
		{name: "count too large", data: tamper(0, 3), want: ErrCorruptData},
		{name: "count absurd", data: tamper(0, 0xFFFFFFFF), want: ErrCorruptData},
		{name: "count too small", data: tamper(0, 1), want: ErrCorruptData},
		{name: "zero count with entries", data: tamper(0, 0), want: ErrCorruptData},
		{name: "trailing garbage", data: append(append([]byte(nil), valid...), 0x00), want: ErrCorruptData},
		{
			name: "duplicate key",
			data: []byte{
				0x02, 0x00, 0x00, 0x00,
				0x01, 0x00, 0x00, 0x00, 'k', 0x01, 0x00, 0x00, 0x00, '1',
				0x01, 0x00, 0x00, 0x00, 'k', 0x01, 0x00, 0x00, 0x00, '2',
			},
			want: ErrCorruptData,
		},
		{
			name: "invalid utf-8 key",
			data: []byte{0x01, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0xff, 0x00, 0x00, 0x00, 0x00},
			want: ErrEncoding,
		},
		{
			name: "invalid utf-8 value",
			data: []byte{0x01, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 'k', 0x02, 0x00, 0x00, 0x00, 0xe2, 0x82},
			want: ErrEncoding,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			decoded, err := Decode(tc.data)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Expected %v, got %v", tc.want, err)
			}
			if decoded != nil {
				t.Errorf("Expected no map on failure, got %s", decoded)
			}
		})
	}
}

func TestDecode_ErrorLocation(t *testing.T) {
	valid, _ := Encode(mustPairs(t, "key1", "value1", "key2", "value2"))
	buf := append([]byte(nil), valid...)
	// second entry's value length
	binary.LittleEndian.PutUint32(buf[30:], 99)

	_, err := Decode(buf)
	var herr *Error
	if !errors.As(err, &herr) {
		t.Fatalf("Expected *Error, got %v", err)
	}
	if herr.Index != 1 || herr.Offset != 30 {
		t.Errorf("Expected failure at entry 1 offset 30, got entry %d offset %d", herr.Index, herr.Offset)
	}
}

func TestDecode_DoesNotMutateOrAlias(t *testing.T) {
	encoded, _ := Encode(mustPairs(t, "key1", "value1"))
	original := append([]byte(nil), encoded...)

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(encoded, original) {
		t.Fatal("Decode modified its input")
	}

	for i := range encoded {
		encoded[i] = 'X'
	}
	if v, _ := decoded.Get("key1"); v != "value1" {
		t.Errorf("Decoded map aliases the input buffer: key1 = %q", v)
	}
}

func TestCodec_ConcurrentUse(t *testing.T) {
	codec := NewCodec()
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			h := New()
			h.Set("worker", strings.Repeat("w", g))
			for i := 0; i < 200; i++ {
				encoded, err := codec.Encode(h)
				if err != nil {
					t.Errorf("Encode failed: %v", err)
					return
				}
				decoded, err := codec.Decode(encoded)
				if err != nil {
					t.Errorf("Decode failed: %v", err)
					return
				}
				if !decoded.Equal(h) {
					t.Errorf("Round trip mismatch in goroutine %d", g)
					return
				}
			}
		}(g)
	}

	wg.Wait()
}
