//go:build bench
// +build bench

package codec

import (
	"bytes"
	"testing"

	"github.com/ssargent/rtsq/pkg/headers"
	"github.com/ssargent/rtsq/pkg/message"
)

func benchMessages(b *testing.B) []struct {
	name string
	msg  *message.Message
} {
	b.Helper()
	h := headers.FromMap(map[string]string{
		message.HeaderFailedQueue:      "orders@host",
		message.HeaderExceptionMessage: "The operation has timed out.",
	})

	mk := func(label string, body []byte) *message.Message {
		m := message.New(label, body)
		if err := m.SetHeaders(h); err != nil {
			b.Fatal(err)
		}
		return m
	}

	return []struct {
		name string
		msg  *message.Message
	}{
		{name: "small", msg: mk("OrderPlaced", []byte(`{"order":42}`))},
		{name: "medium", msg: mk("Batch", bytes.Repeat([]byte("v"), 1000))},
		{name: "large", msg: mk("Blob", bytes.Repeat([]byte("v"), 64*1024))},
	}
}

func BenchmarkRecordCodec_Encode(b *testing.B) {
	codec := NewRecordCodec()

	for _, bm := range benchMessages(b) {
		b.Run(bm.name, func(b *testing.B) {
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := codec.Encode(bm.msg); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkRecordCodec_DecodeMessage(b *testing.B) {
	codec := NewRecordCodec()

	for _, bm := range benchMessages(b) {
		encoded, err := codec.Encode(bm.msg)
		if err != nil {
			b.Fatal(err)
		}
		b.Run(bm.name, func(b *testing.B) {
			b.SetBytes(int64(len(encoded)))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := codec.DecodeMessage(encoded); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
