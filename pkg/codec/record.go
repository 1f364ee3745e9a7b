package codec

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/ssargent/rtsq/pkg/message"
)

// HeaderSize is the fixed part of a record:
// CRC32(4) + LabelSize(4) + BodySize(4) + ExtensionSize(4) + Timestamp(8) + ID(20)
const HeaderSize = 44

// Record is the persisted form of a message
type Record struct {
	CRC32         uint32      // CRC32 checksum for integrity
	LabelSize     uint32      // Size of the label in bytes
	BodySize      uint32      // Size of the body in bytes
	ExtensionSize uint32      // Size of the extension in bytes
	Timestamp     uint64      // SentAt as Unix nanoseconds
	ID            ksuid.KSUID // Message ID
	Label         []byte
	Body          []byte
	Extension     []byte
}

// RecordCodec handles serialization and deserialization of message records
type RecordCodec struct{}

// NewRecordCodec creates a new record codec instance
func NewRecordCodec() *RecordCodec {
	return &RecordCodec{}
}

// Encode serializes a message into a binary record
// Format: [CRC32(4)][LabelSize(4)][BodySize(4)][ExtensionSize(4)][Timestamp(8)][ID(20)][Label][Body][Extension]
func (c *RecordCodec) Encode(m *message.Message) ([]byte, error) {
	r, err := NewRecord(m)
	if err != nil {
		return nil, err
	}
	r.CRC32 = r.calculateCRC32()

	buf := make([]byte, r.Size())
	binary.LittleEndian.PutUint32(buf[0:], r.CRC32)
	r.putHeader(buf[4:])
	off := HeaderSize
	off += copy(buf[off:], r.Label)
	off += copy(buf[off:], r.Body)
	copy(buf[off:], r.Extension)

	return buf, nil
}

// Decode deserializes a binary record. The returned record does not alias data.
func (c *RecordCodec) Decode(data []byte) (*Record, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("data too short for record header: %d < %d", len(data), HeaderSize)
	}

	r := &Record{}
	r.CRC32 = binary.LittleEndian.Uint32(data[0:4])
	r.LabelSize = binary.LittleEndian.Uint32(data[4:8])
	r.BodySize = binary.LittleEndian.Uint32(data[8:12])
	r.ExtensionSize = binary.LittleEndian.Uint32(data[12:16])
	r.Timestamp = binary.LittleEndian.Uint64(data[16:24])
	copy(r.ID[:], data[24:HeaderSize])

	// Sum in uint64 so hostile sizes cannot wrap around.
	total := uint64(HeaderSize) + uint64(r.LabelSize) + uint64(r.BodySize) + uint64(r.ExtensionSize)
	if uint64(len(data)) != total {
		return nil, fmt.Errorf("record size mismatch: have %d bytes, header declares %d", len(data), total)
	}

	off := uint32(HeaderSize)
	r.Label = append([]byte(nil), data[off:off+r.LabelSize]...)
	off += r.LabelSize
	r.Body = append([]byte(nil), data[off:off+r.BodySize]...)
	off += r.BodySize
	r.Extension = append([]byte(nil), data[off:off+r.ExtensionSize]...)

	return r, nil
}

// DecodeMessage decodes and validates a record and returns its message
func (c *RecordCodec) DecodeMessage(data []byte) (*message.Message, error) {
	r, err := c.Decode(data)
	if err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r.Message(), nil
}

// Validate checks the integrity of a record using CRC32
func (r *Record) Validate() error {
	if sum := r.calculateCRC32(); r.CRC32 != sum {
		return fmt.Errorf("CRC32 mismatch: %d != %d", r.CRC32, sum)
	}
	return nil
}

// Size returns the total size of the record when encoded
func (r *Record) Size() int {
	return HeaderSize + len(r.Label) + len(r.Body) + len(r.Extension)
}

// Message converts the record back into a message
func (r *Record) Message() *message.Message {
	var sentAt time.Time
	if r.Timestamp != 0 {
		sentAt = time.Unix(0, int64(r.Timestamp)).UTC()
	}
	return &message.Message{
		ID:        r.ID,
		Label:     string(r.Label),
		Body:      r.Body,
		Extension: r.Extension,
		SentAt:    sentAt,
	}
}

// NewRecord builds a record for m without a checksum
func NewRecord(m *message.Message) (*Record, error) {
	label := []byte(m.Label)
	for _, field := range [][]byte{label, m.Body, m.Extension} {
		if uint64(len(field)) > math.MaxUint32 {
			return nil, fmt.Errorf("message %s field too large: %d bytes", m.ID, len(field))
		}
	}

	var ts uint64
	if !m.SentAt.IsZero() {
		ts = uint64(m.SentAt.UnixNano())
	}

	return &Record{
		LabelSize:     uint32(len(label)),
		BodySize:      uint32(len(m.Body)),
		ExtensionSize: uint32(len(m.Extension)),
		Timestamp:     ts,
		ID:            m.ID,
		Label:         label,
		Body:          m.Body,
		Extension:     m.Extension,
	}, nil
}

// putHeader writes every header field after the CRC into buf
func (r *Record) putHeader(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], r.LabelSize)
	binary.LittleEndian.PutUint32(buf[4:], r.BodySize)
	binary.LittleEndian.PutUint32(buf[8:], r.ExtensionSize)
	binary.LittleEndian.PutUint64(buf[12:], r.Timestamp)
	copy(buf[20:], r.ID[:])
}

// calculateCRC32 computes the checksum over everything except the CRC field
func (r *Record) calculateCRC32() uint32 {
	header := make([]byte, HeaderSize-4)
	r.putHeader(header)

	crc := crc32.NewIEEE()
	crc.Write(header)
	crc.Write(r.Label)
	crc.Write(r.Body)
	crc.Write(r.Extension)
	return crc.Sum32()
}
