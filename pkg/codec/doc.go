// Package codec provides record serialization for persisted queue messages.
//
// A record is the on-disk form of a message.Message. The spool stores one
// record per queued message and the return journal appends one record per
// returned message.
//
// # Record Format
//
//	[CRC32(4)][LabelSize(4)][BodySize(4)][ExtensionSize(4)][Timestamp(8)][ID(20)][Label][Body][Extension]
//
// Fields:
//   - CRC32: IEEE checksum of every byte after the CRC field (little-endian)
//   - LabelSize, BodySize, ExtensionSize: 32-bit unsigned lengths (little-endian)
//   - Timestamp: message SentAt in Unix nanoseconds, 0 when unset (little-endian)
//   - ID: the 20-byte KSUID of the message
//   - Label, Body, Extension: the message fields, in that order
//
// The total record size is: 44 bytes (header) + len(label) + len(body) + len(extension)
//
// The Extension is stored as-is. Its contents (encoded headers) are only
// interpreted by package headers, so a record with a damaged extension still
// round-trips and can be inspected.
//
// # Usage
//
//	c := codec.NewRecordCodec()
//
//	encoded, err := c.Encode(msg)
//	if err != nil {
//	    return err
//	}
//
//	msg, err = c.DecodeMessage(encoded) // decodes and checks the CRC
//	if err != nil {
//	    return err
//	}
//
// # Thread Safety
//
// RecordCodec instances are safe for concurrent use.
package codec
