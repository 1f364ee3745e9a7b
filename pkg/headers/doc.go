// Package headers encodes message headers into the binary blob carried in a
// queue message's extension slot, and decodes them back.
//
// Headers are an ordered mapping of string keys to string values. When a
// message is parked in an error queue, diagnostic headers (the queue it failed
// in, the exception that was raised, when it happened) travel with it inside
// the extension so the message can later be returned to its source queue.
//
// # Wire Format
//
// Every integer is a 4-byte unsigned value in little-endian order and every
// string is UTF-8:
//
//	[Count(4)] { [KeyLen(4)][Key][ValueLen(4)][Value] } * Count
//
// Entries are written in insertion order. Nothing is delimiter based, so keys
// and values may contain any character, including '=', ';', newlines or NUL.
//
// The encoded size of a map with N entries is:
//
//	4 + Σ (4 + len(key) + 4 + len(value))
//
// so {"key1":"value1","key2":"value2"} encodes to exactly 40 bytes. An empty
// map, and a nil map, encode to the 4-byte zero count.
//
// # Usage
//
//	h := headers.New()
//	h.Set("NServiceBus.FailedQ", "orders@host")
//	h.Set("NServiceBus.ExceptionInfo.Message", "timeout")
//
//	buf, err := headers.Encode(h)
//	if err != nil {
//	    return err
//	}
//
//	decoded, err := headers.Decode(buf)
//	if err != nil {
//	    return err
//	}
//	queue, _ := decoded.Get("NServiceBus.FailedQ")
//
// # Error Handling
//
// Every error wraps exactly one of three sentinels, checked with errors.Is:
//   - ErrInvalidInput: the map cannot be encoded (a string is not valid UTF-8,
//     or a length does not fit the 4-byte prefix)
//   - ErrCorruptData: the buffer is truncated, a length runs past the end,
//     the declared count does not match the entries present, or a key repeats
//   - ErrEncoding: a decoded key or value is not valid UTF-8
//
// Decode is all-or-nothing: it never returns a partial map.
//
// # Thread Safety
//
// Encode and Decode keep no state and are safe for concurrent use. A Map is not
// safe for concurrent mutation.
package headers
