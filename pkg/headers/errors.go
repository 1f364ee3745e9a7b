package headers

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned by Encode when the map cannot be represented.
	ErrInvalidInput = errors.New("headers: invalid input")

	// ErrCorruptData is returned by Decode when the buffer is structurally
	// inconsistent or truncated.
	ErrCorruptData = errors.New("headers: corrupt data")

	// ErrEncoding is returned by Decode when a key or value is not valid UTF-8.
	ErrEncoding = errors.New("headers: invalid utf-8")
)

// Error describes where encoding or decoding failed.
type Error struct {
	Op     string // "encode" or "decode"
	Index  int    // entry index, -1 when the failure is not tied to an entry
	Offset int    // byte offset into the buffer, -1 for encode
	Kind   error  // one of the package sentinels
	Detail string
}

func (e *Error) Error() string {
	switch {
	case e.Index >= 0 && e.Offset >= 0:
		return fmt.Sprintf("%v: %s entry %d at offset %d: %s", e.Kind, e.Op, e.Index, e.Offset, e.Detail)
	case e.Index >= 0:
		return fmt.Sprintf("%v: %s entry %d: %s", e.Kind, e.Op, e.Index, e.Detail)
	case e.Offset >= 0:
		return fmt.Sprintf("%v: %s at offset %d: %s", e.Kind, e.Op, e.Offset, e.Detail)
	default:
		return fmt.Sprintf("%v: %s: %s", e.Kind, e.Op, e.Detail)
	}
}

// Unwrap lets errors.Is match the sentinel kind.
func (e *Error) Unwrap() error {
	return e.Kind
}

func encodeError(index int, format string, args ...any) error {
	return &Error{Op: "encode", Index: index, Offset: -1, Kind: ErrInvalidInput, Detail: fmt.Sprintf(format, args...)}
}

func corruptError(index, offset int, format string, args ...any) error {
	return &Error{Op: "decode", Index: index, Offset: offset, Kind: ErrCorruptData, Detail: fmt.Sprintf(format, args...)}
}

func utf8Error(index, offset int, field string) error {
	return &Error{Op: "decode", Index: index, Offset: offset, Kind: ErrEncoding, Detail: field + " is not valid utf-8"}
}
