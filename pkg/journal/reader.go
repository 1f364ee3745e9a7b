package journal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ssargent/rtsq/pkg/codec"
	"github.com/ssargent/rtsq/pkg/message"
)

// Entry is one journal record with its position in the file
type Entry struct {
	Offset  int64
	Message *message.Message
}

// Reader provides sequential access to journal entries
type Reader struct {
	file   *os.File
	reader *bufio.Reader
	codec  *codec.RecordCodec
	offset int64
}

// NewReader opens the journal file at path for reading from the start
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{
		file:   file,
		reader: bufio.NewReader(file),
		codec:  codec.NewRecordCodec(),
	}, nil
}

// ReadNext reads the next entry. It returns io.EOF at a clean end of file and
// ErrCorruption for a torn or damaged record.
func (r *Reader) ReadNext() (*Entry, error) {
	header := make([]byte, codec.HeaderSize)
	n, err := io.ReadFull(r.reader, header)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("%w: torn header at offset %d (%d bytes)", ErrCorruption, r.offset, n)
		}
		return nil, err
	}

	labelSize := uint64(binary.LittleEndian.Uint32(header[4:8]))
	bodySize := uint64(binary.LittleEndian.Uint32(header[8:12]))
	extSize := uint64(binary.LittleEndian.Uint32(header[12:16]))
	dataSize := labelSize + bodySize + extSize

	// Never allocate more than the file could still hold.
	if remaining, err := r.remaining(); err == nil && dataSize > uint64(remaining) {
		return nil, fmt.Errorf("%w: record at offset %d declares %d bytes, %d remain", ErrCorruption, r.offset, dataSize, remaining)
	}

	full := make([]byte, uint64(codec.HeaderSize)+dataSize)
	copy(full, header)
	if _, err := io.ReadFull(r.reader, full[codec.HeaderSize:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: torn record at offset %d", ErrCorruption, r.offset)
		}
		return nil, err
	}

	m, err := r.codec.DecodeMessage(full)
	if err != nil {
		return nil, fmt.Errorf("%w: record at offset %d: %v", ErrCorruption, r.offset, err)
	}

	entry := &Entry{Offset: r.offset, Message: m}
	r.offset += int64(len(full))
	return entry, nil
}

// remaining returns how many bytes are left after the buffered position
func (r *Reader) remaining() (int64, error) {
	stat, err := r.file.Stat()
	if err != nil {
		return 0, err
	}
	return stat.Size() - r.offset - codec.HeaderSize, nil
}

// Offset returns the offset of the next record
func (r *Reader) Offset() int64 {
	return r.offset
}

// Iterator returns a streaming iterator over the remaining entries
func (r *Reader) Iterator() RecordIterator {
	return &entryIterator{reader: r}
}

// Close closes the reader
func (r *Reader) Close() error {
	return r.file.Close()
}

type entryIterator struct {
	reader *Reader
	entry  *Entry
	err    error
}

func (it *entryIterator) Next() bool {
	if it.err != nil {
		return false
	}
	it.entry, it.err = it.reader.ReadNext()
	return it.err == nil
}

func (it *entryIterator) Entry() *Entry {
	return it.entry
}

// Err returns the error that stopped iteration, nil at a clean end of file
func (it *entryIterator) Err() error {
	if it.err == io.EOF {
		return nil
	}
	return it.err
}

func (it *entryIterator) Close() error {
	return it.reader.Close()
}
