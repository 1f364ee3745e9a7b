package journal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ssargent/rtsq/pkg/codec"
	"github.com/ssargent/rtsq/pkg/message"
)

// Journal records returned messages in an append-only file
type Journal struct {
	config Config
	writer *logWriter
	codec  *codec.RecordCodec
	mu     sync.RWMutex
	closed bool
}

// Open validates the journal at config.Path, truncating a corrupted tail, and
// opens it for appending. A missing file is created.
func Open(config Config) (*Journal, *RecoveryResult, error) {
	if config.Path == "" {
		return nil, nil, errors.New("journal: path is required")
	}

	result, err := recoverFile(config.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("journal recovery failed: %w", err)
	}

	writer, err := newLogWriter(config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open journal writer: %w", err)
	}

	return &Journal{
		config: config,
		writer: writer,
		codec:  codec.NewRecordCodec(),
	}, result, nil
}

// recoverFile reads records until EOF or the first corrupt one, then truncates
// the file to the end of the last valid record.
func recoverFile(path string) (*RecoveryResult, error) {
	start := time.Now()
	result := &RecoveryResult{}

	stat, err := os.Stat(path)
	if os.IsNotExist(err) {
		result.RecoveryTime = time.Since(start)
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	result.FileSizeBefore = stat.Size()

	reader, err := NewReader(path)
	if err != nil {
		return nil, err
	}

	var lastValidOffset int64
	corrupted := false
	for {
		_, err := reader.ReadNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			if !errors.Is(err, ErrCorruption) {
				reader.Close()
				return nil, err
			}
			corrupted = true
			break
		}
		result.RecordsValidated++
		lastValidOffset = reader.Offset()
	}
	reader.Close()

	if corrupted {
		result.RecordsTruncated = 1
		if err := os.Truncate(path, lastValidOffset); err != nil {
			return nil, fmt.Errorf("failed to truncate corrupted journal: %w", err)
		}
	}

	result.FileSizeAfter = lastValidOffset
	if !corrupted {
		result.FileSizeAfter = result.FileSizeBefore
	}
	result.RecoveryTime = time.Since(start)
	return result, nil
}

// Append encodes m and writes it to the end of the journal
func (j *Journal) Append(m *message.Message) (int64, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return 0, ErrClosed
	}

	data, err := j.codec.Encode(m)
	if err != nil {
		return 0, fmt.Errorf("encode message %s: %w", m.ID, err)
	}
	return j.writer.append(data)
}

// Entries returns every journal entry in append order
func (j *Journal) Entries() ([]*Entry, error) {
	it, err := j.Iterator()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var entries []*Entry
	for it.Next() {
		entries = append(entries, it.Entry())
	}
	return entries, it.Err()
}

// Iterator flushes pending writes and returns an iterator from the start of
// the journal.
func (j *Journal) Iterator() (RecordIterator, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return nil, ErrClosed
	}

	if err := j.writer.flush(); err != nil {
		return nil, err
	}
	reader, err := NewReader(j.config.Path)
	if err != nil {
		return nil, err
	}
	return reader.Iterator(), nil
}

// Size returns the journal size in bytes, including buffered writes
func (j *Journal) Size() int64 {
	return j.writer.size()
}

// Path returns the journal file path
func (j *Journal) Path() string {
	return j.config.Path
}

// Close flushes, syncs and closes the journal
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.writer.close()
}
