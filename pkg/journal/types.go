// Package journal is an append-only log of returned messages.
//
// Every message returned to its source queue is appended as a codec record.
// On open, the file is scanned and a torn or corrupted tail is truncated so
// later appends start on a record boundary.
package journal

import (
	"errors"
	"time"
)

// Config holds configuration for the journal
type Config struct {
	Path          string        // Path to the journal file
	FsyncInterval time.Duration // How often to fsync (0 = every append)
	BufferSize    int           // Write buffer size, 64KB when zero
}

// RecoveryResult reports what Open found in an existing journal
type RecoveryResult struct {
	RecordsValidated int64
	RecordsTruncated int64
	FileSizeBefore   int64
	FileSizeAfter    int64
	RecoveryTime     time.Duration
}

var (
	ErrCorruption = errors.New("journal: data corruption detected")
	ErrClosed     = errors.New("journal: closed")
)

// RecordIterator provides streaming access to journal entries
type RecordIterator interface {
	Next() bool
	Entry() *Entry
	Err() error
	Close() error
}
