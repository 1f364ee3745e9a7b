package journal

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// logWriter handles append-only writes to the journal file
type logWriter struct {
	file       *os.File
	writer     *bufio.Writer
	fsyncTimer *time.Timer
	config     Config
	mutex      sync.Mutex
	offset     int64 // Current write offset
}

func newLogWriter(config Config) (*logWriter, error) {
	if err := os.MkdirAll(filepath.Dir(config.Path), 0750); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(config.Path, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}

	offset, err := file.Seek(0, io.SeekEnd)
	if err != nil {
		file.Close()
		return nil, err
	}

	bufSize := config.BufferSize
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}

	w := &logWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, bufSize),
		config: config,
		offset: offset,
	}

	if config.FsyncInterval > 0 {
		w.fsyncTimer = time.AfterFunc(config.FsyncInterval, func() {
			w.mutex.Lock()
			defer w.mutex.Unlock()
			_ = w.sync()
		})
	}

	return w, nil
}

// append writes one encoded record and returns the offset it starts at
func (w *logWriter) append(data []byte) (int64, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	n, err := w.writer.Write(data)
	if err != nil {
		return 0, err
	}
	recordOffset := w.offset
	w.offset += int64(n)

	if w.config.FsyncInterval == 0 {
		if err := w.sync(); err != nil {
			return 0, err
		}
	} else if w.fsyncTimer != nil {
		w.fsyncTimer.Reset(w.config.FsyncInterval)
	}

	return recordOffset, nil
}

// flush pushes buffered bytes to the file without an fsync
func (w *logWriter) flush() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.writer.Flush()
}

func (w *logWriter) sync() error {
	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

func (w *logWriter) size() int64 {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.offset
}

func (w *logWriter) close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.fsyncTimer != nil {
		w.fsyncTimer.Stop()
	}

	if err := w.sync(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
