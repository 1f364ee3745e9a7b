// Package spool keeps named queues of messages in an embedded pebble database.
//
// It stands in for the host queueing system: it holds messages, including
// their extension bytes, and moves them between queues atomically. Keys are
//
//	q/<queue>/<ksuid>
//
// and values are codec records, so a queue iterates in KSUID order, which is
// arrival order at one-second resolution.
package spool

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/segmentio/ksuid"
	"github.com/ssargent/rtsq/pkg/codec"
	"github.com/ssargent/rtsq/pkg/message"
)

var (
	ErrNotFound      = errors.New("spool: message not found")
	ErrInvalidQueue  = errors.New("spool: invalid queue name")
	ErrCorruptRecord = errors.New("spool: corrupt record")
	ErrClosed        = errors.New("spool: closed")
)

const keyPrefix = "q/"

// Options configures a spool
type Options struct {
	// Sync forces an fsync on every write. Off by default, as the store it
	// replaces used pebble.NoSync.
	Sync bool
}

// QueueInfo describes one queue
type QueueInfo struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Spool is a pebble backed message store
type Spool struct {
	db        *pebble.DB
	codec     *codec.RecordCodec
	writeOpts *pebble.WriteOptions
	mu        sync.Mutex // serializes read-modify-write sequences
	closed    bool
}

// Open opens (creating if needed) the spool at path
func Open(path string, opts Options) (*Spool, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open spool at %s: %w", path, err)
	}
	writeOpts := pebble.NoSync
	if opts.Sync {
		writeOpts = pebble.Sync
	}
	return &Spool{db: db, codec: codec.NewRecordCodec(), writeOpts: writeOpts}, nil
}

// ValidateQueue checks a queue name
func ValidateQueue(queue string) error {
	if queue == "" {
		return fmt.Errorf("%w: empty", ErrInvalidQueue)
	}
	if strings.Contains(queue, "/") {
		return fmt.Errorf("%w: %q contains '/'", ErrInvalidQueue, queue)
	}
	return nil
}

func queuePrefix(queue string) []byte {
	return []byte(keyPrefix + queue + "/")
}

func messageKey(queue string, id ksuid.KSUID) []byte {
	return append(queuePrefix(queue), id.Bytes()...)
}

// prefixUpperBound returns the smallest key greater than every key with prefix
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// Enqueue stores m at the tail of queue
func (s *Spool) Enqueue(queue string, m *message.Message) error {
	if err := ValidateQueue(queue); err != nil {
		return err
	}
	data, err := s.codec.Encode(m)
	if err != nil {
		return fmt.Errorf("encode message %s: %w", m.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.Set(messageKey(queue, m.ID), data, s.writeOpts)
}

// Get loads one message
func (s *Spool) Get(queue string, id ksuid.KSUID) (*message.Message, error) {
	if err := ValidateQueue(queue); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.get(queue, id)
}

func (s *Spool) get(queue string, id ksuid.KSUID) (*message.Message, error) {
	data, closer, err := s.db.Get(messageKey(queue, id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, id, queue)
		}
		return nil, err
	}
	defer closer.Close()

	// DecodeMessage copies, so the result outlives closer.
	m, err := s.codec.DecodeMessage(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s in %s: %v", ErrCorruptRecord, id, queue, err)
	}
	return m, nil
}

// List returns up to limit messages of queue in KSUID order; limit <= 0
// means all of them.
func (s *Spool) List(queue string, limit int) ([]*message.Message, error) {
	if err := ValidateQueue(queue); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	prefix := queuePrefix(queue)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []*message.Message
	for iter.First(); iter.Valid(); iter.Next() {
		m, err := s.codec.DecodeMessage(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("%w: key %x: %v", ErrCorruptRecord, iter.Key(), err)
		}
		out = append(out, m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, iter.Error()
}

// Count returns the number of messages in queue
func (s *Spool) Count(queue string) (int, error) {
	if err := ValidateQueue(queue); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	prefix := queuePrefix(queue)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixUpperBound(prefix)})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	return n, iter.Error()
}

// Queues lists every non-empty queue, sorted by name
func (s *Spool) Queues() ([]QueueInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	prefix := []byte(keyPrefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	counts := make(map[string]int)
	for iter.First(); iter.Valid(); iter.Next() {
		rest := bytes.TrimPrefix(iter.Key(), prefix)
		i := bytes.IndexByte(rest, '/')
		if i < 0 {
			continue
		}
		counts[string(rest[:i])]++
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	out := make([]QueueInfo, 0, len(counts))
	for name, n := range counts {
		out = append(out, QueueInfo{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete removes a message
func (s *Spool) Delete(queue string, id ksuid.KSUID) error {
	if err := ValidateQueue(queue); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	key := messageKey(queue, id)
	if err := s.exists(key); err != nil {
		return fmt.Errorf("%w: %s in %s", err, id, queue)
	}
	return s.db.Delete(key, s.writeOpts)
}

// Move removes m.ID from queue from and writes m into queue to in a single
// batch. m may differ from the stored copy (for example, rewritten headers).
func (s *Spool) Move(from, to string, m *message.Message) error {
	if err := ValidateQueue(from); err != nil {
		return err
	}
	if err := ValidateQueue(to); err != nil {
		return err
	}
	data, err := s.codec.Encode(m)
	if err != nil {
		return fmt.Errorf("encode message %s: %w", m.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	src := messageKey(from, m.ID)
	if err := s.exists(src); err != nil {
		return fmt.Errorf("%w: %s in %s", err, m.ID, from)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Delete(src, nil); err != nil {
		return err
	}
	if err := batch.Set(messageKey(to, m.ID), data, nil); err != nil {
		return err
	}
	return batch.Commit(s.writeOpts)
}

// exists returns ErrNotFound when key is absent
func (s *Spool) exists(key []byte) error {
	_, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return closer.Close()
}

// Close closes the underlying database
func (s *Spool) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
