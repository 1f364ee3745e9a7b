// Package returner moves failed messages from an error queue back to the
// queue named by their failed-queue header.
package returner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/ssargent/rtsq/pkg/message"
	"go.uber.org/zap"
)

var (
	// ErrSameQueue is returned when a message names the error queue itself as
	// its source.
	ErrSameQueue = errors.New("returner: source queue is the error queue")

	// ErrJournal wraps a journal failure after the message was already moved.
	ErrJournal = errors.New("returner: journal append failed")
)

// MessageStore is the queue storage a Returner reads from and moves within
type MessageStore interface {
	Get(queue string, id ksuid.KSUID) (*message.Message, error)
	List(queue string, limit int) ([]*message.Message, error)
	Move(from, to string, m *message.Message) error
}

// Recorder receives every returned message
type Recorder interface {
	Append(m *message.Message) (int64, error)
}

// Result describes one return
type Result struct {
	ID         ksuid.KSUID `json:"id"`
	From       string      `json:"from"`
	To         string      `json:"to,omitempty"`
	ReturnedAt time.Time   `json:"returned_at,omitempty"`
	Moved      bool        `json:"moved"`
	Err        error       `json:"-"`
}

// Returner performs return-to-source operations
type Returner struct {
	store   MessageStore
	journal Recorder
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Returner
type Option func(*Returner)

// WithJournal records every returned message in j
func WithJournal(j Recorder) Option {
	return func(r *Returner) { r.journal = j }
}

// WithLogger sets the logger; the default discards everything
func WithLogger(l *zap.Logger) Option {
	return func(r *Returner) { r.logger = l }
}

// WithClock overrides the time stamped into returned messages
func WithClock(now func() time.Time) Option {
	return func(r *Returner) { r.now = now }
}

// New creates a Returner over store
func New(store MessageStore, opts ...Option) *Returner {
	r := &Returner{
		store:  store,
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Return moves message id from errorQueue to its source queue. Headers are
// decoded all-or-nothing: a corrupt extension aborts the return and the
// message stays where it is.
func (r *Returner) Return(ctx context.Context, errorQueue string, id ksuid.KSUID) (*Result, error) {
	result := &Result{ID: id, From: errorQueue}
	if err := ctx.Err(); err != nil {
		result.Err = err
		return result, err
	}

	m, err := r.store.Get(errorQueue, id)
	if err != nil {
		return r.fail(result, err)
	}

	h, err := m.Headers()
	if err != nil {
		return r.fail(result, err)
	}

	to, ok := h.Get(message.HeaderFailedQueue)
	if !ok || to == "" {
		return r.fail(result, fmt.Errorf("%w: message %s", message.ErrNoSourceQueue, id))
	}
	result.To = to
	if to == errorQueue {
		return r.fail(result, fmt.Errorf("%w: message %s names %s", ErrSameQueue, id, to))
	}

	returnedAt := r.now()
	h.Delete(message.HeaderFailedQueue)
	h.Set(message.HeaderReturnedFrom, errorQueue)
	h.Set(message.HeaderReturnedAt, returnedAt.Format(time.RFC3339Nano))

	returned := m.Clone()
	if err := returned.SetHeaders(h); err != nil {
		return r.fail(result, err)
	}

	if err := r.store.Move(errorQueue, to, returned); err != nil {
		return r.fail(result, fmt.Errorf("move message %s to %s: %w", id, to, err))
	}
	result.Moved = true
	result.ReturnedAt = returnedAt

	if r.journal != nil {
		if _, err := r.journal.Append(returned); err != nil {
			return r.fail(result, fmt.Errorf("%w: message %s: %v", ErrJournal, id, err))
		}
	}

	r.logger.Info("returned message to source queue",
		zap.Stringer("id", id),
		zap.String("from", errorQueue),
		zap.String("to", to),
		zap.Int("extension_bytes", len(returned.Extension)))

	return result, nil
}

// ReturnAll returns every message in errorQueue. Cancellation is checked
// between messages. Per-message failures are kept in the results and joined
// into the returned error.
func (r *Returner) ReturnAll(ctx context.Context, errorQueue string) ([]*Result, error) {
	msgs, err := r.store.List(errorQueue, 0)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", errorQueue, err)
	}

	results := make([]*Result, 0, len(msgs))
	var errs []error
	for _, m := range msgs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		result, err := r.Return(ctx, errorQueue, m.ID)
		results = append(results, result)
		if err != nil {
			errs = append(errs, err)
		}
	}

	r.logger.Info("return all finished",
		zap.String("queue", errorQueue),
		zap.Int("attempted", len(results)),
		zap.Int("failed", len(errs)))

	return results, errors.Join(errs...)
}

func (r *Returner) fail(result *Result, err error) (*Result, error) {
	result.Err = err
	r.logger.Warn("return failed",
		zap.Stringer("id", result.ID),
		zap.String("from", result.From),
		zap.Bool("moved", result.Moved),
		zap.Error(err))
	return result, err
}
