package returner

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/ssargent/rtsq/pkg/headers"
	"github.com/ssargent/rtsq/pkg/journal"
	"github.com/ssargent/rtsq/pkg/message"
	"github.com/ssargent/rtsq/pkg/spool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var fixedNow = time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)

type fixture struct {
	spool    *spool.Spool
	journal  *journal.Journal
	returner *Returner
	logs     *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	s, err := spool.Open(filepath.Join(dir, "spool"), spool.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	j, _, err := journal.Open(journal.Config{Path: filepath.Join(dir, "returns.journal")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	core, logs := observer.New(zap.InfoLevel)
	r := New(s,
		WithJournal(j),
		WithLogger(zap.New(core)),
		WithClock(func() time.Time { return fixedNow }))

	return &fixture{spool: s, journal: j, returner: r, logs: logs}
}

func (f *fixture) failed(t *testing.T, queue, source string) *message.Message {
	t.Helper()
	m := message.New("order-created", []byte(`{"order":42}`))
	h := headers.New()
	h.Set(message.HeaderExceptionType, "System.TimeoutException")
	if source != "" {
		h.Set(message.HeaderFailedQueue, source)
	}
	require.NoError(t, m.SetHeaders(h))
	require.NoError(t, f.spool.Enqueue(queue, m))
	return m
}

func TestReturn_MovesToSourceQueue(t *testing.T) {
	f := newFixture(t)
	m := f.failed(t, "error", "orders")

	result, err := f.returner.Return(context.Background(), "error", m.ID)
	require.NoError(t, err)
	assert.True(t, result.Moved)
	assert.Equal(t, "orders", result.To)
	assert.Equal(t, fixedNow, result.ReturnedAt)

	_, err = f.spool.Get("error", m.ID)
	assert.ErrorIs(t, err, spool.ErrNotFound)

	returned, err := f.spool.Get("orders", m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Body, returned.Body)

	h, err := returned.Headers()
	require.NoError(t, err)
	assert.False(t, h.Has(message.HeaderFailedQueue))
	from, _ := h.Get(message.HeaderReturnedFrom)
	assert.Equal(t, "error", from)
	at, _ := h.Get(message.HeaderReturnedAt)
	assert.Equal(t, fixedNow.Format(time.RFC3339Nano), at)
	exType, _ := h.Get(message.HeaderExceptionType)
	assert.Equal(t, "System.TimeoutException", exType)

	entries, err := f.journal.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, m.ID, entries[0].Message.ID)
	assert.Equal(t, returned.Extension, entries[0].Message.Extension)

	assert.Equal(t, 1, f.logs.FilterMessage("returned message to source queue").Len())
}

func TestReturn_NoSourceQueue(t *testing.T) {
	f := newFixture(t)
	m := f.failed(t, "error", "")

	result, err := f.returner.Return(context.Background(), "error", m.ID)
	assert.ErrorIs(t, err, message.ErrNoSourceQueue)
	assert.False(t, result.Moved)
	assert.Equal(t, err, result.Err)

	_, err = f.spool.Get("error", m.ID)
	assert.NoError(t, err, "message must stay in the error queue")
}

func TestReturn_CorruptHeadersLeaveMessageInPlace(t *testing.T) {
	f := newFixture(t)
	m := message.New("bad", []byte("x"))
	m.Extension = []byte{0x05, 0x00, 0x00, 0x00, 0x01} // five entries, one byte
	require.NoError(t, f.spool.Enqueue("error", m))

	_, err := f.returner.Return(context.Background(), "error", m.ID)
	assert.ErrorIs(t, err, headers.ErrCorruptData)

	stored, err := f.spool.Get("error", m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Extension, stored.Extension)

	entries, err := f.journal.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 1, f.logs.FilterMessage("return failed").Len())
}

func TestReturn_SameQueue(t *testing.T) {
	f := newFixture(t)
	m := f.failed(t, "error", "error")

	_, err := f.returner.Return(context.Background(), "error", m.ID)
	assert.ErrorIs(t, err, ErrSameQueue)
}

func TestReturn_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.returner.Return(context.Background(), "error", ksuid.New())
	assert.ErrorIs(t, err, spool.ErrNotFound)
}

func TestReturn_CancelledContext(t *testing.T) {
	f := newFixture(t)
	m := f.failed(t, "error", "orders")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.returner.Return(ctx, "error", m.ID)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = f.spool.Get("error", m.ID)
	assert.NoError(t, err)
}

func TestReturnAll_CollectsFailures(t *testing.T) {
	f := newFixture(t)
	good1 := f.failed(t, "error", "orders")
	orphan := f.failed(t, "error", "")
	good2 := f.failed(t, "error", "billing")

	results, err := f.returner.ReturnAll(context.Background(), "error")
	require.Error(t, err)
	assert.ErrorIs(t, err, message.ErrNoSourceQueue)
	require.Len(t, results, 3)

	byID := make(map[ksuid.KSUID]*Result)
	for _, r := range results {
		byID[r.ID] = r
	}
	assert.True(t, byID[good1.ID].Moved)
	assert.True(t, byID[good2.ID].Moved)
	assert.False(t, byID[orphan.ID].Moved)
	assert.Error(t, byID[orphan.ID].Err)

	n, err := f.spool.Count("error")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.spool.Get("billing", good2.ID)
	assert.NoError(t, err)
}

func TestReturnAll_Empty(t *testing.T) {
	f := newFixture(t)

	results, err := f.returner.ReturnAll(context.Background(), "error")
	require.NoError(t, err)
	assert.Empty(t, results)
}

type cancellingRecorder struct {
	cancel context.CancelFunc
	count  int
}

func (c *cancellingRecorder) Append(*message.Message) (int64, error) {
	c.count++
	c.cancel()
	return 0, nil
}

func TestReturnAll_StopsWhenCancelled(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.failed(t, "error", "orders")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &cancellingRecorder{cancel: cancel}
	r := New(f.spool, WithJournal(rec))

	results, err := r.ReturnAll(ctx, "error")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, results, 1)
	assert.Equal(t, 1, rec.count)

	n, err := f.spool.Count("error")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

type failingRecorder struct{}

func (failingRecorder) Append(*message.Message) (int64, error) {
	return 0, errors.New("disk full")
}

func TestReturn_JournalFailureAfterMove(t *testing.T) {
	f := newFixture(t)
	m := f.failed(t, "error", "orders")
	r := New(f.spool, WithJournal(failingRecorder{}))

	result, err := r.Return(context.Background(), "error", m.ID)
	assert.ErrorIs(t, err, ErrJournal)
	assert.True(t, result.Moved)

	_, err = f.spool.Get("orders", m.ID)
	assert.NoError(t, err)
}
