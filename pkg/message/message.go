// Package message models the queue message that carries encoded headers in its
// extension slot.
package message

import (
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/ssargent/rtsq/pkg/headers"
)

// Well-known diagnostic header keys written by the failing endpoint and by the
// return-to-source tooling.
const (
	// HeaderFailedQueue names the queue the message failed in; it is where a
	// return sends the message.
	HeaderFailedQueue = "NServiceBus.FailedQ"

	HeaderExceptionType       = "NServiceBus.ExceptionInfo.ExceptionType"
	HeaderExceptionMessage    = "NServiceBus.ExceptionInfo.Message"
	HeaderExceptionStackTrace = "NServiceBus.ExceptionInfo.StackTrace"
	HeaderTimeOfFailure       = "NServiceBus.TimeOfFailure"

	// HeaderReturnedFrom and HeaderReturnedAt are stamped when a message is
	// returned to its source queue.
	HeaderReturnedFrom = "rtsq.ReturnedFrom"
	HeaderReturnedAt   = "rtsq.ReturnedAt"
)

// ErrNoSourceQueue is returned when a message has no failed-queue header.
var ErrNoSourceQueue = errors.New("message: no source queue header")

// Message is a queue message. Extension is an opaque byte slot owned by the
// message; headers live there in the format of package headers.
type Message struct {
	ID        ksuid.KSUID
	Label     string
	Body      []byte
	Extension []byte
	SentAt    time.Time
}

// New creates a message with a fresh ID and the current time.
func New(label string, body []byte) *Message {
	now := time.Now().UTC()
	id, err := ksuid.NewRandomWithTime(now)
	if err != nil {
		id = ksuid.New()
	}
	return &Message{
		ID:     id,
		Label:  label,
		Body:   body,
		SentAt: now,
	}
}

// SetHeaders encodes h into the message extension, replacing what was there.
func (m *Message) SetHeaders(h *headers.Map) error {
	encoded, err := headers.Encode(h)
	if err != nil {
		return fmt.Errorf("save headers for message %s: %w", m.ID, err)
	}
	m.Extension = encoded
	return nil
}

// Headers decodes the message extension. A message whose extension was never
// written has no headers and yields an empty map.
func (m *Message) Headers() (*headers.Map, error) {
	if len(m.Extension) == 0 {
		return headers.New(), nil
	}
	h, err := headers.Decode(m.Extension)
	if err != nil {
		return nil, fmt.Errorf("read headers for message %s: %w", m.ID, err)
	}
	return h, nil
}

// SourceQueue returns the failed-queue header.
func (m *Message) SourceQueue() (string, error) {
	h, err := m.Headers()
	if err != nil {
		return "", err
	}
	q, ok := h.Get(HeaderFailedQueue)
	if !ok || q == "" {
		return "", fmt.Errorf("%w: message %s", ErrNoSourceQueue, m.ID)
	}
	return q, nil
}

// Clone returns a deep copy.
func (m *Message) Clone() *Message {
	c := *m
	c.Body = append([]byte(nil), m.Body...)
	c.Extension = append([]byte(nil), m.Extension...)
	return &c
}

// Size returns the number of payload bytes the message carries.
func (m *Message) Size() int {
	return len(m.Label) + len(m.Body) + len(m.Extension)
}
