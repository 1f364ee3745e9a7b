package api

import (
	"context"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/ssargent/rtsq/pkg/headers"
	"github.com/ssargent/rtsq/pkg/journal"
	"github.com/ssargent/rtsq/pkg/message"
	"github.com/ssargent/rtsq/pkg/returner"
	"github.com/ssargent/rtsq/pkg/spool"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Port       int
	Bind       string
	APIKey     string
	ErrorQueue string // default queue for return-all when none is named

	// StatsInterval is how often queue depth gauges refresh; 30s when zero.
	StatsInterval time.Duration
}

// MessageStore defines the queue operations the API exposes
type MessageStore interface {
	Enqueue(queue string, m *message.Message) error
	Get(queue string, id ksuid.KSUID) (*message.Message, error)
	List(queue string, limit int) ([]*message.Message, error)
	Delete(queue string, id ksuid.KSUID) error
	Queues() ([]spool.QueueInfo, error)
}

// MessageReturner performs return-to-source operations
type MessageReturner interface {
	Return(ctx context.Context, errorQueue string, id ksuid.KSUID) (*returner.Result, error)
	ReturnAll(ctx context.Context, errorQueue string) ([]*returner.Result, error)
}

// JournalReader exposes the return journal
type JournalReader interface {
	Entries() ([]*journal.Entry, error)
}

// EnqueueRequest is the body of POST /queues/{queue}/messages
type EnqueueRequest struct {
	Label   string       `json:"label"`
	Body    string       `json:"body"`
	Headers *headers.Map `json:"headers,omitempty"`
}

// MessageResponse describes a stored message. When the extension cannot be
// decoded, Headers is omitted and HeaderError says why.
type MessageResponse struct {
	ID            string       `json:"id"`
	Queue         string       `json:"queue,omitempty"`
	Label         string       `json:"label"`
	Body          string       `json:"body"`
	SentAt        time.Time    `json:"sent_at"`
	ExtensionSize int          `json:"extension_size"`
	Headers       *headers.Map `json:"headers,omitempty"`
	HeaderError   string       `json:"header_error,omitempty"`
}

// ReturnResponse describes one return attempt
type ReturnResponse struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	To         string    `json:"to,omitempty"`
	Moved      bool      `json:"moved"`
	ReturnedAt time.Time `json:"returned_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// JournalEntryResponse describes one journal record
type JournalEntryResponse struct {
	Offset  int64           `json:"offset"`
	Message MessageResponse `json:"message"`
}

func newMessageResponse(queue string, m *message.Message) MessageResponse {
	resp := MessageResponse{
		ID:            m.ID.String(),
		Queue:         queue,
		Label:         m.Label,
		Body:          string(m.Body),
		SentAt:        m.SentAt,
		ExtensionSize: len(m.Extension),
	}
	h, err := m.Headers()
	if err != nil {
		resp.HeaderError = err.Error()
	} else {
		resp.Headers = h
	}
	return resp
}

func newReturnResponse(r *returner.Result) ReturnResponse {
	resp := ReturnResponse{
		ID:         r.ID.String(),
		From:       r.From,
		To:         r.To,
		Moved:      r.Moved,
		ReturnedAt: r.ReturnedAt,
	}
	if r.Err != nil {
		resp.Error = r.Err.Error()
	}
	return resp
}
