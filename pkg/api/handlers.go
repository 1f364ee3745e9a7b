package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/segmentio/ksuid"
	"github.com/ssargent/rtsq/pkg/headers"
	"github.com/ssargent/rtsq/pkg/message"
	"github.com/ssargent/rtsq/pkg/returner"
	"github.com/ssargent/rtsq/pkg/spool"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 4 << 20

// Server holds the API server state
type Server struct {
	store    MessageStore
	returner MessageReturner
	journal  JournalReader // nil when the journal is disabled
	config   ServerConfig
	metrics  *Metrics
	logger   *zap.Logger
}

// NewServer creates a new API server
func NewServer(store MessageStore, ret MessageReturner, jr JournalReader, config ServerConfig, metrics *Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store:    store,
		returner: ret,
		journal:  jr,
		config:   config,
		metrics:  metrics,
		logger:   logger,
	}
}

// errorStatus maps domain errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, headers.ErrInvalidInput), errors.Is(err, spool.ErrInvalidQueue):
		return http.StatusBadRequest
	case errors.Is(err, headers.ErrCorruptData), errors.Is(err, headers.ErrEncoding):
		return http.StatusUnprocessableEntity
	case errors.Is(err, spool.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, message.ErrNoSourceQueue), errors.Is(err, returner.ErrSameQueue):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) sendErr(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	sendError(w, err.Error(), status)
}

// timed runs op and records it as a spool operation
func (s *Server) timed(operation string, op func() error) error {
	start := time.Now()
	err := op()
	if s.metrics != nil {
		s.metrics.RecordSpoolOperation(operation, err == nil, time.Since(start))
	}
	return err
}

func parseID(w http.ResponseWriter, r *http.Request) (ksuid.KSUID, bool) {
	id, err := ksuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		sendError(w, "Invalid message id", http.StatusBadRequest)
		return ksuid.Nil, false
	}
	return id, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendSuccess(w, map[string]string{"status": "healthy"})
}

func (s *Server) handleListQueues(w http.ResponseWriter, r *http.Request) {
	var queues []spool.QueueInfo
	err := s.timed("queues", func() (err error) {
		queues, err = s.store.Queues()
		return err
	})
	if err != nil {
		s.sendErr(w, err)
		return
	}
	sendSuccess(w, queues)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			sendError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	var msgs []*message.Message
	err := s.timed("list", func() (err error) {
		msgs, err = s.store.List(queue, limit)
		return err
	})
	if err != nil {
		s.sendErr(w, err)
		return
	}

	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp := newMessageResponse(queue, m)
		if resp.HeaderError != "" && s.metrics != nil {
			_, herr := m.Headers()
			s.metrics.RecordHeaderFailure(herr)
		}
		out = append(out, resp)
	}
	sendSuccess(w, out)
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")

	var req EnqueueRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		sendError(w, "Invalid JSON request", http.StatusBadRequest)
		return
	}

	m := message.New(req.Label, []byte(req.Body))
	if req.Headers != nil {
		if err := m.SetHeaders(req.Headers); err != nil {
			if s.metrics != nil {
				s.metrics.RecordHeaderFailure(err)
			}
			s.sendErr(w, err)
			return
		}
	}

	if err := s.timed("enqueue", func() error { return s.store.Enqueue(queue, m) }); err != nil {
		s.sendErr(w, err)
		return
	}
	sendStatus(w, newMessageResponse(queue, m), http.StatusCreated)
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var m *message.Message
	err := s.timed("get", func() (err error) {
		m, err = s.store.Get(queue, id)
		return err
	})
	if err != nil {
		s.sendErr(w, err)
		return
	}
	sendSuccess(w, newMessageResponse(queue, m))
}

// handleGetHeaders returns only the decoded headers, failing with 422 when the
// extension is corrupt.
func (s *Server) handleGetHeaders(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var m *message.Message
	err := s.timed("get", func() (err error) {
		m, err = s.store.Get(queue, id)
		return err
	})
	if err != nil {
		s.sendErr(w, err)
		return
	}

	h, err := m.Headers()
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordHeaderFailure(err)
		}
		s.sendErr(w, err)
		return
	}
	sendSuccess(w, h)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := s.timed("delete", func() error { return s.store.Delete(queue, id) }); err != nil {
		s.sendErr(w, err)
		return
	}
	sendSuccess(w, map[string]string{"status": "deleted", "id": id.String()})
}

func (s *Server) handleReturnMessage(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	result, err := s.returner.Return(r.Context(), queue, id)
	if s.metrics != nil {
		s.metrics.RecordReturn(result != nil && result.Moved, err)
	}
	if err != nil {
		s.sendErr(w, err)
		return
	}
	sendSuccess(w, newReturnResponse(result))
}

// handleReturnAll returns every message in the queue. Per-message failures
// are reported in the body; the request itself only fails when the queue
// cannot be read.
func (s *Server) handleReturnAll(w http.ResponseWriter, r *http.Request) {
	queue := chi.URLParam(r, "queue")
	if queue == "" {
		queue = s.config.ErrorQueue
	}

	results, err := s.returner.ReturnAll(r.Context(), queue)
	if err != nil && results == nil {
		s.sendErr(w, err)
		return
	}

	out := make([]ReturnResponse, 0, len(results))
	failed := 0
	for _, res := range results {
		if s.metrics != nil {
			s.metrics.RecordReturn(res.Moved, res.Err)
		}
		if res.Err != nil {
			failed++
		}
		out = append(out, newReturnResponse(res))
	}

	sendSuccess(w, map[string]interface{}{
		"queue":    queue,
		"returned": len(out) - failed,
		"failed":   failed,
		"results":  out,
	})
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		sendError(w, "Journal is disabled", http.StatusNotFound)
		return
	}

	entries, err := s.journal.Entries()
	if err != nil {
		s.sendErr(w, err)
		return
	}

	out := make([]JournalEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, JournalEntryResponse{Offset: e.Offset, Message: newMessageResponse("", e.Message)})
	}
	sendSuccess(w, out)
}
