package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ssargent/rtsq/pkg/headers"
	"github.com/ssargent/rtsq/pkg/spool"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds all Prometheus metrics for the API
type Metrics struct {
	registry *prometheus.Registry

	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec

	// Spool operation metrics
	spoolOperationsTotal   *prometheus.CounterVec
	spoolOperationDuration *prometheus.HistogramVec
	queueDepth             *prometheus.GaugeVec

	// Header codec failures by kind
	headerFailuresTotal *prometheus.CounterVec

	// Return outcomes
	returnsTotal *prometheus.CounterVec

	// API key authentication metrics
	authRequestsTotal *prometheus.CounterVec
}

// NewMetrics creates all Prometheus metrics on a private registry, along with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtsq_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rtsq_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		httpRequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rtsq_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"method", "endpoint"},
		),

		spoolOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtsq_spool_operations_total",
				Help: "Total number of spool operations",
			},
			[]string{"operation", "status"},
		),

		spoolOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rtsq_spool_operation_duration_seconds",
				Help:    "Spool operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		queueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rtsq_queue_depth",
				Help: "Number of messages in each queue",
			},
			[]string{"queue"},
		),

		headerFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtsq_header_failures_total",
				Help: "Total number of header encode or decode failures",
			},
			[]string{"kind"},
		),

		returnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtsq_returns_total",
				Help: "Total number of return-to-source attempts",
			},
			[]string{"outcome"},
		),

		authRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtsq_auth_requests_total",
				Help: "Total number of authentication requests",
			},
			[]string{"status"},
		),
	}
}

// Handler serves the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the registry the metrics live in
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	statusCodeStr := strconv.Itoa(statusCode)

	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCodeStr).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordSpoolOperation records a spool operation
func (m *Metrics) RecordSpoolOperation(operation string, success bool, duration time.Duration) {
	status := statusSuccess
	if !success {
		status = statusError
	}

	m.spoolOperationsTotal.WithLabelValues(operation, status).Inc()
	m.spoolOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHeaderFailure counts err by header error kind. Errors that are not
// header errors are ignored.
func (m *Metrics) RecordHeaderFailure(err error) {
	var kind string
	switch {
	case errors.Is(err, headers.ErrCorruptData):
		kind = "corrupt_data"
	case errors.Is(err, headers.ErrEncoding):
		kind = "encoding"
	case errors.Is(err, headers.ErrInvalidInput):
		kind = "invalid_input"
	default:
		return
	}
	m.headerFailuresTotal.WithLabelValues(kind).Inc()
}

// RecordReturn records the outcome of one return attempt
func (m *Metrics) RecordReturn(moved bool, err error) {
	outcome := "returned"
	switch {
	case err != nil && moved:
		outcome = "journal_failed"
	case err != nil:
		outcome = "failed"
	}
	m.returnsTotal.WithLabelValues(outcome).Inc()
	m.RecordHeaderFailure(err)
}

// UpdateQueueDepths replaces the queue depth gauges
func (m *Metrics) UpdateQueueDepths(queues []spool.QueueInfo) {
	m.queueDepth.Reset()
	for _, q := range queues {
		m.queueDepth.WithLabelValues(q.Name).Set(float64(q.Count))
	}
}

// RecordAuthRequest records an authentication request
func (m *Metrics) RecordAuthRequest(success bool) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	m.authRequestsTotal.WithLabelValues(status).Inc()
}

// InstrumentHandler instruments an HTTP handler with metrics
func (m *Metrics) InstrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		gauge := m.httpRequestsInFlight.WithLabelValues(method, endpoint)
		gauge.Inc()
		defer gauge.Dec()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(rw, r)

		m.RecordHTTPRequest(method, endpoint, rw.statusCode, time.Since(start))
	}
}

// InstrumentAuthMiddleware instruments the authentication middleware
func (m *Metrics) InstrumentAuthMiddleware(next func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hasAPIKey := r.Header.Get("X-API-Key") != ""

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next(h).ServeHTTP(rw, r)

			if hasAPIKey {
				m.RecordAuthRequest(rw.statusCode != http.StatusUnauthorized)
			}
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
