// Package api is the rtsq REST API.
//
// Every route under /api/v1 requires the X-API-Key header. /metrics is left
// open for scraping.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter builds the HTTP handler with all routes configured
func NewRouter(server *Server) http.Handler {
	metrics := server.metrics

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(server.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Prometheus metrics endpoint (unprotected for scraping)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(metrics.InstrumentAuthMiddleware(apiKeyMiddleware(server.config.APIKey)))

		r.Get("/health", metrics.InstrumentHandler("GET", "/api/v1/health", server.handleHealth))

		// Queues and messages
		r.Get("/queues", metrics.InstrumentHandler("GET", "/api/v1/queues", server.handleListQueues))
		r.Get("/queues/{queue}/messages", metrics.InstrumentHandler("GET", "/api/v1/queues/{queue}/messages", server.handleListMessages))
		r.Post("/queues/{queue}/messages", metrics.InstrumentHandler("POST", "/api/v1/queues/{queue}/messages", server.handleEnqueue))
		r.Get("/queues/{queue}/messages/{id}", metrics.InstrumentHandler("GET", "/api/v1/queues/{queue}/messages/{id}", server.handleGetMessage))
		r.Delete("/queues/{queue}/messages/{id}", metrics.InstrumentHandler("DELETE", "/api/v1/queues/{queue}/messages/{id}", server.handleDeleteMessage))
		r.Get("/queues/{queue}/messages/{id}/headers", metrics.InstrumentHandler("GET", "/api/v1/queues/{queue}/messages/{id}/headers", server.handleGetHeaders))

		// Return to source
		r.Post("/queues/{queue}/messages/{id}/return", metrics.InstrumentHandler("POST", "/api/v1/queues/{queue}/messages/{id}/return", server.handleReturnMessage))
		r.Post("/queues/{queue}/return", metrics.InstrumentHandler("POST", "/api/v1/queues/{queue}/return", server.handleReturnAll))
		r.Post("/return", metrics.InstrumentHandler("POST", "/api/v1/return", server.handleReturnAll))

		r.Get("/journal", metrics.InstrumentHandler("GET", "/api/v1/journal", server.handleJournal))
	})

	return r
}

// StartServer serves the API until ctx is cancelled, then shuts down gracefully
func StartServer(ctx context.Context, server *Server) error {
	addr := net.JoinHostPort(server.config.Bind, strconv.Itoa(server.config.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(server),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go server.startMetricsUpdater(ctx)

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("starting rtsq REST API server",
			zap.String("addr", addr),
			zap.String("metrics", fmt.Sprintf("http://%s/metrics", addr)))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		server.logger.Info("shutting down rtsq REST API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

// startMetricsUpdater periodically refreshes queue depth gauges
func (s *Server) startMetricsUpdater(ctx context.Context) {
	interval := s.config.StatsInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.updateQueueDepths()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.updateQueueDepths()
		}
	}
}

func (s *Server) updateQueueDepths() {
	queues, err := s.store.Queues()
	if err != nil {
		s.logger.Warn("failed to refresh queue depths", zap.Error(err))
		return
	}
	s.metrics.UpdateQueueDepths(queues)
}
