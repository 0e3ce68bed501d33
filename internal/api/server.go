// Package api exposes the audit engine over HTTP: file upload,
// audits, natural-language queries, metrics and history.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/fiscalstack/fiscaudit/internal/audit"
	"github.com/fiscalstack/fiscaudit/internal/ingest"
	"github.com/fiscalstack/fiscaudit/internal/query"
	"github.com/fiscalstack/fiscaudit/internal/store"
)

// Server is the HTTP API server.
type Server struct {
	store   *store.Store
	ingest  *ingest.Pipeline
	auditor *audit.Orchestrator
	queries *query.Pipeline
	addr    string
	logger  *slog.Logger
}

// Config holds configuration for the API server.
type Config struct {
	Store   *store.Store
	Ingest  *ingest.Pipeline
	Auditor *audit.Orchestrator
	Queries *query.Pipeline
	Addr    string
	Logger  *slog.Logger
}

// NewServer creates a new API server instance.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		store:   cfg.Store,
		ingest:  cfg.Ingest,
		auditor: cfg.Auditor,
		queries: cfg.Queries,
		addr:    cfg.Addr,
		logger:  logger,
	}
}

// Routes builds the router. Exposed separately so tests can drive the
// handlers without a listening socket.
func (s *Server) Routes() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.Logger,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Post("/audits", s.handleAuditAll)
		r.Post("/audits/{key}", s.handleAuditKey)
		r.Post("/ask", s.handleAsk)
		r.Post("/query", s.handleQuery)
		r.Get("/tables", s.handleTables)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/history", s.handleHistory)
		r.Get("/history/audits", s.handleAuditHistory)
		r.Get("/history/queries", s.handleQueryHistory)
	})

	return r
}

// Serve starts the API server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting api server", "addr", s.addr)

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Routes(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down api server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
