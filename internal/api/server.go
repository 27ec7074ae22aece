// Package api exposes the reconciliation engine over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/finledger/bankrecon/internal/api/handlers"
	"github.com/finledger/bankrecon/internal/api/middleware"
	"github.com/finledger/bankrecon/internal/domain/matching"
	"github.com/finledger/bankrecon/internal/domain/recon"
	"github.com/finledger/bankrecon/internal/infrastructure/storage"
	"github.com/finledger/bankrecon/internal/ingestion/camt"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
	}
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger

	store    storage.LedgerStore
	matcher  *matching.Matcher
	executor *recon.Executor
	auto     *recon.AutoReconciler
	vouchers *recon.VoucherService
	importer *camt.Importer
}

// NewServer creates a new API server wired over the given store.
func NewServer(cfg Config, store storage.LedgerStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	matcher := matching.NewMatcher(store, matching.AllowAll{}, logger)
	executor := recon.NewExecutor(store, logger)

	s := &Server{
		config:   cfg,
		router:   chi.NewRouter(),
		logger:   logger,
		store:    store,
		matcher:  matcher,
		executor: executor,
		auto:     recon.NewAutoReconciler(store, matcher, executor, logger),
		vouchers: recon.NewVoucherService(store, executor, logger),
		importer: camt.NewImporter(store, logger),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	s.router.Use(middleware.Logging(s.logger))
}

func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	s.router.Get("/health", handlers.NewHealthHandler().ServeHTTP)

	s.router.Route("/api", func(r chi.Router) {
		transactions := handlers.NewTransactionsHandler(s.store, s.matcher)
		r.Get("/transactions", transactions.List)
		r.Get("/transactions/{name}", transactions.Get)
		r.Get("/transactions/{name}/candidates", transactions.Candidates)

		reconcile := handlers.NewReconcileHandler(s.executor, s.auto, s.vouchers)
		r.Post("/transactions/{name}/reconcile", reconcile.Reconcile)
		r.Post("/reconcile/auto", reconcile.AutoReconcile)
		r.Post("/vouchers/payment-entries", reconcile.CreatePaymentEntry)
		r.Post("/vouchers/journal-entries", reconcile.CreateJournalEntry)

		imports := handlers.NewImportsHandler(s.importer)
		r.Post("/imports", imports.Import)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}
