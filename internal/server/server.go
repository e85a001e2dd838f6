// Package server provides the HTTP API for wortnest.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/wortnest/internal/config"
	"github.com/hyperjump/wortnest/internal/vocab"
)

// InboxService manages watched inbox directories. *watcher.Watcher implements it.
type InboxService interface {
	Inboxes() []string
	AddInbox(dir string, importExisting bool) error
	RemoveInbox(dir string) error
}

// Server is the HTTP server for the wortnest API.
type Server struct {
	vocab  *vocab.Service
	config *config.Config
	logger *zap.Logger
	server *http.Server

	inbox      InboxService
	configPath string
	configMu   sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithInbox enables the inbox endpoints. When configPath is set, inbox changes
// are written back to the config file.
func WithInbox(inbox InboxService, configPath string) Option {
	return func(s *Server) {
		s.inbox = inbox
		s.configPath = configPath
	}
}

// NewServer creates a server for svc. cfg supplies the listen address and the
// paths reported by the status endpoint.
func NewServer(svc *vocab.Service, cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		vocab:  svc,
		config: cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Get("/items", s.handleListItems)
		r.Post("/items", s.handleCreateItem)
		r.Route("/items/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetItem)
			r.Put("/", s.handleUpdateItem)
			r.Delete("/", s.handleDeleteItem)
			r.Get("/related", s.handleRelated)
			r.Post("/reviewed", s.handleMarkReviewed)
		})

		r.Post("/import", s.handleImport)
		r.Post("/embeddings/backfill", s.handleBackfill)

		r.Get("/review/next", s.handleReviewNext)
		r.Post("/review/{id}/check", s.handleReviewCheck)

		r.Get("/tags", s.handleTags)
		r.Get("/export", s.handleExport)

		r.Get("/inbox", s.handleInboxList)
		r.Post("/inbox", s.handleInboxAdd)
		r.Delete("/inbox", s.handleInboxRemove)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
