// Package api provides HTTP handlers and the main API server for Pocket Coach.
//
// It exposes the Twilio webhook that feeds the conversation flow, plus REST
// endpoints for health, direct sends, session inspection, and visit tracking.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/BeatBard/ccs-pops/internal/messaging"
	"github.com/BeatBard/ccs-pops/internal/session"
	"github.com/BeatBard/ccs-pops/internal/store"
	"github.com/BeatBard/ccs-pops/internal/visits"
)

// DefaultAddr is the default listen address for the API server.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr          string
	AllowedOrigin string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithAllowedOrigin sets the CORS allowed origin.
func WithAllowedOrigin(origin string) Option {
	return func(o *Opts) { o.AllowedOrigin = origin }
}

// Server wires the messaging service, session manager, and visit tracker into
// an HTTP API.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	msgService messaging.Service
	sessions   *session.Manager
	tracker    *visits.Tracker
	st         store.Store
	// webhook receives inbound Twilio form posts; nil when the transport has
	// no webhook (e.g. whatsmeow).
	webhook http.HandlerFunc
}

// NewServer creates an API server with the given dependencies.
func NewServer(msgService messaging.Service, sessions *session.Manager, tracker *visits.Tracker, st store.Store, webhook http.HandlerFunc, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr, AllowedOrigin: "*"}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{cfg.AllowedOrigin},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		MaxAge:         300,
	}))

	s := &Server{
		router:     r,
		msgService: msgService,
		sessions:   sessions,
		tracker:    tracker,
		st:         st,
		webhook:    webhook,
	}
	s.routes()

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.Get("/health", s.healthHandler)
	s.router.Post("/send", s.sendHandler)
	s.router.Get("/sessions", s.listSessionsHandler)
	s.router.Get("/sessions/{phone}", s.getSessionHandler)
	s.router.Post("/sessions/{phone}/reset", s.resetSessionHandler)
	s.router.Post("/visits", s.recordVisitHandler)
	s.router.Get("/visits/progress", s.visitProgressHandler)
	s.router.Get("/metrics", s.dayMetricsHandler)
	s.router.Get("/receipts", s.receiptsHandler)

	if s.webhook != nil {
		s.router.Post("/webhook", s.webhook)
	}
}

// Handler returns the underlying router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP requests. It blocks until the server stops.
func (s *Server) Start() error {
	slog.Info("API server starting", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("API server shutting down")
	return s.httpServer.Shutdown(ctx)
}
