// Package server exposes the document tools and the retention sweeper over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aatumaykin/ecardcut/internal/cleanup"
	"github.com/aatumaykin/ecardcut/internal/imaging"
	"github.com/aatumaykin/ecardcut/internal/logger"
	"github.com/aatumaykin/ecardcut/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DefaultShutdownTimeout = 10 * time.Second

	// multipart framing allowed on top of the upload size limit
	formOverhead = 1 << 20
)

// Sweeper is the part of *cleanup.Sweeper the server uses.
type Sweeper interface {
	RunSweep(ctx context.Context) cleanup.Result
	ForceSweep(ctx context.Context) cleanup.Result
	Stats() map[string]cleanup.DirStats
	LastResult() (cleanup.Result, time.Time)
	Running() bool
	Retention() time.Duration
}

// Metrics receives request and directory observations.
type Metrics interface {
	ObserveRequest(route, method string, code int, duration time.Duration)
	SetDirStats(stats map[string]cleanup.DirStats)
}

type nopMetrics struct{}

func (nopMetrics) ObserveRequest(string, string, int, time.Duration) {}
func (nopMetrics) SetDirStats(map[string]cleanup.DirStats)            {}

// Config holds configuration for the HTTP server.
type Config struct {
	Addr            string
	AdminToken      string // empty leaves /admin/* open
	MaxImagePixels  int    // decoded image size limit, zero means imaging.DefaultMaxPixels
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	cfg      Config
	store    *storage.Store
	sweeper  Sweeper
	metrics  Metrics
	gatherer prometheus.Gatherer
	logger   *logger.Logger
	now      func() time.Time
	handler  http.Handler
}

type Option func(*Server)

// WithMetrics records requests in m and serves g on /metrics.
// A nil g leaves /metrics unregistered.
func WithMetrics(m Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
		s.gatherer = g
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(s *Server) { s.logger = log }
}

// WithClock replaces time.Now for response timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New builds the server and its routes. Nothing listens until Run or Serve.
func New(cfg Config, store *storage.Store, sweeper Sweeper, opts ...Option) (*Server, error) {
	if store == nil {
		return nil, errors.New("server: storage is required")
	}
	if sweeper == nil {
		return nil, errors.New("server: sweeper is required")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.MaxImagePixels <= 0 {
		cfg.MaxImagePixels = imaging.DefaultMaxPixels
	}

	s := &Server{
		cfg:     cfg,
		store:   store,
		sweeper: sweeper,
		metrics: nopMetrics{},
		logger:  logger.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	s.logger = s.logger.Component("http")

	s.handler = s.instrument(s.routes())
	return s, nil
}

// Handler returns the fully wrapped handler, useful with httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /crop", s.handleCrop)
	mux.HandleFunc("POST /convert-image", s.handleConvert)
	mux.HandleFunc("POST /passport-photo", s.handlePassport)
	mux.HandleFunc("GET /download/{name}", s.handleDownload)
	mux.HandleFunc("GET /preview/{name}", s.handlePreview)

	// clear-files is a force sweep, so it shares the admin guard.
	mux.HandleFunc("POST /clear-files", s.requireAdmin(s.handleClearFiles))
	mux.HandleFunc("GET /admin/stats", s.requireAdmin(s.handleAdminStats))
	mux.HandleFunc("POST /admin/sweep", s.requireAdmin(s.handleAdminSweep))

	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("/", s.handleNotFound)
	return mux
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully within the shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		ErrorLog:     slog.NewLogLogger(s.logger.StdLogger().Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("http server listening", logger.Field{Key: "addr", Value: ln.Addr().String()})

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down http server",
		logger.Field{Key: "timeout", Value: s.cfg.ShutdownTimeout.String()})
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) retentionMinutes() int {
	return int(s.sweeper.Retention().Minutes())
}
