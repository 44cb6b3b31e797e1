// pkg/httpserver/server.go

// Package httpserver serves the operational endpoints: metrics, liveness
// and readiness.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/YaganovValera/optionstream/pkg/logger"
)

// ReadyChecker returns nil if the process is ready to serve.
type ReadyChecker func() error

// Config is the listen address, the endpoint paths and the timeouts of the
// operational server.
type Config struct {
	Addr        string `mapstructure:"addr"`
	MetricsPath string `mapstructure:"metrics_path"`
	HealthzPath string `mapstructure:"healthz_path"`
	ReadyzPath  string `mapstructure:"readyz_path"`

	// AllowCORS lets browser dashboards poll the endpoints.
	AllowCORS bool `mapstructure:"allow_cors"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (c *Config) applyDefaults() {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 15 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.MetricsPath == "" {
		c.MetricsPath = "/metrics"
	}
	if c.HealthzPath == "" {
		c.HealthzPath = "/healthz"
	}
	if c.ReadyzPath == "" {
		c.ReadyzPath = "/readyz"
	}
}

func (c Config) validate() error {
	if c.Addr == "" {
		return errors.New("httpserver: addr required")
	}
	return nil
}

// Server serves the operational endpoints until its context is done.
type Server struct {
	srv   *http.Server
	grace time.Duration
	log   *logger.Logger
}

// New builds the server. gatherer may be nil for the default registry.
func New(cfg Config, gatherer prometheus.Gatherer, check ReadyChecker, log *logger.Logger) (*Server, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.Named("http")

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           Handler(cfg, gatherer, check, log),
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ErrorLog:          zap.NewStdLog(log.Zap()),
	}
	return &Server{srv: srv, grace: cfg.ShutdownTimeout, log: log}, nil
}

// Handler returns the endpoint mux with its middleware, for embedding and
// tests. A nil check always reports ready.
func Handler(cfg Config, gatherer prometheus.Gatherer, check ReadyChecker, log *logger.Logger) http.Handler {
	cfg.applyDefaults()
	if check == nil {
		check = func() error { return nil }
	}
	if log == nil {
		log = logger.Nop()
	}
	RegisterMetrics(nil)
	mux := http.NewServeMux()
	mux.Handle(cfg.MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorLog:          zap.NewStdLog(log.Zap()),
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc(cfg.HealthzPath, liveness)
	mux.HandleFunc(cfg.ReadyzPath, readiness(check))
	mws := []Middleware{Recover(log), RequestID(), Metrics()}
	if cfg.AllowCORS {
		mws = append([]Middleware{cors.AllowAll().Handler}, mws...)
	}
	return Compose(mws...)(mux)
}

// Start listens and serves; it shuts down gracefully once ctx is done and
// returns nil in that case.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("httpserver: listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	done := make(chan error, 1)
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}()
	s.log.Info("listening", zap.Stringer("addr", ln.Addr()))

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("httpserver: serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.grace)
	defer cancel()
	if err := s.srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("httpserver: shutdown: %w", err)
	}
	s.log.Info("stopped")
	return <-done
}
