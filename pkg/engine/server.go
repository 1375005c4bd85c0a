package engine

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/expectd/expectd/pkg/config"
	"github.com/expectd/expectd/pkg/logging"
)

// Server runs an Engine behind an http.Server.
type Server struct {
	engine *Engine
	log    *slog.Logger
	httpd  *http.Server
}

// NewServer wraps the engine for the configured listen address.
func NewServer(cfg *config.Config, log *slog.Logger) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logging.Nop()
	}
	e := New(cfg, log)
	return &Server{
		engine: e,
		log:    logging.Component(log, "server"),
		httpd: &http.Server{
			Addr:              cfg.Listen,
			Handler:           e,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Engine returns the wrapped engine.
func (s *Server) Engine() *Engine { return s.engine }

// Start loads initializers and serves until Shutdown. It blocks.
func (s *Server) Start() error {
	if err := s.engine.LoadInitializers(); err != nil {
		return err
	}
	s.log.Info("listening", "addr", s.httpd.Addr)
	if err := s.httpd.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops background work.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpd.Shutdown(ctx)
	s.engine.Close()
	return err
}
