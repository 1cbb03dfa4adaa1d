package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/matheus3301/wppbridge/internal/api"
	"github.com/matheus3301/wppbridge/internal/config"
	"go.uber.org/zap"
)

// Server manages the HTTP listener lifecycle.
type Server struct {
	api      *api.Server
	http     *http.Server
	listener net.Listener
	logger   *zap.Logger
}

// NewServer binds the configured listen address.
func NewServer(cfg *config.Config, apiSrv *api.Server, logger *zap.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}
	return &Server{
		api: apiSrv,
		http: &http.Server{
			Handler:           apiSrv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: listener,
		logger:   logger,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Start serves requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.Addr()))
	if err := s.http.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop performs a graceful shutdown and closes open event streams.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("http server stopping")
	s.api.Close()
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}
	// Shutdown only closes listeners that Serve has seen.
	_ = s.listener.Close()
}
