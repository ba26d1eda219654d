package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	rerrors "card-reconciliation-service/pkg/errors"
	"card-reconciliation-service/pkg/logger"
)

// ServerConfig holds the listener settings.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server serves the router until its context is cancelled.
type Server struct {
	http     *http.Server
	shutdown time.Duration
	logger   logger.Logger
}

// NewServer wraps handler in an http.Server.
func NewServer(config ServerConfig, handler http.Handler, log logger.Logger) *Server {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	shutdown := config.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = 10 * time.Second
	}
	return &Server{
		http: &http.Server{
			Addr:              config.Addr,
			Handler:           handler,
			ReadTimeout:       config.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      config.WriteTimeout,
		},
		shutdown: shutdown,
		logger:   log.WithComponent("server"),
	}
}

// Run listens until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.http.Addr).Info("Listening")
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return rerrors.NetworkError(rerrors.CodeConnectionFailed, s.http.Addr, err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return rerrors.InternalError(rerrors.CodeUnexpectedError, "server shutdown", err)
	}
	return nil
}
