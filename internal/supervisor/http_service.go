// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

package supervisor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gomuseum/gateway/internal/logging"
)

// shutdownGrace is how long in-flight requests get to finish after the
// supervision tree asks the server to stop.
const shutdownGrace = 10 * time.Second

// HTTPService runs the API server under supervision. Serve blocks until
// the listener fails or the context is canceled, at which point the
// server drains gracefully.
type HTTPService struct {
	addr    string
	handler http.Handler
	timeout time.Duration

	mu      sync.Mutex
	boundTo string
}

// NewHTTPService creates the service. timeout bounds request read and
// write on the underlying server.
func NewHTTPService(addr string, handler http.Handler, timeout time.Duration) *HTTPService {
	return &HTTPService{addr: addr, handler: handler, timeout: timeout}
}

// String identifies the service in supervisor logs.
func (s *HTTPService) String() string {
	return "http-server"
}

// BoundAddr returns the listener's actual address once Serve has bound
// it; empty before that. Useful when addr requests an ephemeral port.
func (s *HTTPService) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundTo
}

// Serve implements suture.Service.
func (s *HTTPService) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.boundTo = listener.Addr().String()
	s.mu.Unlock()

	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.timeout,
		WriteTimeout:      s.timeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()
	logging.Info().Str("addr", listener.Addr().String()).Msg("http server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("http server shutdown incomplete, closing")
			_ = server.Close()
		}
		<-errCh
		return ctx.Err()
	}
}
