// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/observability"
)

// Routes toggles individual endpoints. A disabled route is not registered
// and responds 404.
type Routes struct {
	Token  bool
	Me     bool
	Logout bool
}

// Options configures the HTTP surface.
type Options struct {
	Routes Routes

	// Issuer and Audience are the claim values the bearer middleware expects
	// on presented access tokens. Empty disables the respective check.
	Issuer   string
	Audience string
}

// Server serves the auth endpoints.
type Server struct {
	addr       string
	svc        *auth.Service
	verifier   auth.TokenSigner
	metrics    *observability.Metrics
	opts       Options
	logger     *slog.Logger
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates an auth API server. metrics may be nil.
func NewServer(addr string, svc *auth.Service, verifier auth.TokenSigner, metrics *observability.Metrics, opts Options, logger *slog.Logger) (*Server, error) {
	if svc == nil {
		return nil, oops.Code("HTTPAPI_NIL_DEPENDENCY").Errorf("auth service is required")
	}
	if verifier == nil {
		return nil, oops.Code("HTTPAPI_NIL_DEPENDENCY").Errorf("token verifier is required")
	}
	if logger == nil {
		return nil, oops.Code("HTTPAPI_NIL_DEPENDENCY").Errorf("logger is required")
	}
	return &Server{
		addr:     addr,
		svc:      svc,
		verifier: verifier,
		metrics:  metrics,
		opts:     opts,
		logger:   logger,
	}, nil
}

// Handler builds the route table. Exposed separately from Start so tests can
// drive it with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.opts.Routes.Token {
		mux.HandleFunc("POST /auth/token", s.handleToken)
	}
	if s.opts.Routes.Logout {
		mux.HandleFunc("POST /auth/logout", s.handleLogout)
	}
	if s.opts.Routes.Me {
		mux.Handle("GET /auth/me", s.requireBearer(http.HandlerFunc(s.handleMe)))
	}

	return s.withRequestID(mux)
}

// Start begins serving. It returns an error channel that receives any error
// from the HTTP server after startup; the channel is closed on graceful stop.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("auth API server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("auth API server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("auth API server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_auth_api_server").Wrap(err)
		}
	}

	s.logger.Info("auth API server stopped")
	return nil
}

// Addr returns the address the server is listening on, or "" if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
