// Tripwire - Threat Detection and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tripwire

package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/tomtom215/tripwire/internal/logging"
)

// DefaultShutdownTimeout bounds a graceful HTTP shutdown when none is configured.
const DefaultShutdownTimeout = 10 * time.Second

// HTTPServer is the part of *http.Server the service drives.
type HTTPServer interface {
	Serve(l net.Listener) error
	Shutdown(ctx context.Context) error
}

// ListenFunc opens the listening socket. net.Listen by default.
type ListenFunc func(network, addr string) (net.Listener, error)

// HTTPServerService runs the API server under the api layer. The socket is
// bound before Serve so bind failures surface as a service error that names
// the address, and the resolved address (port 0 included) is published once
// the server is accepting connections.
type HTTPServerService struct {
	server          HTTPServer
	addr            string
	shutdownTimeout time.Duration
	listen          ListenFunc

	mu        sync.Mutex
	bound     string
	ready     chan struct{}
	readyOnce sync.Once
}

// NewHTTPServerService wraps server, which will listen on addr.
func NewHTTPServerService(server HTTPServer, addr string, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &HTTPServerService{
		server:          server,
		addr:            addr,
		shutdownTimeout: shutdownTimeout,
		listen:          net.Listen,
		ready:           make(chan struct{}),
	}
}

// WithListener replaces the listen function. Used in tests.
func (h *HTTPServerService) WithListener(fn ListenFunc) *HTTPServerService {
	h.listen = fn
	return h
}

// Ready is closed the first time the server starts accepting connections.
func (h *HTTPServerService) Ready() <-chan struct{} {
	return h.ready
}

// Addr returns the address the server is bound to, or "" before the first bind.
func (h *HTTPServerService) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bound
}

// Serve implements suture.Service. A bind failure is returned at once so the
// supervisor can back off and retry. On cancellation the server drains
// in-flight requests for at most the shutdown timeout.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	ln, err := h.listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("api listener on %s: %w", h.addr, err)
	}

	h.mu.Lock()
	h.bound = ln.Addr().String()
	h.mu.Unlock()
	h.readyOnce.Do(func() { close(h.ready) })
	logging.Info().Str("addr", ln.Addr().String()).Msg("API server listening")

	served := make(chan error, 1)
	go func() {
		err := h.server.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		served <- err
	}()

	select {
	case err := <-served:
		if err == nil {
			return errors.New("api server stopped unexpectedly")
		}
		return fmt.Errorf("api server: %w", err)

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Dur("timeout", h.shutdownTimeout).Msg("API server did not drain in time")
			return fmt.Errorf("api server shutdown: %w", err)
		}
		<-served
		logging.Info().Str("addr", ln.Addr().String()).Msg("API server stopped")
		return ctx.Err()
	}
}

// String implements fmt.Stringer for suture logging.
func (h *HTTPServerService) String() string {
	return "api-server"
}
