// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/stacklok/oauthbroker/pkg/logger"
)

// HTTP server timeouts.
const (
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 15 * time.Second
	idleTimeout       = 60 * time.Second

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 30 * time.Second
)

// NewHTTPServer returns an http.Server with the broker's timeouts.
// The write timeout leaves room for the upstream round trip of a token request.
func NewHTTPServer(ctx context.Context, address string, handler http.Handler) *http.Server {
	return &http.Server{
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readHeaderTimeout,
		WriteTimeout:      writeTimeout + middlewareTimeout,
		IdleTimeout:       idleTimeout,
	}
}

// Serve runs srv until ctx is cancelled, then shuts it down gracefully.
// It is assumed that the caller sets up appropriate signal handling.
func Serve(ctx context.Context, srv *http.Server, name string) error {
	listener, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
	}
	logger.Infow("starting server", "server", name, "address", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s server stopped with error: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s server shutdown failed: %w", name, err)
	}
	logger.Infow("server stopped", "server", name)
	return nil
}
