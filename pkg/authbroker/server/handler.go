// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/stacklok/oauthbroker/pkg/authbroker"
	"github.com/stacklok/oauthbroker/pkg/logger"
)

const (
	// middlewareTimeout bounds every request, upstream calls included.
	middlewareTimeout = 60 * time.Second

	// DefaultRegistrationRate is the sustained per-IP registration rate.
	DefaultRegistrationRate = rate.Limit(10.0 / 60.0)

	// DefaultRegistrationBurst is the per-IP registration burst.
	DefaultRegistrationBurst = 5
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler provides the broker's HTTP endpoints.
type Handler struct {
	broker            *authbroker.Broker
	store             Pinger
	logger            *slog.Logger
	registrationLimit *ipRateLimiter
	middlewares       []func(http.Handler) http.Handler
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger. It defaults to logger.Get().
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = l
	}
}

// WithRegistrationRateLimit sets the per-IP dynamic registration rate limit.
func WithRegistrationRateLimit(limit rate.Limit, burst int) Option {
	return func(h *Handler) {
		h.registrationLimit = newIPRateLimiter(limit, burst)
	}
}

// WithMiddleware adds middleware, e.g. telemetry, after the built-in chain.
func WithMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.middlewares = append(h.middlewares, mw...)
	}
}

// NewHandler creates a Handler. store backs the health check.
func NewHandler(broker *authbroker.Broker, store Pinger, opts ...Option) *Handler {
	h := &Handler{
		broker: broker,
		store:  store,
		logger: logger.Get(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.registrationLimit == nil {
		h.registrationLimit = newIPRateLimiter(DefaultRegistrationRate, DefaultRegistrationBurst)
	}
	return h
}

// Routes returns a router with all endpoints registered.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		h.requestLogger,
		middleware.Recoverer,
		middleware.Timeout(middlewareTimeout),
	)
	r.Use(h.middlewares...)

	h.OAuthRoutes(r)
	h.WellKnownRoutes(r)
	r.Get("/health", h.HealthHandler)
	return r
}

// OAuthRoutes registers the OAuth endpoints on r.
func (h *Handler) OAuthRoutes(r chi.Router) {
	r.Get("/oauth/authorize", h.AuthorizeHandler)
	r.Get(authbroker.CallbackPath, h.CallbackHandler)
	r.Post("/oauth/token", h.TokenHandler)
	r.With(h.registrationLimit.middleware).Post("/oauth/register", h.RegisterClientHandler)
	r.Post("/oauth/revoke", h.RevokeHandler)
}

// WellKnownRoutes registers the discovery endpoint on r.
func (h *Handler) WellKnownRoutes(r chi.Router) {
	r.Get("/.well-known/oauth-authorization-server", h.OAuthDiscoveryHandler)
}
