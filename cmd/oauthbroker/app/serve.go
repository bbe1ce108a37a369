// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/oauthbroker/pkg/authbroker"
	"github.com/stacklok/oauthbroker/pkg/authbroker/server"
	"github.com/stacklok/oauthbroker/pkg/authbroker/storage"
	"github.com/stacklok/oauthbroker/pkg/authbroker/upstream"
	"github.com/stacklok/oauthbroker/pkg/config"
	"github.com/stacklok/oauthbroker/pkg/logger"
	"github.com/stacklok/oauthbroker/pkg/networking"
	"github.com/stacklok/oauthbroker/pkg/telemetry"
)

// serveFlags maps serve flags to configuration keys.
var serveFlags = []struct {
	key   string
	usage string
}{
	{"public-url", "Externally reachable base URL of the broker"},
	{"listen-address", "Address of the OAuth API server"},
	{"metrics-address", "Address of the Prometheus metrics server (empty disables it)"},
	{"upstream.domain", "Upstream identity provider domain"},
	{"upstream.client-id", "Client ID of the broker at the upstream provider"},
	{"upstream.audience", "API audience requested from the upstream provider"},
	{"store.type", "Transient store backend: memory, redis or valkey"},
	{"store.address", "Store address (host:port)"},
	{"store.key-prefix", "Prefix prepended to every store key"},
	{"revoke-failure-policy", "What to do when upstream revocation fails: ignore or propagate"},
	{"clients-file", "YAML file of clients registered at startup"},
	{"telemetry.otlp-endpoint", "OTLP/HTTP collector endpoint (host:port)"},
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the OAuth broker",
		Long: `Start the OAuth API server and, unless disabled, the Prometheus metrics server.

Every setting can also be given in the configuration file or as an environment
variable, e.g. upstream.client-secret as OAUTHBROKER_UPSTREAM_CLIENT_SECRET.`,
		RunE: runServe,
	}

	// Secrets are deliberately not exposed as flags.
	for _, f := range serveFlags {
		flagName := f.key
		cmd.Flags().String(flagName, "", f.usage)
		if err := viper.BindPFlag(f.key, cmd.Flags().Lookup(flagName)); err != nil {
			logger.Errorf("Error binding %s flag: %v", flagName, err)
		}
	}
	cmd.Flags().Bool("enforce-registered-redirect-uris", true, "Reject authorize requests with unregistered redirect URIs")
	if err := viper.BindPFlag("enforce-registered-redirect-uris",
		cmd.Flags().Lookup("enforce-registered-redirect-uris")); err != nil {
		logger.Errorf("Error binding enforce-registered-redirect-uris flag: %v", err)
	}

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Ensure servers are shut down gracefully on Ctrl+C or SIGTERM.
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Infow("configuration loaded", "config", cfg)

	telemetryCfg, err := cfg.TelemetryProviderConfig()
	if err != nil {
		return err
	}
	telemetryProvider, err := telemetry.NewProvider(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to create telemetry provider: %w", err)
	}
	defer func() {
		if err := telemetryProvider.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warnw("telemetry shutdown failed", "error", err)
		}
	}()

	store, err := storage.NewTransientStore(ctx, cfg.StorageConfig(), logger.Get())
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warnw("failed to close store", "error", err)
		}
	}()

	broker, err := newBroker(ctx, cfg, store, telemetryProvider)
	if err != nil {
		return err
	}

	if cfg.ClientsFile != "" {
		clients, err := config.LoadClientsFile(cfg.ClientsFile)
		if err != nil {
			return err
		}
		if err := config.SeedClients(ctx, broker.Clients(), clients); err != nil {
			return err
		}
		logger.Infow("registered clients from file", "count", len(clients), "file", cfg.ClientsFile)
	}

	limit, burst, err := cfg.RegistrationLimit()
	if err != nil {
		return err
	}
	handler := server.NewHandler(broker, store,
		server.WithRegistrationRateLimit(limit, burst),
		server.WithMiddleware(telemetryProvider.Middleware()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gctx, server.NewHTTPServer(gctx, cfg.ListenAddress, handler.Routes()), "oauth")
	})
	if cfg.MetricsAddress != "" {
		g.Go(func() error {
			return server.Serve(gctx, server.NewHTTPServer(gctx, cfg.MetricsAddress,
				metricsRoutes(telemetryProvider.PrometheusHandler())), "metrics")
		})
	}
	return g.Wait()
}

func newBroker(
	ctx context.Context,
	cfg *config.Config,
	store storage.TransientStore,
	telemetryProvider *telemetry.Provider,
) (*authbroker.Broker, error) {
	brokerCfg, err := cfg.BrokerConfig()
	if err != nil {
		return nil, err
	}

	upstreamCfg := cfg.UpstreamClientConfig(brokerCfg.CallbackURL())
	provider, err := upstream.NewClient(upstreamCfg, upstream.WithLogger(logger.Get()))
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream client: %w", err)
	}

	// Access-token verification needs an API audience to check against.
	var verifier upstream.AccessTokenVerifier
	if cfg.Upstream.Audience != "" {
		httpClient, err := networking.NewHttpClientBuilder().Build()
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP client: %w", err)
		}
		verifier, err = upstream.NewJWTVerifier(ctx, upstream.VerifierConfig{
			Issuer:     upstreamCfg.Issuer(),
			Audience:   cfg.Upstream.Audience,
			HTTPClient: httpClient,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create access token verifier: %w", err)
		}
	}

	return authbroker.New(brokerCfg,
		storage.NewClientStore(store),
		storage.NewTransactionStore(store),
		provider,
		verifier,
		authbroker.WithLogger(logger.Get()),
		authbroker.WithMeterProvider(telemetryProvider.MeterProvider()),
		authbroker.WithTracerProvider(telemetryProvider.TracerProvider()),
	)
}

func metricsRoutes(promHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promHandler)
	return r
}
