// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/stacklok/oauthbroker/pkg/logger"
	"github.com/stacklok/oauthbroker/pkg/versions"
)

// shutdownTimeout bounds flushing exporters on shutdown.
const shutdownTimeout = 5 * time.Second

// Config holds telemetry settings.
type Config struct {
	// ServiceName identifies the service in exported telemetry.
	ServiceName string

	// ServiceVersion identifies the service version in exported telemetry.
	ServiceVersion string

	// Endpoint is the OTLP/HTTP collector endpoint (host:port). Empty disables OTLP export.
	Endpoint string

	// Headers are sent with every OTLP request.
	Headers map[string]string

	// Insecure sends OTLP over plain HTTP.
	Insecure bool

	// SamplingRate is the fraction of traces sampled, 0.0 to 1.0.
	SamplingRate float64

	// ResourceAttributes are added to the exported resource.
	ResourceAttributes []attribute.KeyValue
}

// DefaultConfig returns a configuration with OTLP export disabled.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "oauthbroker",
		ServiceVersion: versions.GetVersionInfo().Version,
		SamplingRate:   0.1,
		Headers:        map[string]string{},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ServiceName == "" {
		return errors.New("telemetry service name cannot be empty")
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling rate must be between 0.0 and 1.0, got %v", c.SamplingRate)
	}
	return nil
}

// Provider owns the meter and tracer providers and the Prometheus handler.
type Provider struct {
	tracerProvider    trace.TracerProvider
	meterProvider     metric.MeterProvider
	prometheusHandler http.Handler
	shutdownFuncs     []func(context.Context) error
}

// NewProvider builds the providers and installs them as the otel globals.
func NewProvider(ctx context.Context, config Config) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	attrs := append([]attribute.KeyValue{
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
	}, config.ResourceAttributes...)
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource with service name '%s' and version '%s': %w",
			config.ServiceName, config.ServiceVersion, err)
	}

	p := &Provider{}
	if err := p.buildMeterProvider(ctx, config, res); err != nil {
		return nil, err
	}
	if err := p.buildTracerProvider(ctx, config, res); err != nil {
		_ = p.Shutdown(ctx)
		return nil, err
	}

	otel.SetTracerProvider(p.tracerProvider)
	otel.SetMeterProvider(p.meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Debugw("telemetry providers created",
		"otlp_endpoint", config.Endpoint,
		"sampling_rate", config.SamplingRate)
	return p, nil
}

func (p *Provider) buildMeterProvider(ctx context.Context, config Config, res *resource.Resource) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	promExporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExporter),
	}

	if config.Endpoint != "" {
		metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(config.Endpoint)}
		if len(config.Headers) > 0 {
			metricOpts = append(metricOpts, otlpmetrichttp.WithHeaders(config.Headers))
		}
		if config.Insecure {
			metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
		}
		exporter, err := otlpmetrichttp.New(ctx, metricOpts...)
		if err != nil {
			return fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)))
	}

	meterProvider := sdkmetric.NewMeterProvider(opts...)
	p.meterProvider = meterProvider
	p.prometheusHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	p.shutdownFuncs = append(p.shutdownFuncs, meterProvider.Shutdown)
	return nil
}

func (p *Provider) buildTracerProvider(ctx context.Context, config Config, res *resource.Resource) error {
	if config.Endpoint == "" {
		p.tracerProvider = tracenoop.NewTracerProvider()
		return nil
	}

	traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(config.Endpoint)}
	if len(config.Headers) > 0 {
		traceOpts = append(traceOpts, otlptracehttp.WithHeaders(config.Headers))
	}
	if config.Insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SamplingRate))),
	)
	p.tracerProvider = tracerProvider
	p.shutdownFuncs = append(p.shutdownFuncs, tracerProvider.Shutdown)
	return nil
}

// TracerProvider returns the tracer provider.
func (p *Provider) TracerProvider() trace.TracerProvider {
	return p.tracerProvider
}

// MeterProvider returns the meter provider.
func (p *Provider) MeterProvider() metric.MeterProvider {
	return p.meterProvider
}

// PrometheusHandler serves the Prometheus exposition of all broker metrics.
func (p *Provider) PrometheusHandler() http.Handler {
	return p.prometheusHandler
}

// Middleware returns HTTP middleware bound to this provider.
func (p *Provider) Middleware() func(http.Handler) http.Handler {
	return NewHTTPMiddleware(p.tracerProvider, p.meterProvider).Handler
}

// Shutdown flushes and stops all exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error
	for i, shutdown := range p.shutdownFuncs {
		if err := shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("provider %d shutdown failed: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
