// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authbroker

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/oauthbroker/pkg/authbroker/storage"
	"github.com/stacklok/oauthbroker/pkg/authbroker/upstream"
	"github.com/stacklok/oauthbroker/pkg/logger"
)

const instrumentationName = "github.com/stacklok/oauthbroker/pkg/authbroker"

// Metric result attribute values.
const (
	resultSuccess = "success"
	resultFailure = "failure"
	resultIgnored = "ignored"
)

// Broker implements the authorization code broker state machine.
type Broker struct {
	config       Config
	clients      *storage.ClientStore
	transactions *storage.TransactionStore
	upstream     upstream.Provider
	verifier     upstream.AccessTokenVerifier
	logger       *slog.Logger

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	metrics        *brokerMetrics
}

// Option configures a Broker.
type Option func(*Broker)

// WithLogger sets the logger. It defaults to logger.Get().
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) {
		b.logger = l
	}
}

// WithMeterProvider sets the meter provider. It defaults to the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(b *Broker) {
		b.meterProvider = mp
	}
}

// WithTracerProvider sets the tracer provider. It defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(b *Broker) {
		b.tracerProvider = tp
	}
}

// New creates a Broker. verifier may be nil when VerifyAccessToken is not used.
func New(
	config Config,
	clients *storage.ClientStore,
	transactions *storage.TransactionStore,
	provider upstream.Provider,
	verifier upstream.AccessTokenVerifier,
	opts ...Option,
) (*Broker, error) {
	if clients == nil || transactions == nil {
		return nil, errors.New("client and transaction stores are required")
	}
	if provider == nil {
		return nil, errors.New("upstream provider is required")
	}
	if config.RevokeFailurePolicy == "" {
		config.RevokeFailurePolicy = RevokeFailureIgnore
	}
	if _, err := ParseRevokeFailurePolicy(string(config.RevokeFailurePolicy)); err != nil {
		return nil, err
	}

	b := &Broker{
		config:         config,
		clients:        clients,
		transactions:   transactions,
		upstream:       provider,
		verifier:       verifier,
		logger:         logger.Get(),
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.tracer = b.tracerProvider.Tracer(instrumentationName)
	b.metrics = newBrokerMetrics(b.meterProvider.Meter(instrumentationName))
	return b, nil
}

// Config returns the broker configuration.
func (b *Broker) Config() Config {
	return b.config
}

// Clients returns the registered clients store.
func (b *Broker) Clients() *storage.ClientStore {
	return b.clients
}

// startSpan starts a span named after a broker operation.
func (b *Broker) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return b.tracer.Start(ctx, "authbroker."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// endSpan records err on span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func resultOf(err error) string {
	if err != nil {
		return resultFailure
	}
	return resultSuccess
}

type brokerMetrics struct {
	authorizations    metric.Int64Counter
	upstreamExchanges metric.Int64Counter
	codeRedemptions   metric.Int64Counter
	revocations       metric.Int64Counter
}

func newBrokerMetrics(meter metric.Meter) *brokerMetrics {
	authorizations, _ := meter.Int64Counter(
		"oauthbroker_authorizations", // The exporter adds the _total suffix automatically
		metric.WithDescription("Number of authorization requests sent upstream"),
	)
	upstreamExchanges, _ := meter.Int64Counter(
		"oauthbroker_upstream_exchanges",
		metric.WithDescription("Number of token requests made to the upstream provider"),
	)
	codeRedemptions, _ := meter.Int64Counter(
		"oauthbroker_code_redemptions",
		metric.WithDescription("Number of local authorization code redemptions"),
	)
	revocations, _ := meter.Int64Counter(
		"oauthbroker_revocations",
		metric.WithDescription("Number of token revocations forwarded upstream"),
	)
	return &brokerMetrics{
		authorizations:    authorizations,
		upstreamExchanges: upstreamExchanges,
		codeRedemptions:   codeRedemptions,
		revocations:       revocations,
	}
}

func (m *brokerMetrics) recordAuthorization(ctx context.Context, result string) {
	m.authorizations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *brokerMetrics) recordUpstreamExchange(ctx context.Context, grantType, result string) {
	m.upstreamExchanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("grant_type", grantType),
		attribute.String("result", result),
	))
}

func (m *brokerMetrics) recordCodeRedemption(ctx context.Context, result string) {
	m.codeRedemptions.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *brokerMetrics) recordRevocation(ctx context.Context, result string) {
	m.revocations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
