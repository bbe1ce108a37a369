// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	// instrumentationName is the name of this instrumentation package
	instrumentationName = "github.com/stacklok/oauthbroker/pkg/telemetry"

	// unmatchedRoute labels requests no route matched, keeping label cardinality bounded.
	unmatchedRoute = "unmatched"
)

// HTTPMiddleware records a span, a request counter and a duration histogram per request.
type HTTPMiddleware struct {
	tracer          trace.Tracer
	propagator      propagation.TextMapPropagator
	requestCounter  metric.Int64Counter
	requestDuration metric.Float64Histogram
}

// NewHTTPMiddleware creates the middleware.
func NewHTTPMiddleware(tracerProvider trace.TracerProvider, meterProvider metric.MeterProvider) *HTTPMiddleware {
	meter := meterProvider.Meter(instrumentationName)

	requestCounter, _ := meter.Int64Counter(
		"oauthbroker_http_requests", // The exporter adds the _total suffix automatically
		metric.WithDescription("Total number of HTTP requests"),
	)
	requestDuration, _ := meter.Float64Histogram(
		"oauthbroker_http_request_duration", // The exporter adds the _seconds suffix automatically
		metric.WithDescription("Duration of HTTP requests in seconds"),
		metric.WithUnit("s"),
	)

	return &HTTPMiddleware{
		tracer:          tracerProvider.Tracer(instrumentationName),
		propagator:      otel.GetTextMapPropagator(),
		requestCounter:  requestCounter,
		requestDuration: requestDuration,
	}
}

// Handler wraps next. Routes are labelled by their chi pattern, never by the
// raw path or query string.
func (m *HTTPMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := m.propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		ctx, span := m.tracer.Start(ctx, "HTTP "+r.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.scheme", schemeOf(r)),
			),
		)
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)

		span.SetName(r.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", status),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}

		attrs := metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("route", route),
			attribute.String("status_code", strconv.Itoa(status)),
		)
		m.requestCounter.Add(ctx, 1, attrs)
		m.requestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return unmatchedRoute
}

func schemeOf(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
