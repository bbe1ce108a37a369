// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestHTTPMiddleware(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	spans := tracetest.NewSpanRecorder()
	mw := NewHTTPMiddleware(
		sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
		sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	)

	r := chi.NewRouter()
	r.Use(mw.Handler)
	r.Get("/oauth/callback", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	for _, target := range []string{
		"/oauth/callback?state=secret-state&code=secret-code",
		"/health",
		"/health",
		"/nope",
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "oauthbroker_http_requests" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				route, _ := dp.Attributes.Value(attribute.Key("route"))
				status, _ := dp.Attributes.Value(attribute.Key("status_code"))
				counts[route.AsString()+" "+status.AsString()] = dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{
		"/oauth/callback 400": 1,
		"/health 200":         2,
		"unmatched 404":       1,
	}, counts)

	var names []string
	for _, s := range spans.Ended() {
		names = append(names, s.Name())
		for _, kv := range s.Attributes() {
			assert.NotContains(t, kv.Value.Emit(), "secret-code")
		}
	}
	assert.Contains(t, names, "GET /oauth/callback")
	assert.Contains(t, names, "GET /health")
}
