// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/oauthbroker/pkg/authbroker"
)

func TestIPRateLimiter(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newIPRateLimiter(1, 2)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.2"))

	now = now.Add(time.Second)
	assert.True(t, l.allow("10.0.0.1"))

	// Idle limiters are swept.
	now = now.Add(2 * limiterIdleTTL)
	l.allow("10.0.0.3")
	l.mu.Lock()
	assert.Len(t, l.limiters, 1)
	l.mu.Unlock()
}

func TestRemoteIP(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	assert.Equal(t, "203.0.113.9", remoteIP(req))

	req.RemoteAddr = "203.0.113.9"
	assert.Equal(t, "203.0.113.9", remoteIP(req))
}

func TestRequestLogger_OmitsQuery(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	f := handlerTestSetup(t, authbroker.Config{})
	h := NewHandler(f.broker, f.store,
		WithLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))))

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/oauth/callback?state=secret-state&code=secret-code", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, buf.String(), `"path":"/oauth/callback"`)
	assert.NotContains(t, buf.String(), "secret-code")
}

func TestWithMiddleware(t *testing.T) {
	t.Parallel()

	f := handlerTestSetup(t, authbroker.Config{}, WithMiddleware(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Test-Middleware", "1")
			next.ServeHTTP(w, r)
		})
	}))

	rec := f.get("/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Test-Middleware"))
}
