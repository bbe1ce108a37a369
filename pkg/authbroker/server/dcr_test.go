// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/stacklok/oauthbroker/pkg/authbroker"
)

func registerRequest(body, contentType string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/oauth/register", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req
}

func TestRegisterClientHandler_Success(t *testing.T) {
	t.Parallel()
	f := handlerTestSetup(t, authbroker.Config{})

	rec := f.do(registerRequest(
		`{"redirect_uris":["http://127.0.0.1:33418/callback"],"client_name":"VS Code"}`,
		"application/json; charset=utf-8"))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var resp DCRResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ClientID)
	assert.NotZero(t, resp.ClientIDIssuedAt)
	assert.Equal(t, "VS Code", resp.ClientName)
	assert.Equal(t, "none", resp.TokenEndpointAuthMethod)
	assert.Equal(t, []string{"authorization_code", "refresh_token"}, resp.GrantTypes)
	assert.Equal(t, []string{"code"}, resp.ResponseTypes)

	stored, err := f.broker.Clients().GetClient(t.Context(), resp.ClientID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, []string{"http://127.0.0.1:33418/callback"}, stored.RedirectURIs)

	// The registered client can start an authorization right away.
	query := authorizeQuery()
	query.Set("client_id", resp.ClientID)
	query.Set("redirect_uri", "http://127.0.0.1:33418/callback")
	f.startAuthorization(t, query)
}

func TestRegisterClientHandler_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        string
		contentType string
		wantError   string
	}{
		{
			name:        "wrong content type",
			body:        `{"redirect_uris":["https://app.example.com/cb"]}`,
			contentType: "text/plain",
			wantError:   DCRErrorInvalidClientMetadata,
		},
		{
			name:        "malformed JSON",
			body:        `{"redirect_uris":`,
			contentType: "application/json",
			wantError:   DCRErrorInvalidClientMetadata,
		},
		{
			name:        "no redirect URIs",
			body:        `{"client_name":"x"}`,
			contentType: "application/json",
			wantError:   DCRErrorInvalidRedirectURI,
		},
		{
			name:        "non-loopback http redirect",
			body:        `{"redirect_uris":["http://app.example.com/cb"]}`,
			contentType: "application/json",
			wantError:   DCRErrorInvalidRedirectURI,
		},
		{
			name:        "confidential client",
			body:        `{"redirect_uris":["https://app.example.com/cb"],"token_endpoint_auth_method":"client_secret_basic"}`,
			contentType: "application/json",
			wantError:   DCRErrorInvalidClientMetadata,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := handlerTestSetup(t, authbroker.Config{})

			rec := f.do(registerRequest(tc.body, tc.contentType))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.wantError, decodeJSON(t, rec)["error"])
		})
	}
}

func TestRegisterClientHandler_RateLimited(t *testing.T) {
	t.Parallel()
	f := handlerTestSetup(t, authbroker.Config{}, WithRegistrationRateLimit(rate.Limit(0.001), 2))

	body := `{"redirect_uris":["https://app.example.com/cb"]}`
	for range 2 {
		rec := f.do(registerRequest(body, "application/json"))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := f.do(registerRequest(body, "application/json"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "too_many_requests", decodeJSON(t, rec)["error"])

	// Another address has its own bucket.
	req := registerRequest(body, "application/json")
	req.RemoteAddr = "198.51.100.7:4242"
	rec = f.do(req)
	assert.Equal(t, http.StatusCreated, rec.Code)
}
