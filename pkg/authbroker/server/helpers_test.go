// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/oauth2"

	"github.com/stacklok/oauthbroker/pkg/authbroker"
	"github.com/stacklok/oauthbroker/pkg/authbroker/storage"
	"github.com/stacklok/oauthbroker/pkg/authbroker/upstream"
	upstreammocks "github.com/stacklok/oauthbroker/pkg/authbroker/upstream/mocks"
)

const (
	testClientID     = "test-client"
	testRedirectURI  = "http://localhost:8080/callback"
	testPublicURL    = "https://broker.example.com"
	testUpstreamAuth = "https://tenant.example.com/authorize?state="
	testVerifier     = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
)

var testTokens = upstream.TokenBundle{
	AccessToken:  "upstream-access-token",
	RefreshToken: "upstream-refresh-token",
	IDToken:      "upstream-id-token",
	TokenType:    "Bearer",
	ExpiresIn:    3600,
}

type handlerFixture struct {
	handler  *Handler
	routes   http.Handler
	broker   *authbroker.Broker
	provider *upstreammocks.MockProvider
	store    *storage.MemoryStore
}

func handlerTestSetup(t *testing.T, cfg authbroker.Config, opts ...Option) *handlerFixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	store := storage.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	clients := storage.NewClientStore(store)
	_, err := clients.RegisterClient(context.Background(), storage.RegisteredClient{
		ClientID:      testClientID,
		RedirectURIs:  []string{testRedirectURI},
		GrantTypes:    []string{"authorization_code", "refresh_token"},
		ResponseTypes: []string{"code"},
	})
	require.NoError(t, err)

	provider := upstreammocks.NewMockProvider(ctrl)
	provider.EXPECT().AuthorizationURL(gomock.Any(), gomock.Any()).
		DoAndReturn(func(state string, _ []string) string { return testUpstreamAuth + state }).
		AnyTimes()

	if cfg.PublicURL == "" {
		cfg.PublicURL = testPublicURL
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	b, err := authbroker.New(cfg, clients, storage.NewTransactionStore(store), provider, nil,
		authbroker.WithLogger(quiet))
	require.NoError(t, err)

	h := NewHandler(b, store, append([]Option{WithLogger(quiet)}, opts...)...)
	return &handlerFixture{
		handler:  h,
		routes:   h.Routes(),
		broker:   b,
		provider: provider,
		store:    store,
	}
}

func (f *handlerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.routes.ServeHTTP(rec, req)
	return rec
}

func (f *handlerFixture) get(target string) *httptest.ResponseRecorder {
	return f.do(httptest.NewRequest(http.MethodGet, target, nil))
}

func (f *handlerFixture) postForm(target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.do(req)
}

// authorizeQuery returns a valid authorize query for the test client.
func authorizeQuery() url.Values {
	return url.Values{
		"client_id":             {testClientID},
		"redirect_uri":          {testRedirectURI},
		"response_type":         {"code"},
		"code_challenge":        {oauth2.S256ChallengeFromVerifier(testVerifier)},
		"code_challenge_method": {"S256"},
		"state":                 {"client-state"},
	}
}

// startAuthorization runs the authorize endpoint and returns the pending id.
func (f *handlerFixture) startAuthorization(t *testing.T, query url.Values) string {
	t.Helper()
	rec := f.get("/oauth/authorize?" + query.Encode())
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	location := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, testUpstreamAuth), location)
	return strings.TrimPrefix(location, testUpstreamAuth)
}

// completeCallback runs authorize and the callback and returns the local code.
func (f *handlerFixture) completeCallback(t *testing.T) string {
	t.Helper()
	pendingID := f.startAuthorization(t, authorizeQuery())

	tokens := testTokens
	f.provider.EXPECT().ExchangeCode(gomock.Any(), "upstream-code").Return(&tokens, nil)

	rec := f.get("/oauth/callback?state=" + url.QueryEscape(pendingID) + "&code=upstream-code")
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	code := location.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}
