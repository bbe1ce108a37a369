// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"crypto/subtle"
	"net/http"
	"slices"
	"strings"

	"github.com/ory/fosite"
	"golang.org/x/oauth2"

	"github.com/stacklok/oauthbroker/pkg/authbroker/storage"
	"github.com/stacklok/oauthbroker/pkg/networking"
	"github.com/stacklok/oauthbroker/pkg/redact"
)

// maxFormBodySize limits token and revocation request bodies.
const maxFormBodySize = 64 * 1024

const (
	grantTypeAuthorizationCode = "authorization_code"
	grantTypeRefreshToken      = "refresh_token"
)

// TokenHandler handles POST /oauth/token requests from public clients.
func (h *Handler) TokenHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	client, rfcErr := h.parseClientForm(w, req)
	if rfcErr != nil {
		writeOAuthError(w, rfcErr)
		return
	}

	grantType := req.PostForm.Get("grant_type")
	supported := grantType == grantTypeAuthorizationCode || grantType == grantTypeRefreshToken
	if supported && len(client.GrantTypes) > 0 && !slices.Contains(client.GrantTypes, grantType) {
		writeOAuthError(w, fosite.ErrUnauthorizedClient.WithHintf(
			"The client is not allowed to use the '%s' grant type.", grantType))
		return
	}

	switch grantType {
	case grantTypeAuthorizationCode:
		h.handleAuthorizationCodeGrant(w, req, client)
	case grantTypeRefreshToken:
		h.handleRefreshTokenGrant(w, req, client)
	case "":
		writeOAuthError(w, fosite.ErrInvalidRequest.WithHint("The 'grant_type' parameter is required."))
	default:
		h.logger.DebugContext(ctx, "unsupported grant type", "grant_type", grantType)
		writeOAuthError(w, fosite.ErrUnsupportedGrantType)
	}
}

func (h *Handler) handleAuthorizationCodeGrant(w http.ResponseWriter, req *http.Request, client *storage.RegisteredClient) {
	ctx := req.Context()
	code := req.PostForm.Get("code")
	verifier := req.PostForm.Get("code_verifier")
	if code == "" {
		writeOAuthError(w, fosite.ErrInvalidRequest.WithHint("The 'code' parameter is required."))
		return
	}
	if verifier == "" {
		writeOAuthError(w, fosite.ErrInvalidRequest.WithHint("The 'code_verifier' parameter is required."))
		return
	}

	// PKCE is checked against a peek so that a wrong verifier does not burn the code.
	challenge, err := h.broker.ChallengeForAuthorizationCode(ctx, client, code)
	if err != nil {
		writeOAuthError(w, toOAuthError(err))
		return
	}
	computed := oauth2.S256ChallengeFromVerifier(verifier)
	if subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) != 1 {
		h.logger.WarnContext(ctx, "PKCE verification failed",
			"client_id", client.ClientID,
			"code_id", redact.HashIdentifier(code))
		writeOAuthError(w, fosite.ErrInvalidGrant.WithHint("The PKCE code verifier does not match the code challenge."))
		return
	}

	var redirectURI *string
	if req.PostForm.Has("redirect_uri") {
		uri := req.PostForm.Get("redirect_uri")
		redirectURI = &uri
	}

	tokens, err := h.broker.ExchangeAuthorizationCode(ctx, client, code, &verifier, redirectURI)
	if err != nil {
		writeOAuthError(w, toOAuthError(err))
		return
	}
	writeTokenResponse(w, tokens)
}

func (h *Handler) handleRefreshTokenGrant(w http.ResponseWriter, req *http.Request, client *storage.RegisteredClient) {
	refreshToken := req.PostForm.Get("refresh_token")
	if refreshToken == "" {
		writeOAuthError(w, fosite.ErrInvalidRequest.WithHint("The 'refresh_token' parameter is required."))
		return
	}

	tokens, err := h.broker.ExchangeRefreshToken(req.Context(), client, refreshToken,
		strings.Fields(req.PostForm.Get("scope")))
	if err != nil {
		writeOAuthError(w, refreshError(err))
		return
	}
	writeTokenResponse(w, tokens)
}

// refreshError reports an upstream rejection of the refresh token as invalid_grant.
func refreshError(err error) *fosite.RFC6749Error {
	switch status := networking.StatusCode(err); {
	case status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fosite.ErrInvalidGrant.WithHint("The refresh token was rejected by the identity provider.")
	default:
		return toOAuthError(err)
	}
}

// parseClientForm parses a form-encoded POST body and resolves the public client.
func (h *Handler) parseClientForm(w http.ResponseWriter, req *http.Request) (*storage.RegisteredClient, *fosite.RFC6749Error) {
	req.Body = http.MaxBytesReader(w, req.Body, maxFormBodySize)
	if err := req.ParseForm(); err != nil {
		return nil, fosite.ErrInvalidRequest.WithHint("Unable to parse the request body.")
	}

	clientID := req.PostForm.Get("client_id")
	if clientID == "" {
		if user, _, ok := req.BasicAuth(); ok {
			clientID = user
		}
	}
	if clientID == "" {
		return nil, fosite.ErrInvalidRequest.WithHint("The 'client_id' parameter is required.")
	}

	client, err := h.broker.Clients().GetClient(req.Context(), clientID)
	if err != nil {
		h.logger.ErrorContext(req.Context(), "failed to load client", "client_id", clientID, "error", err)
		return nil, fosite.ErrServerError
	}
	if client == nil {
		return nil, fosite.ErrInvalidClient.WithHint("The client is not registered.")
	}
	return client, nil
}

func writeTokenResponse(w http.ResponseWriter, tokens any) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, tokens)
}
