// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"
	"strings"

	"github.com/ory/fosite"

	"github.com/stacklok/oauthbroker/pkg/authbroker"
)

// PKCEChallengeMethodS256 is the only PKCE method accepted (RFC 7636).
const PKCEChallengeMethodS256 = "S256"

// AuthorizeHandler handles GET /oauth/authorize requests.
// Until the redirect URI is trusted, errors are returned as JSON; after that
// they are redirected to the client.
func (h *Handler) AuthorizeHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	query := req.URL.Query()

	clientID := query.Get("client_id")
	if clientID == "" {
		writeOAuthError(w, fosite.ErrInvalidRequest.WithHint("The 'client_id' parameter is required."))
		return
	}

	client, err := h.broker.Clients().GetClient(ctx, clientID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load client", "client_id", clientID, "error", err)
		writeOAuthError(w, fosite.ErrServerError)
		return
	}
	if client == nil {
		writeOAuthError(w, fosite.ErrInvalidClient.WithHint("The client is not registered."))
		return
	}

	redirectURI := query.Get("redirect_uri")
	if redirectURI == "" && len(client.RedirectURIs) == 1 {
		redirectURI = client.RedirectURIs[0]
	}
	if redirectURI == "" {
		writeOAuthError(w, fosite.ErrInvalidRequest.WithHint("The 'redirect_uri' parameter is required."))
		return
	}
	if h.broker.Config().EnforceRegisteredRedirectURIs && !client.HasRedirectURI(redirectURI) {
		h.logger.WarnContext(ctx, "authorize request with unregistered redirect URI", "client_id", clientID)
		writeOAuthError(w, fosite.ErrInvalidRequest.WithHint("The 'redirect_uri' is not registered for this client."))
		return
	}

	// The redirect URI is trusted from here on.
	var state *string
	if query.Has("state") {
		s := query.Get("state")
		state = &s
	}

	if query.Get("response_type") != "code" {
		redirectOAuthError(w, req, redirectURI, state,
			fosite.ErrUnsupportedResponseType.WithHint("Only the 'code' response type is supported."))
		return
	}

	codeChallenge := query.Get("code_challenge")
	if codeChallenge == "" {
		redirectOAuthError(w, req, redirectURI, state,
			fosite.ErrInvalidRequest.WithHint("The 'code_challenge' parameter is required."))
		return
	}
	if method := query.Get("code_challenge_method"); method != "" && method != PKCEChallengeMethodS256 {
		redirectOAuthError(w, req, redirectURI, state,
			fosite.ErrInvalidRequest.WithHint("Only the 'S256' code challenge method is supported."))
		return
	}

	err = h.broker.Authorize(ctx, w, req, client, authbroker.AuthorizeParams{
		RedirectURI:   redirectURI,
		CodeChallenge: codeChallenge,
		State:         state,
		Scopes:        strings.Fields(query.Get("scope")),
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to start authorization", "client_id", clientID, "error", err)
		redirectOAuthError(w, req, redirectURI, state, fosite.ErrServerError)
	}
}
