// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"

	"github.com/ory/fosite"

	"github.com/stacklok/oauthbroker/pkg/authbroker"
)

// RevokeHandler handles POST /oauth/revoke requests (RFC 7009).
// Unknown tokens are not an error: the response is 200 with an empty body.
func (h *Handler) RevokeHandler(w http.ResponseWriter, req *http.Request) {
	client, rfcErr := h.parseClientForm(w, req)
	if rfcErr != nil {
		writeOAuthError(w, rfcErr)
		return
	}

	token := req.PostForm.Get("token")
	if token == "" {
		writeOAuthError(w, fosite.ErrInvalidRequest.WithHint("The 'token' parameter is required."))
		return
	}

	err := h.broker.RevokeToken(req.Context(), client, authbroker.RevokeRequest{
		Token:         token,
		TokenTypeHint: req.PostForm.Get("token_type_hint"),
	})
	if err != nil {
		h.logger.WarnContext(req.Context(), "token revocation failed",
			"client_id", client.ClientID,
			"error", err)
		writeOAuthError(w, fosite.ErrTemporarilyUnavailable.WithHint("The token could not be revoked upstream."))
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
}
