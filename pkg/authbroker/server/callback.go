// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"
	"net/url"

	"github.com/stacklok/oauthbroker/pkg/redact"
)

// Fixed callback error codes. Upstream detail is never echoed to the browser.
const (
	callbackErrMissingParams = "missing state or code"
	callbackErrFailed        = "oauth_callback_failed"
)

type callbackErrorResponse struct {
	Error string `json:"error"`
}

// CallbackHandler handles GET /oauth/callback requests from the upstream provider.
// It swaps the upstream code for a local one and redirects to the downstream
// client with code and, if the client sent one, its state. Upstream tokens
// never appear in the redirect.
func (h *Handler) CallbackHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	query := req.URL.Query()
	state := query.Get("state")
	code := query.Get("code")

	if upstreamErr := query.Get("error"); upstreamErr != "" {
		h.logger.WarnContext(ctx, "upstream provider returned an authorization error",
			"upstream_error", upstreamErr,
			"pending_id", redact.HashIdentifier(state))
	}

	if state == "" || code == "" {
		writeJSON(w, http.StatusBadRequest, callbackErrorResponse{Error: callbackErrMissingParams})
		return
	}

	result, err := h.broker.ExchangeUpstreamCode(ctx, state, code)
	if err != nil {
		h.logger.WarnContext(ctx, "oauth callback failed",
			"pending_id", redact.HashIdentifier(state),
			"error", err)
		writeJSON(w, http.StatusBadRequest, callbackErrorResponse{Error: callbackErrFailed})
		return
	}

	target, err := url.Parse(result.RedirectURI)
	if err != nil {
		h.logger.ErrorContext(ctx, "stored redirect URI is not a valid URL", "error", err)
		writeJSON(w, http.StatusBadRequest, callbackErrorResponse{Error: callbackErrFailed})
		return
	}
	// Parameters are appended so the registered URI's own query stays byte-for-byte intact.
	params := url.Values{}
	params.Set("code", result.Code)
	if result.ClientState != nil {
		params.Set("state", *result.ClientState)
	}
	if target.RawQuery == "" {
		target.RawQuery = params.Encode()
	} else {
		target.RawQuery += "&" + params.Encode()
	}

	http.Redirect(w, req, target.String(), http.StatusFound)
}
