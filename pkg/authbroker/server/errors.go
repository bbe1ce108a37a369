// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/ory/fosite"

	brokererrors "github.com/stacklok/oauthbroker/pkg/errors"
	"github.com/stacklok/oauthbroker/pkg/logger"
)

// oauthErrorResponse is an RFC 6749 section 5.2 error body.
type oauthErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// writeJSON writes v with status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encoding errors are not recoverable (headers already written), log for diagnostics
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debugw("failed to encode response", "error", err)
	}
}

// writeOAuthError writes rfcErr as JSON with its status code.
func writeOAuthError(w http.ResponseWriter, rfcErr *fosite.RFC6749Error) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, rfcErr.StatusCode(), oauthErrorResponse{
		Error:            rfcErr.ErrorField,
		ErrorDescription: rfcErr.GetDescription(),
	})
}

// redirectOAuthError sends an authorization error back to a trusted redirect
// URI per RFC 6749 section 4.1.2.1.
func redirectOAuthError(w http.ResponseWriter, r *http.Request, redirectURI string, state *string, rfcErr *fosite.RFC6749Error) {
	target, err := url.Parse(redirectURI)
	if err != nil {
		writeOAuthError(w, rfcErr)
		return
	}
	q := target.Query()
	q.Set("error", rfcErr.ErrorField)
	if desc := rfcErr.GetDescription(); desc != "" {
		q.Set("error_description", desc)
	}
	if state != nil {
		q.Set("state", *state)
	}
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// toOAuthError maps a broker error onto an RFC 6749 error. The broker's own
// message is kept as the description for transaction and mismatch errors;
// upstream and storage details never reach the client.
func toOAuthError(err error) *fosite.RFC6749Error {
	var rfcErr *fosite.RFC6749Error
	if errors.As(err, &rfcErr) {
		return rfcErr
	}

	var brokerErr *brokererrors.Error
	if errors.As(err, &brokerErr) {
		switch brokerErr.Type {
		case brokererrors.ErrInvalidTransaction, brokererrors.ErrMismatch:
			return fosite.ErrInvalidGrant.WithHint(brokerErr.Message)
		case brokererrors.ErrInvalidArgument:
			return fosite.ErrInvalidRequest.WithHint(brokerErr.Message)
		case brokererrors.ErrUpstream:
			return fosite.ErrServerError.WithHint("The upstream identity provider rejected the request.")
		}
	}
	return fosite.ErrServerError
}
