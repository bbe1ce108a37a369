// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authbroker

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"github.com/stacklok/oauthbroker/pkg/authbroker/storage"
	"github.com/stacklok/oauthbroker/pkg/authbroker/upstream"
	brokererrors "github.com/stacklok/oauthbroker/pkg/errors"
	"github.com/stacklok/oauthbroker/pkg/redact"
)

// Error messages returned to callers. They are part of the broker's contract.
const (
	msgInvalidState        = "invalid or expired OAuth state"
	msgInvalidCode         = "invalid authorization code"
	msgInvalidOrExpired    = "invalid or expired authorization code"
	msgRedirectURIMismatch = "redirect URI mismatch"
)

// AuthorizeParams are the downstream parameters of an authorize request.
type AuthorizeParams struct {
	// RedirectURI is where the downstream client wants the local code delivered.
	RedirectURI string

	// CodeChallenge is the downstream PKCE S256 challenge.
	CodeChallenge string

	// State is the downstream client's opaque state, if it sent one.
	State *string

	// Scopes requested by the client. Empty selects upstream.DefaultScopes.
	Scopes []string
}

// UpstreamExchangeResult is what the callback needs to redirect back to the client.
type UpstreamExchangeResult struct {
	// Code is the local authorization code.
	Code string

	// RedirectURI is the downstream redirect URI from the authorize request.
	RedirectURI string

	// ClientState is the downstream client's state, nil if it sent none.
	ClientState *string

	// Tokens are the upstream tokens now held under Code. They must never be
	// placed in the redirect.
	Tokens upstream.TokenBundle
}

// Authorize creates a pending authorization and redirects the browser to the
// upstream provider with a 302. Only client.ClientID is used.
func (b *Broker) Authorize(
	ctx context.Context,
	w http.ResponseWriter,
	r *http.Request,
	client *storage.RegisteredClient,
	params AuthorizeParams,
) error {
	target, _, err := b.AuthorizeURL(ctx, client, params)
	if err != nil {
		return err
	}
	http.Redirect(w, r, target, http.StatusFound)
	return nil
}

// AuthorizeURL creates a pending authorization and returns the upstream
// authorize URL whose state parameter is the pending record's id.
func (b *Broker) AuthorizeURL(
	ctx context.Context,
	client *storage.RegisteredClient,
	params AuthorizeParams,
) (_ string, _ *storage.PendingAuthorization, err error) {
	if client == nil {
		return "", nil, brokererrors.NewInvalidArgumentError("client is required", nil)
	}

	ctx, span := b.startSpan(ctx, "Authorize", attribute.String("oauth.client_id", client.ClientID))
	defer func() {
		b.metrics.recordAuthorization(ctx, resultOf(err))
		endSpan(span, err)
	}()

	scopes := params.Scopes
	if len(scopes) == 0 {
		scopes = upstream.DefaultScopes
	}

	pending, err := b.transactions.CreatePendingAuthorization(ctx, storage.PendingAuthorizationInput{
		ClientID:      client.ClientID,
		RedirectURI:   params.RedirectURI,
		CodeChallenge: params.CodeChallenge,
		ClientState:   params.State,
		Scopes:        scopes,
	})
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to store pending authorization",
			"client_id", client.ClientID,
			"error", err)
		return "", nil, err
	}

	b.logger.InfoContext(ctx, "authorization pending upstream login",
		"client_id", client.ClientID,
		"pending_id", redact.HashIdentifier(pending.ID))

	return b.upstream.AuthorizationURL(pending.ID, scopes), pending, nil
}

// ExchangeUpstreamCode redeems the upstream code for the pending authorization
// pendingID and issues a local authorization code carrying the upstream tokens.
//
// The pending record is deleted only after a successful upstream exchange, so
// a failed upstream call can be retried until the record expires. If deleting
// it fails, no local code is issued.
func (b *Broker) ExchangeUpstreamCode(
	ctx context.Context,
	pendingID, upstreamCode string,
) (_ *UpstreamExchangeResult, err error) {
	ctx, span := b.startSpan(ctx, "ExchangeUpstreamCode")
	defer func() { endSpan(span, err) }()

	pending, err := b.transactions.GetPendingAuthorization(ctx, pendingID)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		b.logger.WarnContext(ctx, "callback for unknown or expired pending authorization",
			"pending_id", redact.HashIdentifier(pendingID))
		return nil, brokererrors.NewInvalidTransactionError(msgInvalidState, nil)
	}
	span.SetAttributes(attribute.String("oauth.client_id", pending.ClientID))

	tokens, err := b.upstream.ExchangeCode(ctx, upstreamCode)
	b.metrics.recordUpstreamExchange(ctx, "authorization_code", resultOf(err))
	if err != nil {
		b.logger.WarnContext(ctx, "upstream code exchange failed",
			"pending_id", redact.HashIdentifier(pendingID),
			"error", err)
		return nil, brokererrors.NewUpstreamError("upstream code exchange failed", err)
	}

	// Delete before issuing so a storage failure leaves no local code behind.
	if err := b.transactions.DeletePendingAuthorization(ctx, pending.ID); err != nil {
		return nil, err
	}

	code, err := b.transactions.IssueAuthorizationCode(ctx, storage.AuthorizationCodeInput{
		ClientID:      pending.ClientID,
		RedirectURI:   pending.RedirectURI,
		CodeChallenge: pending.CodeChallenge,
		Tokens:        *tokens,
		Scopes:        pending.Scopes,
	})
	if err != nil {
		return nil, err
	}

	b.logger.InfoContext(ctx, "issued local authorization code",
		"client_id", pending.ClientID,
		"pending_id", redact.HashIdentifier(pending.ID),
		"code_id", redact.HashIdentifier(code.ID),
		"tokens", code.Tokens)

	return &UpstreamExchangeResult{
		Code:        code.ID,
		RedirectURI: pending.RedirectURI,
		ClientState: pending.ClientState,
		Tokens:      code.Tokens,
	}, nil
}
