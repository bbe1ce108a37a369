// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authbroker

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/stacklok/oauthbroker/pkg/authbroker/storage"
	"github.com/stacklok/oauthbroker/pkg/authbroker/upstream"
	brokererrors "github.com/stacklok/oauthbroker/pkg/errors"
	"github.com/stacklok/oauthbroker/pkg/redact"
)

// RevokeRequest is an RFC 7009 revocation request.
type RevokeRequest struct {
	Token         string
	TokenTypeHint string
}

// ChallengeForAuthorizationCode returns the PKCE challenge bound to code
// without consuming it. The code must have been issued to client.
func (b *Broker) ChallengeForAuthorizationCode(
	ctx context.Context,
	client *storage.RegisteredClient,
	code string,
) (string, error) {
	record, err := b.transactions.GetAuthorizationCode(ctx, code)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", brokererrors.NewInvalidTransactionError(msgInvalidCode, nil)
	}
	if client == nil || record.ClientID != client.ClientID {
		b.logger.WarnContext(ctx, "authorization code presented by a different client",
			"code_id", redact.HashIdentifier(code))
		return "", brokererrors.NewMismatchError(msgInvalidCode, nil)
	}
	return record.CodeChallenge, nil
}

// ExchangeAuthorizationCode consumes code and returns the upstream tokens held
// under it. When redirectURI is non-nil it must equal the redirect URI of the
// original authorize request byte for byte.
//
// The code verifier is not checked here: callers compare it against
// ChallengeForAuthorizationCode before redeeming.
func (b *Broker) ExchangeAuthorizationCode(
	ctx context.Context,
	client *storage.RegisteredClient,
	code string,
	_ *string,
	redirectURI *string,
) (_ *upstream.TokenBundle, err error) {
	ctx, span := b.startSpan(ctx, "ExchangeAuthorizationCode")
	if client != nil {
		span.SetAttributes(attribute.String("oauth.client_id", client.ClientID))
	}
	defer func() {
		b.metrics.recordCodeRedemption(ctx, resultOf(err))
		endSpan(span, err)
	}()

	record, err := b.transactions.ConsumeAuthorizationCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if record == nil {
		b.logger.WarnContext(ctx, "authorization code already redeemed or expired",
			"code_id", redact.HashIdentifier(code))
		return nil, brokererrors.NewInvalidTransactionError(msgInvalidOrExpired, nil)
	}
	if redirectURI != nil && *redirectURI != record.RedirectURI {
		b.logger.WarnContext(ctx, "redirect URI mismatch on code redemption",
			"client_id", record.ClientID,
			"code_id", redact.HashIdentifier(code))
		return nil, brokererrors.NewMismatchError(msgRedirectURIMismatch, nil)
	}

	b.logger.InfoContext(ctx, "authorization code redeemed",
		"client_id", record.ClientID,
		"code_id", redact.HashIdentifier(code))

	tokens := record.Tokens
	return &tokens, nil
}

// ExchangeRefreshToken obtains fresh tokens from the upstream provider.
func (b *Broker) ExchangeRefreshToken(
	ctx context.Context,
	client *storage.RegisteredClient,
	refreshToken string,
	scopes []string,
) (_ *upstream.TokenBundle, err error) {
	ctx, span := b.startSpan(ctx, "ExchangeRefreshToken")
	if client != nil {
		span.SetAttributes(attribute.String("oauth.client_id", client.ClientID))
	}
	defer func() { endSpan(span, err) }()

	tokens, err := b.upstream.RefreshToken(ctx, refreshToken, scopes)
	b.metrics.recordUpstreamExchange(ctx, "refresh_token", resultOf(err))
	if err != nil {
		b.logger.WarnContext(ctx, "upstream refresh failed", "error", err)
		return nil, brokererrors.NewUpstreamError("upstream refresh failed", err)
	}
	return tokens, nil
}

// RevokeToken forwards a revocation to the upstream provider. What happens
// when the provider rejects it depends on Config.RevokeFailurePolicy.
func (b *Broker) RevokeToken(
	ctx context.Context,
	client *storage.RegisteredClient,
	req RevokeRequest,
) (err error) {
	ctx, span := b.startSpan(ctx, "RevokeToken",
		attribute.String("oauth.token_type_hint", req.TokenTypeHint))
	if client != nil {
		span.SetAttributes(attribute.String("oauth.client_id", client.ClientID))
	}
	defer func() { endSpan(span, err) }()

	upstreamErr := b.upstream.Revoke(ctx, req.Token)
	if upstreamErr == nil {
		b.metrics.recordRevocation(ctx, resultSuccess)
		return nil
	}

	if b.config.RevokeFailurePolicy == RevokeFailurePropagate {
		b.metrics.recordRevocation(ctx, resultFailure)
		return brokererrors.NewUpstreamError("upstream revoke failed", upstreamErr)
	}

	b.metrics.recordRevocation(ctx, resultIgnored)
	b.logger.WarnContext(ctx, "ignoring upstream revoke failure", "error", upstreamErr)
	return nil
}
