// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package upstream talks to the identity provider that actually authenticates
// users: it builds authorize redirects, exchanges and refreshes tokens over the
// provider's JSON token API, revokes tokens and verifies issued access tokens.
package upstream

//go:generate mockgen -destination=mocks/mock_upstream.go -package=mocks -source=types.go Provider,AccessTokenVerifier

import (
	"context"
	"log/slog"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultScopes are requested upstream when the downstream client asks for none.
var DefaultScopes = []string{"openid", "profile", "email", "offline_access"}

// TokenBundle is the token response obtained from the upstream provider.
// Its JSON form is a standard OAuth 2.0 token response, so it can be stored
// and later returned to the downstream client verbatim.
type TokenBundle struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// LogValue implements slog.LogValuer and never includes token material.
func (t TokenBundle) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("token_type", t.TokenType),
		slog.Int64("expires_in", t.ExpiresIn),
		slog.String("scope", t.Scope),
		slog.Bool("has_refresh_token", t.RefreshToken != ""),
		slog.Bool("has_id_token", t.IDToken != ""),
	)
}

// Provider is the upstream identity provider as seen by the broker.
type Provider interface {
	// AuthorizationURL returns the upstream authorize URL carrying state.
	// An empty scopes slice selects DefaultScopes.
	AuthorizationURL(state string, scopes []string) string

	// ExchangeCode redeems an upstream authorization code.
	ExchangeCode(ctx context.Context, code string) (*TokenBundle, error)

	// RefreshToken obtains fresh tokens with a refresh token.
	RefreshToken(ctx context.Context, refreshToken string, scopes []string) (*TokenBundle, error)

	// Revoke asks the provider to revoke token.
	Revoke(ctx context.Context, token string) error
}

// AccessTokenVerifier validates access tokens issued by the upstream provider.
type AccessTokenVerifier interface {
	// Verify checks the signature, issuer, audience and expiry of token and
	// returns its claims.
	Verify(ctx context.Context, token string) (jwt.MapClaims, error)
}
