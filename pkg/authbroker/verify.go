// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authbroker

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthInfo describes a verified access token.
type AuthInfo struct {
	Token     string
	Scopes    []string
	ExpiresAt time.Time
	ClientID  string
	Extra     map[string]any
}

// optionalExtraClaims are copied into AuthInfo.Extra when present.
var optionalExtraClaims = []string{"permissions", "org_id"}

// VerifyAccessToken verifies token against the upstream provider's keys.
// Verification errors are returned unchanged.
func (b *Broker) VerifyAccessToken(ctx context.Context, token string) (*AuthInfo, error) {
	if b.verifier == nil {
		return nil, errors.New("access token verification is not configured")
	}

	claims, err := b.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	return authInfoFromClaims(token, claims), nil
}

func authInfoFromClaims(token string, claims jwt.MapClaims) *AuthInfo {
	info := &AuthInfo{
		Token:    token,
		Scopes:   []string{},
		ClientID: DefaultClientID,
		Extra: map[string]any{
			"sub":   claims["sub"],
			"email": claims["email"],
		},
	}

	if scope, ok := claims["scope"].(string); ok {
		info.Scopes = strings.Fields(scope)
		if info.Scopes == nil {
			info.Scopes = []string{}
		}
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}

	if azp, ok := claims["azp"].(string); ok && azp != "" {
		info.ClientID = azp
	} else if clientID, ok := claims["client_id"].(string); ok && clientID != "" {
		info.ClientID = clientID
	}

	for _, name := range optionalExtraClaims {
		if v, ok := claims[name]; ok {
			info.Extra[name] = v
		}
	}
	return info
}
