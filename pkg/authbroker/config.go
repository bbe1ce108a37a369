// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authbroker

import (
	"fmt"
	"strings"
)

// CallbackPath is where the upstream provider redirects back to the broker.
const CallbackPath = "/oauth/callback"

// DefaultClientID is reported in AuthInfo when a token names no client.
const DefaultClientID = "oauthbroker"

// RevokeFailurePolicy selects what RevokeToken does when the upstream revoke call fails.
type RevokeFailurePolicy string

const (
	// RevokeFailureIgnore logs upstream revoke failures and reports success.
	RevokeFailureIgnore RevokeFailurePolicy = "ignore"

	// RevokeFailurePropagate returns upstream revoke failures to the caller.
	RevokeFailurePropagate RevokeFailurePolicy = "propagate"
)

// ParseRevokeFailurePolicy parses a policy name. The empty string selects RevokeFailureIgnore.
func ParseRevokeFailurePolicy(s string) (RevokeFailurePolicy, error) {
	switch RevokeFailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", RevokeFailureIgnore:
		return RevokeFailureIgnore, nil
	case RevokeFailurePropagate:
		return RevokeFailurePropagate, nil
	default:
		return "", fmt.Errorf("invalid revoke failure policy %q: must be %q or %q",
			s, RevokeFailureIgnore, RevokeFailurePropagate)
	}
}

// Config holds broker settings.
type Config struct {
	// PublicURL is the externally reachable base URL of the broker.
	PublicURL string

	// RevokeFailurePolicy defaults to RevokeFailureIgnore.
	RevokeFailurePolicy RevokeFailurePolicy

	// EnforceRegisteredRedirectURIs makes the HTTP authorize endpoint reject
	// redirect URIs the client did not register.
	EnforceRegisteredRedirectURIs bool
}

// CallbackURL returns the broker's own redirect_uri as registered upstream.
func (c Config) CallbackURL() string {
	return strings.TrimRight(c.PublicURL, "/") + CallbackPath
}
