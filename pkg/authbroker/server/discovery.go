// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/stacklok/oauthbroker/pkg/authbroker/upstream"
)

// DefaultDiscoveryCacheMaxAge is the Cache-Control max-age for the discovery endpoint (1 hour).
const DefaultDiscoveryCacheMaxAge = 3600

// AuthorizationServerMetadata is the RFC 8414 metadata document.
type AuthorizationServerMetadata struct {
	Issuer                                 string   `json:"issuer"`
	AuthorizationEndpoint                  string   `json:"authorization_endpoint"`
	TokenEndpoint                          string   `json:"token_endpoint"`
	RegistrationEndpoint                   string   `json:"registration_endpoint,omitempty"`
	RevocationEndpoint                     string   `json:"revocation_endpoint,omitempty"`
	ScopesSupported                        []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported                 []string `json:"response_types_supported"`
	GrantTypesSupported                    []string `json:"grant_types_supported,omitempty"`
	TokenEndpointAuthMethodsSupported      []string `json:"token_endpoint_auth_methods_supported,omitempty"`
	RevocationEndpointAuthMethodsSupported []string `json:"revocation_endpoint_auth_methods_supported,omitempty"`
	CodeChallengeMethodsSupported          []string `json:"code_challenge_methods_supported,omitempty"`
}

func (h *Handler) buildOAuthMetadata() AuthorizationServerMetadata {
	issuer := strings.TrimRight(h.broker.Config().PublicURL, "/")

	return AuthorizationServerMetadata{
		// REQUIRED
		Issuer:                 issuer,
		AuthorizationEndpoint:  issuer + "/oauth/authorize",
		TokenEndpoint:          issuer + "/oauth/token",
		ResponseTypesSupported: []string{"code"},

		// OPTIONAL
		RegistrationEndpoint:                   issuer + "/oauth/register",
		RevocationEndpoint:                     issuer + "/oauth/revoke",
		ScopesSupported:                        upstream.DefaultScopes,
		GrantTypesSupported:                    []string{grantTypeAuthorizationCode, grantTypeRefreshToken},
		TokenEndpointAuthMethodsSupported:      []string{tokenEndpointAuthMethodNone},
		RevocationEndpointAuthMethodsSupported: []string{tokenEndpointAuthMethodNone},
		CodeChallengeMethodsSupported:          []string{PKCEChallengeMethodS256},
	}
}

// OAuthDiscoveryHandler handles GET /.well-known/oauth-authorization-server requests.
func (h *Handler) OAuthDiscoveryHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", DefaultDiscoveryCacheMaxAge))
	writeJSON(w, http.StatusOK, h.buildOAuthMetadata())
}
