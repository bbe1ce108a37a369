// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"time"

	"github.com/stacklok/oauthbroker/pkg/authbroker/upstream"
)

// Record lifetimes.
const (
	// RegisteredClientTTL is how long a dynamically registered client is kept.
	RegisteredClientTTL = 7 * 24 * time.Hour

	// PendingAuthorizationTTL bounds how long a user has to finish upstream login.
	PendingAuthorizationTTL = 10 * time.Minute

	// AuthorizationCodeTTL bounds how long an issued local code can be redeemed.
	AuthorizationCodeTTL = 60 * time.Second
)

// Key prefixes of the persisted state layout.
const (
	ClientKeyPrefix  = "oauth:clients:"
	PendingKeyPrefix = "oauth:pending:"
	CodeKeyPrefix    = "oauth:code:"
)

// RegisteredClient is the metadata of a dynamically registered OAuth client (RFC 7591).
// Records are never updated in place.
type RegisteredClient struct {
	ClientID                string   `json:"client_id" yaml:"client_id"`
	ClientName              string   `json:"client_name,omitempty" yaml:"client_name,omitempty"`
	RedirectURIs            []string `json:"redirect_uris" yaml:"redirect_uris"`
	GrantTypes              []string `json:"grant_types,omitempty" yaml:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty" yaml:"response_types,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty" yaml:"token_endpoint_auth_method,omitempty"`
	Scope                   string   `json:"scope,omitempty" yaml:"scope,omitempty"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at,omitempty" yaml:"client_id_issued_at,omitempty"`
}

// HasRedirectURI reports whether uri is registered. The comparison is exact:
// no case folding, trailing-slash trimming or other normalization.
func (c *RegisteredClient) HasRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// PendingAuthorization bridges a downstream authorize request and the upstream callback.
//
// Two distinct "state" values are involved. ID travels upstream in the state
// parameter and correlates the callback with this record. ClientState is the
// downstream client's own opaque value, returned to it untouched.
type PendingAuthorization struct {
	ID            string    `json:"id"`
	ClientID      string    `json:"client_id"`
	RedirectURI   string    `json:"redirect_uri"`
	CodeChallenge string    `json:"code_challenge"`
	ClientState   *string   `json:"client_state,omitempty"`
	Scopes        []string  `json:"scopes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// PendingAuthorizationInput holds the caller-supplied fields of a PendingAuthorization.
type PendingAuthorizationInput struct {
	ClientID      string
	RedirectURI   string
	CodeChallenge string
	ClientState   *string
	Scopes        []string
}

// IssuedAuthorizationCode is a broker-minted code standing in for upstream tokens.
// ID is the code value handed to the downstream client.
type IssuedAuthorizationCode struct {
	ID            string               `json:"id"`
	ClientID      string               `json:"client_id"`
	RedirectURI   string               `json:"redirect_uri"`
	CodeChallenge string               `json:"code_challenge"`
	Tokens        upstream.TokenBundle `json:"tokens"`
	Scopes        []string             `json:"scopes,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

// AuthorizationCodeInput holds the caller-supplied fields of an IssuedAuthorizationCode.
type AuthorizationCodeInput struct {
	ClientID      string
	RedirectURI   string
	CodeChallenge string
	Tokens        upstream.TokenBundle
	Scopes        []string
}
