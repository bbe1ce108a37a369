// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
)

// DCR error codes per RFC 7591 Section 3.2.2
const (
	DCRErrorInvalidRedirectURI    = "invalid_redirect_uri"
	DCRErrorInvalidClientMetadata = "invalid_client_metadata"
)

// Validation limits for registration requests.
const (
	MaxRedirectURICount = 10
	MaxClientNameLength = 256
)

const tokenEndpointAuthMethodNone = "none"

// DCRRequest is an RFC 7591 registration request.
type DCRRequest struct {
	RedirectURIs            []string `json:"redirect_uris"`
	ClientName              string   `json:"client_name,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	Scope                   string   `json:"scope,omitempty"`
}

// DCRResponse is an RFC 7591 registration response.
type DCRResponse struct {
	ClientID                string   `json:"client_id"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at,omitempty"`
	RedirectURIs            []string `json:"redirect_uris"`
	ClientName              string   `json:"client_name,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	Scope                   string   `json:"scope,omitempty"`
}

// DCRError is an RFC 7591 registration error.
type DCRError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

var (
	defaultGrantTypes    = []string{grantTypeAuthorizationCode, grantTypeRefreshToken}
	defaultResponseTypes = []string{"code"}
)

// ValidateDCRRequest checks req and returns a copy with defaults applied.
func ValidateDCRRequest(req *DCRRequest) (*DCRRequest, *DCRError) {
	if len(req.RedirectURIs) == 0 {
		return nil, &DCRError{Error: DCRErrorInvalidRedirectURI, ErrorDescription: "redirect_uris is required"}
	}
	if len(req.RedirectURIs) > MaxRedirectURICount {
		return nil, &DCRError{
			Error:            DCRErrorInvalidRedirectURI,
			ErrorDescription: fmt.Sprintf("too many redirect_uris (maximum %d)", MaxRedirectURICount),
		}
	}
	for _, uri := range req.RedirectURIs {
		if err := ValidateRedirectURI(uri); err != nil {
			return nil, &DCRError{Error: DCRErrorInvalidRedirectURI, ErrorDescription: err.Error()}
		}
	}

	if len(req.ClientName) > MaxClientNameLength {
		return nil, &DCRError{
			Error:            DCRErrorInvalidClientMetadata,
			ErrorDescription: fmt.Sprintf("client_name too long (maximum %d characters)", MaxClientNameLength),
		}
	}

	authMethod := req.TokenEndpointAuthMethod
	if authMethod == "" {
		authMethod = tokenEndpointAuthMethodNone
	}
	if authMethod != tokenEndpointAuthMethodNone {
		return nil, &DCRError{
			Error:            DCRErrorInvalidClientMetadata,
			ErrorDescription: "token_endpoint_auth_method must be 'none' for public clients",
		}
	}

	grantTypes, dcrErr := validateAllowed(req.GrantTypes, defaultGrantTypes, grantTypeAuthorizationCode, "grant_type")
	if dcrErr != nil {
		return nil, dcrErr
	}
	responseTypes, dcrErr := validateAllowed(req.ResponseTypes, defaultResponseTypes, "code", "response_type")
	if dcrErr != nil {
		return nil, dcrErr
	}

	return &DCRRequest{
		RedirectURIs:            slices.Clone(req.RedirectURIs),
		ClientName:              req.ClientName,
		TokenEndpointAuthMethod: authMethod,
		GrantTypes:              grantTypes,
		ResponseTypes:           responseTypes,
		Scope:                   req.Scope,
	}, nil
}

// validateAllowed defaults an empty list, requires the mandatory value and
// rejects anything outside allowed.
func validateAllowed(values, allowed []string, required, field string) ([]string, *DCRError) {
	if len(values) == 0 {
		return slices.Clone(allowed), nil
	}
	if !slices.Contains(values, required) {
		return nil, &DCRError{
			Error:            DCRErrorInvalidClientMetadata,
			ErrorDescription: fmt.Sprintf("%ss must include '%s'", field, required),
		}
	}
	for _, v := range values {
		if !slices.Contains(allowed, v) {
			return nil, &DCRError{
				Error:            DCRErrorInvalidClientMetadata,
				ErrorDescription: fmt.Sprintf("unsupported %s: %s", field, v),
			}
		}
	}
	return slices.Clone(values), nil
}

// ValidateRedirectURI accepts absolute https URIs, and http URIs only on a
// loopback host (RFC 8252 section 7.3). Fragments are never allowed.
func ValidateRedirectURI(uri string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid redirect_uri %q", uri)
	}
	if u.Fragment != "" || strings.Contains(uri, "#") {
		return fmt.Errorf("redirect_uri must not contain a fragment: %q", uri)
	}
	if u.Host == "" {
		return fmt.Errorf("redirect_uri must be absolute: %q", uri)
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if isLoopbackHost(u.Hostname()) {
			return nil
		}
		return fmt.Errorf("http redirect_uri is only allowed for loopback addresses: %q", uri)
	default:
		return fmt.Errorf("unsupported redirect_uri scheme %q", u.Scheme)
	}
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
