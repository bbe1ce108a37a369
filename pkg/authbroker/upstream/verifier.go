// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// Common errors
var (
	ErrMissingKeyID    = errors.New("token header missing kid")
	ErrUnknownKeyID    = errors.New("key ID not found in JWKS")
	ErrJWKSUnavailable = errors.New("JWKS unavailable")
	ErrMissingIssuer   = errors.New("issuer is required")
	ErrMissingAudience = errors.New("audience is required")
	ErrDiscoveryNoJWKS = errors.New("OIDC configuration missing jwks_uri")
)

// registrationTimeout bounds discovery plus the first JWKS fetch.
const registrationTimeout = 5 * time.Second

// Compile-time interface compliance check.
var _ AccessTokenVerifier = (*JWTVerifier)(nil)

// VerifierConfig configures a JWTVerifier.
type VerifierConfig struct {
	// Issuer is the expected iss claim; discovery is performed against it.
	Issuer string

	// Audience must appear in the aud claim.
	Audience string

	// JWKSURL skips discovery when set.
	JWKSURL string

	// HTTPClient is used for discovery and JWKS fetches.
	HTTPClient *http.Client
}

// JWTVerifier validates RS256 access tokens against the provider's JWKS.
// Discovery and JWKS registration happen lazily on first use so that startup
// does not depend on the provider being reachable; a failed attempt is
// retried on the next call.
type JWTVerifier struct {
	issuer     string
	audience   string
	httpClient *http.Client
	jwksCache  *jwk.Cache

	mu      sync.Mutex
	jwksURL string
	ready   bool
}

// NewJWTVerifier creates a verifier. ctx bounds the lifetime of the JWKS
// cache's background refresh and should live as long as the verifier.
func NewJWTVerifier(ctx context.Context, config VerifierConfig) (*JWTVerifier, error) {
	if config.Issuer == "" {
		return nil, ErrMissingIssuer
	}
	if config.Audience == "" {
		return nil, ErrMissingAudience
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	// In jwx v3, NewCache requires an httprc.Client
	cache, err := jwk.NewCache(ctx, httprc.NewClient(httprc.WithHTTPClient(httpClient)))
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS cache: %w", err)
	}

	return &JWTVerifier{
		issuer:     config.Issuer,
		audience:   config.Audience,
		httpClient: httpClient,
		jwksCache:  cache,
		jwksURL:    config.JWKSURL,
	}, nil
}

// ensureRegistered discovers the JWKS URL if needed and registers it with the cache.
func (v *JWTVerifier) ensureRegistered(ctx context.Context) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.ready {
		return v.jwksURL, nil
	}

	regCtx, cancel := context.WithTimeout(ctx, registrationTimeout)
	defer cancel()

	if v.jwksURL == "" {
		jwksURL, err := v.discoverJWKSURL(regCtx)
		if err != nil {
			return "", err
		}
		v.jwksURL = jwksURL
	}

	if err := v.jwksCache.Register(regCtx, v.jwksURL); err != nil {
		return "", fmt.Errorf("%w: failed to register JWKS URL: %w", ErrJWKSUnavailable, err)
	}
	v.ready = true
	return v.jwksURL, nil
}

func (v *JWTVerifier) discoverJWKSURL(ctx context.Context) (string, error) {
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, v.httpClient), v.issuer)
	if err != nil {
		return "", fmt.Errorf("%w: OIDC discovery failed: %w", ErrJWKSUnavailable, err)
	}

	var metadata struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&metadata); err != nil {
		return "", fmt.Errorf("%w: failed to decode OIDC configuration: %w", ErrJWKSUnavailable, err)
	}
	if metadata.JWKSURI == "" {
		return "", ErrDiscoveryNoJWKS
	}
	return metadata.JWKSURI, nil
}

// keyFunc resolves the verification key for token from the JWKS.
func (v *JWTVerifier) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		jwksURL, err := v.ensureRegistered(ctx)
		if err != nil {
			return nil, err
		}

		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, ErrMissingKeyID
		}

		// In jwx v3, Get is replaced with Lookup
		keySet, err := v.jwksCache.Lookup(ctx, jwksURL)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to lookup JWKS: %w", ErrJWKSUnavailable, err)
		}

		key, found := keySet.LookupKeyID(kid)
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKeyID, kid)
		}

		var rawKey any
		if err := jwk.Export(key, &rawKey); err != nil {
			return nil, fmt.Errorf("failed to export raw key: %w", err)
		}
		return rawKey, nil
	}
}

// Verify implements AccessTokenVerifier. Errors from golang-jwt are wrapped,
// so errors.Is(err, jwt.ErrTokenExpired) and friends work on the result.
func (v *JWTVerifier) Verify(ctx context.Context, tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, v.keyFunc(ctx),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("access token verification failed: %w", err)
	}
	return claims, nil
}
