// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKeyID = "test-key-1"
)

type testIDP struct {
	server        *httptest.Server
	issuer        string
	privateKey    *rsa.PrivateKey
	discoveryHits atomic.Int32
	failDiscovery atomic.Bool
}

// newTestIDP starts a TLS server exposing OIDC discovery and a JWKS holding one RS256 key.
func newTestIDP(t *testing.T) *testIDP {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	key, err := jwk.Import(&privateKey.PublicKey)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, testKeyID))
	require.NoError(t, key.Set(jwk.AlgorithmKey, "RS256"))
	require.NoError(t, key.Set(jwk.KeyUsageKey, "sig"))

	keySet := jwk.NewSet()
	require.NoError(t, keySet.AddKey(key))

	idp := &testIDP{privateKey: privateKey}
	idp.server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/.well-known/openid-configuration":
			idp.discoveryHits.Add(1)
			if idp.failDiscovery.Load() {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{
				"issuer":                 idp.issuer,
				"authorization_endpoint": idp.issuer + "authorize",
				"token_endpoint":         idp.issuer + "oauth/token",
				"jwks_uri":               idp.issuer + ".well-known/jwks.json",
			})
		case "/.well-known/jwks.json":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(keySet)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(idp.server.Close)
	idp.issuer = idp.server.URL + "/"
	return idp
}

func (idp *testIDP) sign(t *testing.T, claims jwt.MapClaims, kid string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(idp.privateKey)
	require.NoError(t, err)
	return signed
}

func (idp *testIDP) validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":   idp.issuer,
		"sub":   "auth0|user-1",
		"aud":   []string{testAudience, idp.issuer + "userinfo"},
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"scope": "openid email",
		"azp":   "client-1",
	}
}

func (idp *testIDP) newVerifier(t *testing.T) *JWTVerifier {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	v, err := NewJWTVerifier(ctx, VerifierConfig{
		Issuer:     idp.issuer,
		Audience:   testAudience,
		HTTPClient: idp.server.Client(),
	})
	require.NoError(t, err)
	return v
}

func TestNewJWTVerifier_RequiresIssuerAndAudience(t *testing.T) {
	t.Parallel()

	_, err := NewJWTVerifier(context.Background(), VerifierConfig{Audience: "a"})
	assert.ErrorIs(t, err, ErrMissingIssuer)

	_, err = NewJWTVerifier(context.Background(), VerifierConfig{Issuer: "https://issuer/"})
	assert.ErrorIs(t, err, ErrMissingAudience)
}

func TestJWTVerifier_Verify(t *testing.T) {
	t.Parallel()

	idp := newTestIDP(t)
	verifier := idp.newVerifier(t)

	tests := []struct {
		name    string
		token   func(t *testing.T) string
		wantErr error
	}{
		{
			name:  "valid token",
			token: func(t *testing.T) string { return idp.sign(t, idp.validClaims(), testKeyID) },
		},
		{
			name: "expired token",
			token: func(t *testing.T) string {
				claims := idp.validClaims()
				claims["exp"] = time.Now().Add(-time.Hour).Unix()
				return idp.sign(t, claims, testKeyID)
			},
			wantErr: jwt.ErrTokenExpired,
		},
		{
			name: "missing expiry",
			token: func(t *testing.T) string {
				claims := idp.validClaims()
				delete(claims, "exp")
				return idp.sign(t, claims, testKeyID)
			},
			wantErr: jwt.ErrTokenRequiredClaimMissing,
		},
		{
			name: "wrong audience",
			token: func(t *testing.T) string {
				claims := idp.validClaims()
				claims["aud"] = "https://other.example.com"
				return idp.sign(t, claims, testKeyID)
			},
			wantErr: jwt.ErrTokenInvalidAudience,
		},
		{
			name: "wrong issuer",
			token: func(t *testing.T) string {
				claims := idp.validClaims()
				claims["iss"] = "https://evil.example.com/"
				return idp.sign(t, claims, testKeyID)
			},
			wantErr: jwt.ErrTokenInvalidIssuer,
		},
		{
			name:    "unknown key id",
			token:   func(t *testing.T) string { return idp.sign(t, idp.validClaims(), "other-key") },
			wantErr: ErrUnknownKeyID,
		},
		{
			name:    "missing key id",
			token:   func(t *testing.T) string { return idp.sign(t, idp.validClaims(), "") },
			wantErr: ErrMissingKeyID,
		},
		{
			name: "HS256 rejected",
			token: func(t *testing.T) string {
				token := jwt.NewWithClaims(jwt.SigningMethodHS256, idp.validClaims())
				token.Header["kid"] = testKeyID
				signed, err := token.SignedString([]byte("shared-secret"))
				require.NoError(t, err)
				return signed
			},
			wantErr: jwt.ErrTokenSignatureInvalid,
		},
		{
			name:    "garbage",
			token:   func(t *testing.T) string { return "not-a-jwt" },
			wantErr: jwt.ErrTokenMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			claims, err := verifier.Verify(context.Background(), tt.token(t))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, claims)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "auth0|user-1", claims["sub"])
			assert.Equal(t, "client-1", claims["azp"])
		})
	}
}

func TestJWTVerifier_ExplicitJWKSURLSkipsDiscovery(t *testing.T) {
	t.Parallel()

	idp := newTestIDP(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	verifier, err := NewJWTVerifier(ctx, VerifierConfig{
		Issuer:     idp.issuer,
		Audience:   testAudience,
		JWKSURL:    idp.issuer + ".well-known/jwks.json",
		HTTPClient: idp.server.Client(),
	})
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), idp.sign(t, idp.validClaims(), testKeyID))
	require.NoError(t, err)
	assert.Zero(t, idp.discoveryHits.Load())
}

func TestJWTVerifier_RetriesFailedDiscovery(t *testing.T) {
	t.Parallel()

	idp := newTestIDP(t)
	idp.failDiscovery.Store(true)
	verifier := idp.newVerifier(t)
	token := idp.sign(t, idp.validClaims(), testKeyID)

	_, err := verifier.Verify(context.Background(), token)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrJWKSUnavailable))

	idp.failDiscovery.Store(false)
	claims, err := verifier.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "auth0|user-1", claims["sub"])

	hits := idp.discoveryHits.Load()
	_, err = verifier.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, hits, idp.discoveryHits.Load(), "discovery runs once after success")
}
