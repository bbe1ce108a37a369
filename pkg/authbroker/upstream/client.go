// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/stacklok/oauthbroker/pkg/logger"
	"github.com/stacklok/oauthbroker/pkg/networking"
	"github.com/stacklok/oauthbroker/pkg/redact"
	"github.com/stacklok/oauthbroker/pkg/versions"
)

// maxResponseSize is the maximum allowed response size for HTTP requests to prevent DoS.
const maxResponseSize = 1024 * 1024 // 1MB

// Upstream endpoint paths, relative to the provider's base URL.
const (
	authorizePath = "/authorize"
	tokenPath     = "/oauth/token"
	revokePath    = "/oauth/revoke"
)

// Compile-time interface compliance check.
var _ Provider = (*Client)(nil)

// Config describes the upstream application the broker acts as.
type Config struct {
	// Domain is the provider's base URL, or a bare host name implying https.
	Domain string

	// ClientID and ClientSecret identify the broker to the provider.
	ClientID     string
	ClientSecret redact.Token

	// Audience is the API identifier requested for access tokens.
	Audience string

	// CallbackURL is the broker's own callback endpoint, registered with the provider.
	CallbackURL string
}

// BaseURL returns the normalized provider base URL without a trailing slash.
func (c Config) BaseURL() string {
	domain := strings.TrimRight(strings.TrimSpace(c.Domain), "/")
	if !strings.HasPrefix(domain, "https://") && !strings.HasPrefix(domain, "http://") {
		domain = "https://" + domain
	}
	return domain
}

// Issuer returns the issuer identifier the provider puts in its tokens.
func (c Config) Issuer() string {
	return c.BaseURL() + "/"
}

// Validate checks that all required fields are present.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Domain) == "" {
		missing = append(missing, "domain")
	}
	if c.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.ClientSecret.IsEmpty() {
		missing = append(missing, "client_secret")
	}
	if c.CallbackURL == "" {
		missing = append(missing, "callback_url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing upstream configuration: %s", strings.Join(missing, ", "))
	}
	if _, err := url.Parse(c.BaseURL()); err != nil {
		return fmt.Errorf("invalid upstream domain: %w", err)
	}
	return nil
}

// Client implements Provider against an Auth0-style JSON token API.
type Client struct {
	config     Config
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client for the provider.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets a custom logger for the provider.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates an upstream client. The default HTTP client refuses
// plain HTTP and private addresses; use WithHTTPClient to change that.
func NewClient(config Config, opts ...ClientOption) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config:  config,
		baseURL: config.BaseURL(),
		logger:  logger.Get(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		httpClient, err := networking.NewHttpClientBuilder().Build()
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP client: %w", err)
		}
		c.httpClient = httpClient
	}
	return c, nil
}

// AuthorizationURL implements Provider. The redirect_uri is always the broker's
// own callback, never the downstream client's.
func (c *Client) AuthorizationURL(state string, scopes []string) string {
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	oauthCfg := oauth2.Config{
		ClientID:    c.config.ClientID,
		RedirectURL: c.config.CallbackURL,
		Scopes:      scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.baseURL + authorizePath,
			TokenURL: c.baseURL + tokenPath,
		},
	}

	var opts []oauth2.AuthCodeOption
	if c.config.Audience != "" {
		opts = append(opts, oauth2.SetAuthURLParam("audience", c.config.Audience))
	}
	return oauthCfg.AuthCodeURL(state, opts...)
}

// tokenRequest is the JSON body of a token endpoint call.
type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Code         string `json:"code,omitempty"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// revokeRequest is the JSON body of a revocation call.
type revokeRequest struct {
	Token        string `json:"token"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// ExchangeCode implements Provider.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*TokenBundle, error) {
	c.logger.DebugContext(ctx, "exchanging upstream authorization code")
	return c.tokenRequest(ctx, tokenRequest{
		GrantType:    "authorization_code",
		ClientID:     c.config.ClientID,
		ClientSecret: c.config.ClientSecret.Reveal(),
		Code:         code,
		RedirectURI:  c.config.CallbackURL,
	})
}

// RefreshToken implements Provider. Providers that do not rotate refresh tokens
// omit refresh_token from the response; the one presented is carried over.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string, scopes []string) (*TokenBundle, error) {
	c.logger.DebugContext(ctx, "refreshing upstream tokens")
	tokens, err := c.tokenRequest(ctx, tokenRequest{
		GrantType:    "refresh_token",
		ClientID:     c.config.ClientID,
		ClientSecret: c.config.ClientSecret.Reveal(),
		RefreshToken: refreshToken,
		Scope:        strings.Join(scopes, " "),
	})
	if err != nil {
		return nil, err
	}
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	return tokens, nil
}

// Revoke implements Provider. Any non-2xx response is returned as *networking.HTTPError.
func (c *Client) Revoke(ctx context.Context, token string) error {
	endpoint := c.baseURL + revokePath
	resp, err := c.postJSON(ctx, endpoint, revokeRequest{
		Token:        token,
		ClientID:     c.config.ClientID,
		ClientSecret: c.config.ClientSecret.Reveal(),
	})
	if err != nil {
		return fmt.Errorf("revoke request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return networking.NewHTTPError(resp.StatusCode, endpoint, "upstream revoke request failed")
	}
	return nil
}

func (c *Client) tokenRequest(ctx context.Context, body tokenRequest) (*TokenBundle, error) {
	endpoint := c.baseURL + tokenPath
	resp, err := c.postJSON(ctx, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		// The body may describe provider internals; only the status leaves this function.
		c.logger.DebugContext(ctx, "upstream token request failed",
			"grant_type", body.GrantType,
			"status", resp.StatusCode)
		return nil, networking.NewHTTPError(resp.StatusCode, endpoint, "upstream token request failed")
	}

	var tokens TokenBundle
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokens.AccessToken == "" {
		return nil, errors.New("token response missing access_token")
	}
	return &tokens, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", versions.UserAgent())

	return c.httpClient.Do(req)
}
