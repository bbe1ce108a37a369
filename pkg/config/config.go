// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config contains the definition of the broker configuration and the
// logic required to load it from flags, environment, .env and YAML files.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/stacklok/oauthbroker/pkg/authbroker"
	"github.com/stacklok/oauthbroker/pkg/authbroker/storage"
	"github.com/stacklok/oauthbroker/pkg/authbroker/upstream"
	"github.com/stacklok/oauthbroker/pkg/redact"
	"github.com/stacklok/oauthbroker/pkg/telemetry"
)

// Config represents the configuration of the broker.
type Config struct {
	PublicURL                     string `mapstructure:"public-url" validate:"required,url"`
	ListenAddress                 string `mapstructure:"listen-address" validate:"required,hostname_port"`
	MetricsAddress                string `mapstructure:"metrics-address" validate:"omitempty,hostname_port"`
	RevokeFailurePolicy           string `mapstructure:"revoke-failure-policy"`
	EnforceRegisteredRedirectURIs bool   `mapstructure:"enforce-registered-redirect-uris"`
	ClientsFile                   string `mapstructure:"clients-file" validate:"omitempty,file"`
	Debug                         bool   `mapstructure:"debug"`

	Upstream     UpstreamConfig     `mapstructure:"upstream"`
	Store        StoreConfig        `mapstructure:"store"`
	Registration RegistrationConfig `mapstructure:"registration"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
}

// UpstreamConfig identifies the broker's application at the upstream provider.
type UpstreamConfig struct {
	Domain       string       `mapstructure:"domain" validate:"required"`
	ClientID     string       `mapstructure:"client-id" validate:"required"`
	ClientSecret redact.Token `mapstructure:"client-secret" validate:"required"`
	Audience     string       `mapstructure:"audience"`
}

// StoreConfig selects and configures the transient store.
type StoreConfig struct {
	Type      string         `mapstructure:"type" validate:"oneof=memory redis valkey"`
	Address   string         `mapstructure:"address" validate:"omitempty,hostname_port"`
	Sentinel  SentinelConfig `mapstructure:"sentinel"`
	Username  string         `mapstructure:"username"`
	Password  redact.Token   `mapstructure:"password"`
	DB        int            `mapstructure:"db" validate:"gte=0"`
	KeyPrefix string         `mapstructure:"key-prefix"`
}

// SentinelConfig configures Sentinel-managed failover.
type SentinelConfig struct {
	MasterName string   `mapstructure:"master-name"`
	Addresses  []string `mapstructure:"addresses" validate:"dive,hostname_port"`
}

// RegistrationConfig throttles dynamic client registration per remote IP.
type RegistrationConfig struct {
	// RateLimit is a rate such as "10/min", "1/s" or "100/h".
	RateLimit string `mapstructure:"rate-limit" validate:"required"`
	Burst     int    `mapstructure:"burst" validate:"gte=1"`
}

// TelemetryConfig configures OTLP export. Prometheus metrics are always served.
type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp-endpoint"`
	Insecure     bool    `mapstructure:"insecure"`
	SamplingRate float64 `mapstructure:"sampling-rate" validate:"gte=0,lte=1"`
	// Attributes is a comma-separated list of key=value resource attributes.
	Attributes string `mapstructure:"attributes"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field constraints and the cross-field rules between them.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	if _, err := authbroker.ParseRevokeFailurePolicy(c.RevokeFailurePolicy); err != nil {
		return err
	}

	switch c.Store.Type {
	case string(storage.TypeRedis), string(storage.TypeValkey):
		if c.Store.Sentinel.MasterName != "" {
			if len(c.Store.Sentinel.Addresses) == 0 {
				return fmt.Errorf("store.sentinel.addresses is required when store.sentinel.master-name is set")
			}
		} else if c.Store.Address == "" {
			return fmt.Errorf("store.address is required for store type %q", c.Store.Type)
		}
	}

	if _, err := ParseRate(c.Registration.RateLimit); err != nil {
		return fmt.Errorf("registration.rate-limit: %w", err)
	}
	if _, err := telemetry.ParseResourceAttributes(c.Telemetry.Attributes); err != nil {
		return fmt.Errorf("telemetry.attributes: %w", err)
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed '%s=%s'", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed '%s'", field, fe.Tag()))
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// ParseRate parses "N/unit" where unit is s, sec, m, min, h or hour.
func ParseRate(s string) (rate.Limit, error) {
	count, unit, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return 0, fmt.Errorf("invalid rate %q: expected N/unit", s)
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(count), 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid rate %q: count must be a positive number", s)
	}

	var seconds float64
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "s", "sec", "second":
		seconds = 1
	case "m", "min", "minute":
		seconds = 60
	case "h", "hour":
		seconds = 3600
	default:
		return 0, fmt.Errorf("invalid rate %q: unknown unit %q", s, unit)
	}
	return rate.Limit(n / seconds), nil
}

// BrokerConfig returns the broker settings.
func (c *Config) BrokerConfig() (authbroker.Config, error) {
	policy, err := authbroker.ParseRevokeFailurePolicy(c.RevokeFailurePolicy)
	if err != nil {
		return authbroker.Config{}, err
	}
	return authbroker.Config{
		PublicURL:                     strings.TrimRight(c.PublicURL, "/"),
		RevokeFailurePolicy:           policy,
		EnforceRegisteredRedirectURIs: c.EnforceRegisteredRedirectURIs,
	}, nil
}

// UpstreamClientConfig returns the upstream client settings. callbackURL is the
// broker's own callback endpoint.
func (c *Config) UpstreamClientConfig(callbackURL string) upstream.Config {
	return upstream.Config{
		Domain:       c.Upstream.Domain,
		ClientID:     c.Upstream.ClientID,
		ClientSecret: c.Upstream.ClientSecret,
		Audience:     c.Upstream.Audience,
		CallbackURL:  callbackURL,
	}
}

// StorageConfig returns the transient store settings.
func (c *Config) StorageConfig() storage.Config {
	cfg := storage.Config{
		Type:       storage.Type(c.Store.Type),
		MasterName: c.Store.Sentinel.MasterName,
		Username:   c.Store.Username,
		Password:   c.Store.Password.Reveal(),
		DB:         c.Store.DB,
		KeyPrefix:  c.Store.KeyPrefix,
	}
	if cfg.MasterName != "" {
		cfg.Addrs = c.Store.Sentinel.Addresses
	} else if c.Store.Address != "" {
		cfg.Addrs = []string{c.Store.Address}
	}
	return cfg
}

// TelemetryProviderConfig returns the telemetry settings.
func (c *Config) TelemetryProviderConfig() (telemetry.Config, error) {
	attrs, err := telemetry.ParseResourceAttributes(c.Telemetry.Attributes)
	if err != nil {
		return telemetry.Config{}, err
	}
	cfg := telemetry.DefaultConfig()
	cfg.Endpoint = c.Telemetry.OTLPEndpoint
	cfg.Insecure = c.Telemetry.Insecure
	cfg.SamplingRate = c.Telemetry.SamplingRate
	cfg.ResourceAttributes = attrs
	return cfg, nil
}

// RegistrationLimit returns the per-IP registration rate and burst.
func (c *Config) RegistrationLimit() (rate.Limit, int, error) {
	limit, err := ParseRate(c.Registration.RateLimit)
	if err != nil {
		return 0, 0, err
	}
	return limit, c.Registration.Burst, nil
}

// LogValue implements slog.LogValuer. Secrets are never included.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("public_url", c.PublicURL),
		slog.String("listen_address", c.ListenAddress),
		slog.String("metrics_address", c.MetricsAddress),
		slog.String("upstream_domain", c.Upstream.Domain),
		slog.String("upstream_client_id", c.Upstream.ClientID),
		slog.String("store_type", c.Store.Type),
		slog.String("revoke_failure_policy", c.RevokeFailurePolicy),
		slog.Bool("enforce_registered_redirect_uris", c.EnforceRegisteredRedirectURIs),
		slog.Bool("otlp_enabled", c.Telemetry.OTLPEndpoint != ""),
	)
}
