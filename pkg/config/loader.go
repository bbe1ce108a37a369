// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. OAUTHBROKER_PUBLIC_URL.
const EnvPrefix = "OAUTHBROKER"

// DefaultDotEnvFile is loaded when present in the working directory.
const DefaultDotEnvFile = ".env"

// defaults lists every key. Viper only resolves environment variables for
// keys it knows about, so keys without a meaningful default are listed too.
var defaults = map[string]any{
	"public-url":                       "",
	"listen-address":                   ":8080",
	"metrics-address":                  ":9090",
	"revoke-failure-policy":            "ignore",
	"enforce-registered-redirect-uris": true,
	"clients-file":                     "",
	"debug":                            false,

	"upstream.domain":        "",
	"upstream.client-id":     "",
	"upstream.client-secret": "",
	"upstream.audience":      "",

	"store.type":                 "memory",
	"store.address":              "",
	"store.sentinel.master-name": "",
	"store.sentinel.addresses":   []string{},
	"store.username":             "",
	"store.password":             "",
	"store.db":                   0,
	"store.key-prefix":           "",

	"registration.rate-limit": "10/min",
	"registration.burst":      5,

	"telemetry.otlp-endpoint": "",
	"telemetry.insecure":      false,
	"telemetry.sampling-rate": 0.1,
	"telemetry.attributes":    "",
}

// SetDefaults registers defaults and environment binding on v.
// "store.key-prefix" is read from OAUTHBROKER_STORE_KEY_PREFIX.
func SetDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
}

// LoadDotEnv loads environment files without overriding variables already set.
// A missing file is not an error.
func LoadDotEnv(files ...string) error {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// Load reads the optional config file into v and returns the validated configuration.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return nil, fmt.Errorf("config file %s: %w", configFile, err)
		}
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
