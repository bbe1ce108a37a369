// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Type defines the type of storage backend.
type Type string

const (
	// TypeMemory uses in-memory storage (default).
	TypeMemory Type = "memory"

	// TypeRedis uses Redis, standalone or behind Sentinel.
	TypeRedis Type = "redis"

	// TypeValkey uses Valkey.
	TypeValkey Type = "valkey"
)

// DefaultConnectTimeout bounds how long NewTransientStore waits for a networked backend.
const DefaultConnectTimeout = 30 * time.Second

// Config configures the storage backend.
type Config struct {
	// Type specifies the storage backend type. Defaults to memory.
	Type Type

	// Addrs holds the server address, or sentinel addresses when MasterName is set.
	Addrs []string

	// MasterName selects Sentinel-managed failover.
	MasterName string

	Username string
	Password string
	DB       int

	// KeyPrefix is prepended to every key.
	KeyPrefix string

	// ConnectTimeout bounds the startup connectivity check. Defaults to DefaultConnectTimeout.
	ConnectTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Type: TypeMemory,
	}
}

// NewTransientStore builds the configured backend. Networked backends are pinged
// with exponential backoff until they answer or ConnectTimeout elapses.
func NewTransientStore(ctx context.Context, cfg Config, logger *slog.Logger) (TransientStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		store TransientStore
		err   error
	)
	switch cfg.Type {
	case "", TypeMemory:
		return NewMemoryStore(), nil
	case TypeRedis:
		rc := RedisConfig{DB: cfg.DB, KeyPrefix: cfg.KeyPrefix}
		if cfg.MasterName != "" {
			rc.SentinelConfig = &SentinelConfig{MasterName: cfg.MasterName, SentinelAddrs: cfg.Addrs}
		} else if len(cfg.Addrs) > 0 {
			rc.Addr = cfg.Addrs[0]
		}
		if cfg.Username != "" || cfg.Password != "" {
			rc.ACLUserConfig = &ACLUserConfig{Username: cfg.Username, Password: cfg.Password}
		}
		store, err = NewRedisStore(rc)
	case TypeValkey:
		store, err = NewValkeyStore(ValkeyConfig{
			Addrs:      cfg.Addrs,
			MasterName: cfg.MasterName,
			Username:   cfg.Username,
			Password:   cfg.Password,
			DB:         cfg.DB,
			KeyPrefix:  cfg.KeyPrefix,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := waitForStore(ctx, store, cfg.ConnectTimeout, logger); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func waitForStore(ctx context.Context, store TransientStore, timeout time.Duration, logger *slog.Logger) error {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 250 * time.Millisecond
	expBackoff.MaxInterval = 5 * time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, store.Ping(ctx)
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxElapsedTime(timeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("storage not reachable, retrying", "error", err, "retry_in", next)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}
	return nil
}
