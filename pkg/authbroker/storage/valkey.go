// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ValkeyConfig holds Valkey connection configuration.
type ValkeyConfig struct {
	// Addrs are the initial server addresses, or sentinel addresses when MasterName is set.
	Addrs []string

	// MasterName selects Sentinel-managed failover.
	MasterName string

	Username string
	Password string
	DB       int

	// KeyPrefix is prepended to every key.
	KeyPrefix string
}

// ValkeyStore implements TransientStore on Valkey.
type ValkeyStore struct {
	client    valkey.Client
	keyPrefix string
}

// NewValkeyStore connects to Valkey. The client dials eagerly, so a returned
// error usually means no server was reachable.
func NewValkeyStore(cfg ValkeyConfig) (*ValkeyStore, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("invalid valkey configuration: at least one address is required")
	}

	opt := valkey.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	}
	if cfg.MasterName != "" {
		opt.Sentinel = valkey.SentinelOption{MasterSet: cfg.MasterName}
	}

	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}
	return NewValkeyStoreWithClient(client, cfg.KeyPrefix), nil
}

// NewValkeyStoreWithClient creates a ValkeyStore with a pre-configured client.
func NewValkeyStoreWithClient(client valkey.Client, keyPrefix string) *ValkeyStore {
	return &ValkeyStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (s *ValkeyStore) key(k string) string {
	return s.keyPrefix + k
}

// Get implements TransientStore.
func (s *ValkeyStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Do(ctx, s.client.B().Get().Key(s.key(key)).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("valkey get: %w", err)
	}
	return val, nil
}

// SetWithTTL implements TransientStore.
func (s *ValkeyStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	cmd := s.client.B().Set().Key(s.key(key)).Value(value).Ex(ttl).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("valkey set: %w", err)
	}
	return nil
}

// Delete implements TransientStore.
func (s *ValkeyStore) Delete(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Do(ctx, s.client.B().Del().Key(s.key(key)).Build()).AsInt64()
	if err != nil {
		return 0, fmt.Errorf("valkey del: %w", err)
	}
	return n, nil
}

// GetAndDelete implements TransientStore with the native GETDEL command.
func (s *ValkeyStore) GetAndDelete(ctx context.Context, key string) (string, error) {
	val, err := s.client.Do(ctx, s.client.B().Getdel().Key(s.key(key)).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("valkey getdel: %w", err)
	}
	return val, nil
}

// Ping checks Valkey connectivity.
func (s *ValkeyStore) Ping(ctx context.Context) error {
	return s.client.Do(ctx, s.client.B().Ping().Build()).Error()
}

// Close closes the Valkey client.
func (s *ValkeyStore) Close() error {
	s.client.Close()
	return nil
}
