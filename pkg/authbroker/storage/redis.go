// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// getAndDeleteScript reads and removes a key in one server-side step.
// Redis runs scripts atomically, so no other command can interleave between
// the GET and the DEL. Used instead of GETDEL to support servers before 6.2.
var getAndDeleteScript = redis.NewScript(`
local value = redis.call("GET", KEYS[1])
if value then
  redis.call("DEL", KEYS[1])
end
return value
`)

// RedisConfig holds Redis connection configuration.
// Exactly one of Addr or SentinelConfig must be set.
type RedisConfig struct {
	// Addr is the host:port of a standalone Redis server.
	Addr string

	// SentinelConfig selects Sentinel-managed failover.
	SentinelConfig *SentinelConfig

	// ACLUserConfig is optional ACL user authentication.
	ACLUserConfig *ACLUserConfig

	DB int

	// KeyPrefix is prepended to every key, for sharing one Redis between deployments.
	KeyPrefix string

	// Timeouts (defaults: Dial=5s, Read=3s, Write=3s).
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// SentinelConfig contains Redis Sentinel configuration.
type SentinelConfig struct {
	MasterName    string
	SentinelAddrs []string
}

// ACLUserConfig contains Redis ACL user authentication configuration.
type ACLUserConfig struct {
	Username string
	Password string
}

// RedisStore implements TransientStore on Redis.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore creates a Redis-backed store. It does not contact the server;
// call Ping to verify connectivity.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if err := validateRedisConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid redis configuration: %w", err)
	}

	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	opts := &redis.UniversalOptions{
		Addrs:        []string{cfg.Addr},
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if cfg.SentinelConfig != nil {
		opts.Addrs = cfg.SentinelConfig.SentinelAddrs
		opts.MasterName = cfg.SentinelConfig.MasterName
	}
	if cfg.ACLUserConfig != nil {
		opts.Username = cfg.ACLUserConfig.Username
		opts.Password = cfg.ACLUserConfig.Password
	}

	return &RedisStore{
		client:    redis.NewUniversalClient(opts),
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

// NewRedisStoreWithClient creates a RedisStore with a pre-configured client.
// This is useful for testing with miniredis.
func NewRedisStoreWithClient(client redis.UniversalClient, keyPrefix string) *RedisStore {
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func validateRedisConfig(cfg *RedisConfig) error {
	switch {
	case cfg.SentinelConfig == nil && cfg.Addr == "":
		return errors.New("either an address or a sentinel configuration is required")
	case cfg.SentinelConfig != nil && cfg.Addr != "":
		return errors.New("address and sentinel configuration are mutually exclusive")
	case cfg.SentinelConfig != nil && cfg.SentinelConfig.MasterName == "":
		return errors.New("sentinel master name is required")
	case cfg.SentinelConfig != nil && len(cfg.SentinelConfig.SentinelAddrs) == 0:
		return errors.New("at least one sentinel address is required")
	}
	return nil
}

func (s *RedisStore) key(k string) string {
	return s.keyPrefix + k
}

// Get implements TransientStore.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

// SetWithTTL implements TransientStore.
func (s *RedisStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete implements TransientStore.
func (s *RedisStore) Delete(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Del(ctx, s.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis del: %w", err)
	}
	return n, nil
}

// GetAndDelete implements TransientStore with a single EVALSHA round trip.
func (s *RedisStore) GetAndDelete(ctx context.Context, key string) (string, error) {
	val, err := getAndDeleteScript.Run(ctx, s.client, []string{s.key(key)}).Text()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get-and-delete: %w", err)
	}
	return val, nil
}

// Ping checks Redis connectivity (health check).
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
