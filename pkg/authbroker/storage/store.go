// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package storage persists broker state in a TTL-capable key-value store.
//
// All durable state lives behind [TransientStore], so any number of broker
// replicas can share one Redis or Valkey deployment. One-time-use semantics
// rest entirely on [TransientStore.GetAndDelete], which every backend
// implements as a single indivisible server-side operation.
package storage

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go TransientStore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or has expired.
var ErrNotFound = errors.New("storage: key not found")

// ErrInvalidTTL is returned when a non-positive TTL is passed to SetWithTTL.
var ErrInvalidTTL = errors.New("storage: ttl must be positive")

// TransientStore is a key-value store whose entries expire automatically.
type TransientStore interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// SetWithTTL stores value under key, replacing any existing value, for ttl.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key and returns how many keys were removed (0 or 1).
	Delete(ctx context.Context, key string) (int64, error)

	// GetAndDelete returns the value under key and removes it in one
	// indivisible step. Of any number of concurrent callers for the same key,
	// at most one observes the value; the rest get ErrNotFound.
	GetAndDelete(ctx context.Context, key string) (string, error)

	// Ping checks connectivity to the backend.
	Ping(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}
