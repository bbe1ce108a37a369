// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/oauthbroker/pkg/authbroker/storage/mocks"
)

func TestNewTransientStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("default is memory", func(t *testing.T) {
		t.Parallel()
		s, err := NewTransientStore(ctx, *DefaultConfig(), nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		assert.IsType(t, &MemoryStore{}, s)
	})

	t.Run("redis", func(t *testing.T) {
		t.Parallel()
		mr := miniredis.RunT(t)
		s, err := NewTransientStore(ctx, Config{
			Type:      TypeRedis,
			Addrs:     []string{mr.Addr()},
			KeyPrefix: "p:",
		}, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		assert.IsType(t, &RedisStore{}, s)

		require.NoError(t, s.SetWithTTL(ctx, "k", "v", time.Minute))
		assert.True(t, mr.Exists("p:k"))
	})

	t.Run("redis with credentials", func(t *testing.T) {
		t.Parallel()
		mr := miniredis.RunT(t)
		mr.RequireUserAuth("broker", "s3cret")
		s, err := NewTransientStore(ctx, Config{
			Type:     TypeRedis,
			Addrs:    []string{mr.Addr()},
			Username: "broker",
			Password: "s3cret",
		}, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
	})

	t.Run("unreachable redis gives up", func(t *testing.T) {
		t.Parallel()
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		_, err := NewTransientStore(ctx, Config{
			Type:           TypeRedis,
			Addrs:          []string{addr},
			ConnectTimeout: 500 * time.Millisecond,
		}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to connect to storage")
	})

	t.Run("unsupported type", func(t *testing.T) {
		t.Parallel()
		_, err := NewTransientStore(ctx, Config{Type: "etcd"}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unsupported storage type "etcd"`)
	})
}

func TestWaitForStore_RetriesUntilReachable(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := mocks.NewMockTransientStore(ctrl)
	gomock.InOrder(
		store.EXPECT().Ping(gomock.Any()).Return(errors.New("connection refused")),
		store.EXPECT().Ping(gomock.Any()).Return(errors.New("connection refused")),
		store.EXPECT().Ping(gomock.Any()).Return(nil),
	)

	err := waitForStore(context.Background(), store, 10*time.Second, nil)
	assert.NoError(t, err)
}
