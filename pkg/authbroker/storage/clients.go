// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"encoding/json"
	"errors"

	brokererrors "github.com/stacklok/oauthbroker/pkg/errors"
)

// ClientStore persists registered OAuth clients.
type ClientStore struct {
	store TransientStore
}

// NewClientStore creates a ClientStore on top of store.
func NewClientStore(store TransientStore) *ClientStore {
	return &ClientStore{store: store}
}

// RegisterClient stores client for RegisteredClientTTL and returns it unchanged.
// Registering an existing client_id replaces the previous record.
func (s *ClientStore) RegisterClient(ctx context.Context, client RegisteredClient) (RegisteredClient, error) {
	if client.ClientID == "" {
		return client, brokererrors.NewInvalidArgumentError("client_id is required", nil)
	}

	data, err := json.Marshal(client)
	if err != nil {
		return client, brokererrors.NewInternalError("failed to marshal client", err)
	}
	if err := s.store.SetWithTTL(ctx, ClientKeyPrefix+client.ClientID, string(data), RegisteredClientTTL); err != nil {
		return client, brokererrors.NewStorageError("failed to store client", err)
	}
	return client, nil
}

// GetClient returns the client registered under clientID. It returns nil and no
// error when the client was never registered or has expired; the two cases are
// indistinguishable.
func (s *ClientStore) GetClient(ctx context.Context, clientID string) (*RegisteredClient, error) {
	if clientID == "" {
		return nil, nil
	}

	data, err := s.store.Get(ctx, ClientKeyPrefix+clientID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, brokererrors.NewStorageError("failed to load client", err)
	}

	var client RegisteredClient
	if err := json.Unmarshal([]byte(data), &client); err != nil {
		return nil, brokererrors.NewStorageError("failed to decode client", err)
	}
	return &client, nil
}
