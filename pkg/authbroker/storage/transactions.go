// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"time"

	brokererrors "github.com/stacklok/oauthbroker/pkg/errors"
)

// TransactionStore persists the short-lived records of an authorization attempt:
// pending authorizations and issued authorization codes.
type TransactionStore struct {
	store TransientStore
	newID func() string
	now   func() time.Time
}

// TransactionStoreOption configures a TransactionStore.
type TransactionStoreOption func(*TransactionStore)

// WithIDGenerator overrides how record ids are generated.
func WithIDGenerator(gen func() string) TransactionStoreOption {
	return func(s *TransactionStore) {
		s.newID = gen
	}
}

// WithTransactionClock overrides the time source used for CreatedAt.
func WithTransactionClock(now func() time.Time) TransactionStoreOption {
	return func(s *TransactionStore) {
		s.now = now
	}
}

// NewTransactionStore creates a TransactionStore on top of store.
// Ids are 26 base32 characters from crypto/rand (130 bits).
func NewTransactionStore(store TransientStore, opts ...TransactionStoreOption) *TransactionStore {
	s := &TransactionStore{
		store: store,
		newID: rand.Text,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreatePendingAuthorization persists a new pending authorization for PendingAuthorizationTTL.
func (s *TransactionStore) CreatePendingAuthorization(
	ctx context.Context,
	in PendingAuthorizationInput,
) (*PendingAuthorization, error) {
	record := &PendingAuthorization{
		ID:            s.newID(),
		ClientID:      in.ClientID,
		RedirectURI:   in.RedirectURI,
		CodeChallenge: in.CodeChallenge,
		ClientState:   in.ClientState,
		Scopes:        in.Scopes,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.put(ctx, PendingKeyPrefix+record.ID, record, PendingAuthorizationTTL); err != nil {
		return nil, err
	}
	return record, nil
}

// GetPendingAuthorization returns the pending authorization with id without
// consuming it. It returns nil and no error when absent or expired.
func (s *TransactionStore) GetPendingAuthorization(ctx context.Context, id string) (*PendingAuthorization, error) {
	var record PendingAuthorization
	found, err := s.load(ctx, PendingKeyPrefix+id, &record, false)
	if err != nil || !found {
		return nil, err
	}
	return &record, nil
}

// DeletePendingAuthorization removes the pending authorization with id.
// Deleting an absent record is not an error.
func (s *TransactionStore) DeletePendingAuthorization(ctx context.Context, id string) error {
	if _, err := s.store.Delete(ctx, PendingKeyPrefix+id); err != nil {
		return brokererrors.NewStorageError("failed to delete pending authorization", err)
	}
	return nil
}

// IssueAuthorizationCode persists a new authorization code for AuthorizationCodeTTL.
func (s *TransactionStore) IssueAuthorizationCode(
	ctx context.Context,
	in AuthorizationCodeInput,
) (*IssuedAuthorizationCode, error) {
	record := &IssuedAuthorizationCode{
		ID:            s.newID(),
		ClientID:      in.ClientID,
		RedirectURI:   in.RedirectURI,
		CodeChallenge: in.CodeChallenge,
		Tokens:        in.Tokens,
		Scopes:        in.Scopes,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.put(ctx, CodeKeyPrefix+record.ID, record, AuthorizationCodeTTL); err != nil {
		return nil, err
	}
	return record, nil
}

// ConsumeAuthorizationCode atomically reads and deletes the code with id.
// Only the first caller gets the record; later calls return nil and no error.
func (s *TransactionStore) ConsumeAuthorizationCode(ctx context.Context, id string) (*IssuedAuthorizationCode, error) {
	var record IssuedAuthorizationCode
	found, err := s.load(ctx, CodeKeyPrefix+id, &record, true)
	if err != nil || !found {
		return nil, err
	}
	return &record, nil
}

// GetAuthorizationCode returns the code with id without consuming it.
func (s *TransactionStore) GetAuthorizationCode(ctx context.Context, id string) (*IssuedAuthorizationCode, error) {
	var record IssuedAuthorizationCode
	found, err := s.load(ctx, CodeKeyPrefix+id, &record, false)
	if err != nil || !found {
		return nil, err
	}
	return &record, nil
}

func (s *TransactionStore) put(ctx context.Context, key string, record any, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return brokererrors.NewInternalError("failed to marshal transaction record", err)
	}
	if err := s.store.SetWithTTL(ctx, key, string(data), ttl); err != nil {
		return brokererrors.NewStorageError("failed to store transaction record", err)
	}
	return nil
}

func (s *TransactionStore) load(ctx context.Context, key string, into any, consume bool) (bool, error) {
	if key == PendingKeyPrefix || key == CodeKeyPrefix {
		return false, nil
	}

	var (
		data string
		err  error
	)
	if consume {
		data, err = s.store.GetAndDelete(ctx, key)
	} else {
		data, err = s.store.Get(ctx, key)
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, brokererrors.NewStorageError("failed to load transaction record", err)
	}

	if err := json.Unmarshal([]byte(data), into); err != nil {
		return false, brokererrors.NewStorageError("failed to decode transaction record", err)
	}
	return true, nil
}
