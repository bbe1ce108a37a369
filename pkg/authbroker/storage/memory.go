// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"sync"
	"time"
)

// DefaultCleanupInterval is how often the in-memory store evicts expired entries.
const DefaultCleanupInterval = time.Minute

// timedEntry wraps a value with its expiry for TTL tracking.
type timedEntry struct {
	value     string
	expiresAt time.Time
}

func (e timedEntry) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// MemoryStore implements TransientStore with an in-process map.
// It is suitable for tests and single-replica development; replicas do not share state.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]timedEntry
	now     func() time.Time

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupDone     chan struct{}
	closeOnce       sync.Once
}

// MemoryStoreOption configures a MemoryStore instance.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets a custom cleanup interval.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.cleanupInterval = interval
	}
}

// WithClock overrides the time source. Used by tests to expire entries without sleeping.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates a MemoryStore and starts its background cleanup goroutine.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		entries:         make(map[string]timedEntry),
		now:             time.Now,
		cleanupInterval: DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// Get implements TransientStore.
func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.expired(s.now()) {
		return "", ErrNotFound
	}
	return e.value, nil
}

// SetWithTTL implements TransientStore.
func (s *MemoryStore) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = timedEntry{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

// Delete implements TransientStore.
func (s *MemoryStore) Delete(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return 0, nil
	}
	delete(s.entries, key)
	if e.expired(s.now()) {
		return 0, nil
	}
	return 1, nil
}

// GetAndDelete implements TransientStore. The lookup and removal happen under one lock.
func (s *MemoryStore) GetAndDelete(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return "", ErrNotFound
	}
	delete(s.entries, key)
	if e.expired(s.now()) {
		return "", ErrNotFound
	}
	return e.value, nil
}

// Ping is a no-op for in-memory storage since it is always available.
func (*MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Close stops the background cleanup goroutine and waits for it to finish.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
		<-s.cleanupDone
	})
	return nil
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for _, e := range s.entries {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

func (s *MemoryStore) cleanupLoop() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanupExpired()
		}
	}
}

func (s *MemoryStore) cleanupExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
		}
	}
}
