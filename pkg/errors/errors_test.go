// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	t.Parallel()

	err := NewInvalidTransactionError("invalid or expired OAuth state", nil)
	assert.Equal(t, "invalid or expired OAuth state", err.Error())

	cause := errors.New("status 500")
	wrapped := NewUpstreamError("upstream token exchange failed", cause)
	assert.Equal(t, "upstream token exchange failed: status 500", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}

func TestPredicates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		pred func(error) bool
	}{
		{"invalid argument", NewInvalidArgumentError("x", nil), IsInvalidArgument},
		{"invalid transaction", NewInvalidTransactionError("x", nil), IsInvalidTransaction},
		{"mismatch", NewMismatchError("x", nil), IsMismatch},
		{"upstream", NewUpstreamError("x", nil), IsUpstream},
		{"storage", NewStorageError("x", nil), IsStorage},
		{"internal", NewInternalError("x", nil), IsInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.True(t, tt.pred(tt.err))
			assert.True(t, tt.pred(fmt.Errorf("outer: %w", tt.err)), "predicate must see through wrapping")
			assert.False(t, tt.pred(errors.New("plain")))
		})
	}
}

func TestTypeOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ErrMismatch, TypeOf(NewMismatchError("redirect URI mismatch", nil)))
	assert.Empty(t, TypeOf(errors.New("plain")))
	assert.Empty(t, TypeOf(nil))
}
