// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the typed error taxonomy shared by the broker, its
// stores and its HTTP surface.
package errors

import (
	"errors"
	"fmt"
)

// Error types
const (
	// ErrInvalidArgument is returned when a caller supplies malformed or missing input
	ErrInvalidArgument = "invalid_argument"

	// ErrInvalidTransaction is returned when a pending authorization or an issued
	// authorization code is absent, expired or already consumed
	ErrInvalidTransaction = "invalid_transaction"

	// ErrMismatch is returned when a client_id or redirect_uri does not match the
	// value bound to the transaction
	ErrMismatch = "mismatch"

	// ErrUpstream is returned when the upstream identity provider rejects a request
	ErrUpstream = "upstream"

	// ErrStorage is returned when the transient store fails
	ErrStorage = "storage"

	// ErrInternal is returned when there is an internal error
	ErrInternal = "internal"
)

// Error represents an error in the application
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message. The type is not part of the message so that
// callers matching on text see exactly what was passed to the constructor.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewInvalidArgumentError creates a new invalid argument error
func NewInvalidArgumentError(message string, cause error) *Error {
	return NewError(ErrInvalidArgument, message, cause)
}

// NewInvalidTransactionError creates a new invalid transaction error
func NewInvalidTransactionError(message string, cause error) *Error {
	return NewError(ErrInvalidTransaction, message, cause)
}

// NewMismatchError creates a new mismatch error
func NewMismatchError(message string, cause error) *Error {
	return NewError(ErrMismatch, message, cause)
}

// NewUpstreamError creates a new upstream error
func NewUpstreamError(message string, cause error) *Error {
	return NewError(ErrUpstream, message, cause)
}

// NewStorageError creates a new storage error
func NewStorageError(message string, cause error) *Error {
	return NewError(ErrStorage, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

// TypeOf returns the type of the first *Error in err's chain, or "" if there is none.
func TypeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// IsInvalidArgument checks if the error is an invalid argument error
func IsInvalidArgument(err error) bool {
	return TypeOf(err) == ErrInvalidArgument
}

// IsInvalidTransaction checks if the error is an invalid transaction error
func IsInvalidTransaction(err error) bool {
	return TypeOf(err) == ErrInvalidTransaction
}

// IsMismatch checks if the error is a mismatch error
func IsMismatch(err error) bool {
	return TypeOf(err) == ErrMismatch
}

// IsUpstream checks if the error is an upstream error
func IsUpstream(err error) bool {
	return TypeOf(err) == ErrUpstream
}

// IsStorage checks if the error is a storage error
func IsStorage(err error) bool {
	return TypeOf(err) == ErrStorage
}

// IsInternal checks if the error is an internal error
func IsInternal(err error) bool {
	return TypeOf(err) == ErrInternal
}
