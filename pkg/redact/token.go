// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package redact

import (
	"encoding/json"
	"log/slog"
)

// Token holds a credential that must never be printed. Every formatting and
// marshaling path renders it as Redacted; use Reveal to get the raw value.
type Token string

// Reveal returns the underlying credential.
func (t Token) Reveal() string {
	return string(t)
}

// IsEmpty reports whether the token is unset.
func (t Token) IsEmpty() bool {
	return t == ""
}

// String implements fmt.Stringer.
func (Token) String() string {
	return Redacted
}

// GoString implements fmt.GoStringer so %#v is covered too.
func (Token) GoString() string {
	return Redacted
}

// MarshalText implements encoding.TextMarshaler.
func (Token) MarshalText() ([]byte, error) {
	return []byte(Redacted), nil
}

// MarshalJSON implements json.Marshaler.
func (Token) MarshalJSON() ([]byte, error) {
	return json.Marshal(Redacted)
}

// LogValue implements slog.LogValuer.
func (Token) LogValue() slog.Value {
	return slog.StringValue(Redacted)
}
