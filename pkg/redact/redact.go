// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package redact masks credentials before they reach log output and provides
// a short, non-reversible digest for correlating identifiers across log lines.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Redacted is the replacement value for sensitive fields.
const Redacted = "[REDACTED]"

// hashLength is the number of hex characters returned by HashIdentifier.
const hashLength = 16

// sensitiveKeys holds the lower-cased field names whose values are never logged.
var sensitiveKeys = map[string]struct{}{
	"authorization": {},
	"x-api-key":     {},
	"api_key":       {},
	"apikey":        {},
	"access_token":  {},
	"refresh_token": {},
	"client_secret": {},
	"code":          {},
	"code_verifier": {},
}

// IsSensitiveKey reports whether key names a sensitive field. Matching is case-insensitive.
func IsSensitiveKey(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(key)]
	return ok
}

// RedactSensitiveValue returns Redacted if key is sensitive, otherwise value unchanged.
func RedactSensitiveValue(key string, value any) any {
	if IsSensitiveKey(key) {
		return Redacted
	}
	return value
}

// SafeLogObject returns a copy of obj with every sensitive value replaced.
// The input map is never modified.
func SafeLogObject(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = RedactSensitiveValue(k, v)
	}
	return out
}

// HashIdentifier returns a deterministic 16 character hex digest of input.
func HashIdentifier(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])[:hashLength]
}
