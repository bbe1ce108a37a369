// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the broker over HTTP.
//
// It serves the upstream callback plus the downstream-facing OAuth 2.0
// endpoints: authorize, token (authorization_code with PKCE S256, and
// refresh_token), RFC 7591 dynamic client registration, RFC 7009 revocation
// and RFC 8414 authorization server metadata.
package server
