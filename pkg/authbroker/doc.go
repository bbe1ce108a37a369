// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package authbroker implements an OAuth 2.0 authorization code broker.
//
// The broker sits between downstream OAuth clients and an upstream identity
// provider. A downstream authorize request is parked as a pending
// authorization and the browser is sent upstream. When the provider calls
// back, the broker redeems the upstream code, stores the resulting tokens
// under a short-lived local authorization code and hands that code to the
// downstream client, which redeems it exactly once at the token endpoint.
//
// Each attempt moves through PENDING, CODE_ISSUED and finally REDEEMED or
// EXPIRED. All state lives in the injected stores, so any number of broker
// instances can serve the same flow.
package authbroker
