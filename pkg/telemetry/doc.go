// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package telemetry wires OpenTelemetry for the broker: a meter provider that
// always feeds a Prometheus registry and optionally an OTLP collector, a
// tracer provider that exports over OTLP when an endpoint is configured, and
// HTTP middleware recording request metrics and spans.
package telemetry
