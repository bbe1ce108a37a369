// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// ParseResourceAttributes parses a comma-separated list of key=value pairs,
// e.g. "deployment.environment=prod,region=eu-west-1", into resource attributes.
// Blank entries are skipped; the result is sorted by key.
func ParseResourceAttributes(input string) ([]attribute.KeyValue, error) {
	pairs := map[string]string{}
	for _, entry := range strings.Split(input, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid attribute %q: expected key=value", entry)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("empty attribute key in %q", entry)
		}
		pairs[key] = strings.TrimSpace(value)
	}

	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, attribute.String(k, pairs[k]))
	}
	return attrs, nil
}
