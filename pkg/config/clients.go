// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/oauthbroker/pkg/authbroker/storage"
)

// LoadClientsFile reads a YAML list of clients to pre-register. Each entry
// uses the RegisteredClient field names and needs client_id and redirect_uris.
func LoadClientsFile(path string) ([]storage.RegisteredClient, error) {
	content, err := os.ReadFile(path) // #nosec G304 - path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("read clients file: %w", err)
	}
	return parseClients(content)
}

func parseClients(content []byte) ([]storage.RegisteredClient, error) {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var clients []storage.RegisteredClient
	if err := dec.Decode(&clients); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode clients file: %w", err)
	}

	seen := make(map[string]bool, len(clients))
	for i, c := range clients {
		if c.ClientID == "" {
			return nil, fmt.Errorf("client %d: client_id is required", i)
		}
		if seen[c.ClientID] {
			return nil, fmt.Errorf("client %q is listed more than once", c.ClientID)
		}
		seen[c.ClientID] = true
		if len(c.RedirectURIs) == 0 {
			return nil, fmt.Errorf("client %q: redirect_uris is required", c.ClientID)
		}
	}
	return clients, nil
}

// SeedClients registers clients, overwriting records with the same client_id.
func SeedClients(ctx context.Context, store *storage.ClientStore, clients []storage.RegisteredClient) error {
	for _, c := range clients {
		if _, err := store.RegisterClient(ctx, c); err != nil {
			return fmt.Errorf("register client %q: %w", c.ClientID, err)
		}
	}
	return nil
}
