// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/oauthbroker/pkg/authbroker/storage"
	"github.com/stacklok/oauthbroker/pkg/versions"
)

func TestPrintVersionInfo(t *testing.T) {
	t.Parallel()

	info := versions.VersionInfo{
		Version:   "v1.2.3",
		Commit:    "abcdef0",
		BuildDate: "2025-01-01 00:00:00 UTC",
		GoVersion: "go1.26.1",
		Platform:  "linux/amd64",
	}

	t.Run("text", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, printVersionInfo(&buf, info, outputText))
		assert.Contains(t, buf.String(), "oauthbroker v1.2.3")
		assert.Contains(t, buf.String(), "Commit: abcdef0")
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, printVersionInfo(&buf, info, outputJSON))
		var got versions.VersionInfo
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, info, got)
	})

	t.Run("yaml", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, printVersionInfo(&buf, info, outputYAML))
		var got versions.VersionInfo
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, info, got)
		assert.Contains(t, buf.String(), "go_version: go1.26.1")
	})

	t.Run("unknown format", func(t *testing.T) {
		t.Parallel()
		assert.Error(t, printVersionInfo(&bytes.Buffer{}, info, "xml"))
	})
}

func TestRegisterClient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    registerClientOptions
		wantErr string
	}{
		{
			name: "explicit id",
			opts: registerClientOptions{
				clientID:     "my-cli",
				clientName:   "My CLI",
				redirectURIs: []string{"http://127.0.0.1:8765/callback"},
			},
		},
		{
			name: "generated id",
			opts: registerClientOptions{redirectURIs: []string{"https://app.example.com/cb"}},
		},
		{
			name:    "invalid redirect",
			opts:    registerClientOptions{redirectURIs: []string{"http://app.example.com/cb"}},
			wantErr: "invalid_redirect_uri",
		},
		{
			name: "unsupported grant",
			opts: registerClientOptions{
				redirectURIs: []string{"https://app.example.com/cb"},
				grantTypes:   []string{"authorization_code", "password"},
			},
			wantErr: "invalid_client_metadata",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			mem := storage.NewMemoryStore()
			t.Cleanup(func() { _ = mem.Close() })
			clients := storage.NewClientStore(mem)

			var buf bytes.Buffer
			err := registerClient(context.Background(), &buf, clients, tc.opts)
			if tc.wantErr != "" {
				assert.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)

			var out storage.RegisteredClient
			require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
			assert.NotEmpty(t, out.ClientID)
			if tc.opts.clientID != "" {
				assert.Equal(t, tc.opts.clientID, out.ClientID)
			}
			assert.Equal(t, "none", out.TokenEndpointAuthMethod)
			assert.Equal(t, []string{"authorization_code", "refresh_token"}, out.GrantTypes)

			stored, err := clients.GetClient(context.Background(), out.ClientID)
			require.NoError(t, err)
			require.NotNil(t, stored)
			assert.Equal(t, tc.opts.redirectURIs, stored.RedirectURIs)
		})
	}
}

func TestNewRootCmd_Subcommands(t *testing.T) { //nolint:paralleltest // Binds flags on the global viper
	root := NewRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "register-client")
	assert.Contains(t, names, "version")
}
