// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/stacklok/oauthbroker/pkg/authbroker/server"
	"github.com/stacklok/oauthbroker/pkg/authbroker/storage"
	"github.com/stacklok/oauthbroker/pkg/logger"
)

type registerClientOptions struct {
	clientID     string
	clientName   string
	redirectURIs []string
	grantTypes   []string
}

func newRegisterClientCmd() *cobra.Command {
	var opts registerClientOptions

	cmd := &cobra.Command{
		Use:   "register-client",
		Short: "Register a public OAuth client in the configured store",
		Long: `Register a public OAuth client directly in the configured store, bypassing
the rate-limited /oauth/register endpoint. This is only useful with a shared
store (redis or valkey); the memory store does not outlive the command.

The client is kept for 7 days, the same as dynamically registered clients.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Store.Type == string(storage.TypeMemory) {
				logger.Warnw("registering a client in the memory store has no lasting effect")
			}

			store, err := storage.NewTransientStore(cmd.Context(), cfg.StorageConfig(), logger.Get())
			if err != nil {
				return fmt.Errorf("failed to create store: %w", err)
			}
			defer func() {
				if err := store.Close(); err != nil {
					logger.Warnw("failed to close store", "error", err)
				}
			}()

			return registerClient(cmd.Context(), cmd.OutOrStdout(), storage.NewClientStore(store), opts)
		},
	}

	cmd.Flags().StringVar(&opts.clientID, "client-id", "", "Client ID (generated when empty)")
	cmd.Flags().StringVar(&opts.clientName, "client-name", "", "Human-readable client name")
	cmd.Flags().StringSliceVar(&opts.redirectURIs, "redirect-uri", nil, "Allowed redirect URI (repeatable)")
	cmd.Flags().StringSliceVar(&opts.grantTypes, "grant-type", nil,
		"Allowed grant type (repeatable, default authorization_code and refresh_token)")
	if err := cmd.MarkFlagRequired("redirect-uri"); err != nil {
		logger.Errorf("Error marking redirect-uri flag required: %v", err)
	}

	return cmd
}

// registerClient validates opts like a dynamic registration request and stores the client.
func registerClient(ctx context.Context, w io.Writer, clients *storage.ClientStore, opts registerClientOptions) error {
	validated, dcrErr := server.ValidateDCRRequest(&server.DCRRequest{
		RedirectURIs: opts.redirectURIs,
		ClientName:   opts.clientName,
		GrantTypes:   opts.grantTypes,
	})
	if dcrErr != nil {
		return fmt.Errorf("%s: %s", dcrErr.Error, dcrErr.ErrorDescription)
	}

	clientID := opts.clientID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	client, err := clients.RegisterClient(ctx, storage.RegisteredClient{
		ClientID:                clientID,
		ClientName:              validated.ClientName,
		RedirectURIs:            validated.RedirectURIs,
		GrantTypes:              validated.GrantTypes,
		ResponseTypes:           validated.ResponseTypes,
		TokenEndpointAuthMethod: validated.TokenEndpointAuthMethod,
		ClientIDIssuedAt:        time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to register client: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(client)
}
