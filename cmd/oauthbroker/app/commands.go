// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the oauthbroker command-line application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/oauthbroker/pkg/config"
	"github.com/stacklok/oauthbroker/pkg/logger"
)

// NewRootCmd creates a new root command for the oauthbroker CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "oauthbroker",
		DisableAutoGenTag: true,
		Short:             "OAuth 2.0 authorization server brokering logins to an upstream identity provider",
		Long: `oauthbroker is an OAuth 2.0 authorization server for public clients such as CLIs
and editor extensions. It runs the Authorization Code flow with PKCE against its
clients, delegates the actual login to an upstream identity provider, and hands
the provider's tokens back in exchange for short-lived, single-use codes.`,
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			if err := cmd.Help(); err != nil {
				logger.Errorf("Error displaying help: %v", err)
			}
		},
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(viper.GetString("env-file")); err != nil {
				return err
			}
			logger.Initialize()
			return nil
		},
		SilenceUsage: true,
	}

	// Add persistent flags
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().String("env-file", config.DefaultDotEnvFile, "Path to a .env file loaded before configuration")
	for _, name := range []string{"debug", "config", "env-file"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			logger.Errorf("Error binding %s flag: %v", name, err)
		}
	}

	// Add subcommands
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRegisterClientCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// loadConfig resolves the configuration from flags, environment and the config file.
func loadConfig() (*config.Config, error) {
	v := viper.GetViper()
	config.SetDefaults(v)
	return config.Load(v, v.GetString("config"))
}
