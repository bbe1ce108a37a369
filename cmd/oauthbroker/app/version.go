// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/oauthbroker/pkg/versions"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

// newVersionCmd creates a new version command
func newVersionCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the version of oauthbroker",
		Long:  `Display detailed version information about oauthbroker, including version number, git commit, build date, and Go version.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printVersionInfo(cmd.OutOrStdout(), versions.GetVersionInfo(), output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "Output format: text, json or yaml")

	return cmd
}

// printVersionInfo prints the version information in the requested format
func printVersionInfo(w io.Writer, info versions.VersionInfo, output string) error {
	switch output {
	case outputText, "":
		_, err := fmt.Fprintf(w, "oauthbroker %s\nCommit: %s\nBuilt: %s\nGo version: %s\nPlatform: %s\n",
			info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
		return err
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(info)
	default:
		return fmt.Errorf("unsupported output format %q: must be %s, %s or %s", output, outputText, outputJSON, outputYAML)
	}
}
