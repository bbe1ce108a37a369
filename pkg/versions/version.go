// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package versions exposes build metadata injected with -ldflags.
package versions

import (
	"fmt"
	"runtime"
	"time"
)

const unknownStr = "unknown"

// Build information, set via -ldflags "-X github.com/stacklok/oauthbroker/pkg/versions.Version=..."
var (
	Version   = "dev"
	Commit    = unknownStr
	BuildDate = unknownStr
)

// VersionInfo describes the running binary.
type VersionInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"build_date" yaml:"build_date"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

// GetVersionInfo returns the build metadata with development builds labelled by commit.
func GetVersionInfo() VersionInfo {
	ver := Version
	if ver == "dev" {
		commit := Commit
		if len(commit) > 8 {
			commit = commit[:8]
		}
		ver = "build-" + commit
	}

	buildDate := BuildDate
	if t, err := time.Parse(time.RFC3339, BuildDate); err == nil {
		buildDate = t.UTC().Format("2006-01-02 15:04:05 UTC")
	}

	return VersionInfo{
		Version:   ver,
		Commit:    Commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// UserAgent is sent on every request to the upstream identity provider.
func UserAgent() string {
	return "oauthbroker/" + GetVersionInfo().Version
}
