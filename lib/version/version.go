// Copyright 2026 The Periscope Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for Periscope binaries.
//
// Version information is injected at build time via -ldflags, for example:
//
//	go build -ldflags "-X github.com/periscope-project/periscope/lib/version.GitCommit=$(git rev-parse --short HEAD)"
package version

import (
	"fmt"
	"runtime"
)

// These variables are set via -ldflags at build time.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version. Set manually for releases.
	Version = "0.1.0-dev"
)

// Info returns a formatted version string suitable for --version output.
func Info() string {
	return fmt.Sprintf("%s (%s, %s)", Version, GitCommit, BuildTime)
}

// Print writes the version line for the named binary to stdout.
func Print(binary string) {
	fmt.Printf("%s %s\n  Go: %s\n  Platform: %s/%s\n",
		binary, Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
