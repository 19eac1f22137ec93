// echo - Chat with Echo, your AI best friend, from the terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"os"

	"github.com/echochat/echo/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = ""
	BuildTime = ""
)

func main() {
	os.Exit(cli.Execute(cli.BuildInfo{
		Version: Version,
		Commit:  GitCommit,
		Date:    BuildTime,
	}))
}
