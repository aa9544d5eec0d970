// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return fmt.Errorf("subcommand required")
	}

	subcommand := os.Args[1]
	switch subcommand {
	case "credential":
		return runCredential(os.Args[2:])
	case "request":
		return runRequest(os.Args[2:])
	case "watch":
		return runWatch(os.Args[2:])
	case "upload":
		return runUpload(os.Args[2:])
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand: %q", subcommand)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: doorway <subcommand> [flags]

Subcommands:
  credential  Provision or inspect the daemon's credential record
  request     Send one request and print the response body
  watch       Stream events from a subscription channel
  upload      Upload a file to a session

Run 'doorway <subcommand> --help' for subcommand flags.
`)
}
