// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/doorway/client"
)

// connectFlags are the flags shared by every subcommand that dials the
// daemon.
type connectFlags struct {
	url          string
	identity     string
	passwordFile string
	compress     bool
}

func (f *connectFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&f.url, "url", os.Getenv("DOORWAY_URL"),
		"daemon WebSocket URL (ws://host:port/v1/connect)")
	flags.StringVar(&f.identity, "identity", os.Getenv("DOORWAY_IDENTITY"),
		"identity to authenticate as (empty for auth-disabled daemons)")
	flags.StringVar(&f.passwordFile, "password-file", "",
		"file containing the password (prompts interactively when unset)")
	flags.BoolVar(&f.compress, "compress", false,
		"advertise gzip compression for large messages")
}

// dial connects and, when an identity is set, authenticates. The
// client's internal logging is discarded; the CLI prints its own
// output.
func (f *connectFlags) dial(ctx context.Context) (*client.Client, error) {
	if f.url == "" {
		return nil, fmt.Errorf("--url is required (or set DOORWAY_URL)")
	}

	options := client.Options{
		Identity:    f.identity,
		Compression: f.compress,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if f.identity != "" {
		password, err := readPassword(f.passwordFile, false)
		if err != nil {
			return nil, err
		}
		options.Password = password
	}
	return client.Dial(ctx, f.url, options)
}

// readPassword reads a password from passwordFile, or prompts on the
// terminal with echo disabled when the path is empty or "-". With
// confirm set the interactive prompt asks twice; file-sourced
// passwords skip confirmation.
func readPassword(passwordFile string, confirm bool) (string, error) {
	if passwordFile != "" && passwordFile != "-" {
		data, err := os.ReadFile(passwordFile)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", passwordFile, err)
		}
		// Strip trailing newlines — files often end with one.
		for len(data) > 0 && (data[len(data)-1] == '\n' || data[len(data)-1] == '\r') {
			data = data[:len(data)-1]
		}
		return string(data), nil
	}

	stdinFileDescriptor := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFileDescriptor) {
		return "", fmt.Errorf("no terminal available for interactive password prompt (use --password-file)")
	}

	fmt.Fprint(os.Stderr, "Password: ")
	first, err := term.ReadPassword(stdinFileDescriptor)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	if !confirm {
		return string(first), nil
	}

	fmt.Fprint(os.Stderr, "Confirm password: ")
	second, err := term.ReadPassword(stdinFileDescriptor)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password confirmation: %w", err)
	}
	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(first), nil
}
