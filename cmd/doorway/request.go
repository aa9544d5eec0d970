// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
)

func runRequest(args []string) error {
	flags := pflag.NewFlagSet("request", pflag.ExitOnError)
	var (
		connect connectFlags
		method  string
	)
	connect.register(flags)
	flags.StringVarP(&method, "method", "X", "GET", "request method")
	if err := flags.Parse(args); err != nil {
		return err
	}
	positional := flags.Args()
	if len(positional) != 1 {
		return fmt.Errorf("usage: doorway request [flags] <path>")
	}
	path := positional[0]

	// A body is read from stdin when it is piped in.
	var body json.RawMessage
	if stat, err := os.Stdin.Stat(); err == nil && stat.Mode()&os.ModeCharDevice == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading request body from stdin: %w", err)
		}
		if len(data) > 0 {
			body = json.RawMessage(data)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	daemon, err := connect.dial(ctx)
	if err != nil {
		return err
	}
	defer daemon.Close()

	response, err := daemon.Request(ctx, method, path, nil, body)
	if err != nil {
		return err
	}
	if len(response.Body) > 0 {
		fmt.Printf("%s\n", response.Body)
	}
	if response.Status >= 400 {
		return fmt.Errorf("request failed with status %d", response.Status)
	}
	return nil
}
