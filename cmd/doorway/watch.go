// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/doorway/client"
)

func runWatch(args []string) error {
	flags := pflag.NewFlagSet("watch", pflag.ExitOnError)
	var (
		connect connectFlags
		session string
	)
	connect.register(flags)
	flags.StringVar(&session, "session", "", "session to watch (required for the session channel)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	positional := flags.Args()
	if len(positional) != 1 {
		return fmt.Errorf("usage: doorway watch [flags] <session|activity>")
	}
	channel := positional[0]
	if channel == client.ChannelSession && session == "" {
		return fmt.Errorf("--session is required for the session channel")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	daemon, err := connect.dial(ctx)
	if err != nil {
		return err
	}
	defer daemon.Close()

	subscription, err := daemon.Subscribe(ctx, channel, session)
	if err != nil {
		return err
	}

	// One line per event; Ctrl-C closes the connection, which closes
	// the event channel and ends the loop.
	for {
		select {
		case event, ok := <-subscription.Events:
			if !ok {
				return nil
			}
			if event.ID != nil {
				fmt.Printf("%d\t%s\t%s\n", *event.ID, event.Type, event.Data)
			} else {
				fmt.Printf("-\t%s\t%s\n", event.Type, event.Data)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
