// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/doorway/client"
)

func runUpload(args []string) error {
	flags := pflag.NewFlagSet("upload", pflag.ExitOnError)
	var (
		connect  connectFlags
		project  string
		session  string
		mimeType string
		quiet    bool
	)
	connect.register(flags)
	flags.StringVar(&project, "project", "", "project the file belongs to (required)")
	flags.StringVar(&session, "session", "", "session the file belongs to (required)")
	flags.StringVar(&mimeType, "mime-type", "", "MIME type (inferred from the extension when unset)")
	flags.BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")
	if err := flags.Parse(args); err != nil {
		return err
	}
	positional := flags.Args()
	if len(positional) != 1 {
		return fmt.Errorf("usage: doorway upload [flags] <file>")
	}
	if project == "" || session == "" {
		return fmt.Errorf("--project and --session are required")
	}

	path := positional[0]
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("inspecting %s: %w", path, err)
	}
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(path))
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	daemon, err := connect.dial(ctx)
	if err != nil {
		return err
	}
	defer daemon.Close()

	spec := client.UploadSpec{
		ProjectID: project,
		SessionID: session,
		Filename:  filepath.Base(path),
		MimeType:  mimeType,
		Size:      info.Size(),
		Content:   file,
	}
	if !quiet {
		spec.OnProgress = func(bytesReceived int64) {
			fmt.Fprintf(os.Stderr, "\r%d / %d bytes", bytesReceived, info.Size())
		}
	}

	metadata, err := daemon.Upload(ctx, spec)
	if !quiet {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return err
	}
	fmt.Printf("uploaded %s (%d bytes, checksum %s, id %s)\n",
		metadata.Filename, metadata.Size, metadata.Checksum, metadata.ID)
	return nil
}
