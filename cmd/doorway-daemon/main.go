// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Doorway-daemon is the network-facing doorway process. It serves the
// multiplexed WebSocket protocol (requests, event subscriptions, and
// file uploads over a single authenticated connection) on a direct
// listener, and optionally maintains an outbound relay link so clients
// can reach it through NAT.
//
// On startup:
//  1. Loads the YAML configuration (DOORWAY_CONFIG or --config).
//  2. Opens the credential record and upload storage.
//  3. Starts the direct listener, the relay link, or both.
//  4. Runs until SIGINT/SIGTERM, then shuts down gracefully.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bureau-foundation/doorway/gateway"
	"github.com/bureau-foundation/doorway/httpapi"
	"github.com/bureau-foundation/doorway/lib/config"
	"github.com/bureau-foundation/doorway/lib/credential"
	"github.com/bureau-foundation/doorway/lib/uploadstore"
	"github.com/bureau-foundation/doorway/relay"
	"github.com/bureau-foundation/doorway/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to doorway.yaml (defaults to $DOORWAY_CONFIG)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	credentials := credential.NewStore(cfg.Paths.Credential)
	if cfg.Auth.Required {
		if _, err := credentials.Get(); err != nil {
			if errors.Is(err, credential.ErrNotProvisioned) {
				return fmt.Errorf("auth is required but no credential is provisioned; run 'doorway credential set' first")
			}
			return fmt.Errorf("reading credential record: %w", err)
		}
	} else {
		logger.Warn("authentication disabled; accepting plaintext connections")
	}

	uploads, err := uploadstore.NewStore(cfg.Paths.Uploads)
	if err != nil {
		return fmt.Errorf("opening upload storage: %w", err)
	}

	supervisor := session.NewSupervisor()
	bus := session.NewBus()

	projects := make([]httpapi.Project, len(cfg.Projects))
	for i, project := range cfg.Projects {
		projects[i] = httpapi.Project{
			ID:   project.ID,
			Name: project.Name,
			Path: project.Path,
		}
	}

	server := &gateway.Server{
		Router:            httpapi.NewRouter(supervisor, bus, projects),
		Supervisor:        gateway.AdaptSupervisor(supervisor),
		Activity:          bus,
		Uploads:           uploads,
		Credentials:       credentials,
		AuthRequired:      cfg.Auth.Required,
		HeartbeatInterval: time.Duration(cfg.HeartbeatInterval),
		Logger:            logger,
	}

	// Fatal errors from either serving path end the daemon; the channel
	// is sized so a late failure during shutdown cannot block.
	fatal := make(chan error, 2)

	var listener *http.Server
	if cfg.Listen != "" {
		listener = &http.Server{
			Addr:              cfg.Listen,
			Handler:           server.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("listening", "addr", cfg.Listen)
			if err := listener.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fatal <- fmt.Errorf("listener: %w", err)
			}
		}()
	}

	if cfg.Relay.URL != "" {
		link := &relay.Link{
			URL:            cfg.Relay.URL,
			Name:           cfg.Relay.Name,
			InstallationID: cfg.Relay.InstallationID,
			Server:         server,
			Logger:         logger,
			OnStatus: func(status relay.Status) {
				logger.Info("relay link status", "status", status.String())
			},
		}
		go func() {
			if err := link.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				fatal <- fmt.Errorf("relay link: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-fatal:
		return err
	}

	if listener != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := listener.Shutdown(shutdownCtx); err != nil {
			logger.Warn("listener shutdown incomplete", "error", err)
		}
	}
	return nil
}
