// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Doorway is the operator CLI for a doorway daemon. It provisions the
// daemon's credential record and drives the authenticated WebSocket
// protocol: one-off requests, live event watching, and file uploads.
// Subcommands: credential, request, watch, upload.
package main
