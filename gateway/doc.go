// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway implements the server side of the remote-access
// protocol: a per-connection authentication state machine, the
// encrypted envelope boundary, and a multiplexer that carries
// request/response traffic, event subscriptions, and chunked file
// uploads over one bidirectional message connection.
//
// A connection starts unauthenticated. The only messages accepted in
// that state are the SRP handshake messages (srp_hello and
// srp_client_proof), always plaintext. A successful proof derives the
// connection's immutable 32-byte session key; from then on every
// message in either direction is an encrypted envelope (package wire).
// Deployments that disable authentication mark the connection
// authenticated on open with no key, and the envelope layer is
// bypassed entirely rather than degraded.
//
// Inbound messages are handled strictly in arrival order: the
// connection's read loop does not pick up the next message until the
// current handler — including any call into the router or upload
// storage — has finished. This is what keeps the per-connection
// subscription and upload maps free of interleaved mutation without
// lock discipline across handlers. Outbound traffic from other
// goroutines (subscription events, heartbeats) funnels through the
// same ordered send path, so each message on the wire is a complete,
// independently decryptable unit.
//
// Closing the transport tears the connection down synchronously:
// every subscription's upstream registration is cancelled and its
// heartbeat stopped, and storage is told to discard every in-flight
// upload. Nothing a connection owned survives its disconnect, and no
// other connection is affected.
//
// The collaborators a connection calls into — Router, Supervisor,
// EventBus, UploadStorage, CredentialStore — are interfaces defined in
// this package and must be safe for concurrent use from many
// connections.
package gateway
