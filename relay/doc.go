// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay maintains the outbound link to a public relay server
// so clients can reach a daemon behind NAT. The daemon dials out,
// registers under its installation name, and the relay forwards each
// client connection back over the same WebSocket as multiplexed
// control frames.
//
// Every forwarded connection surfaces as an ordinary message
// connection handed to the gateway: the handshake, the envelope layer,
// and the multiplexer cannot tell a relayed client from a direct one,
// and the relay sees only ciphertext once the handshake completes.
//
// The link reports its lifecycle through a status callback
// (connecting, waiting, paired) and redials with exponential backoff
// plus jitter when the relay drops.
package relay
