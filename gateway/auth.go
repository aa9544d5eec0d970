// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"slices"

	"github.com/bureau-foundation/doorway/lib/credential"
	"github.com/bureau-foundation/doorway/srp"
	"github.com/bureau-foundation/doorway/wire"
)

// handleHandshakeFrame processes a frame on an unauthenticated
// connection. Only the two client handshake messages are accepted;
// anything else earns an srp_error and is otherwise ignored — the
// connection stays open so the client can start over.
func (c *conn) handleHandshakeFrame(data []byte) {
	var header typeOnly
	if err := json.Unmarshal(data, &header); err != nil {
		c.sendHandshakeError(ErrorCodeInvalidProof, "malformed handshake message")
		return
	}

	switch header.Type {
	case typeHello:
		c.handleHello(data)
	case typeClientProof:
		c.handleClientProof(data)
	default:
		c.sendHandshakeError(ErrorCodeInvalidProof, "authentication required")
	}
}

// handleHello starts (or restarts) the handshake. A hello arriving
// while a challenge is outstanding abandons the old exchange and
// issues a fresh one.
func (c *conn) handleHello(data []byte) {
	var hello helloMessage
	if err := json.Unmarshal(data, &hello); err != nil {
		c.sendHandshakeError(ErrorCodeInvalidProof, "malformed srp_hello")
		return
	}

	record, err := c.server.Credentials.Get()
	if err != nil {
		if errors.Is(err, credential.ErrNotProvisioned) {
			c.sendHandshakeError(ErrorCodeInvalidIdentity, "unknown identity")
			return
		}
		c.logger.Error("loading credential record", "error", err)
		c.sendHandshakeError(ErrorCodeServerError, "internal error")
		return
	}
	if hello.Identity != record.Identity {
		c.sendHandshakeError(ErrorCodeInvalidIdentity, "unknown identity")
		return
	}

	session, err := srp.NewServerSession(record.Identity, record.Salt, record.Verifier)
	if err != nil {
		c.logger.Error("starting handshake", "identity", hello.Identity, "error", err)
		c.sendHandshakeError(ErrorCodeServerError, "internal error")
		return
	}

	c.srpSession = session
	c.identity = hello.Identity
	c.gzipOffered = slices.Contains(hello.Features, featureGzip)
	c.state = stateChallengeSent

	if err := c.sendPlaintext(challengeMessage{
		Type: typeChallenge,
		Salt: hex.EncodeToString(session.Salt()),
		B:    hex.EncodeToString(session.PublicEphemeral()),
	}); err != nil {
		c.logger.Warn("sending challenge", "error", err)
	}
}

// handleClientProof finishes the handshake. A failed proof throws the
// exchange away; the client must restart from srp_hello.
func (c *conn) handleClientProof(data []byte) {
	if c.state != stateChallengeSent {
		c.sendHandshakeError(ErrorCodeInvalidProof, "no handshake in progress")
		return
	}

	var proof clientProofMessage
	if err := json.Unmarshal(data, &proof); err != nil {
		c.failHandshake(ErrorCodeInvalidProof, "malformed srp_client_proof")
		return
	}
	clientPublic, err := hex.DecodeString(proof.A)
	if err != nil {
		c.failHandshake(ErrorCodeInvalidProof, "A is not valid hex")
		return
	}
	clientProofM1, err := hex.DecodeString(proof.M1)
	if err != nil {
		c.failHandshake(ErrorCodeInvalidProof, "M1 is not valid hex")
		return
	}

	sessionKey, serverProofM2, err := c.srpSession.VerifyProof(clientPublic, clientProofM1)
	if err != nil {
		c.logger.Warn("authentication failed", "identity", c.identity, "error", err)
		c.failHandshake(ErrorCodeInvalidProof, "proof verification failed")
		return
	}

	key, err := wire.NewKey(sessionKey)
	if err != nil {
		c.logger.Error("deriving session key", "error", err)
		c.failHandshake(ErrorCodeServerError, "internal error")
		return
	}

	// The verify message is the last plaintext on the connection; the
	// key flips on only after it is out.
	if err := c.sendPlaintext(verifyMessage{
		Type: typeVerify,
		M2:   hex.EncodeToString(serverProofM2),
	}); err != nil {
		c.logger.Warn("sending server proof", "error", err)
		return
	}

	c.srpSession = nil
	c.key = key
	c.compression = c.gzipOffered
	c.state = stateAuthenticated
	c.logger.Info("connection authenticated",
		"identity", c.identity, "compression", c.compression)
}

// failHandshake reports an error and resets to the initial state.
func (c *conn) failHandshake(code, message string) {
	c.srpSession = nil
	c.identity = ""
	c.gzipOffered = false
	c.state = stateUnauthenticated
	c.sendHandshakeError(code, message)
}

func (c *conn) sendHandshakeError(code, message string) {
	if err := c.sendPlaintext(srpErrorMessage{
		Type:    typeSRPError,
		Code:    code,
		Message: message,
	}); err != nil {
		c.logger.Warn("sending handshake error", "code", code, "error", err)
	}
}
