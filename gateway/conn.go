// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/doorway/lib/uploadstore"
	"github.com/bureau-foundation/doorway/srp"
	"github.com/bureau-foundation/doorway/wire"
)

// authState is the connection's position in the handshake.
type authState int

const (
	// stateUnauthenticated: nothing accepted but srp_hello.
	stateUnauthenticated authState = iota

	// stateChallengeSent: a challenge is out, waiting for the proof.
	// A fresh srp_hello restarts the handshake from here.
	stateChallengeSent

	// stateAuthenticated: the session key is fixed and every further
	// message crosses the envelope boundary.
	stateAuthenticated
)

// conn is one client connection. All fields below the send mutex are
// touched only by the read loop, which handles messages strictly in
// arrival order; the subscription map additionally gets concurrent
// access from heartbeat and event-delivery goroutines and has its own
// lock.
type conn struct {
	server    *Server
	transport MessageConn
	logger    *slog.Logger

	state      authState
	srpSession *srp.ServerSession
	identity   string

	// key is nil until authentication completes, and stays nil for the
	// connection's lifetime when authentication is disabled.
	key *[wire.KeySize]byte

	// gzipOffered is latched from srp_hello; compression turns on only
	// once the envelope boundary exists.
	gzipOffered bool
	compression bool

	// sendMu serializes every write to the transport.
	sendMu sync.Mutex

	subscriptionsMu sync.Mutex
	subscriptions   map[string]*subscription

	// uploads is keyed by the client-chosen upload id. Read loop only.
	uploads map[string]*upload
}

func newConn(server *Server, transport MessageConn) *conn {
	c := &conn{
		server:        server,
		transport:     transport,
		logger:        server.logger(),
		subscriptions: make(map[string]*subscription),
		uploads:       make(map[string]*upload),
	}
	if !server.AuthRequired {
		c.state = stateAuthenticated
	}
	return c
}

// run is the connection's read loop. Each message is handled to
// completion before the next is read; that sequencing is what the
// handlers rely on instead of locks.
func (c *conn) run(ctx context.Context) {
	defer c.teardown()

	for {
		messageType, data, err := c.transport.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Debug("connection read ended", "error", err)
			}
			return
		}
		c.handleFrame(ctx, messageType, data)
	}
}

// handleFrame routes one inbound frame through the envelope boundary
// (or past it, pre-auth) to the message handlers.
func (c *conn) handleFrame(ctx context.Context, messageType MessageType, data []byte) {
	if c.state != stateAuthenticated {
		c.handleHandshakeFrame(data)
		return
	}

	if c.key == nil {
		// Authentication disabled: plaintext JSON end to end.
		c.dispatch(ctx, data)
		return
	}

	var format byte
	var payload []byte
	var err error
	switch messageType {
	case BinaryMessage:
		format, payload, err = wire.Open(c.key, data)
	case TextMessage:
		format, payload, err = wire.OpenJSON(c.key, data)
	default:
		c.logger.Warn("unsupported frame type", "messageType", int(messageType))
		return
	}
	if err != nil {
		// A frame that fails authentication carries no trustworthy
		// correlation id. Drop it; never reply.
		c.logger.Warn("dropping undecryptable envelope", "error", err)
		return
	}

	if format == wire.FormatBinaryUpload {
		c.handleBinaryChunk(payload)
		return
	}
	decoded, err := wire.DecodeJSON(format, payload)
	if err != nil {
		c.logger.Warn("dropping undecodable payload", "error", err)
		return
	}
	c.dispatch(ctx, decoded)
}

// dispatch decodes the type discriminator and hands the message to its
// handler. Runs only for authenticated traffic.
func (c *conn) dispatch(ctx context.Context, data []byte) {
	var header typeOnly
	if err := json.Unmarshal(data, &header); err != nil {
		c.logger.Warn("dropping malformed message", "error", err)
		return
	}

	switch header.Type {
	case typeRequest:
		c.handleRequest(ctx, data)
	case typeSubscribe:
		c.handleSubscribe(data)
	case typeUnsubscribe:
		c.handleUnsubscribe(data)
	case typeUploadStart:
		c.handleUploadStart(data)
	case typeUploadChunk:
		c.handleUploadChunk(data)
	case typeUploadEnd:
		c.handleUploadEnd(data)
	default:
		c.logger.Warn("dropping message of unknown type", "type", header.Type)
	}
}

// sendMessage marshals and sends one application message, sealing it
// when the connection has a session key. Safe to call from any
// goroutine; the send mutex keeps messages whole and ordered.
func (c *conn) sendMessage(message any) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encoding outbound message: %w", err)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.key == nil {
		return c.transport.WriteMessage(TextMessage, payload)
	}
	format, encoded, err := wire.EncodeJSON(payload, c.compression)
	if err != nil {
		return err
	}
	frame, err := wire.Seal(c.key, format, encoded)
	if err != nil {
		return err
	}
	return c.transport.WriteMessage(BinaryMessage, frame)
}

// sendPlaintext sends a handshake message, which never crosses the
// envelope boundary even after the key exists.
func (c *conn) sendPlaintext(message any) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encoding handshake message: %w", err)
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.transport.WriteMessage(TextMessage, payload)
}

// teardown releases everything the connection owns. Runs exactly once,
// after the read loop returns; by then no handler is executing.
func (c *conn) teardown() {
	c.transport.Close()

	c.subscriptionsMu.Lock()
	subscriptions := make([]*subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subscriptions = append(subscriptions, sub)
	}
	c.subscriptions = make(map[string]*subscription)
	c.subscriptionsMu.Unlock()
	for _, sub := range subscriptions {
		sub.stop()
	}

	for _, u := range c.uploads {
		if err := c.server.Uploads.CancelUpload(u.serverID); err != nil && !errors.Is(err, uploadstore.ErrUnknownUpload) {
			c.logger.Warn("discarding upload at disconnect",
				"uploadId", u.clientID, "error", err)
		}
	}
	c.uploads = make(map[string]*upload)
}
