// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/doorway/httpapi"
	"github.com/bureau-foundation/doorway/lib/clock"
	"github.com/bureau-foundation/doorway/lib/credential"
	"github.com/bureau-foundation/doorway/lib/testutil"
	"github.com/bureau-foundation/doorway/lib/uploadstore"
	"github.com/bureau-foundation/doorway/session"
	"github.com/bureau-foundation/doorway/srp"
	"github.com/bureau-foundation/doorway/wire"
)

const (
	testIdentity = "operator"
	testPassword = "correct horse battery staple"
	waitTime     = 5 * time.Second
)

// pipeFrame is one message crossing the in-memory transport.
type pipeFrame struct {
	messageType MessageType
	data        []byte
}

// pipeConn is an in-memory MessageConn. The server reads fromClient
// and writes toClient; tests play the client on the other ends.
type pipeConn struct {
	fromClient chan pipeFrame
	toClient   chan pipeFrame
	closeOnce  sync.Once
	closed     chan struct{}
}

func newPipeConn() *pipeConn {
	return &pipeConn{
		fromClient: make(chan pipeFrame, 64),
		toClient:   make(chan pipeFrame, 64),
		closed:     make(chan struct{}),
	}
}

func (p *pipeConn) ReadMessage() (MessageType, []byte, error) {
	select {
	case frame := <-p.fromClient:
		return frame.messageType, frame.data, nil
	case <-p.closed:
		return 0, nil, errors.New("pipe closed")
	}
}

func (p *pipeConn) WriteMessage(messageType MessageType, data []byte) error {
	select {
	case p.toClient <- pipeFrame{messageType: messageType, data: data}:
		return nil
	case <-p.closed:
		return errors.New("pipe closed")
	}
}

func (p *pipeConn) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

// harness runs a Server over a pipeConn and plays the client side.
type harness struct {
	t          *testing.T
	server     *Server
	pipe       *pipeConn
	done       chan struct{}
	clk        *clock.FakeClock
	supervisor *session.Supervisor
	bus        *session.Bus

	// key and compression mirror the client's view after authenticate.
	key         *[wire.KeySize]byte
	compression bool
}

// newHarness builds a server with real collaborators (supervisor, bus,
// upload store, provisioned credentials) and starts it on a pipe.
// configure may adjust the Server before it runs, or be nil.
func newHarness(t *testing.T, authRequired bool, configure func(*Server)) *harness {
	t.Helper()

	supervisor := session.NewSupervisor()
	bus := session.NewBus()
	store, err := uploadstore.NewStore(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	credentials := credential.NewStore(filepath.Join(t.TempDir(), "credential.json"))
	if err := credentials.SetPassword(testIdentity, testPassword); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}

	clk := clock.Fake(time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC))
	server := &Server{
		Router: httpapi.NewRouter(supervisor, bus, []httpapi.Project{
			{ID: "p1", Name: "alpha", Path: "/work/alpha"},
		}),
		Supervisor:   AdaptSupervisor(supervisor),
		Activity:     bus,
		Uploads:      store,
		Credentials:  credentials,
		AuthRequired: authRequired,
		Clock:        clk,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if configure != nil {
		configure(server)
	}

	pipe := newPipeConn()
	done := make(chan struct{})
	go func() {
		server.HandleConn(context.Background(), pipe)
		close(done)
	}()
	t.Cleanup(func() {
		pipe.Close()
		testutil.Closed(t, done, waitTime, "waiting for connection teardown")
	})

	return &harness{
		t:          t,
		server:     server,
		pipe:       pipe,
		done:       done,
		clk:        clk,
		supervisor: supervisor,
		bus:        bus,
	}
}

// send marshals and sends one client message, sealing it when the
// harness holds a session key.
func (h *harness) send(message any) {
	h.t.Helper()
	payload, err := json.Marshal(message)
	if err != nil {
		h.t.Fatalf("encoding client message: %v", err)
	}
	if h.key == nil {
		h.sendRaw(TextMessage, payload)
		return
	}
	format, encoded, err := wire.EncodeJSON(payload, h.compression)
	if err != nil {
		h.t.Fatalf("encoding client payload: %v", err)
	}
	frame, err := wire.Seal(h.key, format, encoded)
	if err != nil {
		h.t.Fatalf("sealing client message: %v", err)
	}
	h.sendRaw(BinaryMessage, frame)
}

func (h *harness) sendRaw(messageType MessageType, data []byte) {
	h.t.Helper()
	testutil.Send(h.t, h.pipe.fromClient, pipeFrame{messageType: messageType, data: data},
		waitTime, "sending client frame")
}

// receiveFrame returns the next raw frame the server wrote.
func (h *harness) receiveFrame() pipeFrame {
	h.t.Helper()
	return testutil.Receive(h.t, h.pipe.toClient, waitTime, "waiting for server frame")
}

// receiveSealed opens the next frame through the envelope and returns
// the inner format and payload. Only valid once the harness has a key.
func (h *harness) receiveSealed() (byte, []byte) {
	h.t.Helper()
	frame := h.receiveFrame()
	if frame.messageType != BinaryMessage {
		h.t.Fatalf("frame type = %d, want binary envelope", frame.messageType)
	}
	format, payload, err := wire.Open(h.key, frame.data)
	if err != nil {
		h.t.Fatalf("opening envelope: %v", err)
	}
	return format, payload
}

// receivePayload returns the next decoded JSON message from the server,
// crossing the envelope boundary when the harness holds a key.
func (h *harness) receivePayload() []byte {
	h.t.Helper()
	if h.key == nil {
		frame := h.receiveFrame()
		if frame.messageType != TextMessage {
			h.t.Fatalf("frame type = %d, want plaintext text frame", frame.messageType)
		}
		return frame.data
	}
	format, payload := h.receiveSealed()
	decoded, err := wire.DecodeJSON(format, payload)
	if err != nil {
		h.t.Fatalf("decoding payload: %v", err)
	}
	return decoded
}

// receiveAs decodes the next server message into T and checks the type
// discriminator.
func receiveAs[T any](h *harness, wantType string) T {
	h.t.Helper()
	payload := h.receivePayload()
	var header typeOnly
	if err := json.Unmarshal(payload, &header); err != nil {
		h.t.Fatalf("decoding message type from %q: %v", payload, err)
	}
	if header.Type != wantType {
		h.t.Fatalf("message type = %q, want %q (payload %s)", header.Type, wantType, payload)
	}
	var message T
	if err := json.Unmarshal(payload, &message); err != nil {
		h.t.Fatalf("decoding %s message: %v", wantType, err)
	}
	return message
}

// authenticate runs the client half of the handshake with the real
// credentials and installs the derived key on the harness.
func (h *harness) authenticate(password string, features ...string) {
	h.t.Helper()
	client, err := srp.NewClientSession(testIdentity, password)
	if err != nil {
		h.t.Fatalf("NewClientSession: %v", err)
	}

	h.send(helloMessage{Type: typeHello, Identity: testIdentity, Features: features})
	challenge := receiveAs[challengeMessage](h, typeChallenge)

	salt, err := hex.DecodeString(challenge.Salt)
	if err != nil {
		h.t.Fatalf("decoding challenge salt: %v", err)
	}
	serverPublic, err := hex.DecodeString(challenge.B)
	if err != nil {
		h.t.Fatalf("decoding challenge B: %v", err)
	}
	proofM1, err := client.ComputeProof(salt, serverPublic)
	if err != nil {
		h.t.Fatalf("ComputeProof: %v", err)
	}

	h.send(clientProofMessage{
		Type: typeClientProof,
		A:    hex.EncodeToString(client.PublicEphemeral()),
		M1:   hex.EncodeToString(proofM1),
	})
	verify := receiveAs[verifyMessage](h, typeVerify)

	serverProofM2, err := hex.DecodeString(verify.M2)
	if err != nil {
		h.t.Fatalf("decoding server proof: %v", err)
	}
	if err := client.VerifyServerProof(serverProofM2); err != nil {
		h.t.Fatalf("VerifyServerProof: %v", err)
	}

	key, err := wire.NewKey(client.SessionKey())
	if err != nil {
		h.t.Fatalf("NewKey: %v", err)
	}
	h.key = key
	h.compression = slices.Contains(features, featureGzip)
}
