// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package client implements the client side of the remote-access
// protocol: dial, authenticate, and then multiplex requests, event
// subscriptions, and chunked uploads over the one connection.
//
// The handshake runs synchronously inside Dial; everything after it is
// driven by a background read loop that routes inbound messages to the
// waiting Request call, Subscription channel, or Upload in flight.
package client

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/doorway/srp"
	"github.com/bureau-foundation/doorway/wire"
)

// ChunkSize is the upload chunk size. Matches the server's progress
// stride so a steady transfer reports once per chunk.
const ChunkSize = 64 * 1024

// Options configure a Dial.
type Options struct {
	// Identity and Password run the SRP handshake. Leave both empty
	// against a server with authentication disabled.
	Identity string
	Password string

	// Compression advertises gzip for large JSON messages.
	Compression bool

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Response is the outcome of one Request.
type Response struct {
	Status  int
	Headers map[string]string
	Body    json.RawMessage
}

// Event is one item from a Subscription.
type Event struct {
	// Type is the event kind ("connected", "message", "heartbeat", ...).
	Type string

	// ID is the position in the numbered stream; nil for the initial
	// connected event.
	ID *int64

	// Data is the event payload.
	Data json.RawMessage
}

// ProtocolError is a server-reported failure: a handshake rejection or
// an upload error.
type ProtocolError struct {
	Code    string
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// Client is one authenticated connection to a daemon.
type Client struct {
	socket *websocket.Conn
	logger *slog.Logger

	key         *[wire.KeySize]byte
	compression bool

	// writeMu serializes frames onto the socket.
	writeMu sync.Mutex

	nextID atomic.Int64

	mu        sync.Mutex
	closed    bool
	readErr   error
	pending   map[string]chan *responseMessage
	subs      map[string]*Subscription
	uploads   map[string]chan *uploadSignal
	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to url (the daemon's /v1/connect endpoint, ws:// or
// wss://), runs the handshake when credentials are given, and starts
// the read loop.
func Dial(ctx context.Context, url string, options Options) (*Client, error) {
	socket, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		socket:  socket,
		logger:  logger,
		pending: make(map[string]chan *responseMessage),
		subs:    make(map[string]*Subscription),
		uploads: make(map[string]chan *uploadSignal),
		done:    make(chan struct{}),
	}

	if options.Identity != "" {
		if err := c.authenticate(options); err != nil {
			socket.Close()
			return nil, err
		}
	}

	go c.readLoop()
	return c, nil
}

// Close tears the connection down. In-flight calls fail promptly.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		subs := make([]*Subscription, 0, len(c.subs))
		for _, sub := range c.subs {
			subs = append(subs, sub)
		}
		c.subs = make(map[string]*Subscription)
		c.mu.Unlock()
		for _, sub := range subs {
			sub.closeEvents()
		}
		close(c.done)
	})
	return c.socket.Close()
}

// authenticate runs the SRP exchange synchronously, before the read
// loop exists: the handshake is strictly request/reply.
func (c *Client) authenticate(options Options) error {
	session, err := srp.NewClientSession(options.Identity, options.Password)
	if err != nil {
		return err
	}

	var features []string
	if options.Compression {
		features = append(features, featureGzip)
	}
	if err := c.writeJSON(helloMessage{Type: typeHello, Identity: options.Identity, Features: features}); err != nil {
		return err
	}

	var challenge challengeMessage
	if err := c.readHandshake(&challenge, typeChallenge); err != nil {
		return err
	}
	salt, err := hex.DecodeString(challenge.Salt)
	if err != nil {
		return fmt.Errorf("decoding challenge salt: %w", err)
	}
	serverPublic, err := hex.DecodeString(challenge.B)
	if err != nil {
		return fmt.Errorf("decoding challenge B: %w", err)
	}

	proofM1, err := session.ComputeProof(salt, serverPublic)
	if err != nil {
		return fmt.Errorf("computing client proof: %w", err)
	}
	if err := c.writeJSON(clientProofMessage{
		Type: typeClientProof,
		A:    hex.EncodeToString(session.PublicEphemeral()),
		M1:   hex.EncodeToString(proofM1),
	}); err != nil {
		return err
	}

	var verify verifyMessage
	if err := c.readHandshake(&verify, typeVerify); err != nil {
		return err
	}
	serverProofM2, err := hex.DecodeString(verify.M2)
	if err != nil {
		return fmt.Errorf("decoding server proof: %w", err)
	}
	if err := session.VerifyServerProof(serverProofM2); err != nil {
		return fmt.Errorf("server failed mutual authentication: %w", err)
	}

	key, err := wire.NewKey(session.SessionKey())
	if err != nil {
		return err
	}
	c.key = key
	c.compression = options.Compression
	return nil
}

// readHandshake reads the next plaintext handshake message into target,
// translating srp_error frames into ProtocolError.
func (c *Client) readHandshake(target any, wantType string) error {
	_, data, err := c.socket.ReadMessage()
	if err != nil {
		return fmt.Errorf("reading handshake message: %w", err)
	}
	var header typeOnly
	if err := json.Unmarshal(data, &header); err != nil {
		return fmt.Errorf("parsing handshake message: %w", err)
	}
	if header.Type == typeSRPError {
		var failure srpErrorMessage
		if err := json.Unmarshal(data, &failure); err != nil {
			return fmt.Errorf("parsing srp_error: %w", err)
		}
		return &ProtocolError{Code: failure.Code, Message: failure.Message}
	}
	if header.Type != wantType {
		return fmt.Errorf("client: handshake message %q, want %q", header.Type, wantType)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("parsing %s: %w", wantType, err)
	}
	return nil
}

// Request performs one request/response round trip.
func (c *Client) Request(ctx context.Context, method, path string, headers map[string]string, body json.RawMessage) (*Response, error) {
	id := "r" + strconv.FormatInt(c.nextID.Add(1), 10)
	responses := make(chan *responseMessage, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, c.closedError()
	}
	c.pending[id] = responses
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(requestMessage{
		Type:    typeRequest,
		ID:      id,
		Method:  method,
		Path:    path,
		Headers: headers,
		Body:    body,
	}); err != nil {
		return nil, err
	}

	select {
	case response := <-responses:
		return &Response{Status: response.Status, Headers: response.Headers, Body: response.Body}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, c.closedError()
	}
}

// send marshals and sends one message, sealed when a session key
// exists.
func (c *Client) send(message any) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	if c.key == nil {
		return c.writeFrame(websocket.TextMessage, payload)
	}
	format, encoded, err := wire.EncodeJSON(payload, c.compression)
	if err != nil {
		return err
	}
	frame, err := wire.Seal(c.key, format, encoded)
	if err != nil {
		return err
	}
	return c.writeFrame(websocket.BinaryMessage, frame)
}

func (c *Client) writeJSON(message any) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	return c.writeFrame(websocket.TextMessage, payload)
}

func (c *Client) writeFrame(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.socket.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

func (c *Client) closedError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return fmt.Errorf("connection closed: %w", c.readErr)
	}
	return fmt.Errorf("client: connection closed")
}

// readLoop routes inbound messages until the socket fails.
func (c *Client) readLoop() {
	for {
		messageType, data, err := c.socket.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.readErr == nil {
				c.readErr = err
			}
			c.mu.Unlock()
			c.Close()
			return
		}
		c.handleFrame(messageType, data)
	}
}

func (c *Client) handleFrame(messageType int, data []byte) {
	payload := data
	if c.key != nil {
		var format byte
		var sealed []byte
		var err error
		switch messageType {
		case websocket.BinaryMessage:
			format, sealed, err = wire.Open(c.key, data)
		case websocket.TextMessage:
			format, sealed, err = wire.OpenJSON(c.key, data)
		default:
			return
		}
		if err != nil {
			c.logger.Warn("dropping undecryptable frame", "error", err)
			return
		}
		payload, err = wire.DecodeJSON(format, sealed)
		if err != nil {
			c.logger.Warn("dropping undecodable frame", "error", err)
			return
		}
	}

	var header typeOnly
	if err := json.Unmarshal(payload, &header); err != nil {
		c.logger.Warn("dropping malformed message", "error", err)
		return
	}

	switch header.Type {
	case typeResponse:
		c.routeResponse(payload)
	case typeEvent:
		c.routeEvent(payload)
	case typeUploadProgress, typeUploadComplete, typeUploadError:
		c.routeUploadSignal(header.Type, payload)
	default:
		c.logger.Warn("dropping message of unknown type", "type", header.Type)
	}
}

// routeResponse matches a response to its waiting Request, or to a
// Subscription still waiting on its subscribe outcome.
func (c *Client) routeResponse(payload []byte) {
	var response responseMessage
	if err := json.Unmarshal(payload, &response); err != nil {
		c.logger.Warn("dropping malformed response", "error", err)
		return
	}

	c.mu.Lock()
	waiter := c.pending[response.ID]
	c.mu.Unlock()
	if waiter == nil {
		c.logger.Warn("dropping uncorrelated response", "id", response.ID)
		return
	}
	select {
	case waiter <- &response:
	default:
	}
}

func (c *Client) routeEvent(payload []byte) {
	var event eventMessage
	if err := json.Unmarshal(payload, &event); err != nil {
		c.logger.Warn("dropping malformed event", "error", err)
		return
	}

	c.mu.Lock()
	sub := c.subs[event.SubscriptionID]
	c.mu.Unlock()
	if sub == nil {
		c.logger.Warn("dropping event for unknown subscription",
			"subscriptionId", event.SubscriptionID)
		return
	}
	sub.deliver(Event{Type: event.EventType, ID: event.EventID, Data: event.Data})
}

// uploadSignal is one progress/complete/error message routed to the
// Upload call that owns the transfer.
type uploadSignal struct {
	kind     string
	progress int64
	file     json.RawMessage
	failure  string
}

func (c *Client) routeUploadSignal(kind string, payload []byte) {
	var common struct {
		UploadID      string          `json:"uploadId"`
		BytesReceived int64           `json:"bytesReceived"`
		File          json.RawMessage `json:"file"`
		Error         string          `json:"error"`
	}
	if err := json.Unmarshal(payload, &common); err != nil {
		c.logger.Warn("dropping malformed upload message", "error", err)
		return
	}

	c.mu.Lock()
	waiter := c.uploads[common.UploadID]
	c.mu.Unlock()
	if waiter == nil {
		c.logger.Warn("dropping upload message for unknown upload",
			"uploadId", common.UploadID)
		return
	}
	select {
	case waiter <- &uploadSignal{
		kind:     kind,
		progress: common.BytesReceived,
		file:     common.File,
		failure:  common.Error,
	}:
	case <-c.done:
	}
}
