// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/doorway/lib/clock"
)

// DefaultHeartbeatInterval is the subscription heartbeat period when
// the server config does not override it.
const DefaultHeartbeatInterval = 30 * time.Second

// MessageType distinguishes text and binary frames. The values match
// gorilla/websocket's so the adapter is a cast, but the interface keeps
// the connection logic testable against an in-memory transport.
type MessageType int

const (
	// TextMessage carries UTF-8 JSON: plaintext handshake messages or
	// JSON-framed envelopes.
	TextMessage MessageType = 1

	// BinaryMessage carries a binary-framed envelope.
	BinaryMessage MessageType = 2
)

// MessageConn is the transport a connection runs over: a WebSocket, a
// relay-forwarded virtual connection, or a test pipe. ReadMessage
// blocks; Close unblocks it. WriteMessage is serialized by the caller.
type MessageConn interface {
	ReadMessage() (MessageType, []byte, error)
	WriteMessage(messageType MessageType, data []byte) error
	Close() error
}

// Server accepts connections and runs the per-connection protocol
// against its collaborators. All fields are read-only once serving
// starts.
type Server struct {
	Router      Router
	Supervisor  Supervisor
	Activity    EventBus
	Uploads     UploadStorage
	Credentials CredentialStore

	// AuthRequired gates the SRP handshake. When false, connections
	// are authenticated on open and traffic is plaintext.
	AuthRequired bool

	// HeartbeatInterval is the per-subscription heartbeat period.
	// Zero means DefaultHeartbeatInterval.
	HeartbeatInterval time.Duration

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (s *Server) clock() clock.Clock {
	if s.Clock != nil {
		return s.Clock
	}
	return clock.Real()
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Server) heartbeatInterval() time.Duration {
	if s.HeartbeatInterval > 0 {
		return s.HeartbeatInterval
	}
	return DefaultHeartbeatInterval
}

// HandleConn runs the protocol on one transport until the transport
// fails, the peer disconnects, or ctx is cancelled. It returns after
// teardown: every subscription cancelled, every in-flight upload
// discarded.
func (s *Server) HandleConn(ctx context.Context, transport MessageConn) {
	connection := newConn(s, transport)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			transport.Close()
		case <-done:
		}
	}()

	connection.run(ctx)
}

// Handler returns the HTTP surface: WebSocket upgrades at /v1/connect.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/connect", s.handleConnect)
	return mux
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The envelope layer authenticates every message; origin checks
	// add nothing for non-browser clients and break relay dialing.
	CheckOrigin: func(*http.Request) bool { return true },
}

func (s *Server) handleConnect(responseWriter http.ResponseWriter, request *http.Request) {
	socket, err := upgrader.Upgrade(responseWriter, request, nil)
	if err != nil {
		s.logger().Warn("websocket upgrade failed",
			"remote", request.RemoteAddr, "error", err)
		return
	}
	defer socket.Close()
	s.HandleConn(request.Context(), websocketConn{socket: socket})
}

// websocketConn adapts a gorilla WebSocket to MessageConn.
type websocketConn struct {
	socket *websocket.Conn
}

func (w websocketConn) ReadMessage() (MessageType, []byte, error) {
	messageType, data, err := w.socket.ReadMessage()
	return MessageType(messageType), data, err
}

func (w websocketConn) WriteMessage(messageType MessageType, data []byte) error {
	return w.socket.WriteMessage(int(messageType), data)
}

func (w websocketConn) Close() error {
	return w.socket.Close()
}
