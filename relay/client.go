// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/doorway/gateway"
	"github.com/bureau-foundation/doorway/lib/clock"
)

// Status is the link's externally visible state.
type Status int

const (
	// StatusConnecting: dialing or registering with the relay.
	StatusConnecting Status = iota

	// StatusWaiting: registered, no client has connected yet.
	StatusWaiting

	// StatusPaired: at least one forwarded connection is active.
	StatusPaired
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusWaiting:
		return "waiting"
	case StatusPaired:
		return "paired"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Reconnect backoff bounds. The delay doubles per consecutive failure
// with up to half the delay again as jitter, and resets once a
// registration succeeds.
const (
	initialBackoff = time.Second
	maxBackoff     = time.Minute
)

// Link is the persistent outbound connection to one relay server.
// Configure the fields, then call Run.
type Link struct {
	// URL is the relay's WebSocket endpoint (ws:// or wss://).
	URL string

	// Name is the public name clients look the daemon up by.
	Name string

	// InstallationID distinguishes installations sharing a name.
	InstallationID string

	// Server handles the forwarded connections.
	Server *gateway.Server

	// OnStatus, when set, receives every status transition. Called
	// from the link's goroutine; keep it fast.
	OnStatus func(Status)

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (l *Link) clock() clock.Clock {
	if l.Clock != nil {
		return l.Clock
	}
	return clock.Real()
}

func (l *Link) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l *Link) setStatus(status Status) {
	if l.OnStatus != nil {
		l.OnStatus(status)
	}
}

// Run maintains the link until ctx is cancelled: dial, register, serve
// forwarded connections, and redial with backoff when the relay drops.
// Always returns ctx.Err().
func (l *Link) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		registered, err := l.serve(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if registered {
			backoff = initialBackoff
		}

		//nolint:gosec // The random delay is for jitter, not security.
		delay := backoff + time.Duration(rand.Int63n(int64(backoff/2)+1))
		l.logger().Warn("relay link lost, reconnecting",
			"url", l.URL, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock().After(delay):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// linkSession is one dialed relay socket and the forwarded connections
// it carries.
type linkSession struct {
	link   *Link
	socket *websocket.Conn

	// writeMu serializes frames from the many forwarded connections
	// onto the one socket.
	writeMu sync.Mutex

	connsMu sync.Mutex
	conns   map[string]*virtualConn
}

// serve runs one relay session to completion. The bool reports whether
// registration succeeded, which resets the caller's backoff.
func (l *Link) serve(ctx context.Context) (bool, error) {
	l.setStatus(StatusConnecting)

	socket, _, err := websocket.DefaultDialer.DialContext(ctx, l.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dialing relay %s: %w", l.URL, err)
	}
	session := &linkSession{
		link:   l,
		socket: socket,
		conns:  make(map[string]*virtualConn),
	}
	defer session.closeAll()

	if err := session.sendFrame(&controlFrame{
		Type:           frameRegister,
		Name:           l.Name,
		InstallationID: l.InstallationID,
	}); err != nil {
		return false, err
	}

	// The relay must confirm before anything is forwarded.
	frame, err := session.readFrame()
	if err != nil {
		return false, err
	}
	if frame.Type != frameRegistered {
		return false, fmt.Errorf("relay: expected registered frame, got %q", frame.Type)
	}
	l.setStatus(StatusWaiting)
	l.logger().Info("registered with relay", "url", l.URL, "name", l.Name)

	// Unblock the read loop when ctx ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			socket.Close()
		case <-done:
		}
	}()

	return true, session.run(ctx)
}

// run dispatches control frames until the socket fails.
func (s *linkSession) run(ctx context.Context) error {
	for {
		frame, err := s.readFrame()
		if err != nil {
			return err
		}

		switch frame.Type {
		case frameOpen:
			s.handleOpen(ctx, frame.ConnectionID)

		case frameData:
			s.handleData(frame)

		case frameClose:
			s.handleClose(frame.ConnectionID)

		default:
			s.link.logger().Warn("ignoring unknown control frame", "type", frame.Type)
		}
	}
}

// handleOpen starts serving one forwarded connection.
func (s *linkSession) handleOpen(ctx context.Context, connectionID string) {
	if connectionID == "" {
		s.link.logger().Warn("ignoring open frame without connectionId")
		return
	}

	s.connsMu.Lock()
	if _, exists := s.conns[connectionID]; exists {
		s.connsMu.Unlock()
		s.link.logger().Warn("ignoring open for existing connection", "connectionId", connectionID)
		return
	}
	conn := newVirtualConn(s, connectionID)
	s.conns[connectionID] = conn
	s.connsMu.Unlock()

	s.link.setStatus(StatusPaired)
	s.link.logger().Info("relayed connection opened", "connectionId", connectionID)

	go func() {
		s.link.Server.HandleConn(ctx, conn)
		s.drop(connectionID, true)
	}()
}

// handleData queues one forwarded message for its connection's read
// loop. Data for an unknown connection is answered with a close so the
// relay stops forwarding it.
func (s *linkSession) handleData(frame *controlFrame) {
	s.connsMu.Lock()
	conn := s.conns[frame.ConnectionID]
	s.connsMu.Unlock()
	if conn == nil {
		_ = s.sendFrame(&controlFrame{Type: frameClose, ConnectionID: frame.ConnectionID})
		return
	}
	conn.enqueue(gateway.MessageType(frame.Kind), frame.Data)
}

// handleClose ends a forwarded connection at the relay's request.
func (s *linkSession) handleClose(connectionID string) {
	s.drop(connectionID, false)
}

// drop removes a connection, optionally notifying the relay. The
// gateway's read loop sees the connection close and tears down.
func (s *linkSession) drop(connectionID string, notifyRelay bool) {
	s.connsMu.Lock()
	conn := s.conns[connectionID]
	delete(s.conns, connectionID)
	s.connsMu.Unlock()
	if conn == nil {
		return
	}
	conn.shutdown()
	if notifyRelay {
		_ = s.sendFrame(&controlFrame{Type: frameClose, ConnectionID: connectionID})
	}
}

// closeAll tears down the socket and every forwarded connection; the
// per-connection gateway goroutines unwind through their read loops.
func (s *linkSession) closeAll() {
	s.socket.Close()
	s.connsMu.Lock()
	conns := make([]*virtualConn, 0, len(s.conns))
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	s.conns = make(map[string]*virtualConn)
	s.connsMu.Unlock()
	for _, conn := range conns {
		conn.shutdown()
	}
}

func (s *linkSession) sendFrame(frame *controlFrame) error {
	data, err := encodeFrame(frame)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.socket.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("writing %s frame: %w", frame.Type, err)
	}
	return nil
}

func (s *linkSession) readFrame() (*controlFrame, error) {
	messageType, data, err := s.socket.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("reading control frame: %w", err)
	}
	if messageType != websocket.BinaryMessage {
		return nil, fmt.Errorf("relay: control frame must be binary, got type %d", messageType)
	}
	return decodeFrame(data)
}

// errConnClosed is returned from a virtual connection's ReadMessage
// after shutdown; the gateway treats it like any disconnect.
var errConnClosed = errors.New("relay: forwarded connection closed")
