// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"sync"

	"github.com/bureau-foundation/doorway/gateway"
)

// virtualMessage is one queued inbound message for a forwarded
// connection.
type virtualMessage struct {
	kind gateway.MessageType
	data []byte
}

// virtualConn presents one relay-forwarded client as a message
// connection to the gateway. Reads drain a queue the link session
// fills; writes go back out as data frames on the shared socket.
type virtualConn struct {
	id      string
	session *linkSession

	incoming chan virtualMessage

	closeOnce sync.Once
	closed    chan struct{}
}

func newVirtualConn(session *linkSession, id string) *virtualConn {
	return &virtualConn{
		id:      id,
		session: session,
		// Bounded queue: a gateway handler that stalls eventually
		// backpressures the whole link rather than growing memory.
		incoming: make(chan virtualMessage, 64),
		closed:   make(chan struct{}),
	}
}

// enqueue hands an inbound message to the connection's read loop.
// Blocks when the queue is full; returns immediately once the
// connection is shut down.
func (c *virtualConn) enqueue(kind gateway.MessageType, data []byte) {
	select {
	case c.incoming <- virtualMessage{kind: kind, data: data}:
	case <-c.closed:
	}
}

func (c *virtualConn) ReadMessage() (gateway.MessageType, []byte, error) {
	select {
	case message := <-c.incoming:
		return message.kind, message.data, nil
	case <-c.closed:
		return 0, nil, errConnClosed
	}
}

func (c *virtualConn) WriteMessage(messageType gateway.MessageType, data []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	return c.session.sendFrame(&controlFrame{
		Type:         frameData,
		ConnectionID: c.id,
		Kind:         int(messageType),
		Data:         data,
	})
}

// Close is the gateway-facing close: it unblocks ReadMessage and lets
// the link session notify the relay.
func (c *virtualConn) Close() error {
	c.shutdown()
	return nil
}

func (c *virtualConn) shutdown() {
	c.closeOnce.Do(func() { close(c.closed) })
}
