// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
)

// Subscription is one open event stream. Read Events until it closes;
// call Unsubscribe when done.
type Subscription struct {
	// ID is the client-chosen subscription id.
	ID string

	// Events delivers the stream in server order, starting with the
	// connected event. Closed when the subscription ends.
	Events <-chan Event

	client *Client
	events chan Event

	// awaiting flips once on the first inbound event, which is
	// reported to the Subscribe call through firstEvent so it can
	// confirm the stream opened.
	awaiting   atomic.Bool
	firstEvent chan Event

	// deliverMu orders deliveries against the events channel closing.
	deliverMu    sync.Mutex
	eventsClosed bool

	closeOnce sync.Once
}

// Subscribe opens a stream on the given channel. sessionID is required
// for ChannelSession and ignored for ChannelActivity. The call returns
// once the server confirms the stream with its connected event, which
// is also the first value on Events.
func (c *Client) Subscribe(ctx context.Context, channel, sessionID string) (*Subscription, error) {
	id := "s" + strconv.FormatInt(c.nextID.Add(1), 10)
	sub := &Subscription{
		ID:         id,
		client:     c,
		events:     make(chan Event, 256),
		firstEvent: make(chan Event, 1),
	}
	sub.Events = sub.events
	sub.awaiting.Store(true)

	// A subscribe failure comes back as a response message correlated
	// by the subscription id; success comes as the connected event.
	failures := make(chan *responseMessage, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, c.closedError()
	}
	c.subs[id] = sub
	c.pending[id] = failures
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(subscribeMessage{
		Type:           typeSubscribe,
		SubscriptionID: id,
		Channel:        channel,
		SessionID:      sessionID,
	}); err != nil {
		c.dropSubscription(id)
		return nil, err
	}

	select {
	case event := <-sub.firstEvent:
		if event.Type != EventConnected {
			c.dropSubscription(id)
			return nil, fmt.Errorf("client: first stream event %q, want %s", event.Type, EventConnected)
		}
		return sub, nil

	case failure := <-failures:
		c.dropSubscription(id)
		return nil, &ProtocolError{
			Code:    strconv.Itoa(failure.Status),
			Message: fmt.Sprintf("subscribe rejected with status %d: %s", failure.Status, failure.Body),
		}

	case <-ctx.Done():
		c.dropSubscription(id)
		return nil, ctx.Err()

	case <-c.done:
		return nil, c.closedError()
	}
}

// Unsubscribe ends the stream and closes Events. Safe to call more
// than once.
func (s *Subscription) Unsubscribe() error {
	var sendErr error
	s.closeOnce.Do(func() {
		sendErr = s.client.send(unsubscribeMessage{
			Type:           typeUnsubscribe,
			SubscriptionID: s.ID,
		})
		s.client.dropSubscription(s.ID)
	})
	return sendErr
}

// deliver queues one event for the consumer, preserving server order.
// A consumer that stops reading loses events rather than wedging the
// read loop.
func (s *Subscription) deliver(event Event) {
	if s.awaiting.CompareAndSwap(true, false) {
		s.firstEvent <- event
	}
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if s.eventsClosed {
		return
	}
	select {
	case s.events <- event:
	default:
		s.client.logger.Warn("dropping event for slow subscription consumer",
			"subscriptionId", s.ID, "eventType", event.Type)
	}
}

// closeEvents closes the consumer-facing channel. Called with the
// subscription already removed from the routing table.
func (s *Subscription) closeEvents() {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if s.eventsClosed {
		return
	}
	s.eventsClosed = true
	close(s.events)
}

// dropSubscription removes a subscription from routing and closes its
// events channel exactly once.
func (c *Client) dropSubscription(id string) {
	c.mu.Lock()
	sub, ok := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()
	if ok {
		sub.closeEvents()
	}
}
