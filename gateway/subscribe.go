// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bureau-foundation/doorway/session"
)

// Event types the gateway itself originates on a subscription stream.
const (
	// eventTypeConnected is the initial snapshot event. It sits outside
	// the numbered stream: replay and live events start at eventId 0
	// regardless of it.
	eventTypeConnected = "connected"

	// eventTypeHeartbeat is the periodic liveness event. Heartbeats are
	// numbered like any other stream event.
	eventTypeHeartbeat = "heartbeat"
)

// subscription is one active stream on a connection. Event numbering
// and the actual send happen under one mutex so eventIds on the wire
// are strictly increasing even with replay, live delivery, and
// heartbeats racing.
type subscription struct {
	id       string
	conn     *conn
	stopOnce sync.Once

	// unsubscribe detaches from the upstream process or bus. Set once
	// during handleSubscribe, before any event can flow.
	unsubscribe func()

	// stopHeartbeat ends the heartbeat goroutine.
	stopHeartbeat chan struct{}

	mu              sync.Mutex
	closed          bool
	replaying       bool
	buffered        []session.Event
	lastReplayedSeq int64
	nextEventID     int64
}

func newSubscription(c *conn, id string, replaying bool) *subscription {
	return &subscription{
		id:            id,
		conn:          c,
		replaying:     replaying,
		stopHeartbeat: make(chan struct{}),
	}
}

// handleSubscribe opens a stream. Failures are correlated back through
// a response message carrying the subscription id, so a client can tell
// which subscribe attempt died.
func (c *conn) handleSubscribe(data []byte) {
	var subscribe subscribeMessage
	if err := json.Unmarshal(data, &subscribe); err != nil {
		c.logger.Warn("dropping malformed subscribe", "error", err)
		return
	}
	if subscribe.SubscriptionID == "" {
		c.logger.Warn("dropping subscribe without subscriptionId")
		return
	}

	c.subscriptionsMu.Lock()
	_, exists := c.subscriptions[subscribe.SubscriptionID]
	c.subscriptionsMu.Unlock()
	if exists {
		c.sendSubscribeFailure(subscribe.SubscriptionID, 400,
			fmt.Sprintf("subscription %q already exists", subscribe.SubscriptionID))
		return
	}

	switch subscribe.Channel {
	case ChannelSession:
		c.subscribeSession(&subscribe)
	case ChannelActivity:
		c.subscribeActivity(&subscribe)
	default:
		c.sendSubscribeFailure(subscribe.SubscriptionID, 400,
			fmt.Sprintf("unknown channel %q", subscribe.Channel))
	}
}

// subscribeSession attaches to one session's event stream: connected
// snapshot first, then the buffered history, then live events. Events
// emitted while the replay is running are buffered and deduplicated
// against the replay by their process sequence number, so the stream
// has no gap and no repeat at the handoff.
func (c *conn) subscribeSession(subscribe *subscribeMessage) {
	if subscribe.SessionID == "" {
		c.sendSubscribeFailure(subscribe.SubscriptionID, 400,
			"session channel requires sessionId")
		return
	}
	process := c.server.Supervisor.ProcessForSession(subscribe.SessionID)
	if process == nil {
		c.sendSubscribeFailure(subscribe.SubscriptionID, 404,
			fmt.Sprintf("unknown session %q", subscribe.SessionID))
		return
	}

	sub := newSubscription(c, subscribe.SubscriptionID, true)
	c.subscriptionsMu.Lock()
	c.subscriptions[sub.id] = sub
	c.subscriptionsMu.Unlock()

	sub.unsubscribe = process.Subscribe(sub.deliver)

	snapshot, err := json.Marshal(process.Snapshot())
	if err != nil {
		c.logger.Error("encoding session snapshot", "sessionId", subscribe.SessionID, "error", err)
		c.removeSubscription(sub.id)
		c.sendSubscribeFailure(subscribe.SubscriptionID, 500, "internal error")
		return
	}
	c.sendConnected(sub.id, snapshot)

	for _, event := range process.MessageHistory() {
		sub.replayEvent(event)
	}
	sub.finishReplay()

	go c.runHeartbeat(sub)
}

// subscribeActivity attaches to the global activity stream. No history
// exists, so there is nothing to replay: the connected event has no
// snapshot and live events flow immediately.
func (c *conn) subscribeActivity(subscribe *subscribeMessage) {
	sub := newSubscription(c, subscribe.SubscriptionID, false)
	c.subscriptionsMu.Lock()
	c.subscriptions[sub.id] = sub
	c.subscriptionsMu.Unlock()

	sub.unsubscribe = c.server.Activity.Subscribe(sub.deliver)
	c.sendConnected(sub.id, nil)

	go c.runHeartbeat(sub)
}

// handleUnsubscribe closes a stream. Unknown ids are a no-op: the
// subscription may have been torn down concurrently by a failed
// heartbeat, and the client's unsubscribe crossing that is not an
// error.
func (c *conn) handleUnsubscribe(data []byte) {
	var unsubscribe unsubscribeMessage
	if err := json.Unmarshal(data, &unsubscribe); err != nil {
		c.logger.Warn("dropping malformed unsubscribe", "error", err)
		return
	}
	if !c.removeSubscription(unsubscribe.SubscriptionID) {
		c.logger.Debug("unsubscribe for unknown subscription",
			"subscriptionId", unsubscribe.SubscriptionID)
	}
}

// removeSubscription detaches and stops a subscription. Reports whether
// the id was present.
func (c *conn) removeSubscription(subscriptionID string) bool {
	c.subscriptionsMu.Lock()
	sub, ok := c.subscriptions[subscriptionID]
	delete(c.subscriptions, subscriptionID)
	c.subscriptionsMu.Unlock()
	if !ok {
		return false
	}
	sub.stop()
	return true
}

// runHeartbeat emits a numbered heartbeat event on the subscription at
// the server's interval until the subscription stops. A send failure
// tears the subscription down; the transport is almost certainly gone
// and the read loop will notice on its own.
func (c *conn) runHeartbeat(sub *subscription) {
	ticker := c.server.clock().NewTicker(c.server.heartbeatInterval())
	defer ticker.Stop()
	for {
		select {
		case <-sub.stopHeartbeat:
			return
		case tick := <-ticker.C:
			payload, err := json.Marshal(map[string]string{
				"time": tick.UTC().Format(time.RFC3339),
			})
			if err != nil {
				continue
			}
			if !sub.sendNumbered(eventTypeHeartbeat, payload) {
				c.removeSubscription(sub.id)
				return
			}
		}
	}
}

func (c *conn) sendConnected(subscriptionID string, data json.RawMessage) {
	if err := c.sendMessage(eventMessage{
		Type:           typeEvent,
		SubscriptionID: subscriptionID,
		EventType:      eventTypeConnected,
		Data:           data,
	}); err != nil {
		c.logger.Warn("sending connected event",
			"subscriptionId", subscriptionID, "error", err)
	}
}

func (c *conn) sendSubscribeFailure(subscriptionID string, status int, message string) {
	body, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return
	}
	if err := c.sendMessage(responseMessage{
		Type:   typeResponse,
		ID:     subscriptionID,
		Status: status,
		Body:   body,
	}); err != nil {
		c.logger.Warn("sending subscribe failure",
			"subscriptionId", subscriptionID, "error", err)
	}
}

// deliver is the upstream fan-out handler. During history replay it
// buffers; afterwards it numbers and sends inline.
func (s *subscription) deliver(event session.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.replaying {
		s.buffered = append(s.buffered, event)
		return
	}
	s.sendNumberedLocked(event.Type, event.Data)
}

// replayEvent sends one history event and records its sequence number
// for the replay/live handoff.
func (s *subscription) replayEvent(event session.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.sendNumberedLocked(event.Type, event.Data)
	s.lastReplayedSeq = event.Seq
}

// finishReplay flushes events buffered during replay, skipping any the
// replay already covered, and switches the subscription live.
func (s *subscription) finishReplay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	buffered := s.buffered
	s.buffered = nil
	s.replaying = false
	if s.closed {
		return
	}
	for _, event := range buffered {
		if event.Seq != 0 && event.Seq <= s.lastReplayedSeq {
			continue
		}
		s.sendNumberedLocked(event.Type, event.Data)
	}
}

// sendNumbered numbers and sends one event. Reports false when the
// subscription is closed or the send failed.
func (s *subscription) sendNumbered(eventType string, data json.RawMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	return s.sendNumberedLocked(eventType, data)
}

func (s *subscription) sendNumberedLocked(eventType string, data json.RawMessage) bool {
	eventID := s.nextEventID
	s.nextEventID++
	if err := s.conn.sendMessage(eventMessage{
		Type:           typeEvent,
		SubscriptionID: s.id,
		EventType:      eventType,
		EventID:        &eventID,
		Data:           data,
	}); err != nil {
		s.conn.logger.Warn("sending stream event",
			"subscriptionId", s.id, "eventType", eventType, "error", err)
		return false
	}
	return true
}

// stop detaches from upstream and ends the heartbeat. Idempotent.
func (s *subscription) stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		close(s.stopHeartbeat)
	})
}
