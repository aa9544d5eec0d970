// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session provides the in-process agent session supervisor and
// the global activity bus consumed by the gateway: per-session event
// streams with bounded replayable history, and a fan-out bus for
// fleet-wide activity.
//
// Both fan-outs follow the same shape: Subscribe(handler) returns an
// unsubscribe function, handlers are invoked synchronously in
// registration order under no lock, and unsubscribe is idempotent.
// Callers that need ordering relative to their own state (the gateway
// does) serialize in their handler.
package session

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// DefaultHistoryLimit bounds per-session message history. Old entries
// are discarded first; late subscribers replay at most this many.
const DefaultHistoryLimit = 1000

// Event is one item on a session or activity stream.
type Event struct {
	// Type is the event kind ("message", "status", ...).
	Type string `json:"type"`

	// Data is the event payload, already JSON-encoded.
	Data json.RawMessage `json:"data"`

	// Seq is the event's position in its process's emit order, starting
	// at 1. Consumers that subscribe and then replay history use it to
	// discard live events already covered by the replay. Zero on bus
	// events, which have no history. Not serialized.
	Seq int64 `json:"-"`
}

// Snapshot describes a session's current state. Sent to new
// subscribers before history replay.
type Snapshot struct {
	SessionID    string `json:"sessionId"`
	ProjectID    string `json:"projectId"`
	Status       string `json:"status"`
	MessageCount int    `json:"messageCount"`
	StartedAt    string `json:"startedAt"`
}

// Process is one running agent session: an event stream with bounded
// history and a subscriber set.
type Process struct {
	id        string
	projectID string
	startedAt time.Time

	mu             sync.Mutex
	status         string
	history        []Event
	historyLimit   int
	subscribers    map[int]func(Event)
	nextSubscriber int
	totalMessages  int
	nextSeq        int64
}

// ID returns the session id.
func (p *Process) ID() string { return p.id }

// ProjectID returns the owning project id.
func (p *Process) ProjectID() string { return p.projectID }

// Snapshot returns the session's current state.
func (p *Process) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		SessionID:    p.id,
		ProjectID:    p.projectID,
		Status:       p.status,
		MessageCount: p.totalMessages,
		StartedAt:    p.startedAt.UTC().Format(time.RFC3339),
	}
}

// Subscribe registers a handler for future events. The returned
// function unregisters it; calling it more than once is safe.
func (p *Process) Subscribe(handler func(Event)) func() {
	p.mu.Lock()
	id := p.nextSubscriber
	p.nextSubscriber++
	p.subscribers[id] = handler
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subscribers, id)
			p.mu.Unlock()
		})
	}
}

// MessageHistory returns a copy of the buffered history, oldest first.
func (p *Process) MessageHistory() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	history := make([]Event, len(p.history))
	copy(history, p.history)
	return history
}

// Emit appends an event to the history and delivers it to every
// subscriber. Handlers run outside the process lock so a slow consumer
// cannot deadlock emitters that also touch the process.
func (p *Process) Emit(eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	event := Event{Type: eventType, Data: payload}

	p.mu.Lock()
	p.nextSeq++
	event.Seq = p.nextSeq
	p.history = append(p.history, event)
	if len(p.history) > p.historyLimit {
		p.history = p.history[len(p.history)-p.historyLimit:]
	}
	if eventType == "message" {
		p.totalMessages++
	}
	handlers := make([]func(Event), 0, len(p.subscribers))
	ids := make([]int, 0, len(p.subscribers))
	for id := range p.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		handlers = append(handlers, p.subscribers[id])
	}
	p.mu.Unlock()

	for _, handler := range handlers {
		handler(event)
	}
	return nil
}

// SetStatus updates the session status and emits a status event.
func (p *Process) SetStatus(status string) error {
	p.mu.Lock()
	p.status = status
	p.mu.Unlock()
	return p.Emit("status", map[string]string{"sessionId": p.id, "status": status})
}

// Supervisor owns the set of running sessions. Safe for concurrent use
// from many connections.
type Supervisor struct {
	mu       sync.Mutex
	sessions map[string]*Process
}

// NewSupervisor returns an empty Supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{sessions: make(map[string]*Process)}
}

// StartSession creates and registers a session. Returns the existing
// process when the id is already running.
func (s *Supervisor) StartSession(sessionID, projectID string) *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[sessionID]; ok {
		return existing
	}
	process := &Process{
		id:           sessionID,
		projectID:    projectID,
		startedAt:    time.Now(),
		status:       "running",
		historyLimit: DefaultHistoryLimit,
		subscribers:  make(map[int]func(Event)),
	}
	s.sessions[sessionID] = process
	return process
}

// ProcessForSession returns the process owning sessionID, or nil.
func (s *Supervisor) ProcessForSession(sessionID string) *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sessionID]
}

// EndSession marks the session stopped and removes it. A no-op for
// unknown ids.
func (s *Supervisor) EndSession(sessionID string) {
	s.mu.Lock()
	process, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if ok {
		_ = process.SetStatus("stopped")
	}
}

// Sessions returns snapshots of every running session, ordered by id.
func (s *Supervisor) Sessions() []Snapshot {
	s.mu.Lock()
	processes := make([]*Process, 0, len(s.sessions))
	for _, process := range s.sessions {
		processes = append(processes, process)
	}
	s.mu.Unlock()

	sort.Slice(processes, func(i, j int) bool { return processes[i].id < processes[j].id })
	snapshots := make([]Snapshot, len(processes))
	for i, process := range processes {
		snapshots[i] = process.Snapshot()
	}
	return snapshots
}
