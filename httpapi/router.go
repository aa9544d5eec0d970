// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpapi routes the HTTP-like request descriptors arriving
// over the multiplexed connection. These are not real HTTP requests —
// they are decoded wire messages with a method, path, headers, and
// body — so the router matches paths and returns status codes and JSON
// bodies without an http.Server anywhere in the stack.
//
// Surface:
//
//	GET  /status                   daemon liveness and counts
//	GET  /projects                 configured projects
//	GET  /sessions                 running session snapshots
//	POST /sessions                 start a session {sessionId, projectId}
//	GET  /sessions/{id}/messages   buffered session history
//	POST /sessions/{id}/messages   append a message to a session
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/bureau-foundation/doorway/session"
)

// Project is one orchestrated project exposed through the API.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// Router serves request descriptors against the session supervisor.
// Safe for concurrent use from many connections.
type Router struct {
	supervisor *session.Supervisor
	activity   *session.Bus

	mu       sync.Mutex
	projects []Project
}

// NewRouter builds a Router over the given collaborators. The activity
// bus receives session lifecycle events and may be nil.
func NewRouter(supervisor *session.Supervisor, activity *session.Bus, projects []Project) *Router {
	return &Router{
		supervisor: supervisor,
		activity:   activity,
		projects:   projects,
	}
}

// Route executes one request descriptor. The error return is reserved
// for internal failures; routing misses are expressed as 404/405
// statuses in the response.
func (r *Router) Route(ctx context.Context, method, path string, headers map[string]string, body []byte) (int, map[string]string, []byte, error) {
	_ = ctx // no handler blocks today; kept for interface uniformity

	segments := splitPath(path)
	switch {
	case len(segments) == 1 && segments[0] == "status":
		return r.routeStatus(method)
	case len(segments) == 1 && segments[0] == "projects":
		return r.routeProjects(method)
	case len(segments) == 1 && segments[0] == "sessions":
		return r.routeSessions(method, body)
	case len(segments) == 3 && segments[0] == "sessions" && segments[2] == "messages":
		return r.routeSessionMessages(method, segments[1], body)
	default:
		return respondError(http.StatusNotFound, fmt.Sprintf("no route for %s", path))
	}
}

func (r *Router) routeStatus(method string) (int, map[string]string, []byte, error) {
	if method != http.MethodGet {
		return respondError(http.StatusMethodNotAllowed, "status is read-only")
	}
	r.mu.Lock()
	projectCount := len(r.projects)
	r.mu.Unlock()
	return respondJSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"projects": projectCount,
		"sessions": len(r.supervisor.Sessions()),
	})
}

func (r *Router) routeProjects(method string) (int, map[string]string, []byte, error) {
	if method != http.MethodGet {
		return respondError(http.StatusMethodNotAllowed, "projects is read-only")
	}
	r.mu.Lock()
	projects := make([]Project, len(r.projects))
	copy(projects, r.projects)
	r.mu.Unlock()
	return respondJSON(http.StatusOK, map[string]any{"projects": projects})
}

func (r *Router) routeSessions(method string, body []byte) (int, map[string]string, []byte, error) {
	switch method {
	case http.MethodGet:
		return respondJSON(http.StatusOK, map[string]any{"sessions": r.supervisor.Sessions()})

	case http.MethodPost:
		var request struct {
			SessionID string `json:"sessionId"`
			ProjectID string `json:"projectId"`
		}
		if err := json.Unmarshal(body, &request); err != nil {
			return respondError(http.StatusBadRequest, "malformed session request body")
		}
		if request.SessionID == "" || request.ProjectID == "" {
			return respondError(http.StatusBadRequest, "sessionId and projectId are required")
		}
		if !r.projectExists(request.ProjectID) {
			return respondError(http.StatusNotFound, fmt.Sprintf("unknown project %q", request.ProjectID))
		}
		process := r.supervisor.StartSession(request.SessionID, request.ProjectID)
		if r.activity != nil {
			_ = r.activity.Publish("session_started", process.Snapshot())
		}
		return respondJSON(http.StatusCreated, process.Snapshot())

	default:
		return respondError(http.StatusMethodNotAllowed, "unsupported method for sessions")
	}
}

func (r *Router) routeSessionMessages(method, sessionID string, body []byte) (int, map[string]string, []byte, error) {
	process := r.supervisor.ProcessForSession(sessionID)
	if process == nil {
		return respondError(http.StatusNotFound, fmt.Sprintf("no active session %q", sessionID))
	}

	switch method {
	case http.MethodGet:
		return respondJSON(http.StatusOK, map[string]any{"messages": process.MessageHistory()})

	case http.MethodPost:
		var message map[string]any
		if err := json.Unmarshal(body, &message); err != nil {
			return respondError(http.StatusBadRequest, "malformed message body")
		}
		if err := process.Emit("message", message); err != nil {
			return 0, nil, nil, fmt.Errorf("emitting session message: %w", err)
		}
		return respondJSON(http.StatusAccepted, map[string]any{"sessionId": sessionID})

	default:
		return respondError(http.StatusMethodNotAllowed, "unsupported method for messages")
	}
}

func (r *Router) projectExists(projectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, project := range r.projects {
		if project.ID == projectID {
			return true
		}
	}
	return false
}

// splitPath breaks "/sessions/s1/messages" into non-empty segments.
func splitPath(path string) []string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	segments := parts[:0]
	for _, part := range parts {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}

func respondJSON(status int, body any) (int, map[string]string, []byte, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("encoding response body: %w", err)
	}
	return status, map[string]string{"Content-Type": "application/json"}, encoded, nil
}

func respondError(status int, message string) (int, map[string]string, []byte, error) {
	return respondJSON(status, map[string]string{"error": message})
}
