// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/bureau-foundation/doorway/session"
)

func newTestRouter() (*Router, *session.Supervisor) {
	supervisor := session.NewSupervisor()
	router := NewRouter(supervisor, session.NewBus(), []Project{
		{ID: "p1", Name: "alpha", Path: "/work/alpha"},
		{ID: "p2", Name: "beta", Path: "/work/beta"},
	})
	return router, supervisor
}

func route(t *testing.T, router *Router, method, path string, body []byte) (int, map[string]any) {
	t.Helper()
	status, _, responseBody, err := router.Route(context.Background(), method, path, nil, body)
	if err != nil {
		t.Fatalf("Route(%s %s): %v", method, path, err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(responseBody, &decoded); err != nil {
		t.Fatalf("decoding response body %q: %v", responseBody, err)
	}
	return status, decoded
}

func TestListProjects(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter()

	status, body := route(t, router, http.MethodGet, "/projects", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	projects, ok := body["projects"].([]any)
	if !ok || len(projects) != 2 {
		t.Errorf("projects = %v, want 2 entries", body["projects"])
	}
}

func TestUnknownPathIs404(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter()

	status, _ := route(t, router, http.MethodGet, "/nope", nil)
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter()

	status, _ := route(t, router, http.MethodDelete, "/projects", nil)
	if status != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", status)
	}
}

func TestCreateAndListSessions(t *testing.T) {
	t.Parallel()
	router, supervisor := newTestRouter()

	status, body := route(t, router, http.MethodPost, "/sessions",
		[]byte(`{"sessionId":"s1","projectId":"p1"}`))
	if status != http.StatusCreated {
		t.Fatalf("create status = %d, want 201: %v", status, body)
	}
	if supervisor.ProcessForSession("s1") == nil {
		t.Fatal("session was not registered with the supervisor")
	}

	status, body = route(t, router, http.MethodGet, "/sessions", nil)
	if status != http.StatusOK {
		t.Fatalf("list status = %d, want 200", status)
	}
	sessions, ok := body["sessions"].([]any)
	if !ok || len(sessions) != 1 {
		t.Errorf("sessions = %v, want 1 entry", body["sessions"])
	}
}

func TestCreateSessionUnknownProject(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter()

	status, _ := route(t, router, http.MethodPost, "/sessions",
		[]byte(`{"sessionId":"s1","projectId":"missing"}`))
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}

func TestCreateSessionMalformedBody(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter()

	status, _ := route(t, router, http.MethodPost, "/sessions", []byte("not json"))
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
}

func TestSessionMessages(t *testing.T) {
	t.Parallel()
	router, supervisor := newTestRouter()
	supervisor.StartSession("s1", "p1")

	status, _ := route(t, router, http.MethodPost, "/sessions/s1/messages",
		[]byte(`{"role":"user","text":"hello"}`))
	if status != http.StatusAccepted {
		t.Fatalf("post message status = %d, want 202", status)
	}

	status, body := route(t, router, http.MethodGet, "/sessions/s1/messages", nil)
	if status != http.StatusOK {
		t.Fatalf("get messages status = %d, want 200", status)
	}
	messages, ok := body["messages"].([]any)
	if !ok || len(messages) != 1 {
		t.Errorf("messages = %v, want 1 entry", body["messages"])
	}
}

func TestMessagesForUnknownSession(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter()

	status, _ := route(t, router, http.MethodGet, "/sessions/missing/messages", nil)
	if status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()
	router, supervisor := newTestRouter()
	supervisor.StartSession("s1", "p1")

	status, body := route(t, router, http.MethodGet, "/status", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body["status"] != "ok" {
		t.Errorf("status body = %v, want ok", body["status"])
	}
	if body["sessions"].(float64) != 1 {
		t.Errorf("sessions = %v, want 1", body["sessions"])
	}
}
