// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

// scriptedRouter runs a different function per call, in order.
type scriptedRouter struct {
	calls int
	steps []func() (int, map[string]string, []byte, error)
}

func (r *scriptedRouter) Route(ctx context.Context, method, path string, headers map[string]string, body []byte) (int, map[string]string, []byte, error) {
	step := r.steps[r.calls]
	r.calls++
	return step()
}

func TestRequestResponseCorrelation(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false, nil)

	h.send(requestMessage{Type: typeRequest, ID: "first", Method: http.MethodGet, Path: "/status"})
	h.send(requestMessage{Type: typeRequest, ID: "second", Method: http.MethodGet, Path: "/projects"})

	// Sequential handling: responses come back in request order with
	// matching ids.
	first := receiveAs[responseMessage](h, typeResponse)
	second := receiveAs[responseMessage](h, typeResponse)
	if first.ID != "first" || second.ID != "second" {
		t.Errorf("response ids = %q, %q, want first, second", first.ID, second.ID)
	}
}

func TestRouterErrorBecomes500(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false, func(s *Server) {
		s.Router = &scriptedRouter{steps: []func() (int, map[string]string, []byte, error){
			func() (int, map[string]string, []byte, error) {
				return 0, nil, nil, errors.New("database on fire")
			},
		}}
	})

	h.send(requestMessage{Type: typeRequest, ID: "r1", Method: http.MethodGet, Path: "/status"})
	response := receiveAs[responseMessage](h, typeResponse)
	if response.Status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", response.Status)
	}
	// Failure details stay in the log, not on the wire.
	if string(response.Body) != string(internalErrorBody) {
		t.Errorf("body = %s, want generic internal error", response.Body)
	}
}

func TestRouterPanicConfinedToRequest(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false, func(s *Server) {
		s.Router = &scriptedRouter{steps: []func() (int, map[string]string, []byte, error){
			func() (int, map[string]string, []byte, error) {
				panic("handler bug")
			},
			func() (int, map[string]string, []byte, error) {
				return http.StatusOK, nil, []byte(`{}`), nil
			},
		}}
	})

	h.send(requestMessage{Type: typeRequest, ID: "r1", Method: http.MethodGet, Path: "/boom"})
	response := receiveAs[responseMessage](h, typeResponse)
	if response.Status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", response.Status)
	}

	// The connection outlives the panic.
	h.send(requestMessage{Type: typeRequest, ID: "r2", Method: http.MethodGet, Path: "/status"})
	response = receiveAs[responseMessage](h, typeResponse)
	if response.ID != "r2" || response.Status != http.StatusOK {
		t.Errorf("follow-up response = %q/%d, want r2/200", response.ID, response.Status)
	}
}
