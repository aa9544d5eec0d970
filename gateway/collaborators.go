// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"

	"github.com/bureau-foundation/doorway/lib/credential"
	"github.com/bureau-foundation/doorway/lib/uploadstore"
	"github.com/bureau-foundation/doorway/session"
)

// Router serves the request descriptors arriving on the request
// sub-protocol. Routing misses come back as statuses (404, 405); the
// error return is for internal failures only and maps to a 500.
type Router interface {
	Route(ctx context.Context, method, path string, headers map[string]string, body []byte) (status int, responseHeaders map[string]string, responseBody []byte, err error)
}

// Supervisor resolves session ids for the session subscription
// channel. A nil Process means no such session.
type Supervisor interface {
	ProcessForSession(sessionID string) Process
}

// Process is one session's event stream: a snapshot for the connected
// event, replayable history, and live subscription.
type Process interface {
	Snapshot() session.Snapshot
	MessageHistory() []session.Event
	Subscribe(handler func(session.Event)) (unsubscribe func())
}

// EventBus is the global activity stream backing the activity channel.
type EventBus interface {
	Subscribe(handler func(session.Event)) (unsubscribe func())
}

// UploadStorage persists chunked uploads.
type UploadStorage interface {
	StartUpload(projectID, sessionID, filename string, size int64, mimeType string) (string, error)
	WriteChunk(uploadID string, data []byte) (int64, error)
	CompleteUpload(uploadID string) (*uploadstore.FileMetadata, error)
	CancelUpload(uploadID string) error
}

// CredentialStore supplies the handshake verifier record.
type CredentialStore interface {
	Get() (*credential.Record, error)
}

// supervisorAdapter lifts *session.Supervisor (which returns the
// concrete *session.Process) into the Supervisor interface.
type supervisorAdapter struct {
	supervisor *session.Supervisor
}

func (a supervisorAdapter) ProcessForSession(sessionID string) Process {
	process := a.supervisor.ProcessForSession(sessionID)
	if process == nil {
		return nil
	}
	return process
}

// AdaptSupervisor wraps a *session.Supervisor for use as the gateway's
// session source.
func AdaptSupervisor(supervisor *session.Supervisor) Supervisor {
	return supervisorAdapter{supervisor: supervisor}
}
