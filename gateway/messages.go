// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"

	"github.com/bureau-foundation/doorway/lib/uploadstore"
)

// Application messages are JSON objects discriminated by a "type"
// field. The multiplexer decodes the discriminator first, then the
// full shape; unknown types are logged and dropped rather than
// falling through silently.

// Handshake error codes. The protocol deliberately distinguishes an
// unknown identity from a failed proof — a client-visible behavior
// kept for compatibility even though it concedes username enumeration.
const (
	// ErrorCodeInvalidIdentity: no credential record for the identity
	// in srp_hello.
	ErrorCodeInvalidIdentity = "invalid_identity"

	// ErrorCodeInvalidProof: the client proof did not verify, or a
	// proof arrived with no handshake in progress.
	ErrorCodeInvalidProof = "invalid_proof"

	// ErrorCodeServerError: an internal failure unrelated to the
	// client's input.
	ErrorCodeServerError = "server_error"
)

// Message type discriminator values.
const (
	typeHello       = "srp_hello"
	typeChallenge   = "srp_challenge"
	typeClientProof = "srp_client_proof"
	typeVerify      = "srp_verify"
	typeSRPError    = "srp_error"

	typeRequest  = "request"
	typeResponse = "response"

	typeSubscribe   = "subscribe"
	typeUnsubscribe = "unsubscribe"
	typeEvent       = "event"

	typeUploadStart    = "upload_start"
	typeUploadChunk    = "upload_chunk"
	typeUploadEnd      = "upload_end"
	typeUploadProgress = "upload_progress"
	typeUploadComplete = "upload_complete"
	typeUploadError    = "upload_error"
)

// Subscription channel names.
const (
	// ChannelSession streams one agent session's events, with history
	// replay for late joiners.
	ChannelSession = "session"

	// ChannelActivity streams global activity events; no history.
	ChannelActivity = "activity"
)

// featureGzip is the srp_hello feature flag advertising gzip support
// for COMPRESSED_JSON envelopes.
const featureGzip = "gzip"

// typeOnly is the first-pass decode target: just the discriminator.
type typeOnly struct {
	Type string `json:"type"`
}

// helloMessage opens a handshake. Big integers in the SRP messages are
// hex-encoded; Features advertises optional capabilities (currently
// only "gzip").
type helloMessage struct {
	Type     string   `json:"type"`
	Identity string   `json:"identity"`
	Features []string `json:"features,omitempty"`
}

type challengeMessage struct {
	Type string `json:"type"`
	Salt string `json:"salt"`
	B    string `json:"B"`
}

type clientProofMessage struct {
	Type string `json:"type"`
	A    string `json:"A"`
	M1   string `json:"M1"`
}

type verifyMessage struct {
	Type string `json:"type"`
	M2   string `json:"M2"`
}

type srpErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type requestMessage struct {
	Type    string            `json:"type"`
	ID      string            `json:"id"`
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

type responseMessage struct {
	Type    string            `json:"type"`
	ID      string            `json:"id"`
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

type subscribeMessage struct {
	Type           string `json:"type"`
	SubscriptionID string `json:"subscriptionId"`
	Channel        string `json:"channel"`
	SessionID      string `json:"sessionId,omitempty"`
}

type unsubscribeMessage struct {
	Type           string `json:"type"`
	SubscriptionID string `json:"subscriptionId"`
}

// eventMessage is one item on a subscription stream. EventID is a
// per-subscription counter starting at 0 and strictly increasing;
// the initial connected snapshot sits outside the numbered stream and
// omits the field.
type eventMessage struct {
	Type           string          `json:"type"`
	SubscriptionID string          `json:"subscriptionId"`
	EventType      string          `json:"eventType"`
	EventID        *int64          `json:"eventId,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
}

type uploadStartMessage struct {
	Type      string `json:"type"`
	UploadID  string `json:"uploadId"`
	ProjectID string `json:"projectId"`
	SessionID string `json:"sessionId"`
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
}

// uploadChunkMessage is the JSON form of a chunk; chunks may also
// arrive as FormatBinaryUpload envelopes, bypassing base64.
type uploadChunkMessage struct {
	Type     string `json:"type"`
	UploadID string `json:"uploadId"`
	Offset   int64  `json:"offset"`
	Data     string `json:"data"`
}

type uploadEndMessage struct {
	Type     string `json:"type"`
	UploadID string `json:"uploadId"`
}

type uploadProgressMessage struct {
	Type          string `json:"type"`
	UploadID      string `json:"uploadId"`
	BytesReceived int64  `json:"bytesReceived"`
}

type uploadCompleteMessage struct {
	Type     string                   `json:"type"`
	UploadID string                   `json:"uploadId"`
	File     *uploadstore.FileMetadata `json:"file"`
}

type uploadErrorMessage struct {
	Type     string `json:"type"`
	UploadID string `json:"uploadId"`
	Error    string `json:"error"`
}
