// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import "encoding/json"

// Wire message shapes, mirroring what the daemon speaks. Kept local so
// the client stands alone against any conforming server.

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

// Subscription channels the daemon serves.
const (
	// ChannelSession streams one session's events with history replay.
	ChannelSession = "session"

	// ChannelActivity streams global activity; no history.
	ChannelActivity = "activity"
)

// EventConnected is the event type of the initial subscription
// snapshot.
const EventConnected = "connected"

const featureGzip = "gzip"

type typeOnly struct {
	Type string `json:"type"`
}

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
