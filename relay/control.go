// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Control frame types exchanged with the relay server. Frames travel
// as CBOR in WebSocket binary messages on the registration link.
const (
	// frameRegister announces the daemon to the relay:
	// {name, installationId}. The relay answers with frameRegistered.
	frameRegister = "register"

	// frameRegistered confirms the registration; the daemon is now
	// reachable under its name.
	frameRegistered = "registered"

	// frameOpen tells the daemon a client connected: {connectionId}.
	frameOpen = "open"

	// frameData carries one message of a forwarded connection in
	// either direction: {connectionId, kind, data}. Kind preserves the
	// WebSocket message type across the hop.
	frameData = "frame"

	// frameClose ends a forwarded connection: {connectionId}. Sent by
	// whichever side saw the connection die.
	frameClose = "close"
)

// controlFrame is the single wire shape for all control traffic.
// Fields are populated per frame type; CBOR omits the empty ones.
type controlFrame struct {
	Type           string `cbor:"type"`
	Name           string `cbor:"name,omitempty"`
	InstallationID string `cbor:"installationId,omitempty"`
	ConnectionID   string `cbor:"connectionId,omitempty"`
	Kind           int    `cbor:"kind,omitempty"`
	Data           []byte `cbor:"data,omitempty"`
}

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2): the same
// frame always produces identical bytes.
var encMode cbor.EncMode

// decMode accepts standard CBOR and ignores unknown fields, so a newer
// relay can add fields without breaking older daemons.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("relay: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("relay: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeFrame(frame *controlFrame) ([]byte, error) {
	data, err := encMode.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encoding %s frame: %w", frame.Type, err)
	}
	return data, nil
}

func decodeFrame(data []byte) (*controlFrame, error) {
	var frame controlFrame
	if err := decMode.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("decoding control frame: %w", err)
	}
	if frame.Type == "" {
		return nil, fmt.Errorf("relay: control frame without type")
	}
	return &frame, nil
}
