// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"bytes"
	"testing"
)

func TestControlFrameRoundTrip(t *testing.T) {
	t.Parallel()
	original := &controlFrame{
		Type:         frameData,
		ConnectionID: "c1",
		Kind:         2,
		Data:         []byte{0x01, 0xFF, 0x00, 0x7A},
	}

	encoded, err := encodeFrame(original)
	if err != nil {
		t.Fatalf("encodeFrame: %v", err)
	}
	decoded, err := decodeFrame(encoded)
	if err != nil {
		t.Fatalf("decodeFrame: %v", err)
	}
	if decoded.Type != original.Type || decoded.ConnectionID != original.ConnectionID ||
		decoded.Kind != original.Kind || !bytes.Equal(decoded.Data, original.Data) {
		t.Errorf("round trip changed frame: %+v -> %+v", original, decoded)
	}
}

func TestDeterministicEncoding(t *testing.T) {
	t.Parallel()
	frame := &controlFrame{Type: frameRegister, Name: "alpha", InstallationID: "inst-1"}

	first, err := encodeFrame(frame)
	if err != nil {
		t.Fatalf("encodeFrame: %v", err)
	}
	second, err := encodeFrame(frame)
	if err != nil {
		t.Fatalf("encodeFrame: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("same frame encoded to different bytes")
	}
}

func TestDecodeRejectsMissingType(t *testing.T) {
	t.Parallel()
	encoded, err := encodeFrame(&controlFrame{Type: frameOpen, ConnectionID: "c1"})
	if err != nil {
		t.Fatalf("encodeFrame: %v", err)
	}

	var stripped controlFrame
	if err := decMode.Unmarshal(encoded, &stripped); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	stripped.Type = ""
	bad, err := encMode.Marshal(&stripped)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if _, err := decodeFrame(bad); err == nil {
		t.Error("decodeFrame accepted a frame without a type")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()
	if _, err := decodeFrame([]byte("not cbor at all")); err == nil {
		t.Error("decodeFrame accepted garbage")
	}
}
