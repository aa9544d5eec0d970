// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

func testKey(t *testing.T) *[KeySize]byte {
	t.Helper()
	var key [KeySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		t.Fatalf("generating test key: %v", err)
	}
	return &key
}

func TestBinaryRoundTrip(t *testing.T) {
	t.Parallel()
	key := testKey(t)
	payload := []byte(`{"type":"request","id":"r1"}`)

	frame, err := Seal(key, FormatJSON, payload)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if frame[0] != Version {
		t.Errorf("frame version = 0x%02x, want 0x%02x", frame[0], Version)
	}

	format, opened, err := Open(key, frame)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if format != FormatJSON {
		t.Errorf("format = 0x%02x, want FormatJSON", format)
	}
	if !bytes.Equal(opened, payload) {
		t.Errorf("payload mismatch: got %q, want %q", opened, payload)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	t.Parallel()
	key := testKey(t)
	payload := []byte(`{"type":"subscribe","subscriptionId":"s1"}`)

	data, err := SealJSON(key, FormatJSON, payload)
	if err != nil {
		t.Fatalf("SealJSON: %v", err)
	}

	format, opened, err := OpenJSON(key, data)
	if err != nil {
		t.Fatalf("OpenJSON: %v", err)
	}
	if format != FormatJSON {
		t.Errorf("format = 0x%02x, want FormatJSON", format)
	}
	if !bytes.Equal(opened, payload) {
		t.Errorf("payload mismatch: got %q, want %q", opened, payload)
	}
}

func TestOpenWithWrongKeyFailsClosed(t *testing.T) {
	t.Parallel()
	key := testKey(t)
	otherKey := testKey(t)

	frame, err := Seal(key, FormatJSON, []byte("payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	_, opened, err := Open(otherKey, frame)
	if !errors.Is(err, ErrDecrypt) {
		t.Errorf("Open with wrong key: err = %v, want ErrDecrypt", err)
	}
	if opened != nil {
		t.Errorf("Open with wrong key returned payload %q, want nil", opened)
	}
}

func TestOpenTamperedCiphertext(t *testing.T) {
	t.Parallel()
	key := testKey(t)

	frame, err := Seal(key, FormatJSON, []byte("payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	frame[len(frame)-1] ^= 0x01

	if _, _, err := Open(key, frame); !errors.Is(err, ErrDecrypt) {
		t.Errorf("Open tampered frame: err = %v, want ErrDecrypt", err)
	}
}

func TestOpenRejectsUnknownVersion(t *testing.T) {
	t.Parallel()
	key := testKey(t)

	frame, err := Seal(key, FormatJSON, []byte("payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	frame[0] = 0x7f

	if _, _, err := Open(key, frame); err == nil {
		t.Error("Open accepted an unknown version byte")
	}
}

func TestOpenRejectsTruncatedFrame(t *testing.T) {
	t.Parallel()
	key := testKey(t)

	if _, _, err := Open(key, []byte{Version, 0x00}); err == nil {
		t.Error("Open accepted a frame shorter than the header")
	}
}

func TestOpenRejectsUnknownFormat(t *testing.T) {
	t.Parallel()
	key := testKey(t)

	// Seal with a format byte outside the known set. Seal itself does
	// not validate the format (the caller picks it), so Open must.
	frame, err := Seal(key, 0x42, []byte("payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, _, err := Open(key, frame); err == nil {
		t.Error("Open accepted an unknown format byte")
	}
}

func TestNonceUniqueAcrossSeals(t *testing.T) {
	t.Parallel()
	key := testKey(t)

	first, err := Seal(key, FormatJSON, []byte("payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	second, err := Seal(key, FormatJSON, []byte("payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Equal(first[1:1+NonceSize], second[1:1+NonceSize]) {
		t.Error("two Seal calls produced the same nonce")
	}
}

func TestNewKeyLength(t *testing.T) {
	t.Parallel()
	if _, err := NewKey(make([]byte, 16)); err == nil {
		t.Error("NewKey accepted a 16-byte key")
	}
	if _, err := NewKey(make([]byte, KeySize)); err != nil {
		t.Errorf("NewKey rejected a %d-byte key: %v", KeySize, err)
	}
}

func TestBinaryChunkRoundTrip(t *testing.T) {
	t.Parallel()
	data := bytes.Repeat([]byte{0xab}, 1000)

	payload, err := EncodeBinaryChunk("upload-1", 65536, data)
	if err != nil {
		t.Fatalf("EncodeBinaryChunk: %v", err)
	}

	uploadID, offset, chunk, err := ParseBinaryChunk(payload)
	if err != nil {
		t.Fatalf("ParseBinaryChunk: %v", err)
	}
	if uploadID != "upload-1" {
		t.Errorf("uploadID = %q, want %q", uploadID, "upload-1")
	}
	if offset != 65536 {
		t.Errorf("offset = %d, want 65536", offset)
	}
	if !bytes.Equal(chunk, data) {
		t.Errorf("chunk data mismatch (%d bytes, want %d)", len(chunk), len(data))
	}
}

func TestParseBinaryChunkTruncated(t *testing.T) {
	t.Parallel()
	payload, err := EncodeBinaryChunk("upload-1", 0, []byte("data"))
	if err != nil {
		t.Fatalf("EncodeBinaryChunk: %v", err)
	}
	if _, _, _, err := ParseBinaryChunk(payload[:5]); err == nil {
		t.Error("ParseBinaryChunk accepted a truncated payload")
	}
	if _, _, _, err := ParseBinaryChunk([]byte{0x00}); err == nil {
		t.Error("ParseBinaryChunk accepted a payload shorter than the length field")
	}
}
