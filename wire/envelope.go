// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the encrypted envelope that wraps every
// application message on an authenticated connection.
//
// An envelope seals `format byte ‖ payload` under XSalsa20-Poly1305
// (NaCl secretbox) with the connection's 32-byte session key and a
// fresh random 24-byte nonce. Two framings carry the result:
//
//   - binary: version byte ‖ nonce ‖ ciphertext (WebSocket binary frame)
//   - JSON:   {"nonce": base64, "ciphertext": base64} (text frame)
//
// The format byte inside the sealed plaintext selects how the payload
// is interpreted: plain JSON, a binary upload chunk, or gzip-compressed
// JSON. Compression is negotiated per connection and applied only when
// it strictly shrinks the payload (see compress.go).
//
// Envelopes are stateless; each message is an independently decryptable
// unit. A nonce is never reused under the same key because every Seal
// draws a fresh nonce from crypto/rand.
package wire

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// KeySize is the session key length in bytes.
const KeySize = 32

// NonceSize is the secretbox nonce length in bytes.
const NonceSize = 24

// Version is the binary framing version byte. An envelope with any
// other leading byte is rejected.
const Version byte = 0x01

// Payload format bytes. These are protocol constants shared with
// remote clients — changing them breaks wire compatibility.
const (
	// FormatJSON marks an uncompressed JSON application message.
	FormatJSON byte = 0x01

	// FormatBinaryUpload marks a binary upload chunk (see
	// EncodeBinaryChunk for the payload layout).
	FormatBinaryUpload byte = 0x02

	// FormatCompressedJSON marks a gzip-compressed JSON message.
	FormatCompressedJSON byte = 0x03
)

// maxPayloadSize bounds the decrypted payload. 16 MB is far beyond any
// legitimate message (upload chunks are 64 KiB) and keeps a forged
// length from allocating unbounded memory.
const maxPayloadSize = 16 * 1024 * 1024

// ErrDecrypt is returned when an envelope fails authentication: a
// wrong key, a tampered ciphertext, or a truncated frame. The caller
// must drop the message; a forged envelope cannot be trusted to carry
// a valid correlation id, so no reply is ever sent.
var ErrDecrypt = fmt.Errorf("wire: envelope authentication failed")

// jsonEnvelope is the text framing of an envelope.
type jsonEnvelope struct {
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Seal encrypts `format ‖ payload` under key with a fresh random nonce
// and returns the binary framing: version ‖ nonce ‖ ciphertext.
func Seal(key *[KeySize]byte, format byte, payload []byte) ([]byte, error) {
	nonce, sealed, err := seal(key, format, payload)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, 1+NonceSize+len(sealed))
	frame = append(frame, Version)
	frame = append(frame, nonce[:]...)
	frame = append(frame, sealed...)
	return frame, nil
}

// SealJSON encrypts `format ‖ payload` under key and returns the JSON
// framing with base64-encoded nonce and ciphertext.
func SealJSON(key *[KeySize]byte, format byte, payload []byte) ([]byte, error) {
	nonce, sealed, err := seal(key, format, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jsonEnvelope{
		Nonce:      base64.StdEncoding.EncodeToString(nonce[:]),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	})
}

func seal(key *[KeySize]byte, format byte, payload []byte) ([NonceSize]byte, []byte, error) {
	if len(payload) > maxPayloadSize {
		return [NonceSize]byte{}, nil, fmt.Errorf("wire: payload %d bytes exceeds maximum %d", len(payload), maxPayloadSize)
	}
	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nonce, nil, fmt.Errorf("generating envelope nonce: %w", err)
	}
	plaintext := make([]byte, 0, 1+len(payload))
	plaintext = append(plaintext, format)
	plaintext = append(plaintext, payload...)
	return nonce, secretbox.Seal(nil, plaintext, &nonce, key), nil
}

// Open decrypts a binary-framed envelope. Returns the format byte and
// payload, or ErrDecrypt-wrapping errors that the caller should treat
// as drop-and-log.
func Open(key *[KeySize]byte, frame []byte) (byte, []byte, error) {
	if len(frame) < 1+NonceSize {
		return 0, nil, fmt.Errorf("wire: frame %d bytes is shorter than header", len(frame))
	}
	if frame[0] != Version {
		return 0, nil, fmt.Errorf("wire: unsupported envelope version 0x%02x", frame[0])
	}
	var nonce [NonceSize]byte
	copy(nonce[:], frame[1:1+NonceSize])
	return open(key, nonce, frame[1+NonceSize:])
}

// OpenJSON decrypts a JSON-framed envelope.
func OpenJSON(key *[KeySize]byte, data []byte) (byte, []byte, error) {
	var envelope jsonEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return 0, nil, fmt.Errorf("parsing envelope JSON: %w", err)
	}
	nonceBytes, err := base64.StdEncoding.DecodeString(envelope.Nonce)
	if err != nil {
		return 0, nil, fmt.Errorf("decoding envelope nonce: %w", err)
	}
	if len(nonceBytes) != NonceSize {
		return 0, nil, fmt.Errorf("wire: nonce is %d bytes, want %d", len(nonceBytes), NonceSize)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(envelope.Ciphertext)
	if err != nil {
		return 0, nil, fmt.Errorf("decoding envelope ciphertext: %w", err)
	}
	var nonce [NonceSize]byte
	copy(nonce[:], nonceBytes)
	return open(key, nonce, ciphertext)
}

func open(key *[KeySize]byte, nonce [NonceSize]byte, ciphertext []byte) (byte, []byte, error) {
	plaintext, ok := secretbox.Open(nil, ciphertext, &nonce, key)
	if !ok {
		return 0, nil, ErrDecrypt
	}
	if len(plaintext) < 1 {
		return 0, nil, fmt.Errorf("wire: sealed plaintext is empty")
	}
	format := plaintext[0]
	switch format {
	case FormatJSON, FormatBinaryUpload, FormatCompressedJSON:
	default:
		return 0, nil, fmt.Errorf("wire: unsupported payload format 0x%02x", format)
	}
	return format, plaintext[1:], nil
}

// NewKey copies a 32-byte slice into the fixed-size key type used by
// Seal and Open. Returns an error for any other length.
func NewKey(raw []byte) (*[KeySize]byte, error) {
	if len(raw) != KeySize {
		return nil, fmt.Errorf("wire: session key is %d bytes, want %d", len(raw), KeySize)
	}
	var key [KeySize]byte
	copy(key[:], raw)
	return &key, nil
}

// Binary upload chunk payload layout (format FormatBinaryUpload):
// uint16 upload id length ‖ upload id ‖ uint64 offset ‖ chunk bytes,
// all integers big-endian.

// EncodeBinaryChunk builds a FormatBinaryUpload payload.
func EncodeBinaryChunk(uploadID string, offset uint64, data []byte) ([]byte, error) {
	if len(uploadID) > 0xffff {
		return nil, fmt.Errorf("wire: upload id %d bytes exceeds uint16", len(uploadID))
	}
	payload := make([]byte, 0, 2+len(uploadID)+8+len(data))
	payload = binary.BigEndian.AppendUint16(payload, uint16(len(uploadID)))
	payload = append(payload, uploadID...)
	payload = binary.BigEndian.AppendUint64(payload, offset)
	payload = append(payload, data...)
	return payload, nil
}

// ParseBinaryChunk decodes a FormatBinaryUpload payload.
func ParseBinaryChunk(payload []byte) (uploadID string, offset uint64, data []byte, err error) {
	if len(payload) < 2 {
		return "", 0, nil, fmt.Errorf("wire: binary chunk shorter than id length field")
	}
	idLength := int(binary.BigEndian.Uint16(payload[0:2]))
	if len(payload) < 2+idLength+8 {
		return "", 0, nil, fmt.Errorf("wire: binary chunk truncated (id length %d, payload %d bytes)", idLength, len(payload))
	}
	uploadID = string(payload[2 : 2+idLength])
	offset = binary.BigEndian.Uint64(payload[2+idLength : 2+idLength+8])
	data = payload[2+idLength+8:]
	return uploadID, offset, data, nil
}
