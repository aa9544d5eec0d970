// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// CompressionThreshold is the plaintext size above which compression
// is attempted. Smaller messages are not worth the CPU or the risk of
// growing under the gzip header overhead.
const CompressionThreshold = 1024

// EncodeJSON picks the format for an outgoing JSON payload. When
// allowCompression is set (the peer advertised gzip) and the payload
// exceeds CompressionThreshold, the payload is gzipped; the compressed
// form is used only if it is strictly smaller than the original,
// otherwise the plain payload goes out as FormatJSON.
func EncodeJSON(payload []byte, allowCompression bool) (format byte, encoded []byte, err error) {
	if !allowCompression || len(payload) <= CompressionThreshold {
		return FormatJSON, payload, nil
	}

	var buffer bytes.Buffer
	writer := gzip.NewWriter(&buffer)
	if _, err := writer.Write(payload); err != nil {
		return 0, nil, fmt.Errorf("gzip compress: %w", err)
	}
	if err := writer.Close(); err != nil {
		return 0, nil, fmt.Errorf("gzip finalize: %w", err)
	}

	if buffer.Len() >= len(payload) {
		// Incompressible (already-compressed or high-entropy data).
		return FormatJSON, payload, nil
	}
	return FormatCompressedJSON, buffer.Bytes(), nil
}

// DecodeJSON reverses EncodeJSON: FormatCompressedJSON payloads are
// gunzipped, FormatJSON payloads pass through. Any other format is an
// error — binary upload payloads never reach this path.
func DecodeJSON(format byte, payload []byte) ([]byte, error) {
	switch format {
	case FormatJSON:
		return payload, nil

	case FormatCompressedJSON:
		reader, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("gzip header: %w", err)
		}
		decompressed, err := io.ReadAll(io.LimitReader(reader, maxPayloadSize+1))
		if err != nil {
			return nil, fmt.Errorf("gzip decompress: %w", err)
		}
		if err := reader.Close(); err != nil {
			return nil, fmt.Errorf("gzip checksum: %w", err)
		}
		if len(decompressed) > maxPayloadSize {
			return nil, fmt.Errorf("wire: decompressed payload exceeds maximum %d", maxPayloadSize)
		}
		return decompressed, nil

	default:
		return nil, fmt.Errorf("wire: format 0x%02x is not a JSON format", format)
	}
}
