// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/doorway/wire"
)

// FileMetadata is the server's description of a finalized upload.
type FileMetadata struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	MimeType  string `json:"mimeType"`
	Size      int64  `json:"size"`
	Checksum  string `json:"checksum"`
	ProjectID string `json:"projectId"`
	SessionID string `json:"sessionId"`
}

// UploadSpec describes one transfer.
type UploadSpec struct {
	ProjectID string
	SessionID string
	Filename  string
	MimeType  string

	// Size is the exact byte count Content will produce. The server
	// enforces it at completion.
	Size int64

	// Content supplies the file bytes.
	Content io.Reader

	// OnProgress, when set, receives every server progress report
	// (including the zero-byte reservation acknowledgement).
	OnProgress func(bytesReceived int64)
}

// Upload transfers one file in ChunkSize pieces and returns the
// server's file metadata. On an authenticated connection the chunks
// travel as raw binary envelopes; without a session key they fall back
// to base64 inside JSON.
func (c *Client) Upload(ctx context.Context, spec UploadSpec) (*FileMetadata, error) {
	id := "u" + strconv.FormatInt(c.nextID.Add(1), 10)
	signals := make(chan *uploadSignal, 16)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, c.closedError()
	}
	c.uploads[id] = signals
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.uploads, id)
		c.mu.Unlock()
	}()

	if err := c.send(uploadStartMessage{
		Type:      typeUploadStart,
		UploadID:  id,
		ProjectID: spec.ProjectID,
		SessionID: spec.SessionID,
		Filename:  spec.Filename,
		Size:      spec.Size,
		MimeType:  spec.MimeType,
	}); err != nil {
		return nil, err
	}

	// The reservation acknowledgement gates the first chunk.
	if _, err := c.awaitUploadSignal(ctx, spec, signals, typeUploadProgress); err != nil {
		return nil, err
	}

	buffer := make([]byte, ChunkSize)
	var offset int64
	for {
		n, err := io.ReadFull(spec.Content, buffer)
		if n > 0 {
			if err := c.sendChunk(id, offset, buffer[:n]); err != nil {
				return nil, err
			}
			offset += int64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading upload content: %w", err)
		}
		// Drain progress reports as they arrive so the signal buffer
		// cannot fill on a long transfer; a mid-transfer error aborts.
		if err := c.drainProgress(spec, signals); err != nil {
			return nil, err
		}
	}

	if err := c.send(uploadEndMessage{Type: typeUploadEnd, UploadID: id}); err != nil {
		return nil, err
	}
	signal, err := c.awaitUploadSignal(ctx, spec, signals, typeUploadComplete)
	if err != nil {
		return nil, err
	}

	var metadata FileMetadata
	if err := json.Unmarshal(signal.file, &metadata); err != nil {
		return nil, fmt.Errorf("parsing upload metadata: %w", err)
	}
	return &metadata, nil
}

// sendChunk sends one chunk, binary-framed when a session key exists.
func (c *Client) sendChunk(uploadID string, offset int64, data []byte) error {
	if c.key == nil {
		return c.send(uploadChunkMessage{
			Type:     typeUploadChunk,
			UploadID: uploadID,
			Offset:   offset,
			Data:     base64.StdEncoding.EncodeToString(data),
		})
	}
	payload, err := wire.EncodeBinaryChunk(uploadID, uint64(offset), data)
	if err != nil {
		return err
	}
	frame, err := wire.Seal(c.key, wire.FormatBinaryUpload, payload)
	if err != nil {
		return err
	}
	return c.writeFrame(websocket.BinaryMessage, frame)
}

// awaitUploadSignal waits for the given signal kind, forwarding
// progress reports along the way and converting upload_error into
// ProtocolError.
func (c *Client) awaitUploadSignal(ctx context.Context, spec UploadSpec, signals chan *uploadSignal, want string) (*uploadSignal, error) {
	for {
		select {
		case signal := <-signals:
			switch signal.kind {
			case typeUploadError:
				return nil, &ProtocolError{Message: signal.failure}
			case typeUploadProgress:
				if spec.OnProgress != nil {
					spec.OnProgress(signal.progress)
				}
				if want == typeUploadProgress {
					return signal, nil
				}
			case want:
				return signal, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.done:
			return nil, c.closedError()
		}
	}
}

// drainProgress forwards any already-buffered progress reports without
// blocking the send path. Returns the server's error if one is queued.
func (c *Client) drainProgress(spec UploadSpec, signals chan *uploadSignal) error {
	for {
		select {
		case signal := <-signals:
			switch signal.kind {
			case typeUploadError:
				return &ProtocolError{Message: signal.failure}
			case typeUploadProgress:
				if spec.OnProgress != nil {
					spec.OnProgress(signal.progress)
				}
			}
		default:
			return nil
		}
	}
}
