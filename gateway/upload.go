// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/bureau-foundation/doorway/wire"
)

// progressStride is how many bytes must accumulate between progress
// reports. With 64 KiB chunks this reports once per chunk until the
// tail.
const progressStride = 64 * 1024

// upload tracks one in-flight transfer on the connection. Chunks are
// handled inline by the read loop, so the struct needs no lock.
type upload struct {
	// clientID is the id the client chose; every message about this
	// upload carries it.
	clientID string

	// serverID is the storage reservation backing the transfer.
	serverID string

	declaredSize  int64
	bytesReceived int64

	// lastProgress is bytesReceived at the last progress report.
	lastProgress int64
}

// handleUploadStart reserves storage for a transfer. The progress
// report at zero bytes acknowledges the reservation; the client may
// start sending chunks once it arrives.
func (c *conn) handleUploadStart(data []byte) {
	var start uploadStartMessage
	if err := json.Unmarshal(data, &start); err != nil {
		c.logger.Warn("dropping malformed upload_start", "error", err)
		return
	}
	if start.UploadID == "" {
		c.logger.Warn("dropping upload_start without uploadId")
		return
	}
	if _, exists := c.uploads[start.UploadID]; exists {
		c.sendUploadError(start.UploadID,
			fmt.Sprintf("upload %q already in progress", start.UploadID))
		return
	}
	if start.Size < 0 {
		c.sendUploadError(start.UploadID,
			fmt.Sprintf("negative declared size %d", start.Size))
		return
	}

	serverID, err := c.server.Uploads.StartUpload(
		start.ProjectID, start.SessionID, start.Filename, start.Size, start.MimeType)
	if err != nil {
		c.logger.Error("reserving upload", "uploadId", start.UploadID, "error", err)
		c.sendUploadError(start.UploadID, "storage unavailable")
		return
	}

	c.uploads[start.UploadID] = &upload{
		clientID:     start.UploadID,
		serverID:     serverID,
		declaredSize: start.Size,
	}
	c.sendProgress(start.UploadID, 0)
}

// handleUploadChunk appends a JSON-framed (base64) chunk.
func (c *conn) handleUploadChunk(data []byte) {
	var chunk uploadChunkMessage
	if err := json.Unmarshal(data, &chunk); err != nil {
		c.logger.Warn("dropping malformed upload_chunk", "error", err)
		return
	}
	decoded, err := base64.StdEncoding.DecodeString(chunk.Data)
	if err != nil {
		c.failUpload(chunk.UploadID, "chunk data is not valid base64")
		return
	}
	c.appendChunk(chunk.UploadID, chunk.Offset, decoded)
}

// handleBinaryChunk appends a chunk that arrived as a raw binary
// envelope payload, skipping JSON and base64 entirely.
func (c *conn) handleBinaryChunk(payload []byte) {
	uploadID, offset, data, err := wire.ParseBinaryChunk(payload)
	if err != nil {
		c.logger.Warn("dropping malformed binary chunk", "error", err)
		return
	}
	c.appendChunk(uploadID, int64(offset), data)
}

// appendChunk validates a chunk's position and writes it through to
// storage. A gap or overlap means the client and server disagree about
// the transfer state; the upload cannot be salvaged and is cancelled.
func (c *conn) appendChunk(uploadID string, offset int64, data []byte) {
	u, ok := c.uploads[uploadID]
	if !ok {
		c.sendUploadError(uploadID, fmt.Sprintf("unknown upload %q", uploadID))
		return
	}
	if offset != u.bytesReceived {
		c.failUpload(uploadID,
			fmt.Sprintf("chunk offset %d does not match received bytes %d", offset, u.bytesReceived))
		return
	}

	total, err := c.server.Uploads.WriteChunk(u.serverID, data)
	if err != nil {
		c.logger.Warn("writing upload chunk",
			"uploadId", uploadID, "offset", offset, "error", err)
		c.failUpload(uploadID, "chunk rejected by storage")
		return
	}
	u.bytesReceived = total

	if total-u.lastProgress >= progressStride {
		u.lastProgress = total
		c.sendProgress(uploadID, total)
	}
}

// handleUploadEnd finalizes a transfer. A final progress report covers
// any bytes since the last stride boundary, then the metadata goes out.
func (c *conn) handleUploadEnd(data []byte) {
	var end uploadEndMessage
	if err := json.Unmarshal(data, &end); err != nil {
		c.logger.Warn("dropping malformed upload_end", "error", err)
		return
	}
	u, ok := c.uploads[end.UploadID]
	if !ok {
		c.sendUploadError(end.UploadID, fmt.Sprintf("unknown upload %q", end.UploadID))
		return
	}
	delete(c.uploads, end.UploadID)

	metadata, err := c.server.Uploads.CompleteUpload(u.serverID)
	if err != nil {
		// A failed completion consumed the reservation; nothing left
		// to cancel.
		c.logger.Warn("finalizing upload", "uploadId", end.UploadID, "error", err)
		c.sendUploadError(end.UploadID, "upload could not be finalized")
		return
	}

	if u.bytesReceived > u.lastProgress {
		c.sendProgress(end.UploadID, u.bytesReceived)
	}
	if err := c.sendMessage(uploadCompleteMessage{
		Type:     typeUploadComplete,
		UploadID: end.UploadID,
		File:     metadata,
	}); err != nil {
		c.logger.Warn("sending upload_complete", "uploadId", end.UploadID, "error", err)
	}
}

// failUpload cancels an in-flight upload (when one exists) and reports
// the error. The client must restart from upload_start.
func (c *conn) failUpload(uploadID, message string) {
	if u, ok := c.uploads[uploadID]; ok {
		delete(c.uploads, uploadID)
		if err := c.server.Uploads.CancelUpload(u.serverID); err != nil {
			c.logger.Warn("cancelling upload", "uploadId", uploadID, "error", err)
		}
	}
	c.sendUploadError(uploadID, message)
}

func (c *conn) sendProgress(uploadID string, bytesReceived int64) {
	if err := c.sendMessage(uploadProgressMessage{
		Type:          typeUploadProgress,
		UploadID:      uploadID,
		BytesReceived: bytesReceived,
	}); err != nil {
		c.logger.Warn("sending upload_progress", "uploadId", uploadID, "error", err)
	}
}

func (c *conn) sendUploadError(uploadID, message string) {
	if err := c.sendMessage(uploadErrorMessage{
		Type:     typeUploadError,
		UploadID: uploadID,
		Error:    message,
	}); err != nil {
		c.logger.Warn("sending upload_error", "uploadId", uploadID, "error", err)
	}
}
