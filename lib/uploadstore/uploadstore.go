// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package uploadstore implements disk-backed storage for chunked file
// uploads. An upload is reserved with StartUpload, appended to with
// WriteChunk (the store tracks the running total; sequencing is the
// caller's protocol concern), and finalized with CompleteUpload, which
// verifies the declared size and produces file metadata including a
// BLAKE3 checksum computed incrementally as chunks arrive. CancelUpload
// discards partial data; nothing of a cancelled upload survives.
//
// Layout under the store directory: in-flight uploads are
// `<id>.partial`, finalized files are `<id>` with a `<id>.json`
// metadata sidecar.
package uploadstore

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// ErrUnknownUpload is returned for operations on an id that was never
// reserved or has already been finalized or cancelled.
var ErrUnknownUpload = fmt.Errorf("uploadstore: unknown upload id")

// FileMetadata describes a finalized upload.
type FileMetadata struct {
	// ID is the server-assigned upload id (also the filename on disk).
	ID string `json:"id"`

	// Filename is the client-declared original name. Informational
	// only — it never becomes a path component.
	Filename string `json:"filename"`

	// MimeType is the client-declared content type.
	MimeType string `json:"mimeType"`

	// Size is the finalized byte count.
	Size int64 `json:"size"`

	// Checksum is the hex BLAKE3 hash of the file contents.
	Checksum string `json:"checksum"`

	// ProjectID and SessionID record the upload's origin.
	ProjectID string `json:"projectId"`
	SessionID string `json:"sessionId"`
}

// activeUpload is an in-flight reservation.
type activeUpload struct {
	metadata      FileMetadata
	declaredSize  int64
	bytesReceived int64
	file          *os.File
	hasher        *blake3.Hasher
}

// Store manages uploads under one directory. Safe for concurrent use
// from many connections.
type Store struct {
	directory string

	mu     sync.Mutex
	active map[string]*activeUpload
}

// NewStore creates (if needed) and opens the store directory.
func NewStore(directory string) (*Store, error) {
	if err := os.MkdirAll(directory, 0700); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	return &Store{
		directory: directory,
		active:    make(map[string]*activeUpload),
	}, nil
}

// StartUpload reserves a slot and returns the server-assigned upload
// id. size is the declared total; CompleteUpload enforces it.
func (s *Store) StartUpload(projectID, sessionID, filename string, size int64, mimeType string) (string, error) {
	if size < 0 {
		return "", fmt.Errorf("uploadstore: negative declared size %d", size)
	}

	id := uuid.NewString()
	file, err := os.OpenFile(filepath.Join(s.directory, id+".partial"), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return "", fmt.Errorf("creating partial upload file: %w", err)
	}

	s.mu.Lock()
	s.active[id] = &activeUpload{
		metadata: FileMetadata{
			ID:        id,
			Filename:  filename,
			MimeType:  mimeType,
			ProjectID: projectID,
			SessionID: sessionID,
		},
		declaredSize: size,
		file:         file,
		hasher:       blake3.New(),
	}
	s.mu.Unlock()
	return id, nil
}

// WriteChunk appends data to an in-flight upload and returns the new
// running total.
func (s *Store) WriteChunk(uploadID string, data []byte) (int64, error) {
	s.mu.Lock()
	upload, ok := s.active[uploadID]
	s.mu.Unlock()
	if !ok {
		return 0, ErrUnknownUpload
	}

	if upload.bytesReceived+int64(len(data)) > upload.declaredSize {
		return 0, fmt.Errorf("uploadstore: chunk overruns declared size %d", upload.declaredSize)
	}
	if _, err := upload.file.Write(data); err != nil {
		return 0, fmt.Errorf("writing upload chunk: %w", err)
	}
	upload.hasher.Write(data)
	upload.bytesReceived += int64(len(data))
	return upload.bytesReceived, nil
}

// CompleteUpload finalizes an upload: verifies the declared size was
// reached, moves the file into place, writes the metadata sidecar, and
// returns the metadata. The reservation is consumed whether or not
// finalization succeeds; a failed completion behaves like a cancel.
func (s *Store) CompleteUpload(uploadID string) (*FileMetadata, error) {
	s.mu.Lock()
	upload, ok := s.active[uploadID]
	delete(s.active, uploadID)
	s.mu.Unlock()
	if !ok {
		return nil, ErrUnknownUpload
	}

	partialPath := filepath.Join(s.directory, uploadID+".partial")
	if upload.bytesReceived != upload.declaredSize {
		upload.file.Close()
		os.Remove(partialPath)
		return nil, fmt.Errorf("uploadstore: received %d bytes, declared %d", upload.bytesReceived, upload.declaredSize)
	}
	if err := upload.file.Close(); err != nil {
		os.Remove(partialPath)
		return nil, fmt.Errorf("closing upload file: %w", err)
	}

	finalPath := filepath.Join(s.directory, uploadID)
	if err := os.Rename(partialPath, finalPath); err != nil {
		os.Remove(partialPath)
		return nil, fmt.Errorf("finalizing upload file: %w", err)
	}

	metadata := upload.metadata
	metadata.Size = upload.bytesReceived
	digest := upload.hasher.Sum(nil)
	metadata.Checksum = hex.EncodeToString(digest)

	sidecar, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding upload metadata: %w", err)
	}
	if err := os.WriteFile(finalPath+".json", sidecar, 0600); err != nil {
		return nil, fmt.Errorf("writing upload metadata: %w", err)
	}
	return &metadata, nil
}

// CancelUpload discards an in-flight upload and its partial bytes.
func (s *Store) CancelUpload(uploadID string) error {
	s.mu.Lock()
	upload, ok := s.active[uploadID]
	delete(s.active, uploadID)
	s.mu.Unlock()
	if !ok {
		return ErrUnknownUpload
	}

	upload.file.Close()
	if err := os.Remove(filepath.Join(s.directory, uploadID+".partial")); err != nil {
		return fmt.Errorf("removing partial upload: %w", err)
	}
	return nil
}

// Lookup returns the metadata of a finalized upload.
func (s *Store) Lookup(uploadID string) (*FileMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.directory, uploadID+".json"))
	if os.IsNotExist(err) {
		return nil, ErrUnknownUpload
	}
	if err != nil {
		return nil, fmt.Errorf("reading upload metadata: %w", err)
	}
	var metadata FileMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("parsing upload metadata: %w", err)
	}
	return &metadata, nil
}
