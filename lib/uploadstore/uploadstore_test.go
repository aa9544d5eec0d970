// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uploadstore

import (
	"bytes"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zeebo/blake3"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestUploadLifecycle(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	content := bytes.Repeat([]byte("chunk data "), 100)

	id, err := store.StartUpload("p1", "s1", "notes.txt", int64(len(content)), "text/plain")
	if err != nil {
		t.Fatalf("StartUpload: %v", err)
	}

	half := len(content) / 2
	total, err := store.WriteChunk(id, content[:half])
	if err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}
	if total != int64(half) {
		t.Errorf("running total = %d, want %d", total, half)
	}
	total, err = store.WriteChunk(id, content[half:])
	if err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}
	if total != int64(len(content)) {
		t.Errorf("running total = %d, want %d", total, len(content))
	}

	metadata, err := store.CompleteUpload(id)
	if err != nil {
		t.Fatalf("CompleteUpload: %v", err)
	}
	if metadata.Size != int64(len(content)) {
		t.Errorf("metadata size = %d, want %d", metadata.Size, len(content))
	}
	if metadata.Filename != "notes.txt" || metadata.MimeType != "text/plain" {
		t.Errorf("metadata did not carry declared fields: %+v", metadata)
	}

	hasher := blake3.New()
	hasher.Write(content)
	if want := hex.EncodeToString(hasher.Sum(nil)); metadata.Checksum != want {
		t.Errorf("checksum = %s, want %s", metadata.Checksum, want)
	}

	stored, err := os.ReadFile(filepath.Join(store.directory, id))
	if err != nil {
		t.Fatalf("reading finalized file: %v", err)
	}
	if !bytes.Equal(stored, content) {
		t.Error("finalized file contents differ from uploaded bytes")
	}

	looked, err := store.Lookup(id)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if looked.Checksum != metadata.Checksum {
		t.Error("Lookup metadata differs from CompleteUpload metadata")
	}
}

func TestWriteChunkUnknownID(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	if _, err := store.WriteChunk("missing", []byte("data")); !errors.Is(err, ErrUnknownUpload) {
		t.Errorf("WriteChunk unknown id: err = %v, want ErrUnknownUpload", err)
	}
}

func TestCompleteRejectsSizeMismatch(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	id, err := store.StartUpload("p1", "s1", "f", 100, "application/octet-stream")
	if err != nil {
		t.Fatalf("StartUpload: %v", err)
	}
	if _, err := store.WriteChunk(id, make([]byte, 50)); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}
	if _, err := store.CompleteUpload(id); err == nil {
		t.Error("CompleteUpload accepted an upload short of its declared size")
	}
	// The failed completion consumed the reservation and the partial.
	if _, err := store.WriteChunk(id, []byte("more")); !errors.Is(err, ErrUnknownUpload) {
		t.Errorf("WriteChunk after failed complete: err = %v, want ErrUnknownUpload", err)
	}
	if _, err := os.Stat(filepath.Join(store.directory, id+".partial")); !os.IsNotExist(err) {
		t.Error("partial file survived a failed completion")
	}
}

func TestWriteChunkRejectsOverrun(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	id, err := store.StartUpload("p1", "s1", "f", 10, "application/octet-stream")
	if err != nil {
		t.Fatalf("StartUpload: %v", err)
	}
	if _, err := store.WriteChunk(id, make([]byte, 11)); err == nil {
		t.Error("WriteChunk accepted bytes past the declared size")
	}
}

func TestCancelDiscardsPartialData(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	id, err := store.StartUpload("p1", "s1", "f", 100, "application/octet-stream")
	if err != nil {
		t.Fatalf("StartUpload: %v", err)
	}
	if _, err := store.WriteChunk(id, make([]byte, 40)); err != nil {
		t.Fatalf("WriteChunk: %v", err)
	}

	if err := store.CancelUpload(id); err != nil {
		t.Fatalf("CancelUpload: %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.directory, id+".partial")); !os.IsNotExist(err) {
		t.Error("partial file survived cancellation")
	}
	if err := store.CancelUpload(id); !errors.Is(err, ErrUnknownUpload) {
		t.Errorf("second CancelUpload: err = %v, want ErrUnknownUpload", err)
	}
}

func TestEmptyUpload(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	id, err := store.StartUpload("p1", "s1", "empty", 0, "application/octet-stream")
	if err != nil {
		t.Fatalf("StartUpload: %v", err)
	}
	metadata, err := store.CompleteUpload(id)
	if err != nil {
		t.Fatalf("CompleteUpload: %v", err)
	}
	if metadata.Size != 0 {
		t.Errorf("empty upload size = %d, want 0", metadata.Size)
	}
}
