// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/doorway/srp"
)

func TestGetBeforeProvisioning(t *testing.T) {
	t.Parallel()
	store := NewStore(filepath.Join(t.TempDir(), "credential.json"))

	if _, err := store.Get(); !errors.Is(err, ErrNotProvisioned) {
		t.Errorf("Get on empty store: err = %v, want ErrNotProvisioned", err)
	}
}

func TestSetPasswordAndGet(t *testing.T) {
	t.Parallel()
	store := NewStore(filepath.Join(t.TempDir(), "credential.json"))

	if err := store.SetPassword("operator", "hunter2"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}

	record, err := store.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if record.Identity != "operator" {
		t.Errorf("identity = %q, want %q", record.Identity, "operator")
	}
	if len(record.Salt) != srp.SaltSize {
		t.Errorf("salt is %d bytes, want %d", len(record.Salt), srp.SaltSize)
	}

	// The stored verifier must validate the password through a real
	// exchange.
	server, err := srp.NewServerSession(record.Identity, record.Salt, record.Verifier)
	if err != nil {
		t.Fatalf("NewServerSession: %v", err)
	}
	client, err := srp.NewClientSession("operator", "hunter2")
	if err != nil {
		t.Fatalf("NewClientSession: %v", err)
	}
	proof, err := client.ComputeProof(server.Salt(), server.PublicEphemeral())
	if err != nil {
		t.Fatalf("ComputeProof: %v", err)
	}
	if _, _, err := server.VerifyProof(client.PublicEphemeral(), proof); err != nil {
		t.Errorf("stored verifier rejected the correct password: %v", err)
	}
}

func TestSetPasswordReplacesRecord(t *testing.T) {
	t.Parallel()
	store := NewStore(filepath.Join(t.TempDir(), "credential.json"))

	if err := store.SetPassword("operator", "old"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	first, err := store.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := store.SetPassword("operator", "new"); err != nil {
		t.Fatalf("SetPassword (replace): %v", err)
	}
	second, err := store.Get()
	if err != nil {
		t.Fatalf("Get after replace: %v", err)
	}
	if bytes.Equal(first.Verifier, second.Verifier) {
		t.Error("replacing the password did not change the verifier")
	}
	if bytes.Equal(first.Salt, second.Salt) {
		t.Error("replacing the password did not draw a fresh salt")
	}
}

func TestFilePermissions(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "credential.json")
	store := NewStore(path)

	if err := store.SetPassword("operator", "pw"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		t.Errorf("credential file mode = %o, want 0600", mode)
	}
}

func TestRejectsEmptyInputs(t *testing.T) {
	t.Parallel()
	store := NewStore(filepath.Join(t.TempDir(), "credential.json"))

	if err := store.SetPassword("", "pw"); err == nil {
		t.Error("SetPassword accepted an empty identity")
	}
	if err := store.SetPassword("operator", ""); err == nil {
		t.Error("SetPassword accepted an empty password")
	}
}

func TestUsername(t *testing.T) {
	t.Parallel()
	store := NewStore(filepath.Join(t.TempDir(), "credential.json"))

	if _, err := store.Username(); !errors.Is(err, ErrNotProvisioned) {
		t.Errorf("Username on empty store: err = %v, want ErrNotProvisioned", err)
	}
	if err := store.SetPassword("operator", "pw"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	name, err := store.Username()
	if err != nil {
		t.Fatalf("Username: %v", err)
	}
	if name != "operator" {
		t.Errorf("Username = %q, want %q", name, "operator")
	}
}

func TestGetRejectsCorruptFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "credential.json")
	if err := os.WriteFile(path, []byte("not json"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := NewStore(path).Get(); err == nil {
		t.Error("Get accepted a corrupt credential file")
	}
}
