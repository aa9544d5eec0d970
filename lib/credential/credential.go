// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package credential persists the single credential record the
// handshake consumes: an identity, a salt, and an SRP verifier. The
// plaintext password is used once, at provisioning time, to derive the
// verifier; it is never stored.
//
// The record lives in one JSON file with 0600 permissions. Writes go
// through a temp file and rename so a crash cannot leave a truncated
// record behind. The file path is explicit — no discovery, no
// fallbacks.
package credential

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/doorway/srp"
)

// ErrNotProvisioned is returned when no credential record exists yet.
var ErrNotProvisioned = fmt.Errorf("credential: no record provisioned")

// Record is a stored credential: everything the server needs to run
// the handshake, nothing that reveals the password.
type Record struct {
	Identity string
	Salt     []byte
	Verifier []byte
}

// fileRecord is the on-disk JSON shape. Salt and verifier are hex so
// the file is inspectable.
type fileRecord struct {
	Identity string `json:"identity"`
	Salt     string `json:"salt"`
	Verifier string `json:"verifier"`
}

// Store reads and writes the credential record file.
type Store struct {
	path string
}

// NewStore returns a Store backed by the given file path. The file
// need not exist yet; Get returns ErrNotProvisioned until SetPassword
// runs.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Get loads the credential record.
func (s *Store) Get() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, ErrNotProvisioned
	}
	if err != nil {
		return nil, fmt.Errorf("reading credential file: %w", err)
	}

	var onDisk fileRecord
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return nil, fmt.Errorf("parsing credential file %s: %w", s.path, err)
	}
	salt, err := hex.DecodeString(onDisk.Salt)
	if err != nil {
		return nil, fmt.Errorf("decoding credential salt: %w", err)
	}
	verifier, err := hex.DecodeString(onDisk.Verifier)
	if err != nil {
		return nil, fmt.Errorf("decoding credential verifier: %w", err)
	}
	if onDisk.Identity == "" || len(salt) == 0 || len(verifier) == 0 {
		return nil, fmt.Errorf("credential file %s is incomplete", s.path)
	}
	return &Record{Identity: onDisk.Identity, Salt: salt, Verifier: verifier}, nil
}

// Username returns the provisioned identity.
func (s *Store) Username() (string, error) {
	record, err := s.Get()
	if err != nil {
		return "", err
	}
	return record.Identity, nil
}

// SetPassword provisions (or replaces) the credential record: it draws
// a fresh salt, derives the verifier from the password, and writes the
// record atomically. The password does not outlive this call.
func (s *Store) SetPassword(identity, password string) error {
	if identity == "" {
		return fmt.Errorf("credential: identity is required")
	}
	if password == "" {
		return fmt.Errorf("credential: password is required")
	}

	salt, err := srp.NewSalt()
	if err != nil {
		return err
	}
	verifier := srp.ComputeVerifier(identity, password, salt)

	data, err := json.MarshalIndent(fileRecord{
		Identity: identity,
		Salt:     hex.EncodeToString(salt),
		Verifier: hex.EncodeToString(verifier),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credential record: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("creating credential directory: %w", err)
	}

	// Write-and-rename so readers never see a partial record.
	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("writing credential file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("installing credential file: %w", err)
	}
	return nil
}
