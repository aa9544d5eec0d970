// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package srp

import (
	"crypto/subtle"
	"fmt"
	"math/big"
)

// ServerSession is the server half of one authentication attempt. It
// is created when the client's hello arrives and must be discarded
// after VerifyProof returns, whatever the outcome.
type ServerSession struct {
	identity string
	salt     []byte
	verifier *big.Int

	ephemeralSecret *big.Int // b
	ephemeralPublic *big.Int // B = k*v + g^b mod N
}

// NewServerSession starts a server-side exchange from a stored
// credential record. The returned session's PublicEphemeral goes into
// the challenge message together with the salt.
func NewServerSession(identity string, salt, verifier []byte) (*ServerSession, error) {
	if len(verifier) == 0 {
		return nil, fmt.Errorf("srp: empty verifier for identity %q", identity)
	}
	v := new(big.Int).SetBytes(verifier)

	b, err := randomEphemeralSecret()
	if err != nil {
		return nil, err
	}

	// B = (k*v + g^b) mod N.
	term := new(big.Int).Mul(multiplierK, v)
	term.Add(term, new(big.Int).Exp(groupGenerator, b, groupPrime))
	term.Mod(term, groupPrime)

	return &ServerSession{
		identity:        identity,
		salt:            salt,
		verifier:        v,
		ephemeralSecret: b,
		ephemeralPublic: term,
	}, nil
}

// Salt returns the credential salt sent in the challenge.
func (s *ServerSession) Salt() []byte { return s.salt }

// PublicEphemeral returns B, padded to the group prime length.
func (s *ServerSession) PublicEphemeral() []byte { return pad(s.ephemeralPublic) }

// VerifyProof checks the client's proof M1 against the client public
// ephemeral A. On success it returns the derived 32-byte session key
// and the server confirmation proof M2. On any failure it returns
// ErrInvalidEphemeral or ErrInvalidProof and no key material.
//
// The M1 comparison is constant time. The session holds no secrets
// worth protecting after this returns; callers drop it either way.
func (s *ServerSession) VerifyProof(clientPublic, clientProofM1 []byte) (sessionKey, serverProofM2 []byte, err error) {
	A := new(big.Int).SetBytes(clientPublic)

	// A ≡ 0 mod N forces S = 0 regardless of the password. Reject
	// before any arithmetic.
	if new(big.Int).Mod(A, groupPrime).Sign() == 0 {
		return nil, nil, ErrInvalidEphemeral
	}

	u := deriveScrambler(A, s.ephemeralPublic)
	if u.Sign() == 0 {
		return nil, nil, ErrInvalidEphemeral
	}

	// S = (A * v^u)^b mod N.
	base := new(big.Int).Exp(s.verifier, u, groupPrime)
	base.Mul(base, A)
	base.Mod(base, groupPrime)
	sharedSecret := new(big.Int).Exp(base, s.ephemeralSecret, groupPrime)

	key := deriveSessionKey(sharedSecret)
	expected := clientProof(s.identity, s.salt, A, s.ephemeralPublic, key)

	if subtle.ConstantTimeCompare(expected, clientProofM1) != 1 {
		return nil, nil, ErrInvalidProof
	}

	return key, serverProof(A, clientProofM1, key), nil
}
