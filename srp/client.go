// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package srp

import (
	"crypto/subtle"
	"fmt"
	"math/big"
)

// ClientSession is the client half of one authentication attempt.
// Usage: create, send identity and PublicEphemeral, feed the server's
// challenge to ComputeProof, send the proof, and check the server's
// confirmation with VerifyServerProof before trusting SessionKey.
type ClientSession struct {
	identity string
	password string

	ephemeralSecret *big.Int // a
	ephemeralPublic *big.Int // A = g^a mod N

	sessionKey []byte
	proofM1    []byte
}

// NewClientSession starts a client-side exchange. The password stays
// inside the session and is only ever hashed.
func NewClientSession(identity, password string) (*ClientSession, error) {
	a, err := randomEphemeralSecret()
	if err != nil {
		return nil, err
	}
	return &ClientSession{
		identity:        identity,
		password:        password,
		ephemeralSecret: a,
		ephemeralPublic: new(big.Int).Exp(groupGenerator, a, groupPrime),
	}, nil
}

// PublicEphemeral returns A, padded to the group prime length.
func (c *ClientSession) PublicEphemeral() []byte { return pad(c.ephemeralPublic) }

// ComputeProof consumes the server challenge (salt and B) and returns
// the client proof M1. The session key is derived as a side effect but
// must not be used until VerifyServerProof accepts the server's M2.
func (c *ClientSession) ComputeProof(salt, serverPublic []byte) ([]byte, error) {
	B := new(big.Int).SetBytes(serverPublic)

	// B ≡ 0 mod N leaks nothing but collapses the shared secret.
	if new(big.Int).Mod(B, groupPrime).Sign() == 0 {
		return nil, ErrInvalidEphemeral
	}

	u := deriveScrambler(c.ephemeralPublic, B)
	if u.Sign() == 0 {
		return nil, ErrInvalidEphemeral
	}

	x := derivePrivateKey(c.identity, c.password, salt)

	// S = (B - k*g^x)^(a + u*x) mod N.
	gx := new(big.Int).Exp(groupGenerator, x, groupPrime)
	base := new(big.Int).Mul(multiplierK, gx)
	base.Sub(B, base)
	base.Mod(base, groupPrime)
	if base.Sign() < 0 {
		base.Add(base, groupPrime)
	}

	exponent := new(big.Int).Mul(u, x)
	exponent.Add(exponent, c.ephemeralSecret)

	sharedSecret := new(big.Int).Exp(base, exponent, groupPrime)

	c.sessionKey = deriveSessionKey(sharedSecret)
	c.proofM1 = clientProof(c.identity, salt, c.ephemeralPublic, B, c.sessionKey)
	return c.proofM1, nil
}

// VerifyServerProof checks the server's confirmation M2 in constant
// time. Only after this succeeds is SessionKey trustworthy: M2 proves
// the server derived the same key, which it can only do with the real
// verifier.
func (c *ClientSession) VerifyServerProof(serverProofM2 []byte) error {
	if c.proofM1 == nil {
		return fmt.Errorf("srp: VerifyServerProof called before ComputeProof")
	}
	expected := serverProof(c.ephemeralPublic, c.proofM1, c.sessionKey)
	if subtle.ConstantTimeCompare(expected, serverProofM2) != 1 {
		return ErrInvalidProof
	}
	return nil
}

// SessionKey returns the derived 32-byte key, or nil if ComputeProof
// has not run.
func (c *ClientSession) SessionKey() []byte { return c.sessionKey }
