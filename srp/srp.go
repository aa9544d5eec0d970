// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package srp implements the SRP-6a password-authenticated key
// exchange used to authenticate remote clients without the password
// (or any derivative of it) crossing the wire.
//
// The server stores only a salt and a verifier v = g^x mod N, where
// x = H(salt ‖ H(identity ":" password)). A full exchange is three
// messages: the client sends its identity, the server replies with the
// salt and its public ephemeral B, the client sends its public
// ephemeral A plus a proof M1, and the server answers with its own
// proof M2. Both sides end up with the same shared secret S, from
// which the 32-byte session key is derived as SHA-512(PAD(S))
// truncated to 32 bytes.
//
// The group is the 2048-bit prime from RFC 5054 appendix A with
// generator 2; group operations hash with SHA-256. Proof comparisons
// are constant time. A session (client or server) is single-use:
// after the proof step succeeds or fails, the ephemeral secrets are of
// no further value and the session must be discarded.
package srp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"math/big"
)

// SessionKeySize is the derived symmetric key length in bytes.
const SessionKeySize = 32

// SaltSize is the length of a freshly generated salt in bytes.
const SaltSize = 16

// ephemeralSecretSize is the length of the random private ephemeral
// (a or b) in bytes. 256 bits of entropy, per RFC 5054's minimum.
const ephemeralSecretSize = 32

// ErrInvalidProof is returned when the peer's proof does not match the
// expected value. The handshake attempt is over; the caller must start
// a fresh exchange.
var ErrInvalidProof = fmt.Errorf("srp: proof mismatch")

// ErrInvalidEphemeral is returned when the peer's public ephemeral is
// unusable (congruent to zero mod N), which would collapse the shared
// secret to a value an attacker controls.
var ErrInvalidEphemeral = fmt.Errorf("srp: invalid public ephemeral")

// groupPrimeHex is the 2048-bit group prime from RFC 5054 appendix A.
const groupPrimeHex = "AC6BDB41324A9A9BF166DE5E1389582FAF72B6651987EE07FC3192943DB56050" +
	"A37329CBB4A099ED8193E0757767A13DD52312AB4B03310DCD7F48A9DA04FD50" +
	"E8083969EDB767B0CF6095179A163AB3661A05FBD5FAAAE82918A9962F0B93B8" +
	"55F97993EC975EEAA80D740ADBF4FF747359D041D5C33EA71D281E446B14773B" +
	"CA97B43A23FB801676BD207A436C6481F1D2B9078717461A5B9D32E688F87748" +
	"544523B524B0D57D5EA77A2775D2ECFA032CFBDBF52FB3786160279004E57AE6" +
	"AF874E7303CE53299CCC041C7BC308D82A5698F3A8D0C38271AE35F8E9DBFBB6" +
	"94B5C803D89F7AE435DE236D525F54759B65E372FCD68EF20FA7111F9E4AFF73"

var (
	groupPrime     *big.Int
	groupGenerator = big.NewInt(2)
	multiplierK    *big.Int
)

func init() {
	var ok bool
	groupPrime, ok = new(big.Int).SetString(groupPrimeHex, 16)
	if !ok {
		panic("srp: group prime constant failed to parse")
	}
	// k = H(N ‖ PAD(g)). A fixed property of the group, computed once.
	multiplierK = hashToInt(groupPrime.Bytes(), pad(groupGenerator))
}

// NewSalt returns a fresh random salt for verifier computation.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return salt, nil
}

// ComputeVerifier derives the password verifier v = g^x mod N stored
// server-side. The plaintext password is consumed here and nowhere
// else on the server.
func ComputeVerifier(identity, password string, salt []byte) []byte {
	x := derivePrivateKey(identity, password, salt)
	v := new(big.Int).Exp(groupGenerator, x, groupPrime)
	return v.Bytes()
}

// derivePrivateKey computes x = H(salt ‖ H(identity ":" password)).
func derivePrivateKey(identity, password string, salt []byte) *big.Int {
	inner := sha256.Sum256([]byte(identity + ":" + password))
	return hashToInt(salt, inner[:])
}

// deriveScrambler computes u = H(PAD(A) ‖ PAD(B)).
func deriveScrambler(clientPublic, serverPublic *big.Int) *big.Int {
	return hashToInt(pad(clientPublic), pad(serverPublic))
}

// deriveSessionKey hashes the shared secret with SHA-512 and truncates
// to SessionKeySize bytes.
func deriveSessionKey(sharedSecret *big.Int) []byte {
	digest := sha512.Sum512(pad(sharedSecret))
	return digest[:SessionKeySize]
}

// clientProof computes M1 = H((H(N) xor H(g)) ‖ H(identity) ‖ salt ‖
// PAD(A) ‖ PAD(B) ‖ K).
func clientProof(identity string, salt []byte, clientPublic, serverPublic *big.Int, sessionKey []byte) []byte {
	hashN := sha256.Sum256(groupPrime.Bytes())
	hashG := sha256.Sum256(groupGenerator.Bytes())
	var groupHash [sha256.Size]byte
	for i := range groupHash {
		groupHash[i] = hashN[i] ^ hashG[i]
	}
	identityHash := sha256.Sum256([]byte(identity))

	hasher := sha256.New()
	hasher.Write(groupHash[:])
	hasher.Write(identityHash[:])
	hasher.Write(salt)
	hasher.Write(pad(clientPublic))
	hasher.Write(pad(serverPublic))
	hasher.Write(sessionKey)
	return hasher.Sum(nil)
}

// serverProof computes M2 = H(PAD(A) ‖ M1 ‖ K), the server's
// confirmation that it too derived K.
func serverProof(clientPublic *big.Int, clientProofM1, sessionKey []byte) []byte {
	hasher := sha256.New()
	hasher.Write(pad(clientPublic))
	hasher.Write(clientProofM1)
	hasher.Write(sessionKey)
	return hasher.Sum(nil)
}

// randomEphemeralSecret draws a private ephemeral in [1, 2^256).
func randomEphemeralSecret() (*big.Int, error) {
	raw := make([]byte, ephemeralSecretSize)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generating ephemeral secret: %w", err)
	}
	secret := new(big.Int).SetBytes(raw)
	if secret.Sign() == 0 {
		secret.SetInt64(1)
	}
	return secret, nil
}

// pad left-pads the big-endian bytes of value to the group prime
// length, per RFC 5054's PAD().
func pad(value *big.Int) []byte {
	bytes := value.Bytes()
	width := len(groupPrime.Bytes())
	if len(bytes) >= width {
		return bytes
	}
	padded := make([]byte, width)
	copy(padded[width-len(bytes):], bytes)
	return padded
}

// hashToInt hashes the concatenation of the given byte slices with
// SHA-256 and interprets the digest as a big-endian integer.
func hashToInt(parts ...[]byte) *big.Int {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write(part)
	}
	return new(big.Int).SetBytes(hasher.Sum(nil))
}
