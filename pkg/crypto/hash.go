// Package crypto provides the cryptographic primitives used by the secure channel
// between the host and the secure element: X25519 key agreement, SHA-256 transcript
// hashing, HKDF key derivation, AES-256-GCM authenticated encryption, and the
// P-256 ECDSA used to check chip signatures.
package crypto

import "crypto/sha256"

// SHA256LenBytes is the SHA-256 output length in bytes.
const SHA256LenBytes = 32

// SHA256 hashes message.
func SHA256(message []byte) [SHA256LenBytes]byte {
	return sha256.Sum256(message)
}

// MixHash folds data into a running transcript hash: h = SHA256(h || data).
// The handshake transcript is built by repeated calls, one per public value.
func MixHash(h [SHA256LenBytes]byte, data []byte) [SHA256LenBytes]byte {
	d := sha256.New()
	d.Write(h[:])
	d.Write(data)
	var out [SHA256LenBytes]byte
	copy(out[:], d.Sum(nil))
	return out
}
