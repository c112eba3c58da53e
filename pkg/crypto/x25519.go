package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
)

// X25519 constants.
const (
	// X25519KeySize is the size of X25519 private and public keys.
	X25519KeySize = curve25519.ScalarSize

	// X25519SharedSize is the size of an X25519 shared secret.
	X25519SharedSize = curve25519.PointSize
)

// ErrInvalidX25519Key is returned for keys of the wrong length.
var ErrInvalidX25519Key = errors.New("x25519: invalid key size, must be 32 bytes")

// X25519KeyPair holds an X25519 private/public key pair.
type X25519KeyPair struct {
	Private [X25519KeySize]byte
	Public  [X25519KeySize]byte
}

// X25519GenerateKeyPair generates a fresh key pair using crypto/rand.
func X25519GenerateKeyPair() (*X25519KeyPair, error) {
	return X25519GenerateKeyPairFrom(rand.Reader)
}

// X25519GenerateKeyPairFrom generates a key pair reading entropy from r.
// Tests inject deterministic readers through this function.
func X25519GenerateKeyPairFrom(r io.Reader) (*X25519KeyPair, error) {
	kp := &X25519KeyPair{}
	if _, err := io.ReadFull(r, kp.Private[:]); err != nil {
		return nil, fmt.Errorf("x25519: failed to read random: %w", err)
	}
	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		kp.Zeroize()
		return nil, fmt.Errorf("x25519: %w", err)
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

// X25519PublicKey derives the public key for a private scalar.
func X25519PublicKey(private []byte) ([X25519KeySize]byte, error) {
	var pub [X25519KeySize]byte
	if len(private) != X25519KeySize {
		return pub, ErrInvalidX25519Key
	}
	p, err := curve25519.X25519(private, curve25519.Basepoint)
	if err != nil {
		return pub, fmt.Errorf("x25519: %w", err)
	}
	copy(pub[:], p)
	return pub, nil
}

// X25519 computes the shared secret between a private scalar and a peer public key.
// A low-order peer point (all-zero output) is rejected.
func X25519(private, peerPublic []byte) ([X25519SharedSize]byte, error) {
	var out [X25519SharedSize]byte
	if len(private) != X25519KeySize || len(peerPublic) != X25519KeySize {
		return out, ErrInvalidX25519Key
	}
	s, err := curve25519.X25519(private, peerPublic)
	if err != nil {
		return out, fmt.Errorf("x25519: %w", err)
	}
	copy(out[:], s)
	Zeroize(s)
	return out, nil
}

// Zeroize wipes the private key.
func (kp *X25519KeyPair) Zeroize() {
	Zeroize(kp.Private[:])
}
