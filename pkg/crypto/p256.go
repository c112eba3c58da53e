package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
)

// P-256 sizes as the chip exchanges them.
const (
	// P256ScalarSize is the size of a private scalar and of one coordinate.
	P256ScalarSize = 32

	// P256PublicKeySize is the raw public key size, X || Y without the
	// 0x04 prefix.
	P256PublicKeySize = 64

	// P256SignatureSize is the signature size (r || s).
	P256SignatureSize = 64
)

// ErrInvalidP256Key is returned for public keys that are not on the curve.
var ErrInvalidP256Key = errors.New("p256: invalid public key")

// P256KeyPair represents a P-256 signing key.
type P256KeyPair struct {
	private *ecdsa.PrivateKey
}

// P256GenerateKeyPair generates a new key pair reading entropy from r.
// A nil r uses crypto/rand.
func P256GenerateKeyPair(r io.Reader) (*P256KeyPair, error) {
	if r == nil {
		r = rand.Reader
	}
	priv, err := ecdsa.GenerateKey(elliptic.P256(), r)
	if err != nil {
		return nil, fmt.Errorf("p256: failed to generate key: %w", err)
	}
	return &P256KeyPair{private: priv}, nil
}

// PublicKey returns X || Y, each coordinate zero-padded to 32 bytes.
func (kp *P256KeyPair) PublicKey() [P256PublicKeySize]byte {
	var out [P256PublicKeySize]byte
	kp.private.X.FillBytes(out[:P256ScalarSize])
	kp.private.Y.FillBytes(out[P256ScalarSize:])
	return out
}

// SignDigest signs a 32-byte digest and returns r || s.
func (kp *P256KeyPair) SignDigest(digest []byte) ([P256SignatureSize]byte, error) {
	var sig [P256SignatureSize]byte
	if len(digest) != SHA256LenBytes {
		return sig, fmt.Errorf("p256: digest must be %d bytes, got %d", SHA256LenBytes, len(digest))
	}
	r, s, err := ecdsa.Sign(rand.Reader, kp.private, digest)
	if err != nil {
		return sig, fmt.Errorf("p256: sign failed: %w", err)
	}
	r.FillBytes(sig[:P256ScalarSize])
	s.FillBytes(sig[P256ScalarSize:])
	return sig, nil
}

// P256VerifyDigest verifies r || s over digest with the raw public key
// X || Y.
func P256VerifyDigest(publicKey, digest, signature []byte) (bool, error) {
	pub, err := p256PublicKey(publicKey)
	if err != nil {
		return false, err
	}
	if len(signature) != P256SignatureSize {
		return false, fmt.Errorf("p256: signature must be %d bytes, got %d", P256SignatureSize, len(signature))
	}
	r := new(big.Int).SetBytes(signature[:P256ScalarSize])
	s := new(big.Int).SetBytes(signature[P256ScalarSize:])
	return ecdsa.Verify(pub, digest, r, s), nil
}

func p256PublicKey(raw []byte) (*ecdsa.PublicKey, error) {
	if len(raw) != P256PublicKeySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidP256Key, len(raw))
	}
	x := new(big.Int).SetBytes(raw[:P256ScalarSize])
	y := new(big.Int).SetBytes(raw[P256ScalarSize:])
	if !elliptic.P256().IsOnCurve(x, y) {
		return nil, fmt.Errorf("%w: point is not on the curve", ErrInvalidP256Key)
	}
	return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
}
