package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

// AES-GCM constants used by the secure channel.
const (
	// AESGCMKeySize is the AES-256 key size in bytes.
	AESGCMKeySize = 32

	// AESGCMTagSize is the authentication tag size in bytes.
	AESGCMTagSize = 16

	// AESGCMNonceSize is the nonce size in bytes.
	AESGCMNonceSize = 12
)

// Errors
var (
	ErrAESGCMInvalidKeySize   = errors.New("aesgcm: invalid key size, must be 32 bytes")
	ErrAESGCMInvalidNonceSize = errors.New("aesgcm: invalid nonce size, must be 12 bytes")
	ErrAESGCMAuthFailed       = errors.New("aesgcm: message authentication failed")
)

// AESGCM wraps an AES-256-GCM AEAD with a 16-byte tag.
type AESGCM struct {
	aead cipher.AEAD
}

// NewAESGCM creates an AES-256-GCM cipher. The key must be exactly 32 bytes.
func NewAESGCM(key []byte) (*AESGCM, error) {
	if len(key) != AESGCMKeySize {
		return nil, ErrAESGCMInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESGCM{aead: aead}, nil
}

// Seal encrypts and authenticates plaintext, appending the result to dst.
// To encrypt in place use plaintext[:0] as dst; the slice must have
// AESGCMTagSize bytes of spare capacity.
func (c *AESGCM) Seal(dst, nonce, plaintext, aad []byte) ([]byte, error) {
	if len(nonce) != AESGCMNonceSize {
		return nil, ErrAESGCMInvalidNonceSize
	}
	return c.aead.Seal(dst, nonce, plaintext, aad), nil
}

// Open authenticates and decrypts ciphertext||tag, appending the plaintext to dst.
// To decrypt in place use ciphertext[:0] as dst.
func (c *AESGCM) Open(dst, nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(nonce) != AESGCMNonceSize {
		return nil, ErrAESGCMInvalidNonceSize
	}
	out, err := c.aead.Open(dst, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrAESGCMAuthFailed
	}
	return out, nil
}

// AESGCMEncrypt is a convenience function for one-shot AES-256-GCM encryption.
// Returns ciphertext || tag.
func AESGCMEncrypt(key, nonce, plaintext, aad []byte) ([]byte, error) {
	c, err := NewAESGCM(key)
	if err != nil {
		return nil, err
	}
	return c.Seal(nil, nonce, plaintext, aad)
}

// AESGCMDecrypt is a convenience function for one-shot AES-256-GCM decryption.
func AESGCMDecrypt(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	c, err := NewAESGCM(key)
	if err != nil {
		return nil, err
	}
	return c.Open(nil, nonce, ciphertext, aad)
}
