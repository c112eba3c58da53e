package crypto

import (
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrInvalidOutputCount is returned by NoiseHKDF for an unsupported number of outputs.
var ErrInvalidOutputCount = errors.New("kdf: output count must be 1 or 2")

// HKDFSHA256 derives length bytes with HKDF-SHA256 (RFC 5869). salt and
// info may be empty.
func HKDFSHA256(inputKey, salt, info []byte, length int) ([]byte, error) {
	reader := hkdf.New(sha256.New, inputKey, salt, info)
	result := make([]byte, length)
	if _, err := io.ReadFull(reader, result); err != nil {
		return nil, err
	}
	return result, nil
}

// NoiseHKDF is the Noise protocol HKDF(chaining_key, input_key_material, n):
//
//	temp   = HMAC(ck, ikm)
//	out1   = HMAC(temp, 0x01)
//	out2   = HMAC(temp, out1 || 0x02)
//
// which is HKDF-SHA256 with salt = ck and empty info, read for n blocks.
// n must be 1 or 2. Each output is 32 bytes.
func NoiseHKDF(ck, ikm []byte, n int) ([][SHA256LenBytes]byte, error) {
	if n != 1 && n != 2 {
		return nil, ErrInvalidOutputCount
	}
	okm, err := HKDFSHA256(ikm, ck, nil, n*SHA256LenBytes)
	if err != nil {
		return nil, err
	}
	out := make([][SHA256LenBytes]byte, n)
	for i := range out {
		copy(out[i][:], okm[i*SHA256LenBytes:])
	}
	Zeroize(okm)
	return out, nil
}

// Zeroize overwrites b with zeros.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
