package crypto

import "encoding/binary"

// BuildCounterNonce constructs the 12-byte AES-GCM nonce for a secure channel frame.
//
// Format: Counter (4 bytes LE) || 8 zero bytes
//
// The counter is the per-direction frame counter; it starts at zero after the
// handshake and never repeats under one key.
func BuildCounterNonce(counter uint32) [AESGCMNonceSize]byte {
	var nonce [AESGCMNonceSize]byte
	binary.LittleEndian.PutUint32(nonce[0:4], counter)
	return nonce
}
