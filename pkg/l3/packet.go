package l3

import (
	"encoding/binary"
	"fmt"

	"github.com/tropicsquare/tropic-go/pkg/crypto"
	"github.com/tropicsquare/tropic-go/pkg/l2"
)

// Frame layout: [size:2 LE][ciphertext:size][tag:16]. The plaintext is
// code || data for commands and status || data for results.
const (
	SizeFieldSize  = 2
	TagSize        = crypto.AESGCMTagSize
	CommandDataMax = 4111
	PacketMaxSize  = 1 + CommandDataMax
	FrameMaxSize   = SizeFieldSize + PacketMaxSize + TagSize
)

// SealPacket encrypts the n plaintext bytes stored at
// buf[SizeFieldSize:SizeFieldSize+n] in place, prefixes the size and
// appends the tag. It returns the frame, which aliases buf.
func SealPacket(aead *crypto.AESGCM, counter uint32, buf []byte, n int) ([]byte, error) {
	if n < 1 || n > PacketMaxSize {
		return nil, fmt.Errorf("%w: %d byte packet", ErrPayloadTooLarge, n)
	}
	end := SizeFieldSize + n + TagSize
	if len(buf) < end {
		return nil, ErrBufferTooSmall
	}
	binary.LittleEndian.PutUint16(buf, uint16(n))
	nonce := crypto.BuildCounterNonce(counter)
	plaintext := buf[SizeFieldSize : SizeFieldSize+n]
	if _, err := aead.Seal(plaintext[:0], nonce[:], plaintext, nil); err != nil {
		return nil, err
	}
	return buf[:end], nil
}

// OpenPacket authenticates and decrypts frame in place. The returned
// plaintext aliases frame. Any mismatch is a secure channel violation.
func OpenPacket(aead *crypto.AESGCM, counter uint32, frame []byte) ([]byte, error) {
	if len(frame) < SizeFieldSize+1+TagSize {
		return nil, fmt.Errorf("%w: %d byte frame", ErrSecureChannelViolation, len(frame))
	}
	n := int(binary.LittleEndian.Uint16(frame))
	if n == 0 || n > PacketMaxSize || SizeFieldSize+n+TagSize != len(frame) {
		return nil, fmt.Errorf("%w: size field %d, frame of %d bytes", ErrSecureChannelViolation, n, len(frame))
	}
	nonce := crypto.BuildCounterNonce(counter)
	sealed := frame[SizeFieldSize:]
	plaintext, err := aead.Open(sealed[:0], nonce[:], sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSecureChannelViolation, err)
	}
	return plaintext, nil
}

// Chunks splits a frame into pieces that fit one L2 payload.
func Chunks(frame []byte) [][]byte {
	var out [][]byte
	for len(frame) > l2.MaxPayloadSize {
		out = append(out, frame[:l2.MaxPayloadSize])
		frame = frame[l2.MaxPayloadSize:]
	}
	return append(out, frame)
}
