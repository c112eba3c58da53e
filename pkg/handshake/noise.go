package handshake

import (
	"crypto/subtle"

	"github.com/tropicsquare/tropic-go/pkg/crypto"
)

// ProtocolName identifies the Noise pattern and primitives.
const ProtocolName = "Noise_KK1_25519_AESGCM_SHA256"

// Message sizes.
const (
	// RequestSize is EHPUB || slot.
	RequestSize = crypto.X25519KeySize + 1

	// TagSize is the size of the chip authentication tag.
	TagSize = crypto.AESGCMTagSize

	// ResponseSize is ETPUB || TAUTH.
	ResponseSize = crypto.X25519KeySize + TagSize
)

// protocolNameBlock is ProtocolName zero-padded to the hash length. It seeds
// both the transcript hash and the chaining key.
var protocolNameBlock = func() (b [crypto.SHA256LenBytes]byte) {
	copy(b[:], ProtocolName)
	return b
}()

type key = [crypto.X25519KeySize]byte

// transcript hashes the public handshake values in protocol order.
func transcript(shipub, stpub, ehpub key, slot Slot, etpub key) [crypto.SHA256LenBytes]byte {
	h := crypto.SHA256(protocolNameBlock[:])
	h = crypto.MixHash(h, shipub[:])
	h = crypto.MixHash(h, stpub[:])
	h = crypto.MixHash(h, ehpub[:])
	h = crypto.MixHash(h, []byte{byte(slot)})
	h = crypto.MixHash(h, etpub[:])
	return h
}

// sessionSecrets are the outputs of the key schedule.
type sessionSecrets struct {
	auth [crypto.AESGCMKeySize]byte
	cmd  [crypto.AESGCMKeySize]byte
	res  [crypto.AESGCMKeySize]byte
}

func (s *sessionSecrets) zeroize() {
	crypto.Zeroize(s.auth[:])
	crypto.Zeroize(s.cmd[:])
	crypto.Zeroize(s.res[:])
}

// deriveSecrets runs the chaining-key schedule over the three shared
// secrets: ephemeral-ephemeral, host static-chip ephemeral and host
// ephemeral-chip static. The inputs are wiped.
func deriveSecrets(ee, se, es *key) (*sessionSecrets, error) {
	defer crypto.Zeroize(ee[:])
	defer crypto.Zeroize(se[:])
	defer crypto.Zeroize(es[:])

	out, err := crypto.NoiseHKDF(protocolNameBlock[:], ee[:], 1)
	if err != nil {
		return nil, err
	}
	ck := out[0]
	crypto.Zeroize(out[0][:])
	defer crypto.Zeroize(ck[:])

	if out, err = crypto.NoiseHKDF(ck[:], se[:], 1); err != nil {
		return nil, err
	}
	ck = out[0]
	crypto.Zeroize(out[0][:])

	if out, err = crypto.NoiseHKDF(ck[:], es[:], 2); err != nil {
		return nil, err
	}
	ck = out[0]
	s := &sessionSecrets{auth: out[1]}
	crypto.Zeroize(out[0][:])
	crypto.Zeroize(out[1][:])

	if out, err = crypto.NoiseHKDF(ck[:], nil, 2); err != nil {
		return nil, err
	}
	s.cmd, s.res = out[0], out[1]
	crypto.Zeroize(out[0][:])
	crypto.Zeroize(out[1][:])
	return s, nil
}

// authTag is the AES-GCM tag over an empty plaintext with the transcript as
// associated data.
func authTag(kAuth [crypto.AESGCMKeySize]byte, h [crypto.SHA256LenBytes]byte) ([TagSize]byte, error) {
	var tag [TagSize]byte
	var nonce [crypto.AESGCMNonceSize]byte
	sealed, err := crypto.AESGCMEncrypt(kAuth[:], nonce[:], nil, h[:])
	if err != nil {
		return tag, err
	}
	copy(tag[:], sealed)
	return tag, nil
}

func tagsEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
