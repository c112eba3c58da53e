package handshake

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/tropicsquare/tropic-go/pkg/crypto"
)

// Responder computes the chip side of the handshake. It is used by the chip
// model; a real chip performs the same steps in firmware.
type Responder struct {
	static crypto.X25519KeyPair
	rand   io.Reader
}

// NewResponder creates a responder holding the chip static key pair.
// A nil r uses crypto/rand.
func NewResponder(static crypto.X25519KeyPair, r io.Reader) *Responder {
	if r == nil {
		r = rand.Reader
	}
	return &Responder{static: static, rand: r}
}

// StaticPublic returns STPUB.
func (r *Responder) StaticPublic() [crypto.X25519KeySize]byte {
	return r.static.Public
}

// ParseRequest splits a handshake request into EHPUB and the slot.
func ParseRequest(p []byte) (ehpub [crypto.X25519KeySize]byte, slot Slot, err error) {
	if len(p) != RequestSize {
		return ehpub, 0, fmt.Errorf("%w: %d bytes", ErrMalformedRequest, len(p))
	}
	copy(ehpub[:], p)
	slot = Slot(p[crypto.X25519KeySize])
	if !slot.Valid() {
		return ehpub, 0, fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	return ehpub, slot, nil
}

// Respond answers a request from the host ehpub on slot whose pairing
// public key is shipub. It returns ETPUB || TAUTH and the chip-side session
// keys.
func (r *Responder) Respond(ehpub [crypto.X25519KeySize]byte, slot Slot, shipub [crypto.X25519KeySize]byte) ([]byte, *Keys, error) {
	et, err := crypto.X25519GenerateKeyPairFrom(r.rand)
	if err != nil {
		return nil, nil, fmt.Errorf("handshake: ephemeral key: %w", err)
	}
	defer et.Zeroize()

	ee, err := crypto.X25519(et.Private[:], ehpub[:])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: host ephemeral key: %v", ErrAuthenticationFailed, err)
	}
	se, err := crypto.X25519(et.Private[:], shipub[:])
	if err != nil {
		crypto.Zeroize(ee[:])
		return nil, nil, fmt.Errorf("%w: host pairing key: %v", ErrAuthenticationFailed, err)
	}
	es, err := crypto.X25519(r.static.Private[:], ehpub[:])
	if err != nil {
		crypto.Zeroize(ee[:])
		crypto.Zeroize(se[:])
		return nil, nil, fmt.Errorf("%w: host ephemeral key: %v", ErrAuthenticationFailed, err)
	}

	secrets, err := deriveSecrets(&ee, &se, &es)
	if err != nil {
		return nil, nil, fmt.Errorf("handshake: key schedule: %w", err)
	}
	defer secrets.zeroize()

	h := transcript(shipub, r.static.Public, ehpub, slot, et.Public)
	tag, err := authTag(secrets.auth, h)
	if err != nil {
		return nil, nil, fmt.Errorf("handshake: auth tag: %w", err)
	}

	resp := make([]byte, 0, ResponseSize)
	resp = append(resp, et.Public[:]...)
	resp = append(resp, tag[:]...)
	return resp, &Keys{Send: secrets.res, Recv: secrets.cmd, Slot: slot}, nil
}
