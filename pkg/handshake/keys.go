package handshake

import (
	"crypto/subtle"
	"fmt"

	"github.com/tropicsquare/tropic-go/pkg/crypto"
)

// Slot is a pairing key slot on the chip.
type Slot uint8

// MaxSlot is the highest pairing slot index.
const MaxSlot Slot = 3

// Valid reports whether s names an existing slot.
func (s Slot) Valid() bool { return s <= MaxSlot }

// HostKeys is the host X25519 pairing key pair for one slot.
type HostKeys struct {
	Private [crypto.X25519KeySize]byte
	Public  [crypto.X25519KeySize]byte
}

// Validate checks that Public is derived from Private.
func (k *HostKeys) Validate() error {
	pub, err := crypto.X25519PublicKey(k.Private[:])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidHostKeys, err)
	}
	if subtle.ConstantTimeCompare(pub[:], k.Public[:]) != 1 {
		return ErrInvalidHostKeys
	}
	return nil
}

// Zeroize wipes the private key.
func (k *HostKeys) Zeroize() {
	crypto.Zeroize(k.Private[:])
}

// Keys are the session keys produced by a handshake, seen from one side.
// The host sends with the command key and receives with the result key;
// the chip does the opposite.
type Keys struct {
	Send [crypto.AESGCMKeySize]byte
	Recv [crypto.AESGCMKeySize]byte
	Slot Slot
}

// Zeroize wipes both keys.
func (k *Keys) Zeroize() {
	crypto.Zeroize(k.Send[:])
	crypto.Zeroize(k.Recv[:])
}
