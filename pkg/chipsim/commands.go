package chipsim

import (
	"crypto/ed25519"
	"encoding/binary"
	"io"

	"github.com/tropicsquare/tropic-go/pkg/crypto"
	"github.com/tropicsquare/tropic-go/pkg/handshake"
	"github.com/tropicsquare/tropic-go/pkg/l3"
)

// ECC curves and key origins as encoded in commands.
const (
	curveP256    = 0x01
	curveEd25519 = 0x02

	originGenerated = 0x01
)

// Command limits.
const (
	randomValueMax  = 255
	eddsaMessageMax = 4096
	signArgsSize    = 15
)

// configSlot is the only pairing slot allowed to change pairing keys.
const configSlot handshake.Slot = 0

// execute runs one decrypted command.
func (c *Chip) execute(code l3.CommandCode, data []byte) (l3.Status, []byte) {
	switch code {
	case l3.CmdPing:
		return l3.StatusOK, data
	case l3.CmdRandomValueGet:
		return c.randomValueGet(data)
	case l3.CmdPairingKeyWrite:
		return c.pairingKeyWrite(data)
	case l3.CmdPairingKeyRead:
		return c.pairingKeyRead(data)
	case l3.CmdPairingKeyInvalidate:
		return c.pairingKeyInvalidate(data)
	case l3.CmdEccKeyGenerate:
		return c.eccKeyGenerate(data)
	case l3.CmdEccKeyRead:
		return c.eccKeyRead(data)
	case l3.CmdEccKeyErase:
		return c.eccKeyErase(data)
	case l3.CmdEcdsaSign:
		return c.ecdsaSign(data)
	case l3.CmdEddsaSign:
		return c.eddsaSign(data)
	case l3.CmdMCounterInit:
		return c.mcounterInit(data)
	case l3.CmdMCounterUpdate:
		return c.mcounterUpdate(data)
	case l3.CmdMCounterGet:
		return c.mcounterGet(data)
	default:
		return l3.StatusInvalidCmd, nil
	}
}

// index reads the LE16 slot or counter index that starts most commands.
func index(data []byte, limit int) (int, bool) {
	if len(data) < 2 {
		return 0, false
	}
	i := int(binary.LittleEndian.Uint16(data))
	return i, i < limit
}

// padded prefixes result data with n zero bytes.
func padded(n int, data ...[]byte) []byte {
	out := make([]byte, n)
	for _, d := range data {
		out = append(out, d...)
	}
	return out
}

func (c *Chip) randomValueGet(data []byte) (l3.Status, []byte) {
	if len(data) != 1 {
		return l3.StatusFail, nil
	}
	out := make([]byte, int(data[0]))
	if _, err := io.ReadFull(c.rand, out); err != nil {
		return l3.StatusFail, nil
	}
	return l3.StatusOK, padded(3, out)
}

func (c *Chip) pairingKeyWrite(data []byte) (l3.Status, []byte) {
	if c.session.slot != configSlot {
		return l3.StatusUnauthorized, nil
	}
	slot, valid := index(data, PairingSlotCount)
	if !valid || len(data) != 3+32 {
		return l3.StatusFail, nil
	}
	if c.pairing[slot].state != pairingEmpty {
		return l3.StatusFail, nil
	}
	c.pairing[slot].state = pairingWritten
	copy(c.pairing[slot].pub[:], data[3:])
	return l3.StatusOK, nil
}

func (c *Chip) pairingKeyRead(data []byte) (l3.Status, []byte) {
	slot, valid := index(data, PairingSlotCount)
	if !valid || len(data) != 2 || c.pairing[slot].state != pairingWritten {
		return l3.StatusFail, nil
	}
	return l3.StatusOK, padded(3, c.pairing[slot].pub[:])
}

func (c *Chip) pairingKeyInvalidate(data []byte) (l3.Status, []byte) {
	if c.session.slot != configSlot {
		return l3.StatusUnauthorized, nil
	}
	slot, valid := index(data, PairingSlotCount)
	if !valid || len(data) != 2 {
		return l3.StatusFail, nil
	}
	c.pairing[slot] = pairingSlot{state: pairingInvalid}
	return l3.StatusOK, nil
}

func (c *Chip) eccKeyGenerate(data []byte) (l3.Status, []byte) {
	slot, valid := index(data, EccSlotCount)
	if !valid || len(data) != 3 || c.ecc[slot].curve != 0 {
		return l3.StatusFail, nil
	}
	key := eccSlot{curve: data[2], origin: originGenerated}
	switch key.curve {
	case curveP256:
		kp, err := crypto.P256GenerateKeyPair(c.rand)
		if err != nil {
			return l3.StatusFail, nil
		}
		key.p256 = kp
	case curveEd25519:
		_, priv, err := ed25519.GenerateKey(c.rand)
		if err != nil {
			return l3.StatusFail, nil
		}
		key.ed = priv
	default:
		return l3.StatusFail, nil
	}
	c.ecc[slot] = key
	return l3.StatusOK, nil
}

func (c *Chip) eccKeyRead(data []byte) (l3.Status, []byte) {
	slot, valid := index(data, EccSlotCount)
	if !valid || len(data) != 2 {
		return l3.StatusFail, nil
	}
	key := c.ecc[slot]
	var pub []byte
	switch key.curve {
	case curveP256:
		xy := key.p256.PublicKey()
		pub = xy[:]
	case curveEd25519:
		pub = key.ed.Public().(ed25519.PublicKey)
	default:
		return l3.StatusFail, nil
	}
	out := make([]byte, 2+13, 2+13+len(pub))
	out[0], out[1] = key.curve, key.origin
	return l3.StatusOK, append(out, pub...)
}

func (c *Chip) eccKeyErase(data []byte) (l3.Status, []byte) {
	slot, valid := index(data, EccSlotCount)
	if !valid || len(data) != 2 {
		return l3.StatusFail, nil
	}
	c.ecc[slot] = eccSlot{}
	return l3.StatusOK, nil
}

func (c *Chip) ecdsaSign(data []byte) (l3.Status, []byte) {
	slot, valid := index(data, EccSlotCount)
	if !valid || len(data) != signArgsSize+crypto.SHA256LenBytes || c.ecc[slot].curve != curveP256 {
		return l3.StatusFail, nil
	}
	sig, err := c.ecc[slot].p256.SignDigest(data[signArgsSize:])
	if err != nil {
		return l3.StatusFail, nil
	}
	return l3.StatusOK, padded(15, sig[:])
}

func (c *Chip) eddsaSign(data []byte) (l3.Status, []byte) {
	slot, valid := index(data, EccSlotCount)
	if !valid || len(data) < signArgsSize || len(data)-signArgsSize > eddsaMessageMax || c.ecc[slot].curve != curveEd25519 {
		return l3.StatusFail, nil
	}
	sig := ed25519.Sign(c.ecc[slot].ed, data[signArgsSize:])
	return l3.StatusOK, padded(15, sig)
}

func (c *Chip) mcounterInit(data []byte) (l3.Status, []byte) {
	i, valid := index(data, MCounterCount)
	if !valid || len(data) != 7 {
		return l3.StatusFail, nil
	}
	c.counters[i] = mcounter{set: true, value: binary.LittleEndian.Uint32(data[3:])}
	return l3.StatusOK, nil
}

func (c *Chip) mcounterUpdate(data []byte) (l3.Status, []byte) {
	i, valid := index(data, MCounterCount)
	if !valid || len(data) != 2 || !c.counters[i].set || c.counters[i].value == 0 {
		return l3.StatusFail, nil
	}
	c.counters[i].value--
	return l3.StatusOK, nil
}

func (c *Chip) mcounterGet(data []byte) (l3.Status, []byte) {
	i, valid := index(data, MCounterCount)
	if !valid || len(data) != 2 || !c.counters[i].set {
		return l3.StatusFail, nil
	}
	return l3.StatusOK, padded(3, binary.LittleEndian.AppendUint32(nil, c.counters[i].value))
}
