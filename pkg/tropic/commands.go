package tropic

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/tropicsquare/tropic-go/pkg/l3"
)

// Command limits.
const (
	PingMaxSize        = 4096
	RandomValueMaxSize = 255
	EccSlotCount       = 32
	MCounterCount      = 16
	EddsaMessageMax    = 4096
)

// EccCurve selects the curve of an ECC key slot.
type EccCurve uint8

// Curves.
const (
	CurveP256    EccCurve = 0x01
	CurveEd25519 EccCurve = 0x02
)

func (c EccCurve) String() string {
	switch c {
	case CurveP256:
		return "P256"
	case CurveEd25519:
		return "Ed25519"
	default:
		return fmt.Sprintf("EccCurve(0x%02x)", uint8(c))
	}
}

// EccKeyOrigin tells whether a key was generated on the chip or stored.
type EccKeyOrigin uint8

// Key origins.
const (
	OriginGenerated EccKeyOrigin = 0x01
	OriginStored    EccKeyOrigin = 0x02
)

// EccKey is the public part of an ECC key slot.
type EccKey struct {
	Curve  EccCurve
	Origin EccKeyOrigin
	// Public is X||Y for P256 and the encoded point for Ed25519.
	Public []byte
}

// command sends code and expects an OK result of exactly want bytes after
// skip bytes of padding, or any length if want < 0.
func (h *Handle) command(ctx context.Context, code l3.CommandCode, payload []byte, skip, want int) ([]byte, error) {
	status, result, err := h.SendCommand(ctx, code, payload)
	if err != nil {
		return nil, err
	}
	if status != l3.StatusOK {
		return nil, &CommandError{Code: code, Status: status}
	}
	if len(result) < skip || (want >= 0 && len(result) != skip+want) {
		return nil, fmt.Errorf("%w: %s returned %d bytes", ErrUnexpectedResult, code, len(result))
	}
	return result[skip:], nil
}

func slotArg(slot uint16) []byte {
	return binary.LittleEndian.AppendUint16(nil, slot)
}

// Ping sends msg to the chip, which echoes it back.
func (h *Handle) Ping(ctx context.Context, msg []byte) ([]byte, error) {
	if len(msg) > PingMaxSize {
		return nil, fmt.Errorf("%w: ping of %d bytes", ErrPayloadTooLarge, len(msg))
	}
	return h.command(ctx, l3.CmdPing, msg, 0, len(msg))
}

// RandomValueGet returns n bytes from the chip's random generator.
func (h *Handle) RandomValueGet(ctx context.Context, n int) ([]byte, error) {
	if n < 0 || n > RandomValueMaxSize {
		return nil, fmt.Errorf("%w: %d random bytes", ErrInvalidArgument, n)
	}
	return h.command(ctx, l3.CmdRandomValueGet, []byte{byte(n)}, 3, n)
}

// PairingKeyWrite stores a host pairing public key in slot.
func (h *Handle) PairingKeyWrite(ctx context.Context, slot Slot, pub [32]byte) error {
	if !slot.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	payload := append(slotArg(uint16(slot)), 0)
	payload = append(payload, pub[:]...)
	_, err := h.command(ctx, l3.CmdPairingKeyWrite, payload, 0, -1)
	return err
}

// PairingKeyRead returns the host pairing public key stored in slot.
func (h *Handle) PairingKeyRead(ctx context.Context, slot Slot) ([32]byte, error) {
	var pub [32]byte
	if !slot.Valid() {
		return pub, fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	b, err := h.command(ctx, l3.CmdPairingKeyRead, slotArg(uint16(slot)), 3, 32)
	if err != nil {
		return pub, err
	}
	copy(pub[:], b)
	return pub, nil
}

// PairingKeyInvalidate permanently disables slot.
func (h *Handle) PairingKeyInvalidate(ctx context.Context, slot Slot) error {
	if !slot.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	_, err := h.command(ctx, l3.CmdPairingKeyInvalidate, slotArg(uint16(slot)), 0, -1)
	return err
}

func checkEccSlot(slot uint16) error {
	if slot >= EccSlotCount {
		return fmt.Errorf("%w: ECC slot %d", ErrInvalidArgument, slot)
	}
	return nil
}

// EccKeyGenerate creates a key on curve in slot.
func (h *Handle) EccKeyGenerate(ctx context.Context, slot uint16, curve EccCurve) error {
	if err := checkEccSlot(slot); err != nil {
		return err
	}
	if curve != CurveP256 && curve != CurveEd25519 {
		return fmt.Errorf("%w: curve %s", ErrInvalidArgument, curve)
	}
	_, err := h.command(ctx, l3.CmdEccKeyGenerate, append(slotArg(slot), byte(curve)), 0, -1)
	return err
}

// EccKeyRead returns the public key in slot.
func (h *Handle) EccKeyRead(ctx context.Context, slot uint16) (*EccKey, error) {
	if err := checkEccSlot(slot); err != nil {
		return nil, err
	}
	b, err := h.command(ctx, l3.CmdEccKeyRead, slotArg(slot), 0, -1)
	if err != nil {
		return nil, err
	}
	// curve(1) origin(1) padding(13) key
	if len(b) < 15 {
		return nil, fmt.Errorf("%w: key read of %d bytes", ErrUnexpectedResult, len(b))
	}
	key := &EccKey{Curve: EccCurve(b[0]), Origin: EccKeyOrigin(b[1]), Public: b[15:]}
	wantLen := map[EccCurve]int{CurveP256: 64, CurveEd25519: 32}[key.Curve]
	if len(key.Public) != wantLen {
		return nil, fmt.Errorf("%w: %s key of %d bytes", ErrUnexpectedResult, key.Curve, len(key.Public))
	}
	return key, nil
}

// EccKeyErase clears slot.
func (h *Handle) EccKeyErase(ctx context.Context, slot uint16) error {
	if err := checkEccSlot(slot); err != nil {
		return err
	}
	_, err := h.command(ctx, l3.CmdEccKeyErase, slotArg(slot), 0, -1)
	return err
}

// signArgs is slot(2) padding(13) data.
func signArgs(slot uint16, data []byte) []byte {
	b := make([]byte, 15, 15+len(data))
	binary.LittleEndian.PutUint16(b, slot)
	return append(b, data...)
}

// EcdsaSign signs a 32-byte message hash with the P256 key in slot and
// returns R||S.
func (h *Handle) EcdsaSign(ctx context.Context, slot uint16, hash [32]byte) ([64]byte, error) {
	var sig [64]byte
	if err := checkEccSlot(slot); err != nil {
		return sig, err
	}
	b, err := h.command(ctx, l3.CmdEcdsaSign, signArgs(slot, hash[:]), 15, 64)
	if err != nil {
		return sig, err
	}
	copy(sig[:], b)
	return sig, nil
}

// EddsaSign signs msg with the Ed25519 key in slot and returns R||S.
func (h *Handle) EddsaSign(ctx context.Context, slot uint16, msg []byte) ([64]byte, error) {
	var sig [64]byte
	if err := checkEccSlot(slot); err != nil {
		return sig, err
	}
	if len(msg) > EddsaMessageMax {
		return sig, fmt.Errorf("%w: message of %d bytes", ErrPayloadTooLarge, len(msg))
	}
	b, err := h.command(ctx, l3.CmdEddsaSign, signArgs(slot, msg), 15, 64)
	if err != nil {
		return sig, err
	}
	copy(sig[:], b)
	return sig, nil
}

func checkMCounter(index uint16) error {
	if index >= MCounterCount {
		return fmt.Errorf("%w: monotonic counter %d", ErrInvalidArgument, index)
	}
	return nil
}

// MCounterInit sets monotonic counter index to value.
func (h *Handle) MCounterInit(ctx context.Context, index uint16, value uint32) error {
	if err := checkMCounter(index); err != nil {
		return err
	}
	payload := append(slotArg(index), 0)
	payload = binary.LittleEndian.AppendUint32(payload, value)
	_, err := h.command(ctx, l3.CmdMCounterInit, payload, 0, -1)
	return err
}

// MCounterUpdate decrements monotonic counter index by one. The chip
// refuses once the counter reached zero.
func (h *Handle) MCounterUpdate(ctx context.Context, index uint16) error {
	if err := checkMCounter(index); err != nil {
		return err
	}
	_, err := h.command(ctx, l3.CmdMCounterUpdate, slotArg(index), 0, -1)
	return err
}

// MCounterGet returns the value of monotonic counter index.
func (h *Handle) MCounterGet(ctx context.Context, index uint16) (uint32, error) {
	if err := checkMCounter(index); err != nil {
		return 0, err
	}
	b, err := h.command(ctx, l3.CmdMCounterGet, slotArg(index), 3, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}
