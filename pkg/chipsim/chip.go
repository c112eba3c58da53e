// Package chipsim is a software model of the TROPIC01 chip. A Chip
// implements transport.Adapter, so a tropic.Handle can talk to it in
// process, and Serve exposes it over the TCP model protocol.
//
// The model keeps the chip's observable behavior: busy polls, L2 framing
// with CRC, chunked L3 frames, the responder side of the handshake, and a
// small command set backed by pairing key slots, ECC key slots and
// monotonic counters. Faults can be injected to exercise host error paths.
package chipsim

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/tropicsquare/tropic-go/pkg/crypto"
	"github.com/tropicsquare/tropic-go/pkg/handshake"
	"github.com/tropicsquare/tropic-go/pkg/l2"
	"github.com/tropicsquare/tropic-go/pkg/transport"
)

// Chip resources.
const (
	PairingSlotCount = int(handshake.MaxSlot) + 1
	EccSlotCount     = 32
	MCounterCount    = 16
	ChipIDSize       = 128
)

// Config configures a Chip.
type Config struct {
	// Static is the chip static X25519 key pair. If nil, one is generated.
	Static *crypto.X25519KeyPair

	// PairingKeys are host pairing public keys written at manufacturing.
	PairingKeys map[handshake.Slot][32]byte

	// ChipID is the Get_Info chip identification. If nil, it is random.
	ChipID []byte

	// RiscvFWVersion and SpectFWVersion are reported by Get_Info.
	RiscvFWVersion [4]byte
	SpectFWVersion [4]byte

	// Rand is the chip entropy source. Default: crypto/rand.
	Rand io.Reader

	// Observer receives chip events. Optional.
	Observer Observer

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// DefaultRiscvFWVersion and DefaultSpectFWVersion are used when the config
// leaves the versions zero.
var (
	DefaultRiscvFWVersion = [4]byte{0x00, 0x00, 0x02, 0x00}
	DefaultSpectFWVersion = [4]byte{0x00, 0x00, 0x01, 0x00}
)

type pairingState uint8

const (
	pairingEmpty pairingState = iota
	pairingWritten
	pairingInvalid
)

type pairingSlot struct {
	state pairingState
	pub   [32]byte
}

type eccSlot struct {
	curve  uint8
	origin uint8
	p256   *crypto.P256KeyPair
	ed     ed25519.PrivateKey
}

type mcounter struct {
	set   bool
	value uint32
}

type session struct {
	slot                     handshake.Slot
	send, recv               *crypto.AESGCM
	sendCounter, recvCounter uint32
}

// Chip is the chip model. It is safe for concurrent use; bus operations
// are serialized.
type Chip struct {
	static    *crypto.X25519KeyPair
	responder *handshake.Responder
	cert      []byte
	chipID    []byte
	riscvFW   [4]byte
	spectFW   [4]byte
	rand      io.Reader
	observer  Observer
	log       logging.LeveledLogger

	mu       sync.Mutex
	selected bool
	mosi     []byte
	miso     []byte
	queue    [][]byte
	last     []byte
	inbound  []byte
	session  *session
	pairing  [PairingSlotCount]pairingSlot
	ecc      [EccSlotCount]eccSlot
	counters [MCounterCount]mcounter
	stats    Stats
	delayed  time.Duration

	// faults
	busy       int
	alarm      bool
	corrupt    bool
	replay     bool
	reject     bool
	lastResult []byte
}

// New creates a chip model.
func New(config Config) (*Chip, error) {
	r := config.Rand
	if r == nil {
		r = rand.Reader
	}

	static := config.Static
	if static == nil {
		kp, err := crypto.X25519GenerateKeyPairFrom(r)
		if err != nil {
			return nil, fmt.Errorf("chipsim: static key: %w", err)
		}
		static = kp
	}

	c := &Chip{
		static:    static,
		responder: handshake.NewResponder(*static, r),
		rand:      r,
		riscvFW:   config.RiscvFWVersion,
		spectFW:   config.SpectFWVersion,
		observer:  config.Observer,
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("chipsim")
	}
	if c.riscvFW == [4]byte{} {
		c.riscvFW = DefaultRiscvFWVersion
	}
	if c.spectFW == [4]byte{} {
		c.spectFW = DefaultSpectFWVersion
	}

	c.chipID = config.ChipID
	if c.chipID == nil {
		c.chipID = make([]byte, ChipIDSize)
		if _, err := io.ReadFull(r, c.chipID); err != nil {
			return nil, fmt.Errorf("chipsim: chip id: %w", err)
		}
	}

	for slot, pub := range config.PairingKeys {
		if !slot.Valid() {
			return nil, fmt.Errorf("%w: %d", ErrInvalidPairingKey, slot)
		}
		c.pairing[slot] = pairingSlot{state: pairingWritten, pub: pub}
	}

	cert, err := newCertificate(r, static.Public)
	if err != nil {
		return nil, err
	}
	c.cert = cert
	return c, nil
}

// StaticPublicKey returns STPUB.
func (c *Chip) StaticPublicKey() [32]byte {
	return c.static.Public
}

// Certificate returns the DER encoded chip certificate.
func (c *Chip) Certificate() []byte {
	return append([]byte(nil), c.cert...)
}

// ChipID returns the Get_Info chip identification.
func (c *Chip) ChipID() []byte {
	return append([]byte(nil), c.chipID...)
}

// FirmwareVersions returns the RISC-V and SPECT firmware versions.
func (c *Chip) FirmwareVersions() (riscv, spect [4]byte) {
	return c.riscvFW, c.spectFW
}

// PairedSlots lists the slots holding a valid pairing key.
func (c *Chip) PairedSlots() []handshake.Slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	var slots []handshake.Slot
	for i, p := range c.pairing {
		if p.state == pairingWritten {
			slots = append(slots, handshake.Slot(i))
		}
	}
	return slots
}

// SessionActive reports whether the chip holds a secure session.
func (c *Chip) SessionActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Stats returns a snapshot of the bus counters.
func (c *Chip) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Delayed returns the total time the host asked to wait.
func (c *Chip) Delayed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delayed
}

// BusyPolls makes the next n polls report the chip not ready.
func (c *Chip) BusyPolls(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = n
}

// SetAlarm puts the chip into or out of alarm mode.
func (c *Chip) SetAlarm(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alarm = on
}

// CorruptNextResponse flips one CRC bit of the next response frame.
func (c *Chip) CorruptNextResponse() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.corrupt = true
}

// ReplayLastResult makes the next command answer with the previous
// encrypted result instead of a fresh one.
func (c *Chip) ReplayLastResult() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replay = true
}

// RejectHandshake makes the next handshake fail with HandshakeError.
func (c *Chip) RejectHandshake() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reject = true
}

// AssertChipSelect implements transport.Adapter and opens a transfer
// window.
func (c *Chip) AssertChipSelect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected {
		return &transport.Error{Op: "assert-cs", Err: ErrAlreadySelected}
	}
	c.selected = true
	c.mosi = c.mosi[:0]
	c.miso = nil
	c.stats.Windows++
	return nil
}

// ReleaseChipSelect implements transport.Adapter. A window that carried a
// request frame is processed when it closes.
func (c *Chip) ReleaseChipSelect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.selected {
		return &transport.Error{Op: "release-cs", Err: ErrNotSelected}
	}
	c.selected = false
	c.miso = nil
	if len(c.mosi) > 0 {
		c.handleRequest(c.mosi)
		c.mosi = c.mosi[:0]
	}
	return nil
}

// Send implements transport.Adapter. A lone GetResponse byte at the start
// of a window is a poll; anything else is part of a request frame.
func (c *Chip) Send(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.selected {
		return &transport.Error{Op: "send", Err: ErrNotSelected}
	}
	c.stats.BytesIn += len(p)
	if len(c.mosi) == 0 && c.miso == nil && len(p) == 1 && p[0] == l2.GetResponse {
		c.poll()
		return nil
	}
	c.mosi = append(c.mosi, p...)
	return nil
}

// Receive implements transport.Adapter. Bytes beyond what the chip has to
// say read as 0xFF, as on an idle bus.
func (c *Chip) Receive(p []byte, _ time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.selected {
		return 0, &transport.Error{Op: "receive", Err: ErrNotSelected}
	}
	n := copy(p, c.miso)
	c.miso = c.miso[n:]
	for i := n; i < len(p); i++ {
		p[i] = 0xFF
	}
	c.stats.BytesOut += len(p)
	return len(p), nil
}

// Delay implements transport.Adapter. Model time does not pass, so the
// delay is only recorded.
func (c *Chip) Delay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delayed += d
}

// poll answers a GetResponse with CHIP_STATUS and the next queued
// response frame, if any.
func (c *Chip) poll() {
	c.stats.Polls++
	switch {
	case c.alarm:
		c.miso = []byte{l2.ChipStatusAlarm}
		return
	case c.busy > 0:
		c.busy--
		c.stats.Busy++
		c.miso = []byte{0x00}
		return
	case len(c.queue) == 0:
		c.miso = []byte{l2.ChipStatusReady, byte(l2.StatusNoResponse)}
		return
	}

	frame := c.queue[0]
	c.queue = c.queue[1:]
	c.last = frame
	if c.corrupt {
		c.corrupt = false
		frame = append([]byte(nil), frame...)
		frame[len(frame)-1] ^= 0x01
	}
	c.miso = append([]byte{l2.ChipStatusReady}, frame...)
}
