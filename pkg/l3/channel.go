// Package l3 implements the secure command layer: commands and results are
// sealed with AES-256-GCM under per-direction session keys, using a
// per-direction message counter as the nonce, and carried in one or more L2
// frames.
package l3

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/pion/logging"

	"github.com/tropicsquare/tropic-go/pkg/crypto"
	"github.com/tropicsquare/tropic-go/pkg/handshake"
	"github.com/tropicsquare/tropic-go/pkg/l2"
)

// Transceiver moves L2 frames. *l2.Codec implements it.
type Transceiver interface {
	Send(ctx context.Context, id l2.RequestID, payload []byte) error
	Receive() (l2.Frame, error)
}

// ChannelConfig configures a Channel.
type ChannelConfig struct {
	// Buffer holds the encrypted frame in both directions. It must be at
	// least FrameMaxSize bytes. If nil, one is allocated.
	Buffer []byte

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Channel is an established secure channel. It is not safe for concurrent
// use.
type Channel struct {
	tr  Transceiver
	buf []byte
	log logging.LeveledLogger

	keys        handshake.Keys
	sendAEAD    *crypto.AESGCM
	recvAEAD    *crypto.AESGCM
	sendCounter uint32
	recvCounter uint32
	active      bool
}

// NewChannel loads session keys produced by a handshake. Both counters start
// at zero. The caller keeps ownership of keys and should wipe them.
func NewChannel(tr Transceiver, keys *handshake.Keys, config ChannelConfig) (*Channel, error) {
	if tr == nil {
		return nil, ErrNoTransceiver
	}
	buf := config.Buffer
	if buf == nil {
		buf = make([]byte, FrameMaxSize)
	}
	if len(buf) < FrameMaxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBufferTooSmall, len(buf))
	}

	c := &Channel{tr: tr, buf: buf, keys: *keys}
	var err error
	if c.sendAEAD, err = crypto.NewAESGCM(c.keys.Send[:]); err != nil {
		c.Zeroize()
		return nil, err
	}
	if c.recvAEAD, err = crypto.NewAESGCM(c.keys.Recv[:]); err != nil {
		c.Zeroize()
		return nil, err
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("l3")
	}
	c.active = true
	return c, nil
}

// Active reports whether the channel still holds keys.
func (c *Channel) Active() bool {
	return c != nil && c.active
}

// Slot returns the pairing slot the channel was established with.
func (c *Channel) Slot() handshake.Slot {
	return c.keys.Slot
}

// Counters returns the next send and receive nonce counters.
func (c *Channel) Counters() (send, recv uint32) {
	if c == nil {
		return 0, 0
	}
	return c.sendCounter, c.recvCounter
}

// Execute sends one command and returns the chip's result status and data.
//
// Validation failures return before any I/O and leave the channel usable.
// I/O failures are reported as *ExecuteError; if any chunk of the command
// frame had been sent, or the failure is a secure channel violation, the
// channel is wiped before returning.
func (c *Channel) Execute(ctx context.Context, code CommandCode, payload []byte) (Status, []byte, error) {
	if !c.Active() {
		return 0, nil, ErrNoActiveSession
	}
	if len(payload) > CommandDataMax {
		return 0, nil, fmt.Errorf("%w: %d byte command data", ErrPayloadTooLarge, len(payload))
	}
	if c.sendCounter == math.MaxUint32 {
		c.Zeroize()
		return 0, nil, ErrCounterExhausted
	}
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	n := 1 + len(payload)
	c.buf[SizeFieldSize] = byte(code)
	copy(c.buf[SizeFieldSize+1:], payload)
	frame, err := SealPacket(c.sendAEAD, c.sendCounter, c.buf, n)
	if err != nil {
		crypto.Zeroize(c.buf[:SizeFieldSize+n])
		return 0, nil, err
	}

	status, result, sent, err := c.roundTrip(ctx, frame)
	if err != nil {
		if sent || isViolation(err) {
			c.Zeroize()
		}
		if c.log != nil {
			c.log.Debugf("%s failed (sent=%t): %v", code, sent, err)
		}
		return 0, nil, &ExecuteError{Code: code, Err: err, sent: sent}
	}
	if c.log != nil {
		c.log.Tracef("%s -> %s, %d bytes", code, status, len(result))
	}
	return status, result, nil
}

func (c *Channel) roundTrip(ctx context.Context, frame []byte) (status Status, result []byte, sent bool, err error) {
	// Cancellation is honored only before the first chunk.
	ctx = context.WithoutCancel(ctx)

	chunks := Chunks(frame)
	for i, chunk := range chunks {
		last := i == len(chunks)-1
		if err := c.tr.Send(ctx, l2.RequestEncryptedCmd, chunk); err != nil {
			return 0, nil, sent, err
		}
		// Once a chunk is accepted the chip holds a partial frame, so
		// the channel cannot be resumed.
		sent = true

		f, err := c.tr.Receive()
		if err != nil {
			return 0, nil, sent, err
		}
		want := l2.StatusRequestContinue
		if last {
			want = l2.StatusRequestOK
		}
		if err := checkStatus(f, want); err != nil {
			return 0, nil, sent, err
		}
	}
	crypto.Zeroize(frame)
	c.sendCounter++

	total := 0
	for {
		f, err := c.tr.Receive()
		if err != nil {
			return 0, nil, true, err
		}
		if f.Status() != l2.StatusResultContinue && f.Status() != l2.StatusResultOK {
			return 0, nil, true, checkStatus(f, l2.StatusResultOK)
		}
		if total+len(f.Payload) > len(c.buf) {
			return 0, nil, true, fmt.Errorf("%w: result exceeds %d bytes", ErrSecureChannelViolation, len(c.buf))
		}
		total += copy(c.buf[total:], f.Payload)
		if f.Status() == l2.StatusResultOK {
			break
		}
	}

	plaintext, err := OpenPacket(c.recvAEAD, c.recvCounter, c.buf[:total])
	if err != nil {
		crypto.Zeroize(c.buf[:total])
		return 0, nil, true, err
	}
	c.recvCounter++

	status = Status(plaintext[0])
	result = append([]byte{}, plaintext[1:]...)
	crypto.Zeroize(c.buf[:total])
	return status, result, true, nil
}

// checkStatus maps an unexpected L2 status to an error. Statuses that mean
// the chip could not authenticate the command are violations.
func checkStatus(f l2.Frame, want l2.Status) error {
	switch s := f.Status(); {
	case s == want:
		return nil
	case s == l2.StatusTagError || s == l2.StatusNoSession:
		return fmt.Errorf("%w: %w", ErrSecureChannelViolation, f.Err())
	case !s.IsOK():
		return f.Err()
	default:
		return fmt.Errorf("%w: got %s, want %s", ErrSecureChannelViolation, s, want)
	}
}

func isViolation(err error) bool {
	return errors.Is(err, ErrSecureChannelViolation)
}

// Zeroize wipes keys, counters and the frame buffer. It is idempotent.
func (c *Channel) Zeroize() {
	if c == nil {
		return
	}
	c.keys.Zeroize()
	c.sendAEAD = nil
	c.recvAEAD = nil
	c.sendCounter = 0
	c.recvCounter = 0
	c.active = false
	crypto.Zeroize(c.buf)
}
