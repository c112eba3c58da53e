// Package tropic is the application-facing driver for the TROPIC01 secure
// element. A Handle owns one chip connection: it runs the secure session
// handshake, sends encrypted commands and tracks the session lifecycle.
//
//	h, err := tropic.Open(tropic.Config{Adapter: adapter})
//	if err != nil { ... }
//	defer h.Close()
//
//	if err := h.VerifyChipAndStartSecureSession(ctx, keys, 0); err != nil { ... }
//	echo, err := h.Ping(ctx, []byte("hello"))
//
// Any failure that may have desynchronized the message counters wipes the
// session keys and leaves the handle Aborted; a new handshake recovers it.
package tropic

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/pion/logging"

	"github.com/tropicsquare/tropic-go/pkg/crypto"
	"github.com/tropicsquare/tropic-go/pkg/handshake"
	"github.com/tropicsquare/tropic-go/pkg/l2"
	"github.com/tropicsquare/tropic-go/pkg/l3"
	"github.com/tropicsquare/tropic-go/pkg/transport"
)

// HostKeys is the host pairing key pair for one slot.
type HostKeys = handshake.HostKeys

// Slot is a pairing key slot.
type Slot = handshake.Slot

// Config configures a Handle.
type Config struct {
	// Adapter is the transport to the chip. Required. If it implements
	// io.Closer it is closed by Handle.Close.
	Adapter transport.Adapter

	// Poll controls the busy-wait after every request.
	Poll l2.PollConfig

	// L3Buffer is the buffer for encrypted frames. It must hold at least
	// l3.FrameMaxSize bytes. If nil, one is allocated.
	L3Buffer []byte

	// Observer receives frame events, e.g. a metrics collector. Optional.
	Observer l2.Observer

	// Rand is the source of ephemeral handshake keys. Default: crypto/rand.
	Rand io.Reader

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Handle is a connection to one chip. Its methods serialize on an internal
// lock, so at most one exchange is in flight.
type Handle struct {
	adapter       transport.Adapter
	codec         *l2.Codec
	initiator     *handshake.Initiator
	buf           []byte
	loggerFactory logging.LoggerFactory
	log           logging.LeveledLogger

	mu      sync.Mutex
	state   State
	channel *l3.Channel
	slot    Slot
}

// Open attaches the adapter and returns a handle in StateChannelReady.
func Open(config Config) (*Handle, error) {
	if config.Adapter == nil {
		return nil, ErrNoTransport
	}
	buf := config.L3Buffer
	if buf == nil {
		buf = make([]byte, l3.FrameMaxSize)
	}
	if len(buf) < l3.FrameMaxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBufferTooSmall, len(buf))
	}

	codec, err := l2.New(l2.Config{
		Adapter:       config.Adapter,
		Poll:          config.Poll,
		Observer:      config.Observer,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}
	initiator, err := handshake.NewInitiator(handshake.Config{
		Exchanger:     codec,
		Rand:          config.Rand,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}

	h := &Handle{
		adapter:       config.Adapter,
		codec:         codec,
		initiator:     initiator,
		buf:           buf,
		loggerFactory: config.LoggerFactory,
		state:         StateChannelReady,
	}
	if config.LoggerFactory != nil {
		h.log = config.LoggerFactory.NewLogger("tropic")
	}
	return h, nil
}

// State returns the lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Slot returns the pairing slot of the current or last session.
func (h *Handle) Slot() Slot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.slot
}

// Counters returns the next send and receive message counters of the
// active session, or zeros without one.
func (h *Handle) Counters() (send, recv uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.channel.Counters()
}

// StartSecureSession runs the handshake on slot with the host pairing keys
// and the chip static public key stpub. It is allowed in StateChannelReady
// and StateAborted. On failure the handle is left in StateChannelReady.
func (h *Handle) StartSecureSession(ctx context.Context, keys HostKeys, slot Slot, stpub [32]byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateChannelReady && h.state != StateAborted {
		return fmt.Errorf("%w: handshake in %s", ErrInvalidState, h.state)
	}
	h.state = StateHandshakeInProgress

	sessionKeys, err := h.initiator.Run(ctx, keys, slot, stpub)
	if err != nil {
		h.state = StateChannelReady
		if h.log != nil {
			h.log.Warnf("handshake on slot %d failed: %v", slot, err)
		}
		return err
	}
	defer sessionKeys.Zeroize()

	channel, err := l3.NewChannel(h.codec, sessionKeys, l3.ChannelConfig{
		Buffer:        h.buf,
		LoggerFactory: h.loggerFactory,
	})
	if err != nil {
		h.state = StateChannelReady
		return err
	}

	h.channel = channel
	h.slot = slot
	h.state = StateSecureActive
	if h.log != nil {
		h.log.Infof("secure session established on slot %d", slot)
	}
	return nil
}

// VerifyChipAndStartSecureSession reads the chip certificate, takes the
// chip static key from it and starts a session on slot.
func (h *Handle) VerifyChipAndStartSecureSession(ctx context.Context, keys HostKeys, slot Slot) error {
	stpub, err := h.ChipStaticPublicKey(ctx)
	if err != nil {
		return err
	}
	return h.StartSecureSession(ctx, keys, slot, stpub)
}

// SendCommand sends one encrypted command and returns the result status and
// data. Without an active session it fails with ErrNoActiveSession and
// nothing is sent.
//
// Failures before the first chunk of the command was sent keep the session.
// Failures after that, and every authentication failure, wipe the session
// and leave the handle in StateAborted.
func (h *Handle) SendCommand(ctx context.Context, code l3.CommandCode, payload []byte) (l3.Status, []byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != StateSecureActive {
		return 0, nil, ErrNoActiveSession
	}

	status, result, err := h.channel.Execute(ctx, code, payload)
	if err != nil {
		if !h.channel.Active() {
			h.channel = nil
			h.state = StateAborted
			if h.log != nil {
				h.log.Warnf("session aborted: %v", err)
			}
		}
		return 0, nil, err
	}
	return status, result, nil
}

// AbortSession ends the session. If one was active the chip is told to
// drop it; that notification is best effort. Keys are wiped and the handle
// returns to StateChannelReady. AbortSession is idempotent.
func (h *Handle) AbortSession() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.abortLocked(true)
}

func (h *Handle) abortLocked(notify bool) {
	switch h.state {
	case StateSecureActive, StateHandshakeInProgress, StateAborted:
	default:
		return
	}
	if notify && h.state == StateSecureActive {
		if _, err := h.codec.Exchange(context.Background(), l2.RequestEncryptedSessionAbort, nil); err != nil && h.log != nil {
			h.log.Debugf("session abort notification failed: %v", err)
		}
	}
	h.channel.Zeroize()
	h.channel = nil
	h.state = StateChannelReady
}

// Close wipes all key material and releases the adapter. The handle cannot
// be used afterwards. Close is idempotent.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == StateUninitialized {
		return nil
	}
	h.channel.Zeroize()
	h.channel = nil
	crypto.Zeroize(h.buf)
	h.state = StateUninitialized

	if c, ok := h.adapter.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("tropic: closing adapter: %w", err)
		}
	}
	return nil
}

// requireOpen reports ErrInvalidState after Close.
func (h *Handle) requireOpen() error {
	if h.state == StateUninitialized {
		return fmt.Errorf("%w: handle closed", ErrInvalidState)
	}
	return nil
}

// exchange runs a plain L2 request that needs no session.
func (h *Handle) exchange(ctx context.Context, id l2.RequestID, payload []byte) ([]byte, error) {
	if err := h.requireOpen(); err != nil {
		return nil, err
	}
	f, err := h.codec.Exchange(ctx, id, payload)
	if err != nil {
		return nil, err
	}
	if err := f.Err(); err != nil {
		return nil, err
	}
	return f.Payload, nil
}
