// Package handshake establishes a secure session with the chip.
//
// The exchange is a one-round-trip Noise KK1 pattern over X25519, AES-GCM
// and SHA-256. Both sides know each other's static keys beforehand: the host
// holds a pairing key pair for one of the chip's slots and the chip's static
// public key, typically taken from its certificate. The chip answers with
// its ephemeral key and an authentication tag over the transcript. The tag
// key mixes in both static keys, so it only verifies if the chip holds the
// static private key and knows the host pairing key of the requested slot.
package handshake

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/pion/logging"

	"github.com/tropicsquare/tropic-go/pkg/crypto"
	"github.com/tropicsquare/tropic-go/pkg/l2"
)

// Exchanger sends one L2 request and returns its response frame.
// *l2.Codec implements it.
type Exchanger interface {
	Exchange(ctx context.Context, id l2.RequestID, payload []byte) (l2.Frame, error)
}

// Config configures an Initiator.
type Config struct {
	// Exchanger carries the handshake frames. Required.
	Exchanger Exchanger

	// Rand is the source of ephemeral keys. Default: crypto/rand.
	Rand io.Reader

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Initiator runs the host side of the handshake.
type Initiator struct {
	exchanger Exchanger
	rand      io.Reader
	log       logging.LeveledLogger
}

// NewInitiator creates an initiator.
func NewInitiator(config Config) (*Initiator, error) {
	if config.Exchanger == nil {
		return nil, ErrNoExchanger
	}
	i := &Initiator{
		exchanger: config.Exchanger,
		rand:      config.Rand,
	}
	if i.rand == nil {
		i.rand = rand.Reader
	}
	if config.LoggerFactory != nil {
		i.log = config.LoggerFactory.NewLogger("handshake")
	}
	return i, nil
}

// Run performs the handshake for slot using the host pairing keys and the
// chip static public key stpub. Every call uses a fresh ephemeral key pair.
//
// On success the returned keys are bound to slot and both message counters
// start at zero. On failure nothing is retained.
func (i *Initiator) Run(ctx context.Context, keys HostKeys, slot Slot, stpub [crypto.X25519KeySize]byte) (*Keys, error) {
	if !slot.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	if err := keys.Validate(); err != nil {
		return nil, err
	}
	defer keys.Zeroize()

	eh, err := crypto.X25519GenerateKeyPairFrom(i.rand)
	if err != nil {
		return nil, fmt.Errorf("handshake: ephemeral key: %w", err)
	}
	defer eh.Zeroize()

	var req [RequestSize]byte
	copy(req[:], eh.Public[:])
	req[crypto.X25519KeySize] = byte(slot)

	if i.log != nil {
		i.log.Debugf("starting handshake with slot %d", slot)
	}
	f, err := i.exchanger.Exchange(ctx, l2.RequestHandshake, req[:])
	if err != nil {
		return nil, err
	}
	switch f.Status() {
	case l2.StatusRequestOK, l2.StatusResultOK:
	case l2.StatusHandshakeError:
		return nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, f.Err())
	default:
		if err := f.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: unexpected status %s", ErrMalformedResponse, f.Status())
	}
	if len(f.Payload) != ResponseSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedResponse, len(f.Payload))
	}

	var etpub key
	copy(etpub[:], f.Payload[:crypto.X25519KeySize])
	tauth := f.Payload[crypto.X25519KeySize:]

	ee, err := crypto.X25519(eh.Private[:], etpub[:])
	if err != nil {
		return nil, fmt.Errorf("%w: chip ephemeral key: %v", ErrAuthenticationFailed, err)
	}
	se, err := crypto.X25519(keys.Private[:], etpub[:])
	if err != nil {
		crypto.Zeroize(ee[:])
		return nil, fmt.Errorf("%w: chip ephemeral key: %v", ErrAuthenticationFailed, err)
	}
	es, err := crypto.X25519(eh.Private[:], stpub[:])
	if err != nil {
		crypto.Zeroize(ee[:])
		crypto.Zeroize(se[:])
		return nil, fmt.Errorf("%w: chip static key: %v", ErrAuthenticationFailed, err)
	}

	secrets, err := deriveSecrets(&ee, &se, &es)
	if err != nil {
		return nil, fmt.Errorf("handshake: key schedule: %w", err)
	}
	defer secrets.zeroize()

	h := transcript(keys.Public, stpub, eh.Public, slot, etpub)
	want, err := authTag(secrets.auth, h)
	if err != nil {
		return nil, fmt.Errorf("handshake: auth tag: %w", err)
	}
	if !tagsEqual(want[:], tauth) {
		if i.log != nil {
			i.log.Warnf("chip authentication tag mismatch on slot %d", slot)
		}
		return nil, ErrAuthenticationFailed
	}

	if i.log != nil {
		i.log.Debugf("handshake with slot %d complete", slot)
	}
	return &Keys{Send: secrets.cmd, Recv: secrets.res, Slot: slot}, nil
}

// Run is a convenience wrapper around NewInitiator and Initiator.Run.
func Run(ctx context.Context, ex Exchanger, keys HostKeys, slot Slot, stpub [crypto.X25519KeySize]byte) (*Keys, error) {
	i, err := NewInitiator(Config{Exchanger: ex})
	if err != nil {
		return nil, err
	}
	return i.Run(ctx, keys, slot, stpub)
}
