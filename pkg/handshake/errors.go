package handshake

import (
	"errors"
	"fmt"
)

// Handshake errors.
var (
	// ErrAuthenticationFailed is returned when the chip could not be
	// authenticated or rejected the host. The caller may retry with a fresh
	// handshake.
	ErrAuthenticationFailed = errors.New("handshake: authentication failed")

	// ErrMalformedResponse is returned when the handshake response has the
	// wrong size. It matches ErrAuthenticationFailed.
	ErrMalformedResponse = fmt.Errorf("%w: malformed response", ErrAuthenticationFailed)

	// ErrMalformedRequest is returned by the responder for a request of the
	// wrong size.
	ErrMalformedRequest = errors.New("handshake: malformed request")

	// ErrInvalidSlot is returned for a pairing slot outside 0..MaxSlot.
	ErrInvalidSlot = errors.New("handshake: invalid pairing slot")

	// ErrInvalidHostKeys is returned when the host public key does not
	// belong to the host private key.
	ErrInvalidHostKeys = errors.New("handshake: host public key does not match private key")

	// ErrNoExchanger is returned by NewInitiator without a frame exchanger.
	ErrNoExchanger = errors.New("handshake: no frame exchanger")
)
