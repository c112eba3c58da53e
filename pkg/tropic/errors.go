package tropic

import (
	"errors"
	"fmt"

	"github.com/tropicsquare/tropic-go/pkg/handshake"
	"github.com/tropicsquare/tropic-go/pkg/l2"
	"github.com/tropicsquare/tropic-go/pkg/l3"
	"github.com/tropicsquare/tropic-go/pkg/transport"
)

// Errors from the lower layers, re-exported so callers need only this
// package.
var (
	ErrTransport              = transport.ErrTransport
	ErrTimeout                = l2.ErrTimeout
	ErrIntegrityCheckFailed   = l2.ErrIntegrityCheckFailed
	ErrPayloadTooLarge        = l2.ErrPayloadTooLarge
	ErrChipAlarm              = l2.ErrChipAlarm
	ErrChipStartup            = l2.ErrChipStartup
	ErrChipStatus             = l2.ErrChipStatus
	ErrAuthenticationFailed   = handshake.ErrAuthenticationFailed
	ErrInvalidSlot            = handshake.ErrInvalidSlot
	ErrSecureChannelViolation = l3.ErrSecureChannelViolation
	ErrNoActiveSession        = l3.ErrNoActiveSession
	ErrBufferTooSmall         = l3.ErrBufferTooSmall
)

// Handle errors.
var (
	// ErrNoTransport is returned by Open without an adapter.
	ErrNoTransport = errors.New("tropic: no transport adapter")

	// ErrInvalidState is returned when an operation is not allowed in the
	// handle's current state.
	ErrInvalidState = errors.New("tropic: operation not allowed in current state")

	// ErrCommandFailed matches every *CommandError.
	ErrCommandFailed = errors.New("tropic: command failed")

	// ErrUnexpectedResult is returned when a command result has the wrong
	// shape.
	ErrUnexpectedResult = errors.New("tropic: unexpected command result")

	// ErrInvalidArgument is returned for out-of-range command arguments.
	ErrInvalidArgument = errors.New("tropic: invalid argument")

	// ErrInvalidCertificate is returned when the chip certificate cannot be
	// parsed or does not carry an X25519 key.
	ErrInvalidCertificate = errors.New("tropic: invalid chip certificate")
)

// CommandError is returned by typed commands when the chip answered with a
// status other than OK.
type CommandError struct {
	Code   l3.CommandCode
	Status l3.Status
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("tropic: %s returned %s", e.Code, e.Status)
}

// Is matches ErrCommandFailed.
func (e *CommandError) Is(target error) bool { return target == ErrCommandFailed }
