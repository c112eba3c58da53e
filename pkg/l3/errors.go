package l3

import (
	"errors"
	"fmt"

	"github.com/tropicsquare/tropic-go/pkg/l2"
)

// Secure command layer errors.
var (
	// ErrSecureChannelViolation is returned when a result fails
	// authentication or is malformed, or the chip rejected the command
	// frame. The channel is wiped and cannot be used again.
	ErrSecureChannelViolation = errors.New("l3: secure channel violation")

	// ErrNoActiveSession is returned when no keys are loaded.
	ErrNoActiveSession = errors.New("l3: no active secure session")

	// ErrPayloadTooLarge is the frame layer error, reused so callers match
	// one sentinel for both layers.
	ErrPayloadTooLarge = l2.ErrPayloadTooLarge

	// ErrBufferTooSmall is returned when the frame buffer cannot hold a
	// maximum size frame.
	ErrBufferTooSmall = errors.New("l3: buffer smaller than FrameMaxSize")

	// ErrCounterExhausted is returned when the nonce counter would wrap.
	ErrCounterExhausted = fmt.Errorf("%w: counter exhausted", ErrSecureChannelViolation)

	// ErrNoTransceiver is returned by NewChannel without a frame transceiver.
	ErrNoTransceiver = errors.New("l3: no frame transceiver")
)

// ExecuteError is returned by Channel.Execute for failures during I/O.
type ExecuteError struct {
	Code CommandCode
	Err  error
	sent bool
}

func (e *ExecuteError) Error() string {
	return fmt.Sprintf("l3: %s: %v", e.Code, e.Err)
}

func (e *ExecuteError) Unwrap() error { return e.Err }

// Sent reports whether any chunk of the command frame had been handed to
// the chip before the failure. After that point the chip holds a partial
// frame or may have consumed a nonce, so the channel is no longer usable.
func (e *ExecuteError) Sent() bool { return e.sent }
