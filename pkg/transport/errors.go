package transport

import (
	"errors"
	"fmt"
)

// Transport errors.
var (
	// ErrTransport matches every *Error returned by an adapter.
	ErrTransport = errors.New("transport: I/O failure")

	// ErrClosed is returned when an operation is attempted on a closed adapter.
	ErrClosed = errors.New("transport: closed")

	// ErrShortRead is returned when fewer bytes than requested arrived.
	ErrShortRead = errors.New("transport: short read")

	// ErrShortWrite is returned when the link accepted fewer bytes than sent.
	ErrShortWrite = errors.New("transport: short write")

	// ErrReceiveTimeout is returned when Receive ran out of time.
	ErrReceiveTimeout = errors.New("transport: receive timeout")

	// ErrChipSelectNotAcknowledged is returned when the dongle did not confirm CS release.
	ErrChipSelectNotAcknowledged = errors.New("transport: chip select not acknowledged")

	// ErrUnexpectedTag is returned when a model server replies with a different tag.
	ErrUnexpectedTag = errors.New("transport: unexpected model reply tag")

	// ErrMessageTooLarge is returned when a model message exceeds ModelMaxDataSize.
	ErrMessageTooLarge = errors.New("transport: model message too large")

	// ErrUnsupportedPlatform is returned by adapters that cannot run on this OS.
	ErrUnsupportedPlatform = errors.New("transport: unsupported platform")
)

// Error records a failed adapter operation.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports ErrTransport as a match so callers need not know the cause.
func (e *Error) Is(target error) bool { return target == ErrTransport }

func opError(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	return &Error{Op: op, Err: err}
}
