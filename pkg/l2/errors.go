package l2

import (
	"errors"
	"fmt"
)

// Frame codec errors.
var (
	// ErrTimeout is returned when the chip did not become ready within the
	// poll budget.
	ErrTimeout = errors.New("l2: chip not ready within retry budget")

	// ErrIntegrityCheckFailed is returned for a checksum mismatch or a
	// malformed frame. It is never retried.
	ErrIntegrityCheckFailed = errors.New("l2: frame integrity check failed")

	// ErrPayloadTooLarge is returned before any I/O when a payload exceeds
	// MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("l2: payload too large")

	// ErrChipAlarm is returned when the chip reports the alarm bit.
	ErrChipAlarm = errors.New("l2: chip in alarm mode")

	// ErrChipStartup accompanies ErrTimeout when the chip was still in
	// startup mode at the last poll.
	ErrChipStartup = errors.New("l2: chip in startup mode")

	// ErrChipStatus matches every *StatusError.
	ErrChipStatus = errors.New("l2: chip reported error status")

	// ErrNoAdapter is returned by New without a transport adapter.
	ErrNoAdapter = errors.New("l2: no transport adapter")
)

// StatusError is a response frame with an error status.
type StatusError struct {
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("l2: chip returned %s", e.Status)
}

// Is matches ErrChipStatus, and ErrIntegrityCheckFailed when the chip saw a
// corrupted request.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrChipStatus:
		return true
	case ErrIntegrityCheckFailed:
		return e.Status == StatusCRCError
	}
	return false
}
