package chipsim

import "errors"

var (
	// ErrNotSelected is returned for bus transfers outside a chip select
	// window.
	ErrNotSelected = errors.New("chipsim: chip select not asserted")

	// ErrAlreadySelected is returned when chip select is asserted twice.
	ErrAlreadySelected = errors.New("chipsim: chip select already asserted")

	// ErrInvalidPairingKey is returned for a configured pairing key on an
	// invalid slot.
	ErrInvalidPairingKey = errors.New("chipsim: invalid pairing key slot")
)
