// Package transport provides the byte-level links between the host and the
// chip: a USB serial SPI dongle, a TCP model server client and an in-memory
// pipe for tests.
//
// All adapters expose the same half-duplex contract. The frame codec drives
// chip select explicitly and never assumes that bytes clocked out during Send
// carry meaning, so full-duplex links latch the MISO bytes they observe and
// hand them back on the next Receive.
package transport

import "time"

// Adapter is the transport contract consumed by the frame codec.
type Adapter interface {
	// Send writes p to the chip. It returns a *Error on failure.
	Send(p []byte) error

	// Receive reads exactly len(p) bytes, waiting at most timeout for them.
	// n is the number of bytes read before a failure.
	Receive(p []byte, timeout time.Duration) (n int, err error)

	// AssertChipSelect opens a transaction window.
	AssertChipSelect() error

	// ReleaseChipSelect closes the current transaction window.
	ReleaseChipSelect() error

	// Delay blocks for d. Model-backed adapters may forward it to the model.
	Delay(d time.Duration)
}
