package transport

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/logging"
)

// USB dongle defaults.
const (
	DefaultDongleDevice   = "/dev/ttyACM0"
	DefaultDongleBaudRate = 115200
)

// dongleReleaseCmd releases chip select; the firmware drives CS low on its
// own when a transfer starts.
var (
	dongleReleaseCmd  = []byte("CS=0\n")
	dongleReleaseAck  = []byte("OK\r\n")
	dongleTransferEnd = []byte("x\n")
)

// USBDongleConfig configures a USB serial SPI dongle.
type USBDongleConfig struct {
	// Device is the serial device path. Default: /dev/ttyACM0.
	Device string

	// BaudRate of the serial line. Default: 115200.
	BaudRate int

	// TurnaroundDelay is slept between writing a command and reading its
	// echo. Default: 10ms.
	TurnaroundDelay time.Duration

	// ReadTimeout bounds reading a command echo. Default: 1s.
	ReadTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// WithDefaults returns a copy of c with zero fields replaced by defaults.
func (c USBDongleConfig) WithDefaults() USBDongleConfig {
	if c.Device == "" {
		c.Device = DefaultDongleDevice
	}
	if c.BaudRate == 0 {
		c.BaudRate = DefaultDongleBaudRate
	}
	if c.TurnaroundDelay == 0 {
		c.TurnaroundDelay = 10 * time.Millisecond
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = time.Second
	}
	return c
}

// USBDongle is an Adapter for a USB-to-SPI bridge that speaks a line
// protocol over a CDC-ACM serial port. Each SPI transfer is written as hex
// digits terminated by "x\n"; the dongle answers with the MISO bytes in hex.
type USBDongle struct {
	port        io.ReadWriteCloser
	turnaround  time.Duration
	readTimeout time.Duration
	log         logging.LeveledLogger

	mu     sync.Mutex
	miso   []byte
	closed bool
}

// OpenUSBDongle opens and configures the serial device.
func OpenUSBDongle(config USBDongleConfig) (*USBDongle, error) {
	config = config.WithDefaults()
	port, err := openSerial(config.Device, config.BaudRate)
	if err != nil {
		return nil, opError("open "+config.Device, err)
	}
	d := newUSBDongle(port, config)
	if d.log != nil {
		d.log.Infof("opened dongle %s at %d baud", config.Device, config.BaudRate)
	}
	return d, nil
}

func newUSBDongle(port io.ReadWriteCloser, config USBDongleConfig) *USBDongle {
	config = config.WithDefaults()
	d := &USBDongle{
		port:        port,
		turnaround:  config.TurnaroundDelay,
		readTimeout: config.ReadTimeout,
	}
	if config.LoggerFactory != nil {
		d.log = config.LoggerFactory.NewLogger("transport-usb")
	}
	return d
}

// AssertChipSelect implements Adapter. The dongle lowers CS at the start of
// every transfer, so only the latch is reset here.
func (d *USBDongle) AssertChipSelect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return &Error{Op: "assert-cs", Err: ErrClosed}
	}
	d.miso = d.miso[:0]
	return nil
}

// ReleaseChipSelect implements Adapter.
func (d *USBDongle) ReleaseChipSelect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return &Error{Op: "release-cs", Err: ErrClosed}
	}
	d.miso = d.miso[:0]

	if err := d.write(dongleReleaseCmd); err != nil {
		return opError("release-cs", err)
	}
	time.Sleep(d.turnaround)
	ack := make([]byte, len(dongleReleaseAck))
	if err := d.readFull(ack, d.readTimeout); err != nil {
		return opError("release-cs", err)
	}
	if !bytes.Equal(ack, dongleReleaseAck) {
		return &Error{Op: "release-cs", Err: fmt.Errorf("%w: %q", ErrChipSelectNotAcknowledged, ack)}
	}
	return nil
}

// Send implements Adapter. The MISO bytes clocked in during the transfer
// are kept for the next Receive.
func (d *USBDongle) Send(p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return &Error{Op: "send", Err: ErrClosed}
	}
	miso, err := d.transfer(p, d.readTimeout)
	if err != nil {
		return opError("send", err)
	}
	d.miso = append(d.miso, miso...)
	return nil
}

// Receive implements Adapter. Latched bytes are returned first; the rest is
// clocked in with zero-filled transfers.
func (d *USBDongle) Receive(p []byte, timeout time.Duration) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, &Error{Op: "receive", Err: ErrClosed}
	}
	if timeout <= 0 {
		timeout = d.readTimeout
	}

	n := copy(p, d.miso)
	d.miso = d.miso[n:]
	if n == len(p) {
		return n, nil
	}

	miso, err := d.transfer(make([]byte, len(p)-n), timeout)
	if err != nil {
		return n, opError("receive", err)
	}
	n += copy(p[n:], miso)
	return n, nil
}

// Delay implements Adapter.
func (d *USBDongle) Delay(dur time.Duration) {
	time.Sleep(dur)
}

// Close closes the serial port.
func (d *USBDongle) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.miso = nil
	return d.port.Close()
}

// transfer performs one full-duplex SPI transfer of mosi.
func (d *USBDongle) transfer(mosi []byte, timeout time.Duration) ([]byte, error) {
	cmd := make([]byte, 0, 2*len(mosi)+len(dongleTransferEnd))
	cmd = hex.AppendEncode(cmd, mosi)
	cmd = bytes.ToUpper(cmd)
	cmd = append(cmd, dongleTransferEnd...)

	if err := d.write(cmd); err != nil {
		return nil, err
	}
	time.Sleep(d.turnaround)

	// The echo is hex MISO followed by "\r\n".
	echo := make([]byte, 2*len(mosi)+2)
	if err := d.readFull(echo, timeout); err != nil {
		return nil, err
	}
	miso := make([]byte, len(mosi))
	if _, err := hex.Decode(miso, echo[:2*len(mosi)]); err != nil {
		return nil, fmt.Errorf("malformed dongle echo: %w", err)
	}
	if d.log != nil {
		d.log.Tracef("spi transfer %d bytes", len(mosi))
	}
	return miso, nil
}

func (d *USBDongle) write(p []byte) error {
	n, err := d.port.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return ErrShortWrite
	}
	return nil
}

// readFull fills p. The port is configured with VMIN 0, so a read that
// returns no data is an inter-byte timeout and the loop checks the deadline.
func (d *USBDongle) readFull(p []byte, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	read := 0
	for read < len(p) {
		n, err := d.port.Read(p[read:])
		read += n
		if err != nil && err != io.EOF {
			return err
		}
		if n == 0 && time.Now().After(deadline) {
			if read == 0 {
				return ErrReceiveTimeout
			}
			return ErrShortRead
		}
	}
	return nil
}
