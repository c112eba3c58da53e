package transport

import (
	"bytes"
	"encoding/hex"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeDonglePort emulates the dongle firmware: a hex transfer is answered
// with the inverted bytes in hex, CS release with "OK\r\n". Reads with no
// pending output return zero bytes like a tty in VMIN 0 mode.
type fakeDonglePort struct {
	mu     sync.Mutex
	out    bytes.Buffer
	lines  []string
	badAck bool
	silent bool
	closed bool
}

func (p *fakeDonglePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	line := string(b)
	p.lines = append(p.lines, line)
	if p.silent {
		return len(b), nil
	}
	switch {
	case line == "CS=0\n":
		if p.badAck {
			p.out.WriteString("ER\r\n")
		} else {
			p.out.WriteString("OK\r\n")
		}
	case len(line) > 2 && line[len(line)-2:] == "x\n":
		mosi, err := hex.DecodeString(line[:len(line)-2])
		if err != nil {
			return 0, err
		}
		for i := range mosi {
			mosi[i] = ^mosi[i]
		}
		p.out.WriteString(hex.EncodeToString(mosi) + "\r\n")
	}
	return len(b), nil
}

func (p *fakeDonglePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.out.Len() == 0 {
		return 0, nil
	}
	return p.out.Read(b)
}

func (p *fakeDonglePort) Close() error {
	p.closed = true
	return nil
}

func newTestDongle(port *fakeDonglePort) *USBDongle {
	return newUSBDongle(port, USBDongleConfig{
		TurnaroundDelay: time.Microsecond,
		ReadTimeout:     20 * time.Millisecond,
	})
}

func TestUSBDongle_SendLatchesMISO(t *testing.T) {
	port := &fakeDonglePort{}
	d := newTestDongle(port)

	require.NoError(t, d.AssertChipSelect())
	require.NoError(t, d.Send([]byte{0xAA}))

	buf := make([]byte, 3)
	n, err := d.Receive(buf, 0)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	// First byte was latched from the 0xAA transfer, the rest clocked with zeros.
	require.Equal(t, []byte{0x55, 0xFF, 0xFF}, buf)
	require.NoError(t, d.ReleaseChipSelect())

	require.Equal(t, []string{"AAx\n", "0000x\n", "CS=0\n"}, port.lines)
}

func TestUSBDongle_ChipSelectDropsLatch(t *testing.T) {
	port := &fakeDonglePort{}
	d := newTestDongle(port)

	require.NoError(t, d.Send([]byte{0x01, 0x02}))
	require.NoError(t, d.ReleaseChipSelect())
	require.NoError(t, d.AssertChipSelect())

	buf := make([]byte, 1)
	_, err := d.Receive(buf, 0)
	require.NoError(t, err)
	require.Equal(t, byte(0xFF), buf[0])
}

func TestUSBDongle_ReleaseNotAcknowledged(t *testing.T) {
	d := newTestDongle(&fakeDonglePort{badAck: true})
	err := d.ReleaseChipSelect()
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, ErrChipSelectNotAcknowledged)
}

func TestUSBDongle_Timeout(t *testing.T) {
	d := newTestDongle(&fakeDonglePort{silent: true})
	buf := make([]byte, 2)
	_, err := d.Receive(buf, 5*time.Millisecond)
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, ErrReceiveTimeout)
}

func TestUSBDongle_Close(t *testing.T) {
	port := &fakeDonglePort{}
	d := newTestDongle(port)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	require.True(t, port.closed)

	require.ErrorIs(t, d.Send([]byte{0x00}), ErrClosed)
}

func TestUSBDongleConfig_WithDefaults(t *testing.T) {
	c := USBDongleConfig{}.WithDefaults()
	require.Equal(t, "/dev/ttyACM0", c.Device)
	require.Equal(t, 115200, c.BaudRate)
	require.Equal(t, 10*time.Millisecond, c.TurnaroundDelay)
}
