package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
)

// DefaultModelAddress is where a locally started model server listens.
const DefaultModelAddress = "127.0.0.1:28992"

// TCPConfig configures the TCP model adapter.
type TCPConfig struct {
	// Conn is an optional pre-established connection, e.g. Pipe.Conn0().
	// If nil, Address is dialed.
	Conn net.Conn

	// Address of the model server. Default: DefaultModelAddress.
	Address string

	// DialTimeout bounds the initial connect. Default: 5s.
	DialTimeout time.Duration

	// IOTimeout bounds each request/reply round trip other than Receive,
	// which uses the caller's timeout. Default: 1s.
	IOTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// WithDefaults returns a copy of c with zero fields replaced by defaults.
func (c TCPConfig) WithDefaults() TCPConfig {
	if c.Address == "" {
		c.Address = DefaultModelAddress
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.IOTimeout == 0 {
		c.IOTimeout = time.Second
	}
	return c
}

// TCP is an Adapter that talks to a chip model server.
type TCP struct {
	conn      net.Conn
	reader    *bufio.Reader
	ioTimeout time.Duration
	log       logging.LeveledLogger

	mu     sync.Mutex
	closed bool
}

// DialTCP connects to a model server, or wraps config.Conn when set.
func DialTCP(config TCPConfig) (*TCP, error) {
	config = config.WithDefaults()

	conn := config.Conn
	if conn == nil {
		c, err := net.DialTimeout("tcp", config.Address, config.DialTimeout)
		if err != nil {
			return nil, opError("dial", err)
		}
		conn = c
	}

	t := &TCP{
		conn:      conn,
		reader:    bufio.NewReader(conn),
		ioTimeout: config.IOTimeout,
	}
	if config.LoggerFactory != nil {
		t.log = config.LoggerFactory.NewLogger("transport-tcp")
	}
	if t.log != nil {
		t.log.Debugf("connected to model at %s", conn.RemoteAddr())
	}
	return t, nil
}

// AssertChipSelect implements Adapter.
func (t *TCP) AssertChipSelect() error {
	_, err := t.roundTrip("csn-low", ModelTagCSNLow, nil, t.ioTimeout)
	return err
}

// ReleaseChipSelect implements Adapter.
func (t *TCP) ReleaseChipSelect() error {
	_, err := t.roundTrip("csn-high", ModelTagCSNHigh, nil, t.ioTimeout)
	return err
}

// Send implements Adapter.
func (t *TCP) Send(p []byte) error {
	for len(p) > 0 {
		n := min(len(p), ModelMaxDataSize)
		if _, err := t.roundTrip("send", ModelTagSend, p[:n], t.ioTimeout); err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// Receive implements Adapter.
func (t *TCP) Receive(p []byte, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		timeout = t.ioTimeout
	}
	total := 0
	for total < len(p) {
		want := min(len(p)-total, ModelMaxDataSize)
		var req [2]byte
		binary.LittleEndian.PutUint16(req[:], uint16(want))
		data, err := t.roundTrip("receive", ModelTagReceive, req[:], timeout)
		if err != nil {
			return total, err
		}
		if len(data) != want {
			total += copy(p[total:], data)
			return total, &Error{Op: "receive", Err: ErrShortRead}
		}
		total += copy(p[total:], data)
	}
	return total, nil
}

// Delay forwards the wait to the model so simulated time advances with it.
func (t *TCP) Delay(d time.Duration) {
	if d <= 0 {
		return
	}
	var req [4]byte
	binary.LittleEndian.PutUint32(req[:], uint32(d/time.Millisecond))
	if _, err := t.roundTrip("wait", ModelTagWait, req[:], t.ioTimeout+d); err != nil {
		if t.log != nil {
			t.log.Warnf("model wait failed, sleeping locally: %v", err)
		}
		time.Sleep(d)
	}
}

// Close closes the connection to the model.
func (t *TCP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

// RemoteAddr returns the model server address.
func (t *TCP) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

func (t *TCP) roundTrip(op string, tag ModelTag, data []byte, timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, &Error{Op: op, Err: ErrClosed}
	}

	if err := t.conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, opError(op, err)
	}
	defer t.conn.SetDeadline(time.Time{})

	if err := WriteModelMessage(t.conn, tag, data); err != nil {
		return nil, opError(op, err)
	}
	replyTag, reply, err := ReadModelMessage(t.reader)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			err = ErrReceiveTimeout
		}
		return nil, opError(op, err)
	}
	if replyTag != tag {
		if t.log != nil {
			t.log.Warnf("model replied %s to %s", replyTag, tag)
		}
		return nil, &Error{Op: op, Err: fmt.Errorf("%w: got %s, want %s", ErrUnexpectedTag, replyTag, tag)}
	}
	if t.log != nil {
		t.log.Tracef("%s: %d bytes out, %d bytes in", tag, len(data), len(reply))
	}
	return reply, nil
}
