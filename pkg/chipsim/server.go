package chipsim

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/tropicsquare/tropic-go/pkg/transport"
)

// Serve accepts host connections on l and answers the TCP model protocol
// on each of them until l is closed. Connections share the chip, as hosts
// sharing one SPI bus would. Serve closes open connections before it
// returns; a closed listener is not an error.
func (c *Chip) Serve(l net.Listener) error {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		conns = make(map[net.Conn]struct{})
	)
	defer func() {
		mu.Lock()
		for conn := range conns {
			conn.Close()
		}
		mu.Unlock()
		wg.Wait()
	}()

	if c.log != nil {
		c.log.Infof("serving model protocol on %s", l.Addr())
	}
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		mu.Lock()
		conns[conn] = struct{}{}
		mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.ServeConn(conn); err != nil && c.log != nil {
				c.log.Debugf("connection %s: %v", conn.RemoteAddr(), err)
			}
			mu.Lock()
			delete(conns, conn)
			mu.Unlock()
		}()
	}
}

// ServeConn answers the model protocol on conn until the peer hangs up.
// It closes conn.
func (c *Chip) ServeConn(conn net.Conn) error {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		tag, data, err := transport.ReadModelMessage(r)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		replyTag, reply := c.handleModelMessage(tag, data)
		if err := transport.WriteModelMessage(conn, replyTag, reply); err != nil {
			return err
		}
	}
}

// handleModelMessage maps one model message onto the adapter methods.
// Failures are answered with ModelTagInvalid.
func (c *Chip) handleModelMessage(tag transport.ModelTag, data []byte) (transport.ModelTag, []byte) {
	var err error
	var reply []byte
	switch tag {
	case transport.ModelTagCSNLow:
		err = c.AssertChipSelect()
	case transport.ModelTagCSNHigh:
		err = c.ReleaseChipSelect()
	case transport.ModelTagSend:
		err = c.Send(data)
	case transport.ModelTagReceive:
		if len(data) != 2 || binary.LittleEndian.Uint16(data) > transport.ModelMaxDataSize {
			return transport.ModelTagInvalid, nil
		}
		reply = make([]byte, binary.LittleEndian.Uint16(data))
		_, err = c.Receive(reply, 0)
	case transport.ModelTagWait:
		if len(data) != 4 {
			return transport.ModelTagInvalid, nil
		}
		c.Delay(time.Duration(binary.LittleEndian.Uint32(data)) * time.Millisecond)
	default:
		err = transport.ErrUnexpectedTag
	}
	if err != nil {
		if c.log != nil {
			c.log.Debugf("%s: %v", tag, err)
		}
		return transport.ModelTagInvalid, nil
	}
	return tag, reply
}
