// Package l2 implements the frame layer of the chip protocol: framing,
// CRC-16 protection and the busy-wait poll that fetches responses.
//
// Every request is written in its own chip-select window. The response is
// then read by repeatedly opening a window, clocking out GetResponse and
// inspecting CHIP_STATUS until the chip reports a pending frame.
package l2

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff"
	"github.com/pion/logging"

	"github.com/tropicsquare/tropic-go/pkg/transport"
)

// Config configures a Codec.
type Config struct {
	// Adapter is the transport to the chip. Required.
	Adapter transport.Adapter

	// Poll controls the busy-wait loop.
	Poll PollConfig

	// Observer is notified of frame events. Optional.
	Observer Observer

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Codec exchanges frames with the chip over a transport.Adapter.
// A Codec serializes its callers.
type Codec struct {
	adapter  transport.Adapter
	poll     PollConfig
	observer Observer
	log      logging.LeveledLogger

	mu     sync.Mutex
	lastID RequestID
	tx     [MaxFrameSize]byte
	rx     [MaxFrameSize]byte
}

// New creates a codec.
func New(config Config) (*Codec, error) {
	if config.Adapter == nil {
		return nil, ErrNoAdapter
	}
	c := &Codec{
		adapter:  config.Adapter,
		poll:     config.Poll.WithDefaults(),
		observer: config.Observer,
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("l2")
	}
	return c, nil
}

// Adapter returns the underlying transport.
func (c *Codec) Adapter() transport.Adapter {
	return c.adapter
}

// Exchange sends a request and waits for its response frame.
//
// ctx is consulted once, before anything is written. After the request left
// the host the exchange runs to a response, a timeout or an error.
// The returned frame may carry an error status; see Frame.Err.
func (c *Codec) Exchange(ctx context.Context, id RequestID, payload []byte) (Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(ctx, id, payload); err != nil {
		return Frame{}, err
	}
	return c.receive()
}

// Send writes a request without waiting for a response.
func (c *Codec) Send(ctx context.Context, id RequestID, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(ctx, id, payload)
}

// Receive polls for the next response frame. It is used to fetch the
// remaining chunks of a multi-frame result.
func (c *Codec) Receive() (Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receive()
}

func (c *Codec) send(ctx context.Context, id RequestID, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	frame, _ := AppendFrame(c.tx[:0], uint8(id), payload)
	err := c.window(func() error {
		return adapterError("send", c.adapter.Send(frame))
	})
	if err != nil {
		c.failed(id, err)
		return err
	}

	c.lastID = id
	if c.observer != nil {
		c.observer.FrameSent(id, len(frame))
	}
	if c.log != nil {
		c.log.Tracef("sent %s, %d byte payload", id, len(payload))
	}
	return nil
}

func (c *Codec) receive() (Frame, error) {
	b := c.poll.NewBackOff()
	for attempt := 1; ; attempt++ {
		f, ready, chipStatus, err := c.getResponse()
		if err != nil {
			c.failed(c.lastID, err)
			return Frame{}, err
		}
		if ready {
			if c.observer != nil {
				c.observer.FrameReceived(f.Status(), HeaderSize+len(f.Payload)+ChecksumSize)
			}
			if c.log != nil {
				c.log.Tracef("received %s, %d byte payload after %d polls", f.Status(), len(f.Payload), attempt)
			}
			return f, nil
		}

		next := b.NextBackOff()
		if next == backoff.Stop {
			err := fmt.Errorf("%w: %d polls", ErrTimeout, attempt)
			if chipStatus&ChipStatusStartup != 0 {
				err = fmt.Errorf("%w: %w after %d polls", ErrTimeout, ErrChipStartup, attempt)
			}
			c.failed(c.lastID, err)
			return Frame{}, err
		}
		if c.observer != nil {
			c.observer.PollRetry(attempt, next)
		}
		c.adapter.Delay(next)
	}
}

// getResponse runs one poll and returns the CHIP_STATUS byte it read.
// ready is false when the chip is busy or has nothing to report yet.
func (c *Codec) getResponse() (f Frame, ready bool, chipStatus uint8, err error) {
	err = c.window(func() error {
		c.tx[0] = GetResponse
		if err := adapterError("send", c.adapter.Send(c.tx[:1])); err != nil {
			return err
		}
		if err := c.read(c.rx[:1]); err != nil {
			return err
		}
		chipStatus = c.rx[0]
		if chipStatus&ChipStatusAlarm != 0 {
			return ErrChipAlarm
		}
		if chipStatus&ChipStatusReady == 0 {
			return nil
		}

		if err := c.read(c.rx[:HeaderSize]); err != nil {
			return err
		}
		if Status(c.rx[0]) == StatusNoResponse {
			return nil
		}
		n := int(binary.LittleEndian.Uint16(c.rx[1:HeaderSize]))
		if n > MaxPayloadSize {
			return fmt.Errorf("%w: length field %d", ErrIntegrityCheckFailed, n)
		}
		end := HeaderSize + n + ChecksumSize
		if err := c.read(c.rx[HeaderSize:end]); err != nil {
			return err
		}
		decoded, err := DecodeFrame(c.rx[:end])
		if err != nil {
			return err
		}
		f = Frame{ID: decoded.ID, Payload: append([]byte(nil), decoded.Payload...)}
		ready = true
		return nil
	})
	return f, ready, chipStatus, err
}

// window runs fn with chip select asserted and always releases it.
func (c *Codec) window(fn func() error) error {
	if err := c.adapter.AssertChipSelect(); err != nil {
		return adapterError("assert-cs", err)
	}
	err := fn()
	if rerr := c.adapter.ReleaseChipSelect(); rerr != nil && err == nil {
		err = adapterError("release-cs", rerr)
	}
	return err
}

func (c *Codec) read(p []byte) error {
	n, err := c.adapter.Receive(p, c.poll.ReceiveTimeout)
	if err != nil {
		return adapterError("receive", err)
	}
	if n != len(p) {
		return &transport.Error{Op: "receive", Err: transport.ErrShortRead}
	}
	return nil
}

func (c *Codec) failed(id RequestID, err error) {
	if c.observer != nil {
		c.observer.ExchangeFailed(id, err)
	}
	if c.log != nil {
		c.log.Debugf("%s failed: %v", id, err)
	}
}

// adapterError makes sure adapter failures match transport.ErrTransport even
// when a third-party adapter returns plain errors.
func adapterError(op string, err error) error {
	if err == nil || errors.Is(err, transport.ErrTransport) {
		return err
	}
	return &transport.Error{Op: op, Err: err}
}
