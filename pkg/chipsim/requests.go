package chipsim

import (
	"encoding/binary"

	"github.com/tropicsquare/tropic-go/pkg/crypto"
	"github.com/tropicsquare/tropic-go/pkg/handshake"
	"github.com/tropicsquare/tropic-go/pkg/l2"
	"github.com/tropicsquare/tropic-go/pkg/l3"
)

// Request arguments the chip checks.
const (
	sleepKindSleep = 0x05
	startupReboot  = 0x01
)

// handleRequest processes one request frame and queues the responses.
// A new request drops responses the host never collected.
func (c *Chip) handleRequest(raw []byte) {
	c.stats.Requests++
	f, err := l2.DecodeFrame(raw)
	if err != nil {
		if c.log != nil {
			c.log.Debugf("bad request frame: %v", err)
		}
		c.queue = nil
		c.respond(0, l2.StatusCRCError, nil)
		return
	}

	id := l2.RequestID(f.ID)
	if id == l2.RequestResend {
		if c.last != nil {
			c.queue = append([][]byte{c.last}, c.queue...)
		} else {
			c.respond(id, l2.StatusGeneralError, nil)
		}
		return
	}
	c.queue = nil

	switch id {
	case l2.RequestGetInfo:
		c.getInfo(f.Payload)
	case l2.RequestHandshake:
		c.handshake(f.Payload)
	case l2.RequestEncryptedCmd:
		c.encryptedCmd(f.Payload)
	case l2.RequestEncryptedSessionAbort:
		c.endSession()
		c.respond(id, l2.StatusRequestOK, nil)
	case l2.RequestSleep:
		if len(f.Payload) != 1 || f.Payload[0] != sleepKindSleep {
			c.respond(id, l2.StatusGeneralError, nil)
			return
		}
		c.endSession()
		c.respond(id, l2.StatusRequestOK, nil)
	case l2.RequestStartup:
		if len(f.Payload) != 1 || f.Payload[0] != startupReboot {
			c.respond(id, l2.StatusGeneralError, nil)
			return
		}
		c.endSession()
		c.respond(id, l2.StatusRequestOK, nil)
	default:
		c.respond(id, l2.StatusUnknownRequest, nil)
	}
}

// respond queues one response frame.
func (c *Chip) respond(id l2.RequestID, status l2.Status, payload []byte) {
	frame, err := l2.AppendFrame(nil, uint8(status), payload)
	if err != nil {
		// Payloads are sized by the model itself.
		panic(err)
	}
	c.queue = append(c.queue, frame)
	if c.observer != nil && id != 0 {
		c.observer.RequestHandled(id, status)
	}
}

func (c *Chip) handshake(payload []byte) {
	c.endSession()
	if c.reject {
		c.reject = false
		c.respond(l2.RequestHandshake, l2.StatusHandshakeError, nil)
		return
	}

	ehpub, slot, err := handshake.ParseRequest(payload)
	if err != nil || c.pairing[slot].state != pairingWritten {
		if c.log != nil {
			c.log.Debugf("handshake refused on slot %d: %v", slot, err)
		}
		c.respond(l2.RequestHandshake, l2.StatusHandshakeError, nil)
		return
	}

	resp, keys, err := c.responder.Respond(ehpub, slot, c.pairing[slot].pub)
	if err != nil {
		c.respond(l2.RequestHandshake, l2.StatusHandshakeError, nil)
		return
	}
	defer keys.Zeroize()

	send, err := crypto.NewAESGCM(keys.Send[:])
	if err != nil {
		c.respond(l2.RequestHandshake, l2.StatusGeneralError, nil)
		return
	}
	recv, err := crypto.NewAESGCM(keys.Recv[:])
	if err != nil {
		c.respond(l2.RequestHandshake, l2.StatusGeneralError, nil)
		return
	}

	c.session = &session{slot: slot, send: send, recv: recv}
	c.lastResult = nil
	if c.log != nil {
		c.log.Infof("session started on slot %d", slot)
	}
	if c.observer != nil {
		c.observer.SessionChanged(true, slot)
	}
	c.respond(l2.RequestHandshake, l2.StatusResultOK, resp)
}

func (c *Chip) endSession() {
	c.inbound = nil
	if c.session == nil {
		return
	}
	slot := c.session.slot
	c.session = nil
	c.lastResult = nil
	if c.log != nil {
		c.log.Debugf("session on slot %d ended", slot)
	}
	if c.observer != nil {
		c.observer.SessionChanged(false, slot)
	}
}

// encryptedCmd collects one chunk of an L3 command frame. A complete frame
// is decrypted and executed, and its result queued behind the ack.
func (c *Chip) encryptedCmd(chunk []byte) {
	if c.session == nil {
		c.respond(l2.RequestEncryptedCmd, l2.StatusNoSession, nil)
		return
	}

	c.inbound = append(c.inbound, chunk...)
	if len(c.inbound) < l3.SizeFieldSize {
		c.respond(l2.RequestEncryptedCmd, l2.StatusRequestContinue, nil)
		return
	}
	need := l3.SizeFieldSize + int(binary.LittleEndian.Uint16(c.inbound)) + l3.TagSize
	if len(c.inbound) < need {
		c.respond(l2.RequestEncryptedCmd, l2.StatusRequestContinue, nil)
		return
	}

	frame := c.inbound
	c.inbound = nil
	if len(frame) != need {
		c.respond(l2.RequestEncryptedCmd, l2.StatusGeneralError, nil)
		return
	}

	s := c.session
	plaintext, err := l3.OpenPacket(s.recv, s.recvCounter, frame)
	if err != nil {
		if c.log != nil {
			c.log.Warnf("command failed authentication at counter %d", s.recvCounter)
		}
		c.endSession()
		c.respond(l2.RequestEncryptedCmd, l2.StatusTagError, nil)
		return
	}
	s.recvCounter++
	c.stats.Commands++

	code := l3.CommandCode(plaintext[0])
	status, result := c.execute(code, plaintext[1:])
	if c.observer != nil {
		c.observer.CommandHandled(code, status)
	}
	c.respond(l2.RequestEncryptedCmd, l2.StatusRequestOK, nil)
	c.queueResult(status, result)
}

// queueResult encrypts a result and queues it as L2 result chunks.
func (c *Chip) queueResult(status l3.Status, data []byte) {
	s := c.session
	buf := make([]byte, l3.FrameMaxSize)
	buf[l3.SizeFieldSize] = byte(status)
	n := 1 + copy(buf[l3.SizeFieldSize+1:], data)
	frame, err := l3.SealPacket(s.send, s.sendCounter, buf, n)
	if err != nil {
		panic(err)
	}
	s.sendCounter++

	if c.replay && c.lastResult != nil {
		c.replay = false
		frame = c.lastResult
	} else {
		c.lastResult = frame
	}

	chunks := l3.Chunks(frame)
	for i, chunk := range chunks {
		st := l2.StatusResultContinue
		if i == len(chunks)-1 {
			st = l2.StatusResultOK
		}
		c.respond(l2.RequestEncryptedCmd, st, chunk)
	}
}
