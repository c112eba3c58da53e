package l2

import (
	"encoding/binary"
	"fmt"
)

// Frame size limits.
const (
	// MaxPayloadSize is the largest payload a single frame carries.
	MaxPayloadSize = 252

	// HeaderSize is id + length.
	HeaderSize = 3

	// ChecksumSize is the trailing CRC-16.
	ChecksumSize = 2

	// MaxFrameSize is the largest encoded frame.
	MaxFrameSize = HeaderSize + MaxPayloadSize + ChecksumSize
)

// GetResponse is the byte the host clocks out to read CHIP_STATUS and the
// pending response.
const GetResponse = 0xAA

// CHIP_STATUS bits.
const (
	ChipStatusReady   = 0x01
	ChipStatusAlarm   = 0x02
	ChipStatusStartup = 0x04
)

// RequestID identifies an L2 request.
type RequestID uint8

// Request identifiers.
const (
	RequestGetInfo               RequestID = 0x01
	RequestHandshake             RequestID = 0x02
	RequestEncryptedCmd          RequestID = 0x04
	RequestEncryptedSessionAbort RequestID = 0x08
	RequestResend                RequestID = 0x10
	RequestSleep                 RequestID = 0x20
	RequestStartup               RequestID = 0xB3
)

func (id RequestID) String() string {
	switch id {
	case RequestGetInfo:
		return "GetInfo"
	case RequestHandshake:
		return "Handshake"
	case RequestEncryptedCmd:
		return "EncryptedCmd"
	case RequestEncryptedSessionAbort:
		return "EncryptedSessionAbort"
	case RequestResend:
		return "Resend"
	case RequestSleep:
		return "Sleep"
	case RequestStartup:
		return "Startup"
	default:
		return fmt.Sprintf("RequestID(0x%02x)", uint8(id))
	}
}

// Status is the first byte of an L2 response.
type Status uint8

// Response statuses.
const (
	StatusRequestOK       Status = 0x01
	StatusResultOK        Status = 0x02
	StatusRequestContinue Status = 0x03
	StatusResultContinue  Status = 0x04
	StatusHandshakeError  Status = 0x79
	StatusNoSession       Status = 0x7A
	StatusTagError        Status = 0x7B
	StatusCRCError        Status = 0x7C
	StatusUnknownRequest  Status = 0x7E
	StatusGeneralError    Status = 0x7F
	StatusNoResponse      Status = 0xFF
)

func (s Status) String() string {
	switch s {
	case StatusRequestOK:
		return "RequestOK"
	case StatusResultOK:
		return "ResultOK"
	case StatusRequestContinue:
		return "RequestContinue"
	case StatusResultContinue:
		return "ResultContinue"
	case StatusHandshakeError:
		return "HandshakeError"
	case StatusNoSession:
		return "NoSession"
	case StatusTagError:
		return "TagError"
	case StatusCRCError:
		return "CRCError"
	case StatusUnknownRequest:
		return "UnknownRequest"
	case StatusGeneralError:
		return "GeneralError"
	case StatusNoResponse:
		return "NoResponse"
	default:
		return fmt.Sprintf("Status(0x%02x)", uint8(s))
	}
}

// IsOK reports whether s is one of the four success statuses.
func (s Status) IsOK() bool {
	return s >= StatusRequestOK && s <= StatusResultContinue
}

// Frame is a decoded L2 frame. ID is a RequestID on the way to the chip and
// a Status on the way back.
type Frame struct {
	ID      uint8
	Payload []byte
}

// Status returns the frame id interpreted as a response status.
func (f Frame) Status() Status { return Status(f.ID) }

// Err returns a *StatusError for error statuses and nil otherwise.
func (f Frame) Err() error {
	if f.Status().IsOK() {
		return nil
	}
	return &StatusError{Status: f.Status()}
}

// AppendFrame appends the encoding of id and payload to dst:
// [id][len:2 LE][payload][crc:2 LE].
func AppendFrame(dst []byte, id uint8, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return dst, ErrPayloadTooLarge
	}
	start := len(dst)
	dst = append(dst, id)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(payload)))
	dst = append(dst, payload...)
	return binary.LittleEndian.AppendUint16(dst, CRC16(dst[start:])), nil
}

// EncodeFrame returns the wire encoding of f.
func EncodeFrame(f Frame) ([]byte, error) {
	return AppendFrame(make([]byte, 0, HeaderSize+len(f.Payload)+ChecksumSize), f.ID, f.Payload)
}

// DecodeFrame parses one complete frame. The payload aliases b.
func DecodeFrame(b []byte) (Frame, error) {
	if len(b) < HeaderSize+ChecksumSize {
		return Frame{}, fmt.Errorf("%w: frame of %d bytes", ErrIntegrityCheckFailed, len(b))
	}
	n := int(binary.LittleEndian.Uint16(b[1:3]))
	if n > MaxPayloadSize {
		return Frame{}, fmt.Errorf("%w: length field %d", ErrIntegrityCheckFailed, n)
	}
	if len(b) != HeaderSize+n+ChecksumSize {
		return Frame{}, fmt.Errorf("%w: length field %d, frame of %d bytes", ErrIntegrityCheckFailed, n, len(b))
	}
	body := b[:HeaderSize+n]
	if got, want := binary.LittleEndian.Uint16(b[HeaderSize+n:]), CRC16(body); got != want {
		return Frame{}, fmt.Errorf("%w: crc 0x%04x, want 0x%04x", ErrIntegrityCheckFailed, got, want)
	}
	return Frame{ID: b[0], Payload: b[HeaderSize : HeaderSize+n]}, nil
}
