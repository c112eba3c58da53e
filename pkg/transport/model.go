package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ModelTag identifies a message of the TCP model protocol.
type ModelTag uint8

// Model protocol tags. Replies echo the request tag; a server that does not
// understand a tag answers ModelTagInvalid.
const (
	ModelTagCSNLow  ModelTag = 0x01
	ModelTagCSNHigh ModelTag = 0x02
	ModelTagSend    ModelTag = 0x03
	ModelTagReceive ModelTag = 0x04
	ModelTagWait    ModelTag = 0x06
	ModelTagInvalid ModelTag = 0xFD
)

// ModelHeaderSize is the size of the [tag][len:2 LE] prefix.
const ModelHeaderSize = 3

// ModelMaxDataSize bounds the data section of a single model message.
const ModelMaxDataSize = 1024

// String returns the tag name.
func (t ModelTag) String() string {
	switch t {
	case ModelTagCSNLow:
		return "CSNLow"
	case ModelTagCSNHigh:
		return "CSNHigh"
	case ModelTagSend:
		return "Send"
	case ModelTagReceive:
		return "Receive"
	case ModelTagWait:
		return "Wait"
	case ModelTagInvalid:
		return "Invalid"
	default:
		return fmt.Sprintf("ModelTag(0x%02x)", uint8(t))
	}
}

// EncodeModelMessage returns tag || len || data.
func EncodeModelMessage(tag ModelTag, data []byte) ([]byte, error) {
	if len(data) > ModelMaxDataSize {
		return nil, ErrMessageTooLarge
	}
	buf := make([]byte, ModelHeaderSize+len(data))
	buf[0] = byte(tag)
	binary.LittleEndian.PutUint16(buf[1:3], uint16(len(data)))
	copy(buf[ModelHeaderSize:], data)
	return buf, nil
}

// WriteModelMessage writes one message with a single Write call, so packet
// links deliver it as one packet.
func WriteModelMessage(w io.Writer, tag ModelTag, data []byte) error {
	buf, err := EncodeModelMessage(tag, data)
	if err != nil {
		return err
	}
	n, err := w.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return ErrShortWrite
	}
	return nil
}

// ReadModelMessage reads one message from r.
func ReadModelMessage(r io.Reader) (ModelTag, []byte, error) {
	var hdr [ModelHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	n := int(binary.LittleEndian.Uint16(hdr[1:3]))
	if n > ModelMaxDataSize {
		return 0, nil, ErrMessageTooLarge
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, nil, err
	}
	return ModelTag(hdr[0]), data, nil
}
