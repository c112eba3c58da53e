package l2

import (
	"bytes"
	"errors"
	"testing"
)

func TestAppendFrame_Layout(t *testing.T) {
	got, err := AppendFrame(nil, uint8(RequestHandshake), []byte{0xDE, 0xAD})
	if err != nil {
		t.Fatal(err)
	}
	crc := CRC16([]byte{0x02, 0x02, 0x00, 0xDE, 0xAD})
	want := []byte{0x02, 0x02, 0x00, 0xDE, 0xAD, byte(crc), byte(crc >> 8)}
	if !bytes.Equal(got, want) {
		t.Errorf("AppendFrame = %x, want %x", got, want)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	maxPayload := make([]byte, MaxPayloadSize)
	for i := range maxPayload {
		maxPayload[i] = byte(i * 7)
	}

	tests := []struct {
		name  string
		frame Frame
	}{
		{"empty payload", Frame{ID: uint8(RequestGetInfo)}},
		{"small payload", Frame{ID: uint8(StatusResultOK), Payload: []byte{1, 2, 3}}},
		{"max payload", Frame{ID: uint8(RequestEncryptedCmd), Payload: maxPayload}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := EncodeFrame(tt.frame)
			if err != nil {
				t.Fatal(err)
			}
			if len(encoded) != HeaderSize+len(tt.frame.Payload)+ChecksumSize {
				t.Fatalf("encoded length %d", len(encoded))
			}
			decoded, err := DecodeFrame(encoded)
			if err != nil {
				t.Fatal(err)
			}
			if decoded.ID != tt.frame.ID || !bytes.Equal(decoded.Payload, tt.frame.Payload) {
				t.Errorf("decoded %+v, want %+v", decoded, tt.frame)
			}
		})
	}
}

func TestAppendFrame_TooLarge(t *testing.T) {
	dst := []byte{0x55}
	got, err := AppendFrame(dst, 0x04, make([]byte, MaxPayloadSize+1))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("err = %v, want ErrPayloadTooLarge", err)
	}
	if !bytes.Equal(got, dst) {
		t.Error("dst modified on error")
	}
}

// Every single-bit corruption of a frame must be rejected.
func TestDecodeFrame_BitFlip(t *testing.T) {
	encoded, err := EncodeFrame(Frame{ID: uint8(StatusResultOK), Payload: []byte("hello chip")})
	if err != nil {
		t.Fatal(err)
	}
	for bit := 0; bit < len(encoded)*8; bit++ {
		corrupted := append([]byte(nil), encoded...)
		corrupted[bit/8] ^= 1 << (bit % 8)
		if _, err := DecodeFrame(corrupted); !errors.Is(err, ErrIntegrityCheckFailed) {
			t.Fatalf("bit %d: err = %v, want ErrIntegrityCheckFailed", bit, err)
		}
	}
}

func TestDecodeFrame_Malformed(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"too short", []byte{0x01, 0x00}},
		{"length too large", []byte{0x01, 0xFF, 0x00, 0x00, 0x00}},
		{"length mismatch", []byte{0x01, 0x02, 0x00, 0xAA, 0x00, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeFrame(tt.in); !errors.Is(err, ErrIntegrityCheckFailed) {
				t.Errorf("err = %v, want ErrIntegrityCheckFailed", err)
			}
		})
	}
}

func TestFrameErr(t *testing.T) {
	if err := (Frame{ID: uint8(StatusRequestContinue)}).Err(); err != nil {
		t.Errorf("RequestContinue: %v", err)
	}

	err := Frame{ID: uint8(StatusCRCError)}.Err()
	if !errors.Is(err, ErrChipStatus) || !errors.Is(err, ErrIntegrityCheckFailed) {
		t.Errorf("CRCError: %v should match ErrChipStatus and ErrIntegrityCheckFailed", err)
	}

	err = Frame{ID: uint8(StatusNoSession)}.Err()
	var se *StatusError
	if !errors.As(err, &se) || se.Status != StatusNoSession {
		t.Errorf("NoSession: %v", err)
	}
	if errors.Is(err, ErrIntegrityCheckFailed) {
		t.Error("NoSession should not match ErrIntegrityCheckFailed")
	}
}

func TestStrings(t *testing.T) {
	if s := RequestEncryptedCmd.String(); s != "EncryptedCmd" {
		t.Errorf("RequestEncryptedCmd = %q", s)
	}
	if s := StatusTagError.String(); s != "TagError" {
		t.Errorf("StatusTagError = %q", s)
	}
	if s := Status(0x55).String(); s != "Status(0x55)" {
		t.Errorf("Status(0x55) = %q", s)
	}
}
