package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

// NIST FIPS 180-4 examples and CAVP short messages.
var sha256TestVectors = []struct {
	name     string
	message  string // hex-encoded input
	expected string // hex-encoded expected hash
}{
	{
		name:     "FIPS180-4_B1_abc",
		message:  "616263",
		expected: "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
	},
	{
		name:     "CAVP_empty",
		message:  "",
		expected: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
	},
	{
		name:     "CAVP_8bit",
		message:  "d3",
		expected: "28969cdfa74a12c82f3bad960b0b000aca2ac329deea5c2328ebc6f2ba9802c1",
	},
}

func TestSHA256(t *testing.T) {
	for _, tc := range sha256TestVectors {
		t.Run(tc.name, func(t *testing.T) {
			msg, _ := hex.DecodeString(tc.message)
			want, _ := hex.DecodeString(tc.expected)

			got := SHA256(msg)
			if !bytes.Equal(got[:], want) {
				t.Errorf("SHA256 = %x, want %x", got, want)
			}
		})
	}
}

func TestMixHash(t *testing.T) {
	var h [SHA256LenBytes]byte
	copy(h[:], "transcript")
	data := []byte{0x01, 0x02, 0x03}

	want := SHA256(append(append([]byte{}, h[:]...), data...))
	if got := MixHash(h, data); got != want {
		t.Errorf("MixHash = %x, want %x", got, want)
	}

	// Order matters.
	a := MixHash(MixHash(h, []byte("a")), []byte("b"))
	b := MixHash(MixHash(h, []byte("b")), []byte("a"))
	if a == b {
		t.Error("MixHash must depend on input order")
	}
}
