package crypto

import "testing"

func TestBuildCounterNonce(t *testing.T) {
	tests := []struct {
		counter uint32
		want    [AESGCMNonceSize]byte
	}{
		{0, [AESGCMNonceSize]byte{}},
		{1, [AESGCMNonceSize]byte{0x01}},
		{0x01020304, [AESGCMNonceSize]byte{0x04, 0x03, 0x02, 0x01}},
		{0xFFFFFFFF, [AESGCMNonceSize]byte{0xFF, 0xFF, 0xFF, 0xFF}},
	}
	for _, tc := range tests {
		if got := BuildCounterNonce(tc.counter); got != tc.want {
			t.Errorf("BuildCounterNonce(%#x) = %x, want %x", tc.counter, got, tc.want)
		}
	}
}
