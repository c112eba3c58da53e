package handshake

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/tropicsquare/tropic-go/pkg/crypto"
	"github.com/tropicsquare/tropic-go/pkg/l2"
)

// chipExchanger answers handshake requests with a Responder.
type chipExchanger struct {
	responder *Responder
	pairing   [4]key

	status   l2.Status
	tamper   func(resp []byte) []byte
	err      error
	calls    int
	chipKeys *Keys
}

func (c *chipExchanger) Exchange(ctx context.Context, id l2.RequestID, payload []byte) (l2.Frame, error) {
	c.calls++
	if c.err != nil {
		return l2.Frame{}, c.err
	}
	if id != l2.RequestHandshake {
		return l2.Frame{ID: uint8(l2.StatusUnknownRequest)}, nil
	}
	if c.status != 0 {
		return l2.Frame{ID: uint8(c.status)}, nil
	}
	ehpub, slot, err := ParseRequest(payload)
	if err != nil {
		return l2.Frame{ID: uint8(l2.StatusGeneralError)}, nil
	}
	resp, keys, err := c.responder.Respond(ehpub, slot, c.pairing[slot])
	if err != nil {
		return l2.Frame{ID: uint8(l2.StatusHandshakeError)}, nil
	}
	c.chipKeys = keys
	if c.tamper != nil {
		resp = c.tamper(resp)
	}
	return l2.Frame{ID: uint8(l2.StatusResultOK), Payload: resp}, nil
}

func newHostKeys(t *testing.T) HostKeys {
	t.Helper()
	kp, err := crypto.X25519GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	return HostKeys{Private: kp.Private, Public: kp.Public}
}

func newChip(t *testing.T, slot Slot, host HostKeys) *chipExchanger {
	t.Helper()
	st, err := crypto.X25519GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	c := &chipExchanger{responder: NewResponder(*st, nil)}
	c.pairing[slot] = host.Public
	return c
}

func TestRun_KeysAgree(t *testing.T) {
	for slot := Slot(0); slot <= MaxSlot; slot++ {
		host := newHostKeys(t)
		chip := newChip(t, slot, host)

		keys, err := Run(context.Background(), chip, host, slot, chip.responder.StaticPublic())
		if err != nil {
			t.Fatalf("slot %d: %v", slot, err)
		}
		if keys.Slot != slot {
			t.Errorf("slot = %d, want %d", keys.Slot, slot)
		}
		if keys.Send != chip.chipKeys.Recv || keys.Recv != chip.chipKeys.Send {
			t.Errorf("slot %d: host and chip keys disagree", slot)
		}
		if keys.Send == keys.Recv {
			t.Error("send and receive keys must differ")
		}
	}
}

func TestRun_FreshKeysEveryHandshake(t *testing.T) {
	host := newHostKeys(t)
	chip := newChip(t, 0, host)
	stpub := chip.responder.StaticPublic()

	seen := make(map[key]bool)
	for i := 0; i < 8; i++ {
		keys, err := Run(context.Background(), chip, host, 0, stpub)
		if err != nil {
			t.Fatal(err)
		}
		if seen[keys.Send] || seen[keys.Recv] {
			t.Fatalf("handshake %d reused a session key", i)
		}
		seen[keys.Send] = true
		seen[keys.Recv] = true
	}
}

func TestRun_AuthenticationFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, c *chipExchanger, host *HostKeys, stpub *key)
		want  error
	}{
		{
			name: "wrong chip static key",
			setup: func(t *testing.T, c *chipExchanger, host *HostKeys, stpub *key) {
				other := newHostKeys(t)
				*stpub = other.Public
			},
			want: ErrAuthenticationFailed,
		},
		{
			name: "chip knows a different host key",
			setup: func(t *testing.T, c *chipExchanger, host *HostKeys, stpub *key) {
				c.pairing[0] = newHostKeys(t).Public
			},
			want: ErrAuthenticationFailed,
		},
		{
			name: "tampered tag",
			setup: func(t *testing.T, c *chipExchanger, host *HostKeys, stpub *key) {
				c.tamper = func(resp []byte) []byte {
					resp[len(resp)-1] ^= 0x01
					return resp
				}
			},
			want: ErrAuthenticationFailed,
		},
		{
			name: "tampered ephemeral key",
			setup: func(t *testing.T, c *chipExchanger, host *HostKeys, stpub *key) {
				c.tamper = func(resp []byte) []byte {
					resp[0] ^= 0x80
					return resp
				}
			},
			want: ErrAuthenticationFailed,
		},
		{
			name: "short response",
			setup: func(t *testing.T, c *chipExchanger, host *HostKeys, stpub *key) {
				c.tamper = func(resp []byte) []byte { return resp[:ResponseSize-1] }
			},
			want: ErrMalformedResponse,
		},
		{
			name: "chip rejects handshake",
			setup: func(t *testing.T, c *chipExchanger, host *HostKeys, stpub *key) {
				c.status = l2.StatusHandshakeError
			},
			want: l2.ErrChipStatus,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := newHostKeys(t)
			chip := newChip(t, 0, host)
			stpub := chip.responder.StaticPublic()
			tt.setup(t, chip, &host, &stpub)

			keys, err := Run(context.Background(), chip, host, 0, stpub)
			if keys != nil {
				t.Fatal("keys returned on failure")
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, ErrAuthenticationFailed) {
				t.Errorf("err = %v should match ErrAuthenticationFailed", err)
			}
		})
	}
}

func TestRun_RejectedBeforeIO(t *testing.T) {
	host := newHostKeys(t)
	chip := newChip(t, 0, host)
	stpub := chip.responder.StaticPublic()

	if _, err := Run(context.Background(), chip, host, MaxSlot+1, stpub); !errors.Is(err, ErrInvalidSlot) {
		t.Errorf("invalid slot: err = %v", err)
	}

	bad := host
	bad.Public[0] ^= 0xFF
	if _, err := Run(context.Background(), chip, bad, 0, stpub); !errors.Is(err, ErrInvalidHostKeys) {
		t.Errorf("mismatched host keys: err = %v", err)
	}

	if chip.calls != 0 {
		t.Errorf("exchanger called %d times", chip.calls)
	}
}

func TestRun_TransportErrorPropagates(t *testing.T) {
	host := newHostKeys(t)
	chip := newChip(t, 0, host)
	chip.err = l2.ErrTimeout

	_, err := Run(context.Background(), chip, host, 0, chip.responder.StaticPublic())
	if !errors.Is(err, l2.ErrTimeout) {
		t.Fatalf("err = %v, want l2.ErrTimeout", err)
	}
	if errors.Is(err, ErrAuthenticationFailed) {
		t.Error("timeout must not be reported as an authentication failure")
	}
}

func TestRun_RequestLayout(t *testing.T) {
	host := newHostKeys(t)
	var captured []byte
	ex := exchangerFunc(func(ctx context.Context, id l2.RequestID, payload []byte) (l2.Frame, error) {
		captured = append([]byte(nil), payload...)
		return l2.Frame{}, io.ErrUnexpectedEOF
	})

	// All-zero reader gives a known ephemeral key.
	zero := bytes.NewReader(make([]byte, 32))
	i, err := NewInitiator(Config{Exchanger: ex, Rand: zero})
	if err != nil {
		t.Fatal(err)
	}
	_, _ = i.Run(context.Background(), host, 2, host.Public)

	wantPub, err := crypto.X25519PublicKey(make([]byte, 32))
	if err != nil {
		t.Fatal(err)
	}
	if len(captured) != RequestSize || !bytes.Equal(captured[:32], wantPub[:]) || captured[32] != 2 {
		t.Errorf("request = %x", captured)
	}
}

type exchangerFunc func(ctx context.Context, id l2.RequestID, payload []byte) (l2.Frame, error)

func (f exchangerFunc) Exchange(ctx context.Context, id l2.RequestID, payload []byte) (l2.Frame, error) {
	return f(ctx, id, payload)
}

func TestParseRequest(t *testing.T) {
	req := make([]byte, RequestSize)
	req[0] = 0x42
	req[32] = 3
	ehpub, slot, err := ParseRequest(req)
	if err != nil || ehpub[0] != 0x42 || slot != 3 {
		t.Errorf("ParseRequest = %x, %d, %v", ehpub[:1], slot, err)
	}

	if _, _, err := ParseRequest(req[:10]); !errors.Is(err, ErrMalformedRequest) {
		t.Errorf("short: err = %v", err)
	}
	req[32] = 4
	if _, _, err := ParseRequest(req); !errors.Is(err, ErrInvalidSlot) {
		t.Errorf("bad slot: err = %v", err)
	}
}

func TestNewInitiator_NoExchanger(t *testing.T) {
	if _, err := NewInitiator(Config{}); !errors.Is(err, ErrNoExchanger) {
		t.Errorf("err = %v", err)
	}
}

func TestProtocolNameBlock(t *testing.T) {
	if !bytes.HasPrefix(protocolNameBlock[:], []byte(ProtocolName)) {
		t.Error("protocol name block must start with the protocol name")
	}
	for _, b := range protocolNameBlock[len(ProtocolName):] {
		if b != 0 {
			t.Fatal("protocol name block must be zero padded")
		}
	}
}
