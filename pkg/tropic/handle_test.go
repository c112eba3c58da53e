package tropic

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/stretchr/testify/require"

	"github.com/tropicsquare/tropic-go/pkg/chipsim"
	"github.com/tropicsquare/tropic-go/pkg/crypto"
	"github.com/tropicsquare/tropic-go/pkg/l2"
	"github.com/tropicsquare/tropic-go/pkg/l3"
	"github.com/tropicsquare/tropic-go/pkg/transport"
)

const helloMessage = "This is Hello World message from TROPIC01!!"

var testPoll = l2.PollConfig{Interval: time.Millisecond, MaxRetries: 10}

func newHostKeys(t *testing.T) HostKeys {
	t.Helper()
	kp, err := crypto.X25519GenerateKeyPair()
	require.NoError(t, err)
	return HostKeys{Private: kp.Private, Public: kp.Public}
}

// newTestHandle opens a handle on a chip model that has the returned host
// keys paired on slot 0.
func newTestHandle(t *testing.T) (*Handle, *chipsim.Chip, HostKeys) {
	t.Helper()
	keys := newHostKeys(t)
	chip, err := chipsim.New(chipsim.Config{
		PairingKeys:   map[Slot][32]byte{0: keys.Public},
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	require.NoError(t, err)

	h, err := Open(Config{
		Adapter:       chip,
		Poll:          testPoll,
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h, chip, keys
}

func startSession(t *testing.T, h *Handle, keys HostKeys) {
	t.Helper()
	require.NoError(t, h.VerifyChipAndStartSecureSession(context.Background(), keys, 0))
	require.Equal(t, StateSecureActive, h.State())
}

func TestOpen(t *testing.T) {
	_, err := Open(Config{})
	require.ErrorIs(t, err, ErrNoTransport)

	chip, err := chipsim.New(chipsim.Config{})
	require.NoError(t, err)
	_, err = Open(Config{Adapter: chip, L3Buffer: make([]byte, 100)})
	require.ErrorIs(t, err, ErrBufferTooSmall)

	h, err := Open(Config{Adapter: chip, L3Buffer: make([]byte, l3.FrameMaxSize)})
	require.NoError(t, err)
	require.Equal(t, StateChannelReady, h.State())
	send, recv := h.Counters()
	require.Zero(t, send)
	require.Zero(t, recv)
}

func TestHelloWorld(t *testing.T) {
	h, _, keys := newTestHandle(t)
	startSession(t, h, keys)

	echo, err := h.Ping(context.Background(), []byte(helloMessage))
	require.NoError(t, err)
	require.Equal(t, helloMessage, string(echo))

	send, recv := h.Counters()
	require.Equal(t, uint32(1), send)
	require.Equal(t, uint32(1), recv)
	require.Equal(t, Slot(0), h.Slot())

	h.AbortSession()
	require.Equal(t, StateChannelReady, h.State())
}

func TestSendCommand_NoSession(t *testing.T) {
	h, chip, _ := newTestHandle(t)

	_, _, err := h.SendCommand(context.Background(), l3.CmdPing, []byte("x"))
	require.ErrorIs(t, err, ErrNoActiveSession)
	require.Zero(t, chip.Stats().Windows, "nothing may reach the bus")
	require.Equal(t, StateChannelReady, h.State())
}

func TestCountersAdvancePerCommand(t *testing.T) {
	h, _, keys := newTestHandle(t)
	startSession(t, h, keys)

	for i := 1; i <= 5; i++ {
		_, err := h.Ping(context.Background(), []byte{byte(i)})
		require.NoError(t, err)
		send, recv := h.Counters()
		require.Equal(t, uint32(i), send)
		require.Equal(t, uint32(i), recv)
	}

	// A fresh session starts counting from zero.
	h.AbortSession()
	startSession(t, h, keys)
	send, recv := h.Counters()
	require.Zero(t, send)
	require.Zero(t, recv)
}

func TestPing_Sizes(t *testing.T) {
	h, _, keys := newTestHandle(t)
	startSession(t, h, keys)
	ctx := context.Background()

	for _, n := range []int{0, 1, l2.MaxPayloadSize, PingMaxSize} {
		msg := bytes.Repeat([]byte{byte(n)}, n)
		echo, err := h.Ping(ctx, msg)
		require.NoError(t, err, "ping of %d bytes", n)
		require.Equal(t, msg, echo)
	}

	_, err := h.Ping(ctx, make([]byte, PingMaxSize+1))
	require.ErrorIs(t, err, ErrPayloadTooLarge)
	require.Equal(t, StateSecureActive, h.State())
}

func TestHandshake_BusyTimeout(t *testing.T) {
	h, chip, keys := newTestHandle(t)

	chip.BusyPolls(1000)
	err := h.StartSecureSession(context.Background(), keys, 0, chip.StaticPublicKey())
	require.ErrorIs(t, err, ErrTimeout)
	require.Equal(t, StateChannelReady, h.State())

	chip.BusyPolls(0)
	startSession(t, h, keys)
}

func TestHandshake_Failures(t *testing.T) {
	tests := []struct {
		name string
		run  func(h *Handle, chip *chipsim.Chip, keys HostKeys) error
	}{
		{
			name: "UnpairedSlot",
			run: func(h *Handle, chip *chipsim.Chip, keys HostKeys) error {
				return h.StartSecureSession(context.Background(), keys, 2, chip.StaticPublicKey())
			},
		},
		{
			name: "WrongHostKeys",
			run: func(h *Handle, chip *chipsim.Chip, _ HostKeys) error {
				other := newHostKeys(t)
				return h.StartSecureSession(context.Background(), other, 0, chip.StaticPublicKey())
			},
		},
		{
			name: "WrongChipKey",
			run: func(h *Handle, _ *chipsim.Chip, keys HostKeys) error {
				var stpub [32]byte
				stpub[0] = 9
				return h.StartSecureSession(context.Background(), keys, 0, stpub)
			},
		},
		{
			name: "Rejected",
			run: func(h *Handle, chip *chipsim.Chip, keys HostKeys) error {
				chip.RejectHandshake()
				return h.StartSecureSession(context.Background(), keys, 0, chip.StaticPublicKey())
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, chip, keys := newTestHandle(t)
			err := tc.run(h, chip, keys)
			require.ErrorIs(t, err, ErrAuthenticationFailed)
			require.Equal(t, StateChannelReady, h.State())

			_, _, err = h.SendCommand(context.Background(), l3.CmdPing, nil)
			require.ErrorIs(t, err, ErrNoActiveSession)
		})
	}
}

func TestHandshake_InvalidState(t *testing.T) {
	h, chip, keys := newTestHandle(t)
	startSession(t, h, keys)

	err := h.StartSecureSession(context.Background(), keys, 0, chip.StaticPublicKey())
	require.ErrorIs(t, err, ErrInvalidState)
	require.Equal(t, StateSecureActive, h.State())
}

func TestCorruptResponse_AbortsSession(t *testing.T) {
	h, chip, keys := newTestHandle(t)
	startSession(t, h, keys)

	chip.CorruptNextResponse()
	_, err := h.Ping(context.Background(), []byte(helloMessage))
	require.ErrorIs(t, err, ErrIntegrityCheckFailed)
	require.Equal(t, StateAborted, h.State())

	var execErr *l3.ExecuteError
	require.True(t, errors.As(err, &execErr))
	require.True(t, execErr.Sent())

	_, _, err = h.SendCommand(context.Background(), l3.CmdPing, nil)
	require.ErrorIs(t, err, ErrNoActiveSession)

	// A new handshake recovers from Aborted.
	startSession(t, h, keys)
	_, err = h.Ping(context.Background(), []byte(helloMessage))
	require.NoError(t, err)
}

func TestReplayedResult_AbortsSession(t *testing.T) {
	h, chip, keys := newTestHandle(t)
	startSession(t, h, keys)
	ctx := context.Background()

	_, err := h.Ping(ctx, []byte("one"))
	require.NoError(t, err)

	chip.ReplayLastResult()
	_, err = h.Ping(ctx, []byte("two"))
	require.ErrorIs(t, err, ErrSecureChannelViolation)
	require.Equal(t, StateAborted, h.State())
	send, recv := h.Counters()
	require.Zero(t, send)
	require.Zero(t, recv)
}

// flakyAdapter drops the nth encrypted command chunk with an error.
type flakyAdapter struct {
	transport.Adapter
	failAt int
	chunks int
}

var errWireGlitch = errors.New("wire glitch")

func (a *flakyAdapter) Send(p []byte) error {
	if len(p) > 0 && p[0] == byte(l2.RequestEncryptedCmd) {
		a.chunks++
		if a.chunks == a.failAt {
			return errWireGlitch
		}
	}
	return a.Adapter.Send(p)
}

func TestPartialCommand_AbortsSession(t *testing.T) {
	keys := newHostKeys(t)
	chip, err := chipsim.New(chipsim.Config{PairingKeys: map[Slot][32]byte{0: keys.Public}})
	require.NoError(t, err)
	adapter := &flakyAdapter{Adapter: chip, failAt: 2}
	h, err := Open(Config{Adapter: adapter, Poll: testPoll})
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	startSession(t, h, keys)
	ctx := context.Background()

	_, err = h.Ping(ctx, make([]byte, 1000))
	require.ErrorIs(t, err, errWireGlitch)
	var ee *l3.ExecuteError
	require.ErrorAs(t, err, &ee)
	require.True(t, ee.Sent())
	require.Equal(t, StateAborted, h.State())

	_, err = h.Ping(ctx, []byte("x"))
	require.ErrorIs(t, err, ErrNoActiveSession)

	// A fresh handshake discards the chip's half-received frame.
	startSession(t, h, keys)
	echo, err := h.Ping(ctx, []byte(helloMessage))
	require.NoError(t, err)
	require.Equal(t, helloMessage, string(echo))
}

func TestChipLostSession_AbortsSession(t *testing.T) {
	h, chip, keys := newTestHandle(t)
	startSession(t, h, keys)

	// Another host on the bus ends the chip session behind our back.
	codec, err := l2.New(l2.Config{Adapter: chip, Poll: testPoll})
	require.NoError(t, err)
	_, err = codec.Exchange(context.Background(), l2.RequestEncryptedSessionAbort, nil)
	require.NoError(t, err)

	_, err = h.Ping(context.Background(), []byte("x"))
	require.ErrorIs(t, err, ErrSecureChannelViolation)
	require.Equal(t, StateAborted, h.State())
}

func TestSendCommand_CanceledBeforeSend(t *testing.T) {
	h, chip, keys := newTestHandle(t)
	startSession(t, h, keys)
	windows := chip.Stats().Windows

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := h.SendCommand(ctx, l3.CmdPing, []byte("x"))
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StateSecureActive, h.State())
	require.Equal(t, windows, chip.Stats().Windows)

	send, _ := h.Counters()
	require.Zero(t, send)
	_, err = h.Ping(context.Background(), []byte("x"))
	require.NoError(t, err)
}

func TestAbortSession(t *testing.T) {
	h, chip, keys := newTestHandle(t)

	// Without a session it does nothing.
	h.AbortSession()
	require.Equal(t, StateChannelReady, h.State())
	require.Zero(t, chip.Stats().Windows)

	startSession(t, h, keys)
	require.True(t, chip.SessionActive())
	h.AbortSession()
	h.AbortSession()
	require.Equal(t, StateChannelReady, h.State())
	require.False(t, chip.SessionActive(), "chip was not told to drop the session")
}

func TestClose(t *testing.T) {
	h, chip, keys := newTestHandle(t)
	startSession(t, h, keys)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	require.Equal(t, StateUninitialized, h.State())

	_, _, err := h.SendCommand(context.Background(), l3.CmdPing, nil)
	require.ErrorIs(t, err, ErrNoActiveSession)
	err = h.StartSecureSession(context.Background(), keys, 0, chip.StaticPublicKey())
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = h.ChipID(context.Background())
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestSleepAndReboot_EndSession(t *testing.T) {
	h, chip, keys := newTestHandle(t)
	ctx := context.Background()

	startSession(t, h, keys)
	require.NoError(t, h.Sleep(ctx))
	require.Equal(t, StateChannelReady, h.State())
	require.False(t, chip.SessionActive())

	startSession(t, h, keys)
	require.NoError(t, h.Reboot(ctx))
	require.Equal(t, StateChannelReady, h.State())
	require.False(t, chip.SessionActive())
}

func TestEndToEnd_TCPModel(t *testing.T) {
	keys := newHostKeys(t)
	chip, err := chipsim.New(chipsim.Config{PairingKeys: map[Slot][32]byte{0: keys.Public}})
	require.NoError(t, err)

	pipe := transport.NewPipe()
	defer pipe.Close()
	go chip.Serve(pipe.Listener())

	adapter, err := transport.DialTCP(transport.TCPConfig{Conn: pipe.HostConn()})
	require.NoError(t, err)

	h, err := Open(Config{Adapter: adapter, Poll: testPoll})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, h.VerifyChipAndStartSecureSession(ctx, keys, 0))
	echo, err := h.Ping(ctx, []byte(helloMessage))
	require.NoError(t, err)
	require.Equal(t, helloMessage, string(echo))

	h.AbortSession()
	require.NoError(t, h.Close())

	// Close released the adapter.
	require.ErrorIs(t, adapter.AssertChipSelect(), transport.ErrClosed)
}
