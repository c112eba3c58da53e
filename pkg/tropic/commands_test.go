package tropic

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tropicsquare/tropic-go/pkg/crypto"
	"github.com/tropicsquare/tropic-go/pkg/l3"
)

func requireCommandStatus(t *testing.T, err error, want l3.Status) {
	t.Helper()
	require.ErrorIs(t, err, ErrCommandFailed)
	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	require.Equal(t, want, cmdErr.Status)
}

func TestRandomValueGet(t *testing.T) {
	h, _, keys := newTestHandle(t)
	startSession(t, h, keys)
	ctx := context.Background()

	for _, n := range []int{0, 1, 32, RandomValueMaxSize} {
		b, err := h.RandomValueGet(ctx, n)
		require.NoError(t, err)
		require.Len(t, b, n)
	}

	_, err := h.RandomValueGet(ctx, RandomValueMaxSize+1)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = h.RandomValueGet(ctx, -1)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPairingKeys(t *testing.T) {
	h, chip, keys := newTestHandle(t)
	startSession(t, h, keys)
	ctx := context.Background()

	got, err := h.PairingKeyRead(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, keys.Public, got)

	_, err = h.PairingKeyRead(ctx, 1)
	requireCommandStatus(t, err, l3.StatusFail)

	second := newHostKeys(t)
	require.NoError(t, h.PairingKeyWrite(ctx, 1, second.Public))
	got, err = h.PairingKeyRead(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, second.Public, got)

	// Written slots are write-once.
	requireCommandStatus(t, h.PairingKeyWrite(ctx, 1, keys.Public), l3.StatusFail)

	// Only the configuration slot may change pairing keys.
	h.AbortSession()
	require.NoError(t, h.StartSecureSession(ctx, second, 1, chip.StaticPublicKey()))
	requireCommandStatus(t, h.PairingKeyWrite(ctx, 2, second.Public), l3.StatusUnauthorized)
	requireCommandStatus(t, h.PairingKeyInvalidate(ctx, 0), l3.StatusUnauthorized)
	require.Equal(t, StateSecureActive, h.State(), "a failed command keeps the session")

	h.AbortSession()
	startSession(t, h, keys)
	require.NoError(t, h.PairingKeyInvalidate(ctx, 1))
	_, err = h.PairingKeyRead(ctx, 1)
	requireCommandStatus(t, err, l3.StatusFail)

	h.AbortSession()
	err = h.StartSecureSession(ctx, second, 1, chip.StaticPublicKey())
	require.ErrorIs(t, err, ErrAuthenticationFailed)

	_, err = h.PairingKeyRead(ctx, 4)
	require.ErrorIs(t, err, ErrInvalidSlot)
}

func TestEcdsa(t *testing.T) {
	h, _, keys := newTestHandle(t)
	startSession(t, h, keys)
	ctx := context.Background()

	require.NoError(t, h.EccKeyGenerate(ctx, 3, CurveP256))
	requireCommandStatus(t, h.EccKeyGenerate(ctx, 3, CurveP256), l3.StatusFail)

	key, err := h.EccKeyRead(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, CurveP256, key.Curve)
	require.Equal(t, OriginGenerated, key.Origin)
	require.Len(t, key.Public, 64)

	digest := crypto.SHA256([]byte(helloMessage))
	sig, err := h.EcdsaSign(ctx, 3, digest)
	require.NoError(t, err)
	valid, err := crypto.P256VerifyDigest(key.Public, digest[:], sig[:])
	require.NoError(t, err)
	require.True(t, valid)

	// Wrong curve for the operation.
	_, err = h.EddsaSign(ctx, 3, []byte("msg"))
	requireCommandStatus(t, err, l3.StatusFail)

	require.NoError(t, h.EccKeyErase(ctx, 3))
	_, err = h.EccKeyRead(ctx, 3)
	requireCommandStatus(t, err, l3.StatusFail)
	_, err = h.EcdsaSign(ctx, 3, digest)
	requireCommandStatus(t, err, l3.StatusFail)
}

func TestEddsa(t *testing.T) {
	h, _, keys := newTestHandle(t)
	startSession(t, h, keys)
	ctx := context.Background()

	require.NoError(t, h.EccKeyGenerate(ctx, EccSlotCount-1, CurveEd25519))
	key, err := h.EccKeyRead(ctx, EccSlotCount-1)
	require.NoError(t, err)
	require.Equal(t, CurveEd25519, key.Curve)
	require.Len(t, key.Public, ed25519.PublicKeySize)

	msg := make([]byte, 1000)
	sig, err := h.EddsaSign(ctx, EccSlotCount-1, msg)
	require.NoError(t, err)
	require.True(t, ed25519.Verify(key.Public, msg, sig[:]))
}

func TestEcc_InvalidArguments(t *testing.T) {
	h, chip, keys := newTestHandle(t)
	startSession(t, h, keys)
	ctx := context.Background()
	windows := chip.Stats().Windows

	require.ErrorIs(t, h.EccKeyGenerate(ctx, EccSlotCount, CurveP256), ErrInvalidArgument)
	require.ErrorIs(t, h.EccKeyGenerate(ctx, 0, EccCurve(9)), ErrInvalidArgument)
	_, err := h.EccKeyRead(ctx, EccSlotCount)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = h.EddsaSign(ctx, 0, make([]byte, EddsaMessageMax+1))
	require.ErrorIs(t, err, ErrPayloadTooLarge)
	require.Equal(t, windows, chip.Stats().Windows)
}

func TestMonotonicCounters(t *testing.T) {
	h, _, keys := newTestHandle(t)
	startSession(t, h, keys)
	ctx := context.Background()

	_, err := h.MCounterGet(ctx, 5)
	requireCommandStatus(t, err, l3.StatusFail)

	require.NoError(t, h.MCounterInit(ctx, 5, 2))
	require.NoError(t, h.MCounterUpdate(ctx, 5))
	v, err := h.MCounterGet(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, uint32(1), v)

	require.NoError(t, h.MCounterUpdate(ctx, 5))
	requireCommandStatus(t, h.MCounterUpdate(ctx, 5), l3.StatusFail)
	v, err = h.MCounterGet(ctx, 5)
	require.NoError(t, err)
	require.Zero(t, v)

	require.ErrorIs(t, h.MCounterInit(ctx, MCounterCount, 1), ErrInvalidArgument)
}

func TestCommands_NeedSession(t *testing.T) {
	h, _, _ := newTestHandle(t)
	ctx := context.Background()

	_, err := h.Ping(ctx, nil)
	require.ErrorIs(t, err, ErrNoActiveSession)
	_, err = h.RandomValueGet(ctx, 4)
	require.ErrorIs(t, err, ErrNoActiveSession)
	require.ErrorIs(t, h.MCounterUpdate(ctx, 0), ErrNoActiveSession)
}

func TestCommandError(t *testing.T) {
	err := error(&CommandError{Code: l3.CmdPing, Status: l3.StatusUnauthorized})
	require.ErrorIs(t, err, ErrCommandFailed)
	require.Contains(t, err.Error(), "Ping")
}
