package tropic

import (
	"context"

	"github.com/tropicsquare/tropic-go/pkg/l2"
)

// Sleep and startup request arguments.
const (
	sleepKindSleep = 0x05
	startupReboot  = 0x01
)

// Sleep puts the chip to sleep. The chip drops any secure session, so the
// handle's session is wiped as well.
func (h *Handle) Sleep(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.exchange(ctx, l2.RequestSleep, []byte{sleepKindSleep}); err != nil {
		return err
	}
	h.abortLocked(false)
	return nil
}

// Reboot restarts the chip firmware. Like Sleep it ends the session.
func (h *Handle) Reboot(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.exchange(ctx, l2.RequestStartup, []byte{startupReboot}); err != nil {
		return err
	}
	h.abortLocked(false)
	return nil
}
