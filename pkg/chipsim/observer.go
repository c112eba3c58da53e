package chipsim

import (
	"github.com/tropicsquare/tropic-go/pkg/handshake"
	"github.com/tropicsquare/tropic-go/pkg/l2"
	"github.com/tropicsquare/tropic-go/pkg/l3"
)

// Observer receives chip events. Calls are made with the chip locked.
type Observer interface {
	RequestHandled(id l2.RequestID, status l2.Status)
	CommandHandled(code l3.CommandCode, status l3.Status)
	SessionChanged(active bool, slot handshake.Slot)
}

// Stats counts bus activity.
type Stats struct {
	// Windows is the number of chip select windows.
	Windows int
	// Polls is the number of GetResponse polls, Busy those answered not
	// ready.
	Polls, Busy int
	// BytesIn and BytesOut count bytes clocked in and out.
	BytesIn, BytesOut int
	// Requests is the number of request frames received.
	Requests int
	// Commands is the number of decrypted L3 commands.
	Commands int
}
