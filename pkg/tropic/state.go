package tropic

import "fmt"

// State is the lifecycle state of a Handle.
type State int

// Handle states.
const (
	StateUninitialized State = iota
	StateChannelReady
	StateHandshakeInProgress
	StateSecureActive
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateChannelReady:
		return "ChannelReady"
	case StateHandshakeInProgress:
		return "HandshakeInProgress"
	case StateSecureActive:
		return "SecureActive"
	case StateAborted:
		return "Aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
