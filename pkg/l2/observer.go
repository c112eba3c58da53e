package l2

import "time"

// Observer receives frame-level events. Calls are made synchronously from
// the codec, so implementations must be fast and must not call back into it.
type Observer interface {
	FrameSent(id RequestID, size int)
	FrameReceived(status Status, size int)
	PollRetry(attempt int, delay time.Duration)
	ExchangeFailed(id RequestID, err error)
}

// Observers fans events out to several observers.
type Observers []Observer

func (o Observers) FrameSent(id RequestID, size int) {
	for _, ob := range o {
		ob.FrameSent(id, size)
	}
}

func (o Observers) FrameReceived(status Status, size int) {
	for _, ob := range o {
		ob.FrameReceived(status, size)
	}
}

func (o Observers) PollRetry(attempt int, delay time.Duration) {
	for _, ob := range o {
		ob.PollRetry(attempt, delay)
	}
}

func (o Observers) ExchangeFailed(id RequestID, err error) {
	for _, ob := range o {
		ob.ExchangeFailed(id, err)
	}
}
