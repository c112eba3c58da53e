package l2

import (
	"time"

	"github.com/cenkalti/backoff"
)

// PollConfig controls the busy-wait loop that runs after every request.
type PollConfig struct {
	// Interval is the delay before the second poll. Default: 25ms.
	Interval time.Duration

	// Multiplier grows the delay after every poll. Values <= 1 keep the
	// delay constant. Default: 1.
	Multiplier float64

	// MaxInterval caps the delay when Multiplier > 1. Default: 10 * Interval.
	MaxInterval time.Duration

	// MaxRetries is the number of additional polls after the first one.
	// Default: 50.
	MaxRetries uint64

	// ReceiveTimeout bounds each adapter Receive. Default: 100ms.
	ReceiveTimeout time.Duration
}

// WithDefaults returns a copy of c with zero fields replaced by defaults.
func (c PollConfig) WithDefaults() PollConfig {
	if c.Interval == 0 {
		c.Interval = 25 * time.Millisecond
	}
	if c.Multiplier == 0 {
		c.Multiplier = 1
	}
	if c.MaxInterval == 0 {
		c.MaxInterval = 10 * c.Interval
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 50
	}
	if c.ReceiveTimeout == 0 {
		c.ReceiveTimeout = 100 * time.Millisecond
	}
	return c
}

// NewBackOff returns a fresh poll schedule. It yields backoff.Stop once
// MaxRetries delays were handed out.
func (c PollConfig) NewBackOff() backoff.BackOff {
	var b backoff.BackOff
	if c.Multiplier <= 1 {
		b = backoff.NewConstantBackOff(c.Interval)
	} else {
		e := backoff.NewExponentialBackOff()
		e.InitialInterval = c.Interval
		e.Multiplier = c.Multiplier
		e.MaxInterval = c.MaxInterval
		e.RandomizationFactor = 0
		e.MaxElapsedTime = 0
		e.Reset()
		b = e
	}
	return backoff.WithMaxRetries(b, c.MaxRetries)
}
