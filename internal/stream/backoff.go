package stream

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NewBackOff returns the default reconnection delay policy: exponential from
// base, doubling per failure, capped at max, no jitter, never stopping. With
// base 1s and max 5s the delays are 1s, 2s, 4s, 5s, 5s.
func NewBackOff(base, max time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = max
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
