package stream

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

// Options is the transport option set of the connection.
type Options struct {
	// Transports lists transport kinds in the order they are tried.
	Transports []string
	// Timeout bounds each dial.
	Timeout time.Duration
	// Reconnection enables automatic retry after a failure or drop.
	Reconnection bool
	// ReconnectionAttempts is the number of consecutive failures before Failed.
	ReconnectionAttempts int
	// ReconnectionDelay is the base retry delay.
	ReconnectionDelay time.Duration
	// ReconnectionDelayMax caps the retry delay.
	ReconnectionDelayMax time.Duration
}

// DefaultOptions returns the stock option set.
func DefaultOptions() Options {
	return Options{
		Transports:           []string{"websocket", "polling"},
		Timeout:              20 * time.Second,
		Reconnection:         true,
		ReconnectionAttempts: 5,
		ReconnectionDelay:    time.Second,
		ReconnectionDelayMax: 5 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if len(o.Transports) == 0 {
		o.Transports = d.Transports
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.ReconnectionAttempts <= 0 {
		o.ReconnectionAttempts = d.ReconnectionAttempts
	}
	if o.ReconnectionDelay <= 0 {
		o.ReconnectionDelay = d.ReconnectionDelay
	}
	if o.ReconnectionDelayMax < o.ReconnectionDelay {
		o.ReconnectionDelayMax = o.ReconnectionDelay
	}
	return o
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock sets the clock used for retry timers.
func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithBackOff replaces the reconnection delay policy. The factory is called
// once per connection session.
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(m *Manager) { m.newBackOff = factory }
}
