package stream

import (
	"errors"
	"fmt"

	"github.com/couchcryptid/tideguard-telemetry/internal/domain"
)

// ErrConnClosed is returned by Conn.Read when the remote end closed the
// connection cleanly.
var ErrConnClosed = errors.New("stream: connection closed")

// TransportConnectError reports one failed dial. Attempt is 0 for the
// initial connect and counts up for reconnection attempts.
type TransportConnectError struct {
	Transport string
	Attempt   int
	Err       error
}

func (e *TransportConnectError) Error() string {
	return fmt.Sprintf("stream: connect via %s (attempt %d): %v", e.Transport, e.Attempt, e.Err)
}

func (e *TransportConnectError) Unwrap() error { return e.Err }

// TransportExhaustedError reports that the manager gave up and entered the
// failed state. Err is the last dial error.
type TransportExhaustedError struct {
	Attempts int
	Err      error
}

func (e *TransportExhaustedError) Error() string {
	return fmt.Sprintf("stream: giving up after %d failed attempts: %v", e.Attempts, e.Err)
}

func (e *TransportExhaustedError) Unwrap() error { return e.Err }

// EmitWhileDisconnectedWarning reports an Emit made while not connected.
type EmitWhileDisconnectedWarning struct {
	Event  string
	Status domain.ConnectionStatus
}

func (e *EmitWhileDisconnectedWarning) Error() string {
	return fmt.Sprintf("stream: dropped %q emitted while %s", e.Event, e.Status)
}
