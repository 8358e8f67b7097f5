package stream

import (
	"encoding/json"

	"github.com/couchcryptid/tideguard-telemetry/internal/domain"
)

// Lifecycle event names raised by the Manager. Application events use the
// name carried in the frame.
const (
	EventConnect         = "connect"
	EventDisconnect      = "disconnect"
	EventConnectError    = "connect_error"
	EventReconnect       = "reconnect"
	EventReconnectError  = "reconnect_error"
	EventReconnectFailed = "reconnect_failed"
	EventStatus          = "status"
	EventEmitDropped     = "emit_dropped"
)

// Disconnect reasons.
const (
	ReasonClientDisconnect = "io client disconnect"
	ReasonTransportClose   = "transport close"
	ReasonTransportError   = "transport error"
)

// Event is anything delivered to subscribers. The concrete types below form
// a closed set for lifecycle events; Message carries application events.
type Event interface {
	EventName() string
}

// Handle identifies one logical connection session. A new handle is issued
// each time Connect starts from Disconnected or Failed.
type Handle struct {
	ID    string
	Epoch uint64
}

type Connected struct {
	Handle    Handle
	Transport string
}

type Disconnected struct {
	Reason string
}

type ConnectError struct {
	Err *TransportConnectError
}

type Reconnected struct {
	Attempt int
}

type ReconnectError struct {
	Attempt int
	Err     *TransportConnectError
}

type ReconnectFailed struct {
	Err *TransportExhaustedError
}

type StatusChanged struct {
	From domain.ConnectionStatus
	To   domain.ConnectionStatus
}

// EmitDropped reports an outbound event that was not delivered. Err is an
// *EmitWhileDisconnectedWarning or the write error.
type EmitDropped struct {
	Event string
	Err   error
}

// Message is an application event received from the remote endpoint. The
// payload is passed through uninterpreted.
type Message struct {
	Name    string
	Payload json.RawMessage
}

func (Connected) EventName() string       { return EventConnect }
func (Disconnected) EventName() string    { return EventDisconnect }
func (ConnectError) EventName() string    { return EventConnectError }
func (Reconnected) EventName() string     { return EventReconnect }
func (ReconnectError) EventName() string  { return EventReconnectError }
func (ReconnectFailed) EventName() string { return EventReconnectFailed }
func (StatusChanged) EventName() string   { return EventStatus }
func (EmitDropped) EventName() string     { return EventEmitDropped }
func (m Message) EventName() string       { return m.Name }
