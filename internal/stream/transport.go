package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Frame is the unit exchanged with the remote endpoint:
//
//	{"event": "weather_data", "data": {...}}
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Conn is one established duplex connection. Read blocks until a frame
// arrives, the context is done, or the connection ends; a clean remote close
// is reported as ErrConnClosed. Close unblocks a pending Read.
type Conn interface {
	Read(ctx context.Context) (Frame, error)
	Write(ctx context.Context, f Frame) error
	Close() error
}

// Transport opens connections of one kind.
type Transport interface {
	Name() string
	Dial(ctx context.Context) (Conn, error)
}

// namedConn tags a connection with the transport that produced it.
type namedConn struct {
	Conn
	name string
}

func (c namedConn) TransportName() string { return c.name }

type fallback struct {
	transports []Transport
}

// Fallback tries each transport in order on every dial and returns the first
// connection that succeeds. When all fail the errors are joined.
func Fallback(transports ...Transport) Transport {
	return &fallback{transports: transports}
}

func (f *fallback) Name() string {
	names := make([]string, len(f.transports))
	for i, t := range f.transports {
		names[i] = t.Name()
	}
	return strings.Join(names, ",")
}

func (f *fallback) Dial(ctx context.Context) (Conn, error) {
	if len(f.transports) == 0 {
		return nil, errors.New("no transports configured")
	}
	var errs []error
	for _, t := range f.transports {
		conn, err := t.Dial(ctx)
		if err == nil {
			return namedConn{Conn: conn, name: t.Name()}, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}

func transportName(t Transport, c Conn) string {
	if n, ok := c.(interface{ TransportName() string }); ok {
		return n.TransportName()
	}
	return t.Name()
}
