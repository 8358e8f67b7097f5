// Package streamtest provides scripted in-memory transports for tests of
// code built on stream.Manager.
package streamtest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/couchcryptid/tideguard-telemetry/internal/stream"
)

// ErrRefused is returned by Transport.Dial when no outcome is queued.
var ErrRefused = errors.New("streamtest: connection refused")

// Conn is an in-memory stream.Conn. Frames pushed with Push are returned by
// Read; frames passed to Write are recorded.
type Conn struct {
	frames chan stream.Frame
	errs   chan error
	closed chan struct{}
	once   sync.Once

	mu       sync.Mutex
	written  []stream.Frame
	writeErr error
	hold     <-chan struct{}
}

func NewConn() *Conn {
	return &Conn{
		frames: make(chan stream.Frame, 64),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (c *Conn) Read(ctx context.Context) (stream.Frame, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case err := <-c.errs:
		return stream.Frame{}, err
	case <-c.closed:
		return stream.Frame{}, stream.ErrConnClosed
	case <-ctx.Done():
		return stream.Frame{}, ctx.Err()
	}
}

func (c *Conn) Write(ctx context.Context, f stream.Frame) error {
	c.mu.Lock()
	hold := c.hold
	c.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-c.closed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case <-c.closed:
		return stream.ErrConnClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, f)
	return nil
}

func (c *Conn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// Push queues an inbound frame. data is JSON-encoded unless it is already
// a json.RawMessage or nil.
func (c *Conn) Push(event string, data any) {
	f := stream.Frame{Event: event}
	switch v := data.(type) {
	case nil:
	case json.RawMessage:
		f.Data = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			panic(err)
		}
		f.Data = b
	}
	c.frames <- f
}

// Fail makes the next Read return err, simulating a dropped connection.
func (c *Conn) Fail(err error) {
	c.errs <- err
}

// SetWriteError makes subsequent writes fail with err.
func (c *Conn) SetWriteError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// BlockWrites makes writes wait until release is closed, simulating a
// half-open connection.
func (c *Conn) BlockWrites(release <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hold = release
}

// Written returns a copy of the frames written so far.
func (c *Conn) Written() []stream.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]stream.Frame(nil), c.written...)
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type outcome struct {
	conn    *Conn
	err     error
	release <-chan struct{}
}

// Transport replays queued dial outcomes in order. With the queue empty,
// Dial fails with ErrRefused.
type Transport struct {
	name string

	mu       sync.Mutex
	outcomes []outcome
	dials    int
}

func NewTransport(name string) *Transport {
	return &Transport{name: name}
}

func (t *Transport) Name() string { return t.name }

// Succeed queues a dial that returns c.
func (t *Transport) Succeed(c *Conn) {
	t.push(outcome{conn: c})
}

// Refuse queues a dial that fails with err.
func (t *Transport) Refuse(err error) {
	t.push(outcome{err: err})
}

// Block queues a dial that waits for release and then returns c, ignoring
// dial cancellation.
func (t *Transport) Block(release <-chan struct{}, c *Conn) {
	t.push(outcome{conn: c, release: release})
}

// Dials returns the number of Dial calls so far.
func (t *Transport) Dials() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *Transport) Dial(_ context.Context) (stream.Conn, error) {
	t.mu.Lock()
	t.dials++
	if len(t.outcomes) == 0 {
		t.mu.Unlock()
		return nil, ErrRefused
	}
	o := t.outcomes[0]
	t.outcomes = t.outcomes[1:]
	t.mu.Unlock()

	if o.release != nil {
		<-o.release
	}
	if o.err != nil {
		return nil, o.err
	}
	return o.conn, nil
}

func (t *Transport) push(o outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outcomes = append(t.outcomes, o)
}
