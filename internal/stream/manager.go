package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/tideguard-telemetry/internal/domain"
	"github.com/couchcryptid/tideguard-telemetry/internal/observability"
)

// Manager owns one logical stream connection: it dials, retries with
// backoff, and fans events out to subscribers.
//
// All state lives behind mu. Dial results, read errors and retry timers
// carry the epoch they were started under and are ignored once Connect or
// Disconnect has moved the epoch on.
type Manager struct {
	transport  Transport
	opts       Options
	clock      clockwork.Clock
	newBackOff func() backoff.BackOff
	logger     *slog.Logger
	metrics    *observability.Metrics
	bus        *bus

	mu         sync.Mutex
	status     domain.ConnectionStatus
	handle     Handle
	epoch      uint64
	failures   int
	lastErr    error
	bo         backoff.BackOff
	conn       Conn
	connCancel context.CancelFunc
	dialCancel context.CancelFunc
	timer      clockwork.Timer
}

// New creates a Manager in the Disconnected state. Nothing is dialed until Connect.
func New(t Transport, opts Options, logger *slog.Logger, metrics *observability.Metrics, options ...Option) *Manager {
	opts = opts.withDefaults()
	m := &Manager{
		transport: t,
		opts:      opts,
		clock:     clockwork.NewRealClock(),
		logger:    logger,
		metrics:   metrics,
		bus:       newBus(logger),
		status:    domain.StatusDisconnected,
	}
	m.newBackOff = func() backoff.BackOff {
		return NewBackOff(opts.ReconnectionDelay, opts.ReconnectionDelayMax)
	}
	for _, o := range options {
		o(m)
	}
	return m
}

// Connect starts a connection session and returns its handle without
// blocking. While connecting, connected or reconnecting it returns the
// current handle and does nothing else.
func (m *Manager) Connect() Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.status {
	case domain.StatusConnecting, domain.StatusConnected, domain.StatusReconnecting:
		return m.handle
	}

	m.epoch++
	m.handle = Handle{ID: uuid.NewString(), Epoch: m.epoch}
	m.failures = 0
	m.lastErr = nil
	m.bo = m.newBackOff()
	m.bo.Reset()

	m.logger.Info("stream connecting", "transport", m.transport.Name(), "session", m.handle.ID)
	m.setStatusLocked(domain.StatusConnecting)
	m.dialLocked(0)
	return m.handle
}

// Disconnect releases the transport, cancels any pending retry or dial, and
// leaves the manager Disconnected. Results of work started earlier are discarded.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.epoch++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	wasConnected := m.conn != nil
	m.closeConnLocked()
	m.failures = 0

	m.setStatusLocked(domain.StatusDisconnected)
	if wasConnected {
		m.logger.Info("stream disconnected", "reason", ReasonClientDisconnect)
		m.bus.publish(Disconnected{Reason: ReasonClientDisconnect})
	}
}

// Emit sends an event to the remote endpoint. It never returns an error:
// when not connected, or when the write fails, the event is dropped and an
// EmitDropped event is raised instead.
func (m *Manager) Emit(name string, payload any) {
	m.mu.Lock()
	if m.status != domain.StatusConnected || m.conn == nil {
		warn := &EmitWhileDisconnectedWarning{Event: name, Status: m.status}
		m.mu.Unlock()
		m.dropEmit(name, warn)
		return
	}
	conn := m.conn
	m.mu.Unlock()

	frame := Frame{Event: name}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			m.dropEmit(name, fmt.Errorf("encode %s payload: %w", name, err))
			return
		}
		frame.Data = data
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.Timeout)
	defer cancel()
	if err := conn.Write(ctx, frame); err != nil {
		m.dropEmit(name, fmt.Errorf("write %s: %w", name, err))
	}
}

// On registers h for events named name. Handlers for the same name run in
// registration order. Registering before Connect is fine.
func (m *Manager) On(name string, h Handler) Subscription {
	return m.bus.subscribe(name, h)
}

// Off removes a subscription. Removing twice is a no-op.
func (m *Manager) Off(sub Subscription) {
	m.bus.unsubscribe(sub)
}

// Publish raises a local event through the same ordered dispatcher.
func (m *Manager) Publish(e Event) {
	m.bus.publish(e)
}

// Flush blocks until every event raised before the call has been delivered.
// It must not be called from a handler.
func (m *Manager) Flush() {
	m.bus.flush()
}

// Status returns the current connection status.
func (m *Manager) Status() domain.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Handle returns the current session handle.
func (m *Manager) Handle() Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}

// Close disconnects, delivers events still queued, and stops the dispatcher.
// It must not be called from a handler.
func (m *Manager) Close() {
	m.Disconnect()
	m.bus.close()
}

func (m *Manager) dialLocked(attempt int) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.Timeout)
	m.dialCancel = cancel
	m.metrics.ConnectAttempts.Inc()
	go m.dial(ctx, cancel, m.epoch, attempt)
}

func (m *Manager) dial(ctx context.Context, cancel context.CancelFunc, epoch uint64, attempt int) {
	conn, err := m.transport.Dial(ctx)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	if epoch != m.epoch {
		if conn != nil {
			_ = conn.Close()
		}
		m.logger.Debug("discarding stale dial result", "attempt", attempt)
		return
	}
	m.dialCancel = nil

	if err != nil {
		m.dialFailedLocked(attempt, err)
		return
	}

	readCtx, readCancel := context.WithCancel(context.Background())
	m.conn = conn
	m.connCancel = readCancel
	m.failures = 0
	m.bo.Reset()

	name := transportName(m.transport, conn)
	m.setStatusLocked(domain.StatusConnected)
	if attempt > 0 {
		m.metrics.Reconnects.Inc()
		m.logger.Info("stream reconnected", "transport", name, "attempt", attempt)
		m.bus.publish(Reconnected{Attempt: attempt})
	} else {
		m.logger.Info("stream connected", "transport", name)
	}
	m.bus.publish(Connected{Handle: m.handle, Transport: name})

	go m.readLoop(readCtx, conn, epoch)
}

func (m *Manager) dialFailedLocked(attempt int, err error) {
	m.failures++
	m.metrics.ConnectErrors.Inc()

	cerr := &TransportConnectError{Transport: m.transport.Name(), Attempt: attempt, Err: err}
	m.lastErr = cerr
	m.logger.Warn("stream connect failed", "attempt", attempt, "failures", m.failures, "error", err)

	if attempt == 0 {
		m.bus.publish(ConnectError{Err: cerr})
	} else {
		m.bus.publish(ReconnectError{Attempt: attempt, Err: cerr})
	}

	if !m.opts.Reconnection || m.failures >= m.opts.ReconnectionAttempts {
		m.failLocked()
		return
	}
	m.setStatusLocked(domain.StatusReconnecting)
	m.scheduleRetryLocked(attempt + 1)
}

func (m *Manager) failLocked() {
	m.metrics.RetriesExhausted.Inc()
	exhausted := &TransportExhaustedError{Attempts: m.failures, Err: m.lastErr}
	m.logger.Error("stream reconnection failed", "attempts", m.failures, "error", m.lastErr)
	m.setStatusLocked(domain.StatusFailed)
	m.bus.publish(ReconnectFailed{Err: exhausted})
}

func (m *Manager) scheduleRetryLocked(attempt int) {
	delay := m.bo.NextBackOff()
	if delay == backoff.Stop {
		m.failLocked()
		return
	}
	m.metrics.ReconnectDelay.Observe(delay.Seconds())
	m.logger.Info("stream reconnect scheduled", "attempt", attempt, "delay", delay)

	epoch := m.epoch
	m.timer = m.clock.AfterFunc(delay, func() { m.retry(epoch, attempt) })
}

func (m *Manager) retry(epoch uint64, attempt int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch || m.status != domain.StatusReconnecting {
		return
	}
	m.timer = nil
	m.dialLocked(attempt)
}

func (m *Manager) readLoop(ctx context.Context, conn Conn, epoch uint64) {
	for {
		f, err := conn.Read(ctx)
		if err != nil {
			m.connLost(conn, epoch, err)
			return
		}

		m.mu.Lock()
		if epoch != m.epoch || m.conn != conn {
			m.mu.Unlock()
			return
		}
		m.metrics.EventsReceived.WithLabelValues(f.Event).Inc()
		m.bus.publish(Message{Name: f.Event, Payload: f.Data})
		m.mu.Unlock()
	}
}

func (m *Manager) connLost(conn Conn, epoch uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch || m.conn != conn {
		return
	}
	m.closeConnLocked()

	reason := ReasonTransportError
	if errors.Is(err, ErrConnClosed) || errors.Is(err, io.EOF) {
		reason = ReasonTransportClose
	}
	m.logger.Warn("stream connection lost", "reason", reason, "error", err)
	m.bus.publish(Disconnected{Reason: reason})

	if !m.opts.Reconnection {
		m.setStatusLocked(domain.StatusDisconnected)
		return
	}
	m.failures = 0
	m.bo.Reset()
	m.setStatusLocked(domain.StatusReconnecting)
	m.scheduleRetryLocked(1)
}

func (m *Manager) closeConnLocked() {
	if m.conn == nil {
		return
	}
	m.connCancel()
	if err := m.conn.Close(); err != nil {
		m.logger.Debug("stream conn close", "error", err)
	}
	m.conn = nil
	m.connCancel = nil
}

func (m *Manager) setStatusLocked(to domain.ConnectionStatus) {
	if m.status == to {
		return
	}
	from := m.status
	m.status = to
	m.metrics.ConnectionStatus.Set(float64(to))
	m.logger.Debug("stream status changed", "from", from, "to", to)
	m.bus.publish(StatusChanged{From: from, To: to})
}

func (m *Manager) dropEmit(name string, err error) {
	m.metrics.EmitsDropped.Inc()
	m.logger.Warn("stream emit dropped", "event", name, "error", err)
	m.bus.publish(EmitDropped{Event: name, Err: err})
}
