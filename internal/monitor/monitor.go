// Package monitor wires the stream connection to the sample store, the alert
// classifier and the banner latch.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/tideguard-telemetry/internal/domain"
	"github.com/couchcryptid/tideguard-telemetry/internal/observability"
	"github.com/couchcryptid/tideguard-telemetry/internal/store"
	"github.com/couchcryptid/tideguard-telemetry/internal/stream"
)

// Application event names.
const (
	EventWeatherData    = "weather_data"
	EventRequestData    = "request_data"
	EventSampleRejected = "sample_rejected"
)

// Stream is the connection surface the monitor drives. *stream.Manager implements it.
type Stream interface {
	Connect() stream.Handle
	Disconnect()
	Emit(name string, payload any)
	On(name string, h stream.Handler) stream.Subscription
	Off(sub stream.Subscription)
	Publish(e stream.Event)
}

// SampleRejected is raised when a weather_data payload fails validation.
type SampleRejected struct {
	Err     *domain.InvalidSampleError
	Payload json.RawMessage
}

func (SampleRejected) EventName() string { return EventSampleRejected }

// View is the derived state presented to the user.
type View struct {
	Sample             *domain.TelemetrySample `json:"sample"`
	ReceivedAt         *time.Time              `json:"received_at,omitempty"`
	Status             domain.ConnectionStatus `json:"status"`
	Level              domain.AlertLevel       `json:"level"`
	Message            string                  `json:"message"`
	Banner             domain.LatchState       `json:"banner"`
	Visible            bool                    `json:"visible"`
	Scope              string                  `json:"dismissal_scope"`
	LastDismissedLevel *domain.AlertLevel      `json:"last_dismissed_level,omitempty"`
}

// Monitor consumes stream events. Store and latch writes happen only on the
// stream's dispatcher; Dismiss and Snapshot may be called from any goroutine.
type Monitor struct {
	stream  Stream
	store   *store.Store
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool
	emits   sync.WaitGroup

	// mu guards the latch and the classification of the stored sample.
	// Store updates happen under it.
	mu      sync.Mutex
	latch   *domain.AlertLatch
	level   domain.AlertLevel
	message string
	subs    []stream.Subscription
}

// New creates a Monitor. Nothing is subscribed until Start.
func New(s Stream, st *store.Store, latch *domain.AlertLatch, logger *slog.Logger, metrics *observability.Metrics) *Monitor {
	return &Monitor{
		stream:  s,
		store:   st,
		latch:   latch,
		logger:  logger,
		metrics: metrics,
	}
}

// CheckReadiness returns nil once a valid sample has been stored.
func (m *Monitor) CheckReadiness(_ context.Context) error {
	if !m.ready.Load() {
		return errors.New("no telemetry sample received yet")
	}
	return nil
}

// Start subscribes to the stream and connects.
func (m *Monitor) Start() {
	m.mu.Lock()
	m.subs = append(m.subs,
		m.stream.On(stream.EventConnect, m.onConnect),
		m.stream.On(stream.EventStatus, m.onStatus),
		m.stream.On(EventWeatherData, m.onWeatherData),
	)
	m.mu.Unlock()

	handle := m.stream.Connect()
	m.logger.Info("monitor started", "session", handle.ID)
}

// Stop unsubscribes and disconnects.
func (m *Monitor) Stop() {
	m.mu.Lock()
	subs := m.subs
	m.subs = nil
	m.mu.Unlock()

	for _, sub := range subs {
		m.stream.Off(sub)
	}
	m.stream.Disconnect()
	m.emits.Wait()

	m.mu.Lock()
	m.store.SetStatus(domain.StatusDisconnected)
	m.mu.Unlock()
	m.logger.Info("monitor stopped")
}

// Run starts the monitor and blocks until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.Start()
	<-ctx.Done()
	m.logger.Info("monitor stopping", "reason", ctx.Err())
	m.Stop()
	return nil
}

// Dismiss hides the banner for the current alert. It reports false when the
// banner was not shown.
func (m *Monitor) Dismiss() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.latch.Dismiss() {
		return false
	}
	m.metrics.AlertDismissals.Inc()
	level, _ := m.latch.LastDismissedLevel()
	m.logger.Info("alert dismissed", "level", level, "scope", m.latch.Scope())
	m.updateBannerLocked()
	return true
}

// Snapshot returns the current derived state.
func (m *Monitor) Snapshot() View {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.store.Snapshot()

	v := View{
		Sample:  snap.Sample,
		Status:  snap.Status,
		Level:   m.level,
		Message: m.message,
		Banner:  m.latch.State(),
		Visible: m.latch.Visible(snap.Status),
		Scope:   m.latch.Scope().String(),
	}
	if !snap.ReceivedAt.IsZero() {
		t := snap.ReceivedAt
		v.ReceivedAt = &t
	}
	if lvl, ok := m.latch.LastDismissedLevel(); ok {
		v.LastDismissedLevel = &lvl
	}
	return v
}

// onConnect requests data off the dispatcher so a stalled write cannot hold
// up sample and status delivery.
func (m *Monitor) onConnect(stream.Event) {
	m.emits.Add(1)
	go func() {
		defer m.emits.Done()
		m.stream.Emit(EventRequestData, nil)
	}()
}

func (m *Monitor) onStatus(e stream.Event) {
	sc, ok := e.(stream.StatusChanged)
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store.SetStatus(sc.To)
	m.latch.OnStatus(sc.To)
	m.updateBannerLocked()
}

func (m *Monitor) onWeatherData(e stream.Event) {
	msg, ok := e.(stream.Message)
	if !ok {
		return
	}

	sample, err := domain.ParseSample(msg.Payload)
	if err != nil {
		m.reject(msg.Payload, err)
		return
	}
	level, text := domain.Classify(sample)

	m.mu.Lock()
	if err := m.store.Update(sample); err != nil {
		m.mu.Unlock()
		m.reject(msg.Payload, err)
		return
	}
	m.level = level
	m.message = text
	state := m.latch.OnSample(sample, level)
	m.metrics.AlertLevel.Set(float64(level))
	m.updateBannerLocked()
	m.mu.Unlock()

	m.metrics.SamplesAccepted.Inc()
	m.ready.Store(true)

	m.logger.Debug("sample stored",
		"wind_speed", sample.WindSpeedKmh,
		"wave_height", sample.WaveHeightM,
		"level", level,
		"banner", state,
	)
}

func (m *Monitor) reject(payload json.RawMessage, err error) {
	m.metrics.SamplesRejected.Inc()
	m.logger.Warn("sample rejected", "error", err)

	var invalid *domain.InvalidSampleError
	if !errors.As(err, &invalid) {
		invalid = &domain.InvalidSampleError{Reason: "rejected", Err: err}
	}
	m.stream.Publish(SampleRejected{Err: invalid, Payload: payload})
}

func (m *Monitor) updateBannerLocked() {
	_, status := m.store.Current()
	visible := 0.0
	if m.latch.Visible(status) {
		visible = 1
	}
	m.metrics.AlertBannerVisible.Set(visible)
}
