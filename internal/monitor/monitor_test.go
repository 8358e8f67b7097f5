package monitor_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/tideguard-telemetry/internal/domain"
	"github.com/couchcryptid/tideguard-telemetry/internal/monitor"
	"github.com/couchcryptid/tideguard-telemetry/internal/observability"
	"github.com/couchcryptid/tideguard-telemetry/internal/store"
	"github.com/couchcryptid/tideguard-telemetry/internal/stream"
	"github.com/couchcryptid/tideguard-telemetry/internal/stream/streamtest"
)

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	transport *streamtest.Transport
	conn      *streamtest.Conn
	clock     *clockwork.FakeClock
	manager   *stream.Manager
	metrics   *observability.Metrics
	monitor   *monitor.Monitor
}

func newFixture(t *testing.T, scope domain.DismissalScope) *fixture {
	t.Helper()
	f := &fixture{
		transport: streamtest.NewTransport("fake"),
		conn:      streamtest.NewConn(),
		clock:     clockwork.NewFakeClock(),
		metrics:   observability.NewMetricsForTesting(),
	}
	f.transport.Succeed(f.conn)
	f.manager = stream.New(f.transport, stream.DefaultOptions(), discardLogger(), f.metrics, stream.WithClock(f.clock))
	t.Cleanup(f.manager.Close)

	f.monitor = monitor.New(f.manager, store.New(f.clock), domain.NewAlertLatch(scope, f.clock), discardLogger(), f.metrics)
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	f.monitor.Start()
	require.Eventually(t, func() bool { return f.monitor.Snapshot().Status == domain.StatusConnected },
		time.Second, time.Millisecond)
}

func sampleJSON(wind, wave float64, active bool, ts int64) map[string]any {
	return map[string]any{
		"wind_speed":        wind,
		"wave_height":       wave,
		"temperature":       18.5,
		"humidity":          70.0,
		"pressure":          1012.3,
		"weather_condition": "Windy",
		"timestamp":         ts,
		"alert_active":      active,
	}
}

// push sends a sample and waits until the monitor has stored it.
func (f *fixture) push(t *testing.T, wind, wave float64, active bool, ts int64) monitor.View {
	t.Helper()
	f.conn.Push(monitor.EventWeatherData, sampleJSON(wind, wave, active, ts))
	require.Eventually(t, func() bool {
		s := f.monitor.Snapshot().Sample
		return s != nil && s.Timestamp == ts
	}, time.Second, time.Millisecond)
	f.manager.Flush()
	return f.monitor.Snapshot()
}

// --- tests ---

func TestMonitor_RequestsDataOnConnect(t *testing.T) {
	f := newFixture(t, domain.ScopeEpisode)
	f.start(t)

	require.Eventually(t, func() bool { return len(f.conn.Written()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, stream.Frame{Event: monitor.EventRequestData}, f.conn.Written()[0])
}

func TestMonitor_ScenarioSafe(t *testing.T) {
	f := newFixture(t, domain.ScopeEpisode)
	f.start(t)

	v := f.push(t, 45, 1.2, false, 1)

	assert.Equal(t, domain.LevelSafe, v.Level)
	assert.Empty(t, v.Message)
	assert.Equal(t, domain.LatchHidden, v.Banner)
	assert.False(t, v.Visible)
	require.NotNil(t, v.ReceivedAt)
	assert.Equal(t, f.clock.Now(), *v.ReceivedAt)
}

func TestMonitor_ScenarioWarning(t *testing.T) {
	f := newFixture(t, domain.ScopeEpisode)
	f.start(t)

	v := f.push(t, 95, 1.0, true, 1)

	assert.Equal(t, domain.LevelWarning, v.Level)
	assert.Contains(t, v.Message, "95")
	assert.Equal(t, domain.LatchShown, v.Banner)
	assert.True(t, v.Visible)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.AlertBannerVisible), 0)
	assert.InDelta(t, float64(domain.LevelWarning), testutil.ToFloat64(f.metrics.AlertLevel), 0)
}

func TestMonitor_ScenarioCriticalDismissed(t *testing.T) {
	f := newFixture(t, domain.ScopeEpisode)
	f.start(t)

	v := f.push(t, 95, 5.0, true, 1)
	assert.Equal(t, domain.LevelCritical, v.Level)
	assert.Contains(t, v.Message, "95")
	assert.Contains(t, v.Message, "5")

	require.True(t, f.monitor.Dismiss())
	assert.False(t, f.monitor.Dismiss())

	v = f.push(t, 95, 5.0, true, 2)
	assert.Equal(t, domain.LatchDismissed, v.Banner)
	assert.False(t, v.Visible)
	require.NotNil(t, v.LastDismissedLevel)
	assert.Equal(t, domain.LevelCritical, *v.LastDismissedLevel)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.AlertDismissals), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(f.metrics.AlertBannerVisible), 0)

	// Alert clears and returns: episode scope shows it again.
	f.push(t, 40, 1.0, false, 3)
	v = f.push(t, 95, 5.0, true, 4)
	assert.Equal(t, domain.LatchShown, v.Banner)
}

func TestMonitor_SessionScopeNeverReshows(t *testing.T) {
	f := newFixture(t, domain.ScopeSession)
	f.start(t)

	f.push(t, 95, 5.0, true, 1)
	require.True(t, f.monitor.Dismiss())

	f.push(t, 40, 1.0, false, 2)
	v := f.push(t, 95, 5.0, true, 3)
	assert.Equal(t, domain.LatchDismissed, v.Banner)
	assert.Equal(t, "session", v.Scope)
}

func TestMonitor_RejectsInvalidSample(t *testing.T) {
	f := newFixture(t, domain.ScopeEpisode)

	var mu sync.Mutex
	var rejected []monitor.SampleRejected
	f.manager.On(monitor.EventSampleRejected, func(e stream.Event) {
		mu.Lock()
		defer mu.Unlock()
		rejected = append(rejected, e.(monitor.SampleRejected))
	})
	f.start(t)

	before := f.push(t, 45, 1.2, false, 1)

	f.conn.Push(monitor.EventWeatherData, map[string]any{"wind_speed": "gale"})
	f.conn.Push(monitor.EventWeatherData, map[string]any{"wind_speed": 10})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(rejected) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	assert.Equal(t, "malformed payload", rejected[0].Err.Reason)
	assert.Equal(t, "missing", rejected[1].Err.Reason)
	mu.Unlock()

	after := f.monitor.Snapshot()
	assert.Equal(t, before.Sample, after.Sample)
	assert.InDelta(t, 2, testutil.ToFloat64(f.metrics.SamplesRejected), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.SamplesAccepted), 0)
}

func TestMonitor_CheckReadiness(t *testing.T) {
	f := newFixture(t, domain.ScopeEpisode)
	require.Error(t, f.monitor.CheckReadiness(context.Background()))

	f.start(t)
	f.push(t, 45, 1.2, false, 1)
	assert.NoError(t, f.monitor.CheckReadiness(context.Background()))
}

func TestMonitor_ConnectionLossHidesBanner(t *testing.T) {
	f := newFixture(t, domain.ScopeEpisode)
	f.start(t)

	f.push(t, 95, 1.0, true, 1)
	require.True(t, f.monitor.Dismiss())

	// Drop, then exhaust retries.
	f.conn.Fail(io.ErrUnexpectedEOF)
	for range 5 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
		cancel()
		f.clock.Advance(5 * time.Second)
		if f.manager.Status() == domain.StatusFailed {
			break
		}
	}
	require.Eventually(t, func() bool { return f.monitor.Snapshot().Status == domain.StatusFailed },
		time.Second, time.Millisecond)

	v := f.monitor.Snapshot()
	assert.False(t, v.Visible)
	assert.Equal(t, domain.LatchHidden, v.Banner, "failed connection ends the dismissed episode")
	require.NotNil(t, v.Sample, "last sample is retained")
}

func TestMonitor_DropAndReconnectReshowsBanner(t *testing.T) {
	f := newFixture(t, domain.ScopeEpisode)
	next := streamtest.NewConn()
	f.transport.Succeed(next)
	f.start(t)

	f.push(t, 95, 1.0, true, 1)
	require.True(t, f.monitor.Dismiss())

	f.conn.Fail(io.ErrUnexpectedEOF)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))

	f.manager.Flush()
	v := f.monitor.Snapshot()
	assert.Equal(t, domain.StatusReconnecting, v.Status)
	assert.Equal(t, domain.LatchHidden, v.Banner, "drop ends the dismissed episode")

	f.clock.Advance(5 * time.Second)
	require.Eventually(t, func() bool { return f.manager.Status() == domain.StatusConnected },
		time.Second, time.Millisecond)
	f.manager.Flush()

	f.conn = next
	v = f.push(t, 95, 1.0, true, 2)
	assert.Equal(t, domain.StatusConnected, v.Status)
	assert.Equal(t, domain.LatchShown, v.Banner)
	assert.True(t, v.Visible)

	require.Eventually(t, func() bool { return len(next.Written()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, monitor.EventRequestData, next.Written()[0].Event)
}

func TestMonitor_StalledRequestDoesNotBlockSamples(t *testing.T) {
	f := newFixture(t, domain.ScopeEpisode)
	release := make(chan struct{})
	f.conn.BlockWrites(release)
	f.start(t)

	v := f.push(t, 95, 1.0, true, 1)
	assert.Equal(t, domain.LatchShown, v.Banner)
	assert.Empty(t, f.conn.Written())

	close(release)
	require.Eventually(t, func() bool { return len(f.conn.Written()) == 1 }, time.Second, time.Millisecond)
}

func TestMonitor_SnapshotNeverTorn(t *testing.T) {
	f := newFixture(t, domain.ScopeEpisode)
	f.start(t)

	done := make(chan struct{})
	var torn []monitor.View
	go func() {
		defer close(done)
		for {
			v := f.monitor.Snapshot()
			if v.Sample != nil {
				level, msg := domain.Classify(*v.Sample)
				if level != v.Level || msg != v.Message {
					torn = append(torn, v)
				}
				if v.Sample.Timestamp == 40 {
					return
				}
			}
		}
	}()

	for ts := int64(1); ts <= 40; ts++ {
		if ts%2 == 0 {
			f.conn.Push(monitor.EventWeatherData, sampleJSON(95, 5.0, true, ts))
		} else {
			f.conn.Push(monitor.EventWeatherData, sampleJSON(40, 1.0, false, ts))
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("last sample never observed")
	}
	assert.Empty(t, torn)
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t, domain.ScopeEpisode)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.monitor.Run(ctx) }()

	require.Eventually(t, func() bool { return f.manager.Status() == domain.StatusConnected }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, domain.StatusDisconnected, f.manager.Status())
	assert.Equal(t, domain.StatusDisconnected, f.monitor.Snapshot().Status)
}
