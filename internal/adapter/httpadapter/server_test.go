package httpadapter_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/tideguard-telemetry/internal/adapter/httpadapter"
	"github.com/couchcryptid/tideguard-telemetry/internal/domain"
	"github.com/couchcryptid/tideguard-telemetry/internal/monitor"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockConsole struct {
	view      monitor.View
	dismissed bool
	calls     int
}

func (m *mockConsole) Snapshot() monitor.View { return m.view }

func (m *mockConsole) Dismiss() bool {
	m.calls++
	return m.dismissed
}

func newTestServer(readyErr error, console *mockConsole) *httpadapter.Server {
	if console == nil {
		console = &mockConsole{}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, console, logger)
}

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	srv := newTestServer(fmt.Errorf("no telemetry sample received yet"), nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStatusReturnsView(t *testing.T) {
	sample := domain.TelemetrySample{WindSpeedKmh: 95, WaveHeightM: 2, Timestamp: 1718000000}
	console := &mockConsole{view: monitor.View{
		Sample:  &sample,
		Status:  domain.StatusConnected,
		Level:   domain.LevelWarning,
		Message: "WARNING: High wind speed detected (95 km/h)!",
		Banner:  domain.LatchShown,
		Visible: true,
		Scope:   "episode",
	}}
	srv := newTestServer(nil, console)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "connected", body["status"])
	assert.Equal(t, "WARNING", body["level"])
	assert.Equal(t, "shown", body["banner"])
	assert.Equal(t, true, body["visible"])
	assert.Equal(t, "episode", body["dismissal_scope"])
	assert.NotContains(t, body, "received_at")

	s, ok := body["sample"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 95.0, s["wind_speed"])
}

func TestStatusRejectsPost(t *testing.T) {
	srv := newTestServer(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/status", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDismiss(t *testing.T) {
	tests := []struct {
		name      string
		dismissed bool
		wantCode  int
	}{
		{"banner shown", true, http.StatusNoContent},
		{"nothing to dismiss", false, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			console := &mockConsole{dismissed: tt.dismissed}
			srv := newTestServer(nil, console)
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/alert/dismiss", nil)

			srv.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, 1, console.calls)
		})
	}
}

func TestDismissRejectsGet(t *testing.T) {
	console := &mockConsole{dismissed: true}
	srv := newTestServer(nil, console)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/alert/dismiss", nil)

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Zero(t, console.calls)
}
