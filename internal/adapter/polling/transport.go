// Package polling implements the stream transport by polling the backend's
// latest-sample endpoint over plain HTTP.
package polling

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/tideguard-telemetry/internal/stream"
)

const (
	eventWeatherData = "weather_data"
	eventRequestData = "request_data"

	maxBodyBytes = 1 << 20
)

// Transport polls GET /api/latest every interval after a GET /health probe.
type Transport struct {
	baseURL  string
	interval time.Duration
	client   *http.Client
	clock    clockwork.Clock
	logger   *slog.Logger
}

// Option customizes a Transport.
type Option func(*Transport)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) { t.client = c }
}

// WithClock sets the clock driving the poll ticker.
func WithClock(c clockwork.Clock) Option {
	return func(t *Transport) { t.clock = c }
}

func NewTransport(baseURL string, interval time.Duration, logger *slog.Logger, opts ...Option) *Transport {
	t := &Transport{
		baseURL:  strings.TrimRight(baseURL, "/"),
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
		clock:    clockwork.NewRealClock(),
		logger:   logger,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Transport) Name() string { return "polling" }

func (t *Transport) Dial(ctx context.Context) (stream.Conn, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("create health request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health check: unexpected status %d", resp.StatusCode)
	}

	t.logger.Debug("polling connected", "url", t.baseURL, "interval", t.interval)
	return &conn{
		t:       t,
		ticker:  t.clock.NewTicker(t.interval),
		request: make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}, nil
}

type conn struct {
	t       *Transport
	ticker  clockwork.Ticker
	request chan struct{}
	closed  chan struct{}
	once    sync.Once

	// Read-side state, owned by the single reader.
	lastTS   int64
	haveLast bool
}

// Read waits for the next tick or an explicit request and returns the latest
// sample. On ticks an unchanged sample is skipped.
func (c *conn) Read(ctx context.Context) (stream.Frame, error) {
	for {
		forced := false
		select {
		case <-c.closed:
			return stream.Frame{}, stream.ErrConnClosed
		case <-ctx.Done():
			return stream.Frame{}, ctx.Err()
		case <-c.request:
			forced = true
		case <-c.ticker.Chan():
		}

		data, ts, ok, err := c.fetch(ctx)
		if err != nil {
			select {
			case <-c.closed:
				return stream.Frame{}, stream.ErrConnClosed
			default:
			}
			return stream.Frame{}, err
		}
		if !ok {
			continue
		}
		if !forced && c.haveLast && ts == c.lastTS {
			continue
		}
		c.lastTS, c.haveLast = ts, true
		return stream.Frame{Event: eventWeatherData, Data: data}, nil
	}
}

// Write accepts request_data, which triggers an immediate poll.
func (c *conn) Write(_ context.Context, f stream.Frame) error {
	select {
	case <-c.closed:
		return stream.ErrConnClosed
	default:
	}
	if f.Event != eventRequestData {
		return fmt.Errorf("polling transport cannot send %q", f.Event)
	}
	select {
	case c.request <- struct{}{}:
	default:
	}
	return nil
}

func (c *conn) Close() error {
	c.once.Do(func() {
		c.ticker.Stop()
		close(c.closed)
	})
	return nil
}

// fetch returns the raw sample and its timestamp. ok is false when the
// backend has no sample yet.
func (c *conn) fetch(ctx context.Context) (json.RawMessage, int64, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.t.baseURL+"/api/latest", nil)
	if err != nil {
		return nil, 0, false, fmt.Errorf("create latest request: %w", err)
	}
	resp, err := c.t.client.Do(req)
	if err != nil {
		return nil, 0, false, fmt.Errorf("poll latest: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent, http.StatusNotFound:
		return nil, 0, false, nil
	default:
		return nil, 0, false, fmt.Errorf("poll latest: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, 0, false, fmt.Errorf("read latest: %w", err)
	}

	// Timestamp is only used for change detection; validation happens downstream.
	var probe struct {
		Timestamp float64 `json:"timestamp"`
	}
	_ = json.Unmarshal(body, &probe)
	return json.RawMessage(body), int64(probe.Timestamp), true, nil
}
