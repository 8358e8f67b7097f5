package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/tideguard-telemetry/internal/domain"
	"github.com/couchcryptid/tideguard-telemetry/internal/stream"
)

// Stream event names.
const (
	EventConnected   = "connected"
	EventWeatherData = "weather_data"
	EventRequestData = "request_data"
)

const (
	sendBuffer   = 16
	writeTimeout = 5 * time.Second
	readLimit    = 64 << 10
)

// Sink receives every generated sample in addition to the websocket clients.
type Sink interface {
	Publish(ctx context.Context, s domain.TelemetrySample) error
}

// Options configures a Server.
type Options struct {
	Interval      time.Duration
	SeriesSize    int
	AlertCooldown time.Duration
	AccessLog     io.Writer
}

// DefaultOptions broadcasts every 5s, keeps 200 samples and records at most
// one alert per 5 minutes.
func DefaultOptions() Options {
	return Options{
		Interval:      5 * time.Second,
		SeriesSize:    200,
		AlertCooldown: 5 * time.Minute,
	}
}

// Server broadcasts generated samples to websocket clients and serves the
// REST endpoints next to the stream.
type Server struct {
	gen    *Generator
	opts   Options
	clock  clockwork.Clock
	sinks  []Sink
	logger *slog.Logger
	router *mux.Router

	mu        sync.Mutex
	clients   map[*client]struct{}
	series    []domain.TelemetrySample
	alerts    []domain.AlertRecord
	lastAlert time.Time
}

// NewServer builds a simulator server. A zero Interval or SeriesSize falls
// back to DefaultOptions; a zero AlertCooldown records every breach.
func NewServer(gen *Generator, opts Options, clock clockwork.Clock, logger *slog.Logger, sinks ...Sink) *Server {
	def := DefaultOptions()
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	if opts.SeriesSize <= 0 {
		opts.SeriesSize = def.SeriesSize
	}
	if opts.AlertCooldown < 0 {
		opts.AlertCooldown = def.AlertCooldown
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	s := &Server{
		gen:     gen,
		opts:    opts,
		clock:   clock,
		sinks:   sinks,
		logger:  logger,
		router:  mux.NewRouter(),
		clients: make(map[*client]struct{}),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/latest", s.handleLatest).Methods(http.MethodGet)
	api.HandleFunc("/series", s.handleSeries).Methods(http.MethodGet)

	s.router.HandleFunc("/alerts", s.handleAlerts).Methods(http.MethodGet)
	s.router.HandleFunc("/predict", s.handlePredict).Methods(http.MethodPost)
}

// Handler returns the router wrapped with CORS, panic recovery and, when
// configured, access logging.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(h)
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(h)
	if s.opts.AccessLog != nil {
		h = handlers.LoggingHandler(s.opts.AccessLog, h)
	}
	return h
}

// Run broadcasts a fresh sample every interval until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.logger.Info("simulator running", "interval", s.opts.Interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("simulator stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			sample := s.produce(ctx)
			n := s.broadcast(sampleFrame(sample))
			s.logger.Debug("broadcast sample",
				"clients", n,
				"wind_speed", sample.WindSpeedKmh,
				"wave_height", sample.WaveHeightM,
				"alert_active", sample.AlertActive,
			)
		}
	}
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// produce generates a sample, records it and hands it to every sink.
func (s *Server) produce(ctx context.Context) domain.TelemetrySample {
	sample := s.gen.Next()
	s.record(sample)
	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, sample); err != nil {
			s.logger.Warn("sink publish failed", "error", err)
		}
	}
	return sample
}

func (s *Server) record(sample domain.TelemetrySample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.series = appendBounded(s.series, sample, s.opts.SeriesSize)

	rec, ok := domain.NewAlertRecord(sample)
	if !ok {
		return
	}
	now := s.clock.Now()
	if !s.lastAlert.IsZero() && now.Sub(s.lastAlert) < s.opts.AlertCooldown {
		s.logger.Debug("alert cooldown active", "level", rec.Level)
		return
	}
	s.lastAlert = now
	s.alerts = appendBounded(s.alerts, rec, s.opts.SeriesSize)
	s.logger.Warn("alert recorded", "level", rec.Level, "message", rec.Message)
}

func (s *Server) broadcast(f stream.Frame) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		if !c.enqueue(f) {
			s.logger.Warn("dropping slow client", "client", c.id)
			c.kick()
			delete(s.clients, c)
		}
	}
	return len(s.clients)
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.logger.Info("client connected", "client", c.id, "clients", n)
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	n := len(s.clients)
	s.mu.Unlock()
	s.logger.Info("client disconnected", "client", c.id, "clients", n)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "OK",
		"message": "TideGuard Backend is running",
	})
}

// handleStream upgrades to a websocket, greets the client with a connected
// frame and answers request_data with a sample sent to that client only.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow() //nolint:errcheck // already closing
	conn.SetReadLimit(readLimit)

	c := newClient()
	s.register(c)
	defer s.unregister(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer cancel()
		s.readLoop(ctx, conn, c)
	}()

	greeting, _ := json.Marshal(map[string]string{"data": "Connected to TideGuard Backend"})
	c.enqueue(stream.Frame{Event: EventConnected, Data: greeting})

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusGoingAway, "server closing")
			return
		case <-c.done:
			_ = conn.Close(websocket.StatusPolicyViolation, "client too slow")
			return
		case f := <-c.send:
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, f)
			wcancel()
			if err != nil {
				s.logger.Debug("websocket write failed", "client", c.id, "error", err)
				return
			}
		}
	}
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, c *client) {
	for {
		var f stream.Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				s.logger.Debug("websocket read failed", "client", c.id, "error", err)
			}
			return
		}
		switch f.Event {
		case EventRequestData:
			c.enqueue(sampleFrame(s.produce(ctx)))
		default:
			s.logger.Debug("ignoring client event", "client", c.id, "event", f.Event)
		}
	}
}

// handleLatest returns the most recent sample, or 204 before the first one.
func (s *Server) handleLatest(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	var latest *domain.TelemetrySample
	if n := len(s.series); n > 0 {
		v := s.series[n-1]
		latest = &v
	}
	s.mu.Unlock()

	if latest == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

// handleSeries returns recent samples, oldest first.
func (s *Server) handleSeries(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([]domain.TelemetrySample, len(s.series))
	copy(out, s.series)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAlerts(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([]domain.AlertRecord, len(s.alerts))
	copy(out, s.alerts)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

type predictRequest struct {
	Value *float64 `json:"value"`
}

// handlePredict classifies value as a wind speed.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, readLimit)).Decode(&req); err != nil || req.Value == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body must be {\"value\": number}"})
		return
	}
	level, _ := domain.Classify(domain.TelemetrySample{WindSpeedKmh: *req.Value})
	writeJSON(w, http.StatusOK, map[string]domain.AlertLevel{"status": level})
}

type client struct {
	id   string
	send chan stream.Frame
	done chan struct{}
	once sync.Once
}

func newClient() *client {
	return &client{
		id:   uuid.NewString(),
		send: make(chan stream.Frame, sendBuffer),
		done: make(chan struct{}),
	}
}

// enqueue reports false when the client's buffer is full.
func (c *client) enqueue(f stream.Frame) bool {
	select {
	case c.send <- f:
		return true
	default:
		return false
	}
}

func (c *client) kick() {
	c.once.Do(func() { close(c.done) })
}

func sampleFrame(sample domain.TelemetrySample) stream.Frame {
	data, _ := json.Marshal(sample)
	return stream.Frame{Event: EventWeatherData, Data: data}
}

func appendBounded[T any](s []T, v T, limit int) []T {
	s = append(s, v)
	if over := len(s) - limit; over > 0 {
		s = append(s[:0], s[over:]...)
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
