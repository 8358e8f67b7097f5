package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tideguard"

// Metrics holds the Prometheus counters, histograms, and gauges for the telemetry client.
type Metrics struct {
	// Connection lifecycle metrics. ConnectionStatus holds the numeric domain.ConnectionStatus.
	ConnectionStatus prometheus.Gauge
	ConnectAttempts  prometheus.Counter
	ConnectErrors    prometheus.Counter
	Reconnects       prometheus.Counter
	RetriesExhausted prometheus.Counter
	ReconnectDelay   prometheus.Histogram
	EventsReceived   *prometheus.CounterVec // labels: event
	EmitsDropped     prometheus.Counter

	// Sample and alert metrics.
	SamplesAccepted    prometheus.Counter
	SamplesRejected    prometheus.Counter
	AlertLevel         prometheus.Gauge
	AlertBannerVisible prometheus.Gauge
	AlertDismissals    prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ConnectionStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_status",
			Help:      "Stream connection status: 0 disconnected, 1 connecting, 2 connected, 3 reconnecting, 4 failed.",
		}),
		ConnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Total transport dial attempts, initial and retries.",
		}),
		ConnectErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_errors_total",
			Help:      "Total failed transport dial attempts.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Total successful reconnections after a failure or drop.",
		}),
		RetriesExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_exhausted_total",
			Help:      "Times the connection entered the failed state.",
		}),
		ReconnectDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconnect_delay_seconds",
			Help:      "Delay scheduled before each reconnection attempt.",
			Buckets:   []float64{0.5, 1, 2, 3, 4, 5, 10, 30},
		}),
		EventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Application events received from the stream by name.",
		}, []string{"event"}),
		EmitsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emits_dropped_total",
			Help:      "Outbound events dropped because the stream was not connected.",
		}),
		SamplesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_accepted_total",
			Help:      "Telemetry samples stored.",
		}),
		SamplesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_rejected_total",
			Help:      "Telemetry payloads rejected as invalid.",
		}),
		AlertLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alert_level",
			Help:      "Classified level of the latest sample: 0 safe, 1 warning, 2 critical.",
		}),
		AlertBannerVisible: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alert_banner_visible",
			Help:      "1 when the alert banner is visible, 0 otherwise.",
		}),
		AlertDismissals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_dismissals_total",
			Help:      "Alert banner dismissals applied.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ConnectionStatus,
		m.ConnectAttempts,
		m.ConnectErrors,
		m.Reconnects,
		m.RetriesExhausted,
		m.ReconnectDelay,
		m.EventsReceived,
		m.EmitsDropped,
		m.SamplesAccepted,
		m.SamplesRejected,
		m.AlertLevel,
		m.AlertBannerVisible,
		m.AlertDismissals,
	}
}
