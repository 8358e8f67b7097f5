package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/tideguard-telemetry/internal/domain"
)

// Transport kinds accepted in STREAM_TRANSPORTS.
const (
	TransportWebsocket = "websocket"
	TransportPolling   = "polling"
	TransportKafka     = "kafka"
)

// Config holds all client settings, populated from environment variables.
type Config struct {
	BackendURL string
	StreamPath string

	// Stream transport options.
	StreamTransports           []string
	StreamTimeout              time.Duration
	StreamReconnection         bool
	StreamReconnectionAttempts int
	StreamReconnectionDelay    time.Duration
	StreamReconnectionDelayMax time.Duration
	PollInterval               time.Duration

	LatchScope domain.DismissalScope

	KafkaBrokers        []string
	KafkaTelemetryTopic string
	KafkaCommandTopic   string
	KafkaGroupID        string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	backendURL := sharedcfg.EnvOrDefault("BACKEND_URL", "http://localhost:5000")
	if u, err := url.Parse(backendURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid BACKEND_URL %q", backendURL)
	}

	transports, err := parseTransports(sharedcfg.EnvOrDefault("STREAM_TRANSPORTS", "websocket,polling"))
	if err != nil {
		return nil, err
	}

	timeout, err := parsePositiveDuration("STREAM_TIMEOUT", "20s")
	if err != nil {
		return nil, err
	}
	delay, err := parsePositiveDuration("STREAM_RECONNECTION_DELAY", "1s")
	if err != nil {
		return nil, err
	}
	delayMax, err := parsePositiveDuration("STREAM_RECONNECTION_DELAY_MAX", "5s")
	if err != nil {
		return nil, err
	}
	if delayMax < delay {
		return nil, errors.New("STREAM_RECONNECTION_DELAY_MAX must not be less than STREAM_RECONNECTION_DELAY")
	}
	pollInterval, err := parsePositiveDuration("POLL_INTERVAL", "5s")
	if err != nil {
		return nil, err
	}

	reconnection, err := strconv.ParseBool(sharedcfg.EnvOrDefault("STREAM_RECONNECTION", "true"))
	if err != nil {
		return nil, errors.New("invalid STREAM_RECONNECTION")
	}
	attempts, err := strconv.Atoi(sharedcfg.EnvOrDefault("STREAM_RECONNECTION_ATTEMPTS", "5"))
	if err != nil || attempts <= 0 {
		return nil, errors.New("invalid STREAM_RECONNECTION_ATTEMPTS")
	}

	scope, err := domain.ParseDismissalScope(sharedcfg.EnvOrDefault("LATCH_SCOPE", "episode"))
	if err != nil {
		return nil, fmt.Errorf("invalid LATCH_SCOPE: %w", err)
	}

	cfg := &Config{
		BackendURL: strings.TrimRight(backendURL, "/"),
		StreamPath: sharedcfg.EnvOrDefault("STREAM_PATH", "/stream"),

		StreamTransports:           transports,
		StreamTimeout:              timeout,
		StreamReconnection:         reconnection,
		StreamReconnectionAttempts: attempts,
		StreamReconnectionDelay:    delay,
		StreamReconnectionDelayMax: delayMax,
		PollInterval:               pollInterval,

		LatchScope: scope,

		KafkaBrokers:        sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTelemetryTopic: sharedcfg.EnvOrDefault("KAFKA_TELEMETRY_TOPIC", "tideguard-telemetry"),
		KafkaCommandTopic:   sharedcfg.EnvOrDefault("KAFKA_COMMAND_TOPIC", "tideguard-commands"),
		KafkaGroupID:        sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "tideguard-client"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if cfg.UsesTransport(TransportKafka) {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaTelemetryTopic == "" {
			return nil, errors.New("KAFKA_TELEMETRY_TOPIC is required")
		}
		if cfg.KafkaCommandTopic == "" {
			return nil, errors.New("KAFKA_COMMAND_TOPIC is required")
		}
	}

	return cfg, nil
}

// UsesTransport reports whether kind is listed in STREAM_TRANSPORTS.
func (c *Config) UsesTransport(kind string) bool {
	for _, t := range c.StreamTransports {
		if t == kind {
			return true
		}
	}
	return false
}

func parseTransports(s string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		kind := strings.ToLower(strings.TrimSpace(part))
		if kind == "" {
			continue
		}
		switch kind {
		case TransportWebsocket, TransportPolling, TransportKafka:
		default:
			return nil, fmt.Errorf("invalid STREAM_TRANSPORTS: unknown transport %q", kind)
		}
		if !seen[kind] {
			seen[kind] = true
			out = append(out, kind)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("STREAM_TRANSPORTS is required")
	}
	return out, nil
}

func parsePositiveDuration(name, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return d, nil
}
