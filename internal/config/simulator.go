package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Simulator holds the stand-in backend's settings.
type Simulator struct {
	HTTPAddr      string
	Interval      time.Duration
	SeriesSize    int
	AlertCooldown time.Duration
	Seed          uint64
	AccessLog     bool

	// Optional Kafka sink; disabled when KafkaBrokers is empty.
	KafkaBrokers        []string
	KafkaTelemetryTopic string

	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// LoadSimulator reads the simulator configuration from environment variables.
func LoadSimulator() (*Simulator, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	interval, err := parsePositiveDuration("SIM_INTERVAL", "5s")
	if err != nil {
		return nil, err
	}

	cooldown, err := time.ParseDuration(sharedcfg.EnvOrDefault("ALERT_COOLDOWN", "5m"))
	if err != nil || cooldown < 0 {
		return nil, errors.New("invalid ALERT_COOLDOWN")
	}

	seriesSize, err := strconv.Atoi(sharedcfg.EnvOrDefault("SIM_SERIES_SIZE", "200"))
	if err != nil || seriesSize <= 0 {
		return nil, errors.New("invalid SIM_SERIES_SIZE")
	}

	seed := uint64(time.Now().UnixNano())
	if raw := sharedcfg.EnvOrDefault("SIM_SEED", ""); raw != "" {
		seed, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SIM_SEED %q", raw)
		}
	}

	accessLog, err := strconv.ParseBool(sharedcfg.EnvOrDefault("SIM_ACCESS_LOG", "false"))
	if err != nil {
		return nil, errors.New("invalid SIM_ACCESS_LOG")
	}

	var brokers []string
	if raw := strings.TrimSpace(sharedcfg.EnvOrDefault("SIM_KAFKA_BROKERS", "")); raw != "" {
		brokers = sharedcfg.ParseBrokers(raw)
	}

	return &Simulator{
		HTTPAddr:      sharedcfg.EnvOrDefault("SIM_HTTP_ADDR", ":5000"),
		Interval:      interval,
		SeriesSize:    seriesSize,
		AlertCooldown: cooldown,
		Seed:          seed,
		AccessLog:     accessLog,

		KafkaBrokers:        brokers,
		KafkaTelemetryTopic: sharedcfg.EnvOrDefault("KAFKA_TELEMETRY_TOPIC", "tideguard-telemetry"),

		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}, nil
}
