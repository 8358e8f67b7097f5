package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSimulator_Defaults(t *testing.T) {
	cfg, err := LoadSimulator()
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.HTTPAddr)
	assert.Equal(t, 5*time.Second, cfg.Interval)
	assert.Equal(t, 200, cfg.SeriesSize)
	assert.Equal(t, 5*time.Minute, cfg.AlertCooldown)
	assert.False(t, cfg.AccessLog)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "tideguard-telemetry", cfg.KafkaTelemetryTopic)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoadSimulator_CustomEnv(t *testing.T) {
	t.Setenv("SIM_HTTP_ADDR", ":6000")
	t.Setenv("SIM_INTERVAL", "1s")
	t.Setenv("SIM_SERIES_SIZE", "50")
	t.Setenv("ALERT_COOLDOWN", "0s")
	t.Setenv("SIM_SEED", "42")
	t.Setenv("SIM_ACCESS_LOG", "true")
	t.Setenv("SIM_KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_TELEMETRY_TOPIC", "custom-telemetry")

	cfg, err := LoadSimulator()
	require.NoError(t, err)

	assert.Equal(t, ":6000", cfg.HTTPAddr)
	assert.Equal(t, time.Second, cfg.Interval)
	assert.Equal(t, 50, cfg.SeriesSize)
	assert.Zero(t, cfg.AlertCooldown)
	assert.Equal(t, uint64(42), cfg.Seed)
	assert.True(t, cfg.AccessLog)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-telemetry", cfg.KafkaTelemetryTopic)
}

func TestLoadSimulator_InvalidValues(t *testing.T) {
	tests := []struct {
		env   string
		value string
	}{
		{"SIM_INTERVAL", "0s"},
		{"SIM_SERIES_SIZE", "-1"},
		{"ALERT_COOLDOWN", "-5m"},
		{"SIM_SEED", "abc"},
		{"SIM_ACCESS_LOG", "sometimes"},
	}

	for _, tt := range tests {
		t.Run(tt.env+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			_, err := LoadSimulator()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.env)
		})
	}
}
