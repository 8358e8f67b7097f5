package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		wind    float64
		wave    float64
		level   AlertLevel
		message string
	}{
		{"calm", 45, 1.2, LevelSafe, ""},
		{"at both thresholds", 80, 4, LevelSafe, ""},
		{"wind breach", 95, 1.0, LevelWarning, "WARNING: High wind speed detected (95 km/h)!"},
		{"wind just over", 80.1, 4, LevelWarning, "WARNING: High wind speed detected (80.1 km/h)!"},
		{"wave breach", 30, 4.5, LevelWarning, "WARNING: Large waves detected (4.5 m)!"},
		{"both breached", 95, 5.0, LevelCritical, "DANGER: High winds (95 km/h) and large waves (5 m) detected!"},
		{"negative readings", -5, -1, LevelSafe, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, msg := Classify(TelemetrySample{WindSpeedKmh: tt.wind, WaveHeightM: tt.wave})
			assert.Equal(t, tt.level, level)
			assert.Equal(t, tt.message, msg)
		})
	}
}

func TestClassifyWarningMentionsOnlyBreachedReading(t *testing.T) {
	_, msg := Classify(TelemetrySample{WindSpeedKmh: 91, WaveHeightM: 3.7})
	assert.Contains(t, msg, "91")
	assert.NotContains(t, msg, "3.7")

	_, msg = Classify(TelemetrySample{WindSpeedKmh: 12.5, WaveHeightM: 6.25})
	assert.Contains(t, msg, "6.25")
	assert.NotContains(t, msg, "12.5")
}

func TestClassifyIsDeterministic(t *testing.T) {
	s := TelemetrySample{WindSpeedKmh: 95, WaveHeightM: 5, AlertActive: true}
	l1, m1 := Classify(s)
	l2, m2 := Classify(s)
	assert.Equal(t, l1, l2)
	assert.Equal(t, m1, m2)
}

func TestClassifyIgnoresAlertActive(t *testing.T) {
	level, msg := Classify(TelemetrySample{WindSpeedKmh: 10, WaveHeightM: 1, AlertActive: true})
	assert.Equal(t, LevelSafe, level)
	assert.Empty(t, msg)
}

func TestAlertLevelOrderingAndNames(t *testing.T) {
	assert.True(t, LevelSafe < LevelWarning)
	assert.True(t, LevelWarning < LevelCritical)

	for _, l := range []AlertLevel{LevelSafe, LevelWarning, LevelCritical} {
		parsed, err := ParseAlertLevel(l.String())
		require.NoError(t, err)
		assert.Equal(t, l, parsed)
	}

	_, err := ParseAlertLevel("PANIC")
	assert.Error(t, err)

	text, err := LevelCritical.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "CRITICAL", string(text))
}

func TestNewAlertRecord(t *testing.T) {
	_, ok := NewAlertRecord(TelemetrySample{WindSpeedKmh: 10, WaveHeightM: 1, AlertActive: true})
	assert.False(t, ok)

	rec, ok := NewAlertRecord(TelemetrySample{WindSpeedKmh: 95, WaveHeightM: 5, Timestamp: 42})
	require.True(t, ok)
	assert.Equal(t, LevelCritical, rec.Level)
	assert.Equal(t, int64(42), rec.Timestamp)
	assert.Contains(t, rec.Message, "DANGER")

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"level":"CRITICAL"`)

	var decoded AlertRecord
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, rec, decoded)
}
