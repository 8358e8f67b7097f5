package domain

import (
	"fmt"
	"strconv"
)

// Breach thresholds. A reading must strictly exceed the threshold to breach.
const (
	WindThresholdKmh = 80.0
	WaveThresholdM   = 4.0
)

// AlertLevel is the client-side severity of a sample, ordered Safe < Warning < Critical.
type AlertLevel int

const (
	LevelSafe AlertLevel = iota
	LevelWarning
	LevelCritical
)

func (l AlertLevel) String() string {
	switch l {
	case LevelSafe:
		return "SAFE"
	case LevelWarning:
		return "WARNING"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the level by name in JSON responses.
func (l AlertLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (l *AlertLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseAlertLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseAlertLevel is the inverse of AlertLevel.String.
func ParseAlertLevel(s string) (AlertLevel, error) {
	switch s {
	case "SAFE":
		return LevelSafe, nil
	case "WARNING":
		return LevelWarning, nil
	case "CRITICAL":
		return LevelCritical, nil
	default:
		return LevelSafe, fmt.Errorf("unknown alert level %q", s)
	}
}

// Classify maps a sample to a severity level and a banner message:
//   - wind and waves breached: Critical
//   - exactly one breached: Warning naming that reading
//   - neither: Safe with an empty message
//
// Classify is pure; non-finite readings are rejected before samples reach it.
func Classify(s TelemetrySample) (AlertLevel, string) {
	windBreach := s.WindSpeedKmh > WindThresholdKmh
	waveBreach := s.WaveHeightM > WaveThresholdM

	wind := formatReading(s.WindSpeedKmh)
	wave := formatReading(s.WaveHeightM)

	switch {
	case windBreach && waveBreach:
		return LevelCritical, fmt.Sprintf("DANGER: High winds (%s km/h) and large waves (%s m) detected!", wind, wave)
	case windBreach:
		return LevelWarning, fmt.Sprintf("WARNING: High wind speed detected (%s km/h)!", wind)
	case waveBreach:
		return LevelWarning, fmt.Sprintf("WARNING: Large waves detected (%s m)!", wave)
	default:
		return LevelSafe, ""
	}
}

// formatReading prints a reading with the shortest exact decimal form,
// so 95 renders as "95" and 1.2 as "1.2".
func formatReading(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// AlertRecord is one breach logged by the backend and served on GET /alerts.
type AlertRecord struct {
	Timestamp    int64      `json:"timestamp"`
	Level        AlertLevel `json:"level"`
	Message      string     `json:"message"`
	WindSpeedKmh float64    `json:"wind_speed"`
	WaveHeightM  float64    `json:"wave_height"`
}

// NewAlertRecord classifies s and records the result. It returns false for a
// safe sample.
func NewAlertRecord(s TelemetrySample) (AlertRecord, bool) {
	level, msg := Classify(s)
	if level == LevelSafe {
		return AlertRecord{}, false
	}
	return AlertRecord{
		Timestamp:    s.Timestamp,
		Level:        level,
		Message:      msg,
		WindSpeedKmh: s.WindSpeedKmh,
		WaveHeightM:  s.WaveHeightM,
	}, true
}
