package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// TelemetrySample is one coastal weather reading pushed by the backend.
// AlertActive is computed upstream and is independent of Classify.
type TelemetrySample struct {
	WindSpeedKmh     float64 `json:"wind_speed"`
	WaveHeightM      float64 `json:"wave_height"`
	TemperatureC     float64 `json:"temperature"`
	HumidityPct      float64 `json:"humidity"`
	PressureHPa      float64 `json:"pressure"`
	WeatherCondition string  `json:"weather_condition"`
	Timestamp        int64   `json:"timestamp"`
	AlertActive      bool    `json:"alert_active"`
}

// Time returns the upstream timestamp as a UTC time.
func (s TelemetrySample) Time() time.Time {
	return time.Unix(s.Timestamp, 0).UTC()
}

// Validate checks that every numeric reading is finite.
func (s TelemetrySample) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"wind_speed", s.WindSpeedKmh},
		{"wave_height", s.WaveHeightM},
		{"temperature", s.TemperatureC},
		{"humidity", s.HumidityPct},
		{"pressure", s.PressureHPa},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return &InvalidSampleError{Field: f.name, Reason: "not a finite number"}
		}
	}
	return nil
}

// wireSample mirrors TelemetrySample with pointer fields so missing keys
// can be told apart from zero readings.
type wireSample struct {
	WindSpeed        *float64 `json:"wind_speed"`
	WaveHeight       *float64 `json:"wave_height"`
	Temperature      *float64 `json:"temperature"`
	Humidity         *float64 `json:"humidity"`
	Pressure         *float64 `json:"pressure"`
	WeatherCondition string   `json:"weather_condition"`
	Timestamp        *float64 `json:"timestamp"`
	AlertActive      bool     `json:"alert_active"`
}

// ParseSample decodes a weather_data payload. Every numeric key must be
// present; the result is validated before it is returned.
func ParseSample(data []byte) (TelemetrySample, error) {
	var w wireSample
	if err := json.Unmarshal(data, &w); err != nil {
		return TelemetrySample{}, &InvalidSampleError{Reason: "malformed payload", Err: err}
	}

	required := []struct {
		name  string
		value *float64
	}{
		{"wind_speed", w.WindSpeed},
		{"wave_height", w.WaveHeight},
		{"temperature", w.Temperature},
		{"humidity", w.Humidity},
		{"pressure", w.Pressure},
		{"timestamp", w.Timestamp},
	}
	for _, r := range required {
		if r.value == nil {
			return TelemetrySample{}, &InvalidSampleError{Field: r.name, Reason: "missing"}
		}
	}

	ts := *w.Timestamp
	if ts != math.Trunc(ts) || math.Abs(ts) > math.MaxInt64/2 {
		return TelemetrySample{}, &InvalidSampleError{Field: "timestamp", Reason: fmt.Sprintf("not an integer epoch: %g", ts)}
	}

	s := TelemetrySample{
		WindSpeedKmh:     *w.WindSpeed,
		WaveHeightM:      *w.WaveHeight,
		TemperatureC:     *w.Temperature,
		HumidityPct:      *w.Humidity,
		PressureHPa:      *w.Pressure,
		WeatherCondition: w.WeatherCondition,
		Timestamp:        int64(ts),
		AlertActive:      w.AlertActive,
	}
	if err := s.Validate(); err != nil {
		return TelemetrySample{}, err
	}
	return s, nil
}
