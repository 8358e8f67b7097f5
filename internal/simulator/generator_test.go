package simulator

import (
	"slices"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/tideguard-telemetry/internal/domain"
)

func TestGenerator_ReadingsWithinBounds(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC))
	g := NewGenerator(clock, 42)

	for i := 0; i < 2000; i++ {
		s := g.Next()

		require.NoError(t, s.Validate())
		assert.GreaterOrEqual(t, s.WindSpeedKmh, 0.0)
		assert.LessOrEqual(t, s.WindSpeedKmh, maxWindKmh)
		assert.GreaterOrEqual(t, s.WaveHeightM, minWaveM)
		assert.LessOrEqual(t, s.WaveHeightM, maxWaveM)
		assert.GreaterOrEqual(t, s.TemperatureC, 15.0)
		assert.LessOrEqual(t, s.TemperatureC, 25.0)
		assert.GreaterOrEqual(t, s.HumidityPct, 60.0)
		assert.LessOrEqual(t, s.HumidityPct, 90.0)
		assert.GreaterOrEqual(t, s.PressureHPa, 1010.0)
		assert.LessOrEqual(t, s.PressureHPa, 1020.0)
		assert.Equal(t, clock.Now().Unix(), s.Timestamp)

		clock.Advance(37 * time.Minute)
	}
}

func TestGenerator_AlertActiveMatchesThresholds(t *testing.T) {
	g := NewGenerator(clockwork.NewFakeClock(), 7)

	for i := 0; i < 2000; i++ {
		s := g.Next()
		want := s.WindSpeedKmh > domain.WindThresholdKmh || s.WaveHeightM > domain.WaveThresholdM
		assert.Equal(t, want, s.AlertActive, "sample %+v", s)
	}
}

func TestGenerator_ConditionFollowsWind(t *testing.T) {
	g := NewGenerator(clockwork.NewFakeClock(), 3)

	for i := 0; i < 2000; i++ {
		s := g.Next()
		switch {
		case s.WindSpeedKmh > domain.WindThresholdKmh:
			assert.Equal(t, "Stormy", s.WeatherCondition)
		case s.WindSpeedKmh > 50:
			assert.True(t, slices.Contains(blusteryConditions, s.WeatherCondition), s.WeatherCondition)
		case s.WindSpeedKmh > 30:
			assert.True(t, slices.Contains(breezyConditions, s.WeatherCondition), s.WeatherCondition)
		default:
			assert.True(t, slices.Contains(calmConditions, s.WeatherCondition), s.WeatherCondition)
		}
	}
}

func TestGenerator_SameSeedSameSequence(t *testing.T) {
	start := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	a := NewGenerator(clockwork.NewFakeClockAt(start), 99)
	b := NewGenerator(clockwork.NewFakeClockAt(start), 99)

	for i := 0; i < 50; i++ {
		assert.Equal(t, a.Next(), b.Next())
	}
}

func TestGenerator_ReadingsRoundedToTenths(t *testing.T) {
	g := NewGenerator(clockwork.NewFakeClock(), 11)

	for i := 0; i < 200; i++ {
		s := g.Next()
		for _, v := range []float64{s.WindSpeedKmh, s.WaveHeightM, s.TemperatureC, s.HumidityPct, s.PressureHPa} {
			assert.InDelta(t, round1(v), v, 1e-9)
		}
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, clamp(-3, 0, 120))
	assert.Equal(t, 120.0, clamp(130, 0, 120))
	assert.Equal(t, 42.5, clamp(42.5, 0, 120))
}
