// Package simulator is a stand-in telemetry backend: it generates plausible
// coastal weather samples and serves them over the stream and REST endpoints
// the client consumes.
package simulator

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/tideguard-telemetry/internal/domain"
)

const (
	baseWindKmh = 30.0
	baseWaveM   = 1.5

	maxWindKmh = 120.0
	minWaveM   = 0.1
	maxWaveM   = 8.0

	dayPeriod   = 24 * time.Hour
	yearPeriod  = 365 * dayPeriod
	tidalPeriod = 12*time.Hour + 24*time.Minute
)

var (
	calmConditions     = []string{"Clear", "Partly Cloudy", "Cloudy", "Foggy"}
	breezyConditions   = []string{"Light Rain", "Cloudy", "Partly Cloudy"}
	blusteryConditions = []string{"Heavy Rain", "Stormy", "Cloudy"}
)

// Generator produces samples whose wind follows a daily and seasonal cycle
// with gusts, and whose waves follow the wind plus a tidal cycle and swell.
type Generator struct {
	clock clockwork.Clock
	start time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator returns a generator seeded with seed. Cycles are measured from
// the clock's current time.
func NewGenerator(clock clockwork.Clock, seed uint64) *Generator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Generator{
		clock: clock,
		start: clock.Now(),
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Next returns a fresh sample stamped with the clock's current time.
// AlertActive is set when either reading breaches its threshold.
func (g *Generator) Next() domain.TelemetrySample {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	elapsed := now.Sub(g.start)

	wind := round1(g.wind(elapsed))
	wave := round1(g.wave(wind, elapsed))

	return domain.TelemetrySample{
		WindSpeedKmh:     wind,
		WaveHeightM:      wave,
		TemperatureC:     round1(g.uniform(15, 25)),
		HumidityPct:      round1(g.uniform(60, 90)),
		PressureHPa:      round1(g.uniform(1010, 1020)),
		WeatherCondition: g.condition(wind),
		Timestamp:        now.Unix(),
		AlertActive:      wind > domain.WindThresholdKmh || wave > domain.WaveThresholdM,
	}
}

func (g *Generator) wind(elapsed time.Duration) float64 {
	daily := cycle(elapsed, dayPeriod) * 10
	seasonal := 1 + cycle(elapsed, yearPeriod)*0.3
	gust := g.uniform(0.8, 1.5)
	noise := g.uniform(-5, 5)

	v := (baseWindKmh + daily + noise) * gust * seasonal
	return clamp(v, 0, maxWindKmh)
}

func (g *Generator) wave(windKmh float64, elapsed time.Duration) float64 {
	fromWind := windKmh / 20
	tide := cycle(elapsed, tidalPeriod) * 0.5
	swell := g.uniform(0.5, 1.5)

	v := (baseWaveM + fromWind + tide) * swell
	return clamp(v, minWaveM, maxWaveM)
}

func (g *Generator) condition(windKmh float64) string {
	switch {
	case windKmh > domain.WindThresholdKmh:
		return "Stormy"
	case windKmh > 50:
		return g.pick(blusteryConditions)
	case windKmh > 30:
		return g.pick(breezyConditions)
	default:
		return g.pick(calmConditions)
	}
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*g.rng.Float64()
}

func (g *Generator) pick(options []string) string {
	return options[g.rng.IntN(len(options))]
}

func cycle(elapsed, period time.Duration) float64 {
	return math.Sin(float64(elapsed) / float64(period) * 2 * math.Pi)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
