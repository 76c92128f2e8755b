// Package simulate produces synthetic sensor documents for local runs.
package simulate

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"strconv"
	"time"

	"airquality-server/internal/modules/airquality/codec"
	"airquality-server/internal/modules/airquality/quality"
	"airquality-server/internal/modules/airquality/types"
)

// Generator walks temperature, humidity and the raw air quality value
// within plausible bounds.
type Generator struct {
	rng *rand.Rand
	now func() time.Time

	temperature float64
	humidity    float64
	airQuality  int
	n           int
}

func NewGenerator(seed uint64, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now:         now,
		temperature: 22,
		humidity:    45,
		airQuality:  1200,
	}
}

// Next returns the next document. Even documents use the tagged wire form,
// odd ones the bare form.
func (g *Generator) Next() types.Document {
	g.temperature = clamp(g.temperature+g.rng.NormFloat64()*0.3, -10, 45)
	g.humidity = clamp(g.humidity+g.rng.NormFloat64()*1.5, 0, 100)
	g.airQuality = int(clamp(float64(g.airQuality)+g.rng.NormFloat64()*150, quality.SensorMin, quality.SensorMax))

	temp := round1(g.temperature)
	hum := round1(g.humidity)
	ts := g.now().UTC().Format(time.RFC3339Nano)

	tagged := g.n%2 == 0
	g.n++
	if tagged {
		return types.Document{
			codec.FieldTemperature: map[string]any{"doubleValue": temp},
			codec.FieldHumidity:    map[string]any{"doubleValue": hum},
			codec.FieldAirQuality:  map[string]any{"integerValue": strconv.Itoa(g.airQuality)},
			codec.FieldTimestamp:   map[string]any{"timestampValue": ts},
		}
	}
	return types.Document{
		codec.FieldTemperature: temp,
		codec.FieldHumidity:    hum,
		codec.FieldAirQuality:  g.airQuality,
		codec.FieldTimestamp:   ts,
	}
}

// Run publishes one document per interval until ctx ends. Publish errors
// are logged and do not stop the loop.
func Run(ctx context.Context, g *Generator, interval time.Duration, publish func(types.Document) error, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			doc := g.Next()
			if err := publish(doc); err != nil {
				logger.Warn("publish simulated reading", "error", err)
				continue
			}
			logger.Info("published simulated reading", "air_quality", g.airQuality)
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
