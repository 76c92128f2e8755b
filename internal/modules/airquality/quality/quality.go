// Package quality turns raw air-quality sensor values into a clean-air
// percentage and a discrete band. Every consumer (live view, history list,
// gauge) classifies through Bands; nothing else defines thresholds.
package quality

import (
	"math"

	"airquality-server/internal/modules/airquality/types"
)

const (
	// SensorMin and SensorMax bound the 12-bit ADC of the gas sensor.
	SensorMin = 0
	SensorMax = 4095
)

// Gradient is a two-stop gauge fill.
type Gradient struct {
	Name string
	From string
	To   string
}

var (
	gradientLow      = Gradient{Name: "gauge1-2", From: "#6e25ff", To: "#6e25ff"}
	gradientMid      = Gradient{Name: "gauge3-4", From: "#9865ff", To: "#9865ff"}
	gradientHigh     = Gradient{Name: "gauge5-6", From: "#b793ff", To: "#b793ff"}
	gradientVeryHigh = Gradient{Name: "gauge7-8", From: "#d5c1ff", To: "#d5c1ff"}
)

// Band is one row of the classification table. Bound is exclusive; the last
// band has Unbounded set and catches everything above the previous bound.
type Band struct {
	Bound     int
	Unbounded bool
	Label     string
	Color     string
	Gradient  Gradient
}

// Bands is the canonical ordered classification table, evaluated first match
// on percentage < Bound.
var Bands = []Band{
	{Bound: 10, Label: "Hazardous", Color: "#FF0000", Gradient: gradientLow},
	{Bound: 25, Label: "Very Poor", Color: "#FF4500", Gradient: gradientLow},
	{Bound: 50, Label: "Poor", Color: "#FFA500", Gradient: gradientMid},
	{Bound: 70, Label: "Moderate", Color: "#FFFF00", Gradient: gradientHigh},
	{Bound: 90, Label: "Good", Color: "#90EE90", Gradient: gradientVeryHigh},
	{Unbounded: true, Label: "Excellent", Color: "#00FF00", Gradient: gradientVeryHigh},
}

// Normalize maps a raw sensor value to the inverted clean-air percentage.
// Values outside [SensorMin, SensorMax] are not clamped.
func Normalize(raw int) int {
	ratio := float64(raw-SensorMin) / float64(SensorMax-SensorMin) * 100
	// floor(x+0.5) rounds halves toward +Inf for negative inputs too.
	return 100 - int(math.Floor(ratio+0.5))
}

// Classify returns the band a percentage falls in.
func Classify(percentage int) Band {
	for _, b := range Bands {
		if b.Unbounded || percentage < b.Bound {
			return b
		}
	}
	return Bands[len(Bands)-1]
}

// InSensorRange reports whether raw lies in the sensor's conventional domain.
func InSensorRange(raw int) bool {
	return raw >= SensorMin && raw <= SensorMax
}

// Assess normalizes and classifies a raw value.
func Assess(raw int) types.Assessment {
	pct := Normalize(raw)
	b := Classify(pct)
	return types.Assessment{Percentage: pct, Label: b.Label, Color: b.Color}
}
