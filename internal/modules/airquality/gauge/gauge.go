// Package gauge computes the geometry of the 270 degree clean-air gauge.
// The SVG markup lives in the views templates.
package gauge

import (
	"fmt"
	"math"
	"strconv"

	"airquality-server/internal/modules/airquality/quality"
)

const (
	strokeRatio = 0.07
	arcFraction = 0.75
	// Rotation turns the arc so its gap faces down.
	Rotation = 135.0
	// TrackColor is the unfilled part of the arc.
	TrackColor = "gray"
)

// Arc is everything needed to draw the gauge for one value.
type Arc struct {
	Percent       float64
	Radius        float64
	Size          float64
	StrokeWidth   float64
	InnerRadius   float64
	Circumference float64
	ArcLength     float64
	DashArray     string
	DashOffset    float64
	Transform     string
	Label         string
	PercentText   string
	Gradient      quality.Gradient
}

// Render computes the arc for percent on a gauge of the given outer radius.
// percent is not clamped; values outside [0,100] over- or under-draw.
func Render(percent, radius float64) Arc {
	stroke := radius * strokeRatio
	inner := radius - stroke
	circ := inner * 2 * math.Pi
	arc := circ * arcFraction
	band := quality.Classify(int(math.Floor(percent + 0.5)))

	return Arc{
		Percent:       percent,
		Radius:        radius,
		Size:          radius * 2,
		StrokeWidth:   stroke,
		InnerRadius:   inner,
		Circumference: circ,
		ArcLength:     arc,
		DashArray:     formatFloat(arc) + " " + formatFloat(circ),
		DashOffset:    arc - (percent/100)*arc,
		Transform:     fmt.Sprintf("rotate(%s, %s, %s)", formatFloat(Rotation), formatFloat(radius), formatFloat(radius)),
		Label:         band.Label,
		PercentText:   formatFloat(percent) + "%",
		Gradient:      band.Gradient,
	}
}

// Fill is the drawn fraction of the arc.
func (a Arc) Fill() float64 {
	if a.ArcLength == 0 {
		return 0
	}
	return (a.ArcLength - a.DashOffset) / a.ArcLength
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
