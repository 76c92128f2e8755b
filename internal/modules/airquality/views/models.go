package views

import (
	"strconv"
	"time"

	"airquality-server/internal/modules/airquality/gauge"
	"airquality-server/internal/modules/airquality/types"
)

const (
	// GaugeRadius is the outer radius of the dashboard gauge in px.
	GaugeRadius = 120.0

	DateLayout = "02.01.2006"
	TimeLayout = "15:04"
)

type GaugeData = gauge.Arc

type DashboardPage struct {
	Title  string
	Active string
	Live   *LiveData
}

type LiveData struct {
	Loading     bool
	HasData     bool
	Error       string
	Gauge       *GaugeData
	Temperature string
	Humidity    string
	Updated     string
}

type HistoryPage struct {
	Title   string
	Active  string
	History *HistoryData
}

type HistoryRow struct {
	ID          string
	Date        string
	Time        string
	Temperature string
	Humidity    string
	Label       string
	Color       string
}

type HistoryData struct {
	Loading       bool
	Readings      []HistoryRow
	Notice        string
	NoticeIsError bool
}

type ConfirmData struct {
	Token     string
	ExpiresAt time.Time
}

// NewGauge computes the gauge for an animated percentage.
func NewGauge(percent int) *GaugeData {
	arc := gauge.Render(float64(percent), GaugeRadius)
	return &arc
}

// NewLiveData builds the live section. gaugeValue is the animated
// percentage, which trails the reading while a sweep is running.
func NewLiveData(r *types.LiveReading, loading bool, err error, gaugeValue int, loc *time.Location) *LiveData {
	d := &LiveData{Loading: loading, Gauge: NewGauge(gaugeValue)}
	if err != nil {
		d.Error = "Unable to load live readings."
	}
	if r != nil {
		d.HasData = true
		d.Temperature = formatNumber(r.Temperature)
		d.Humidity = formatNumber(r.Humidity)
		d.Updated = FormatDateTime(r.Timestamp, loc)
	}
	return d
}

func NewHistoryData(readings []types.HistoryReading, loading bool, loc *time.Location) *HistoryData {
	rows := make([]HistoryRow, len(readings))
	for i, r := range readings {
		rows[i] = HistoryRow{
			ID:          r.ID,
			Date:        FormatDate(r.Timestamp, loc),
			Time:        FormatTime(r.Timestamp, loc),
			Temperature: formatNumber(r.Temperature),
			Humidity:    formatNumber(r.Humidity),
			Label:       r.Label,
			Color:       r.Color,
		}
	}
	return &HistoryData{Loading: loading, Readings: rows}
}

func FormatDate(t time.Time, loc *time.Location) string {
	return in(t, loc).Format(DateLayout)
}

func FormatTime(t time.Time, loc *time.Location) string {
	return in(t, loc).Format(TimeLayout)
}

// FormatDateTime is the "Last Updated" form: date - time.
func FormatDateTime(t time.Time, loc *time.Location) string {
	return FormatDate(t, loc) + " - " + FormatTime(t, loc)
}

func in(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		return t
	}
	return t.In(loc)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
