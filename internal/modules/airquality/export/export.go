// Package export writes history readings as CSV or XLSX downloads.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"airquality-server/internal/modules/airquality/quality"
	"airquality-server/internal/modules/airquality/types"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"

	sheetName       = "Readings"
	timestampLayout = "2006-01-02 15:04:05"
)

var headers = []string{"ID", "Timestamp", "Temperature (°C)", "Humidity (%)", "Air Quality (raw)", "Clean Air (%)", "Label"}

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (allowed: csv, xlsx)", s)
	}
}

func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename names the download after the export time.
func (f Format) Filename(at time.Time) string {
	return fmt.Sprintf("sensor_readings_%s.%s", at.Format("20060102_150405"), f)
}

// Write encodes readings in format f. Timestamps are shown in loc.
func Write(w io.Writer, f Format, readings []types.HistoryReading, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	switch f {
	case FormatCSV:
		return WriteCSV(w, readings, loc)
	case FormatXLSX:
		return WriteXLSX(w, readings, loc)
	default:
		return fmt.Errorf("unsupported export format %q", f)
	}
}

func WriteCSV(w io.Writer, readings []types.HistoryReading, loc *time.Location) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return err
	}
	for _, r := range readings {
		row := []string{
			r.ID,
			r.Timestamp.In(loc).Format(timestampLayout),
			strconv.FormatFloat(r.Temperature, 'f', -1, 64),
			strconv.FormatFloat(r.Humidity, 'f', -1, 64),
			strconv.Itoa(r.AirQuality),
			strconv.Itoa(r.Percentage),
			r.Label,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes one sheet with the label cell filled in its band color.
func WriteXLSX(w io.Writer, readings []types.HistoryReading, loc *time.Location) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	if err := f.SetCellStyle(sheetName, "A1", lastCol+"1", headerStyle); err != nil {
		return err
	}

	bandStyles := make(map[string]int, len(quality.Bands))
	for _, b := range quality.Bands {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{strings.TrimPrefix(b.Color, "#")}},
		})
		if err != nil {
			return err
		}
		bandStyles[b.Label] = id
	}
	numStyle, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return err
	}

	for i, r := range readings {
		row := i + 2
		cell, _ := excelize.CoordinatesToCellName(1, row)
		values := []any{
			r.ID,
			r.Timestamp.In(loc).Format(timestampLayout),
			r.Temperature,
			r.Humidity,
			r.AirQuality,
			r.Percentage,
			r.Label,
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheetName, fmt.Sprintf("C%d", row), fmt.Sprintf("D%d", row), numStyle); err != nil {
			return err
		}
		if id, ok := bandStyles[r.Label]; ok {
			labelCell := fmt.Sprintf("%s%d", lastCol, row)
			if err := f.SetCellStyle(sheetName, labelCell, labelCell, id); err != nil {
				return err
			}
		}
	}

	if err := f.SetColWidth(sheetName, "A", "A", 38); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "B", lastCol, 20); err != nil {
		return err
	}
	return f.Write(w)
}
