package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"airquality-server/internal/modules/airquality/quality"
	"airquality-server/internal/modules/airquality/types"
)

func sample() []types.HistoryReading {
	ts := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	return []types.HistoryReading{
		{ID: "a", Reading: types.Reading{Temperature: 21.5, Humidity: 40, AirQuality: 0, Timestamp: ts}, Assessment: quality.Assess(0)},
		{ID: "b", Reading: types.Reading{Temperature: 19, Humidity: 55.25, AirQuality: 4095, Timestamp: ts.Add(-time.Hour)}, Assessment: quality.Assess(4095)},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat(" XLSX ")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	_, err = ParseFormat("pdf")
	assert.Error(t, err)
}

func TestFormat_Filename(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 30, 5, 0, time.UTC)
	assert.Equal(t, "sensor_readings_20240501_103005.xlsx", FormatXLSX.Filename(at))
	assert.Contains(t, FormatCSV.ContentType(), "text/csv")
}

func TestWriteCSV(t *testing.T) {
	loc := time.FixedZone("TRT", 3*3600)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, sample(), loc))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, headers, rows[0])
	assert.Equal(t, []string{"a", "2024-05-01 13:30:00", "21.5", "40", "0", "100", "Excellent"}, rows[1])
	assert.Equal(t, []string{"b", "2024-05-01 12:30:00", "19", "55.25", "4095", "0", "Hazardous"}, rows[2])
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, sample(), time.UTC))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, headers, rows[0])
	assert.Equal(t, "a", rows[1][0])
	assert.Equal(t, "2024-05-01 10:30:00", rows[1][1])
	assert.Equal(t, "Excellent", rows[1][6])
	assert.Equal(t, "Hazardous", rows[2][6])
}

func TestWriteXLSX_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, nil, time.UTC))
	assert.NotZero(t, buf.Len())
}
