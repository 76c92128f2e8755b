package types

import "time"

// Document is a stored sensor record as it arrived from ingestion. Field values
// are either bare primitives or tagged wrappers such as {"doubleValue": 21.5}.
type Document map[string]any

// Reading is a decoded sensor record.
type Reading struct {
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	AirQuality  int       `json:"airQuality"`
	Timestamp   time.Time `json:"timestamp"`
	// RawTimestamp keeps the ingested string encoding.
	RawTimestamp string `json:"rawTimestamp"`
}

// Assessment is the derived clean-air view of a raw air-quality value.
type Assessment struct {
	Percentage int    `json:"percentage"`
	Label      string `json:"label"`
	Color      string `json:"color"`
}

// LiveReading is the newest reading as published by the live projection.
type LiveReading struct {
	Reading
	Assessment
}

// HistoryReading is one entry of the history list; ID is the store reference
// used for deletion.
type HistoryReading struct {
	ID string `json:"id"`
	Reading
	Assessment
}
