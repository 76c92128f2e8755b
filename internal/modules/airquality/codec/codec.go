// Package codec decodes stored sensor documents. A field may arrive as a bare
// primitive or wrapped under a type key ({"doubleValue": 21.5}) by the
// secondary ingestion path; when a wrapper is present its value wins.
package codec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"airquality-server/internal/modules/airquality/types"
)

const (
	FieldTemperature = "temperature"
	FieldHumidity    = "humidity"
	FieldAirQuality  = "airQuality"
	FieldTimestamp   = "timestamp"

	tagDouble    = "doubleValue"
	tagInteger   = "integerValue"
	tagString    = "stringValue"
	tagTimestamp = "timestampValue"
)

var errMissing = errors.New("missing")

// FieldError reports a field that could not be decoded.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// DecodeReading decodes the four reading fields of doc.
func DecodeReading(doc types.Document) (types.Reading, error) {
	var r types.Reading
	var err error

	if r.Temperature, err = number(doc, FieldTemperature, tagDouble, tagInteger); err != nil {
		return types.Reading{}, err
	}
	if r.Humidity, err = number(doc, FieldHumidity, tagDouble, tagInteger); err != nil {
		return types.Reading{}, err
	}
	if r.AirQuality, err = integer(doc, FieldAirQuality); err != nil {
		return types.Reading{}, err
	}

	raw, ok := unwrap(doc[FieldTimestamp], tagString, tagTimestamp)
	if !ok {
		return types.Reading{}, &FieldError{Field: FieldTimestamp, Err: errMissing}
	}
	s, err := cast.ToStringE(raw)
	if err != nil {
		return types.Reading{}, &FieldError{Field: FieldTimestamp, Err: err}
	}
	ts, err := ParseTimestamp(s)
	if err != nil {
		return types.Reading{}, &FieldError{Field: FieldTimestamp, Err: err}
	}
	r.Timestamp = ts
	r.RawTimestamp = s
	return r, nil
}

// ParseTimestamp accepts RFC3339 with or without fractional seconds and the
// zone-less ISO forms some sensors emit; zone-less values are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errMissing
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// sortKeyLayout is fixed width so keys order lexically.
const sortKeyLayout = "2006-01-02T15:04:05.000000000Z"

// SortKey renders t as the store ordering key.
func SortKey(t time.Time) string {
	return t.UTC().Format(sortKeyLayout)
}

func number(doc types.Document, name string, tags ...string) (float64, error) {
	v, ok := unwrap(doc[name], tags...)
	if !ok {
		return 0, &FieldError{Field: name, Err: errMissing}
	}
	if _, isBool := v.(bool); isBool {
		return 0, &FieldError{Field: name, Err: fmt.Errorf("unexpected bool %v", v)}
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, &FieldError{Field: name, Err: err}
	}
	return f, nil
}

func integer(doc types.Document, name string) (int, error) {
	v, ok := unwrap(doc[name], tagInteger, tagDouble)
	if !ok {
		return 0, &FieldError{Field: name, Err: errMissing}
	}
	if _, isBool := v.(bool); isBool {
		return 0, &FieldError{Field: name, Err: fmt.Errorf("unexpected bool %v", v)}
	}
	// Integer strings are decimal; cast would parse them base 0.
	if s, isString := v.(string); isString {
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, &FieldError{Field: name, Err: err}
		}
		return int(n), nil
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, &FieldError{Field: name, Err: err}
	}
	return n, nil
}

// unwrap returns the primitive carried by v. Wrappers are checked for tags in
// order; a wrapper with none of them counts as missing.
func unwrap(v any, tags ...string) (any, bool) {
	if v == nil {
		return nil, false
	}
	var m map[string]any
	switch w := v.(type) {
	case map[string]any:
		m = w
	case types.Document:
		m = w
	default:
		return v, true
	}
	for _, tag := range tags {
		if inner, ok := m[tag]; ok && inner != nil {
			return inner, true
		}
	}
	return nil, false
}
