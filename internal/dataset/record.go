// Package dataset defines the joined pollution and weather record and its
// tabular encoding.
package dataset

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/breatheroute/aqbackfill/pkg/nullable"
)

// Timestamp layouts used in the tabular encoding.
const (
	LocalLayout = "2006-01-02 15:04:05"
	UTCLayout   = "2006-01-02T15:04:05-07:00"
)

// Columns is the header row, in order.
var Columns = []string{
	"District",
	"Local Time",
	"UTC Time",
	"City",
	"Country Code",
	"Timezone",
	"AQI",
	"CO",
	"NO2",
	"O3",
	"PM10",
	"PM25",
	"SO2",
	"Clouds",
	"Precipitation",
	"Pressure",
	"Relative Humidity",
	"Temperature",
	"Wind Speed",
}

// Dataset errors.
var (
	ErrHeaderMismatch = errors.New("dataset: header does not match columns")
	ErrRowWidth       = errors.New("dataset: row has wrong number of fields")
)

// Labels are the location labels stamped on every record of a run.
type Labels struct {
	City    string
	Country string

	// Location localizes timestamps; its name fills the Timezone column.
	Location *time.Location
}

// Record is one pollution observation joined with its matched weather.
type Record struct {
	Point    string
	UTC      time.Time
	Local    time.Time
	City     string
	Country  string
	Timezone string

	// Pollution. CO is in mg/m³, the rest in µg/m³ as reported.
	AQI  nullable.Float64
	CO   nullable.Float64
	NO2  nullable.Float64
	O3   nullable.Float64
	PM10 nullable.Float64
	PM25 nullable.Float64
	SO2  nullable.Float64

	// Weather, absent when no observation matched.
	Clouds        nullable.Float64
	Precipitation nullable.Float64
	Pressure      nullable.Float64
	Humidity      nullable.Float64
	Temperature   nullable.Float64
	WindSpeed     nullable.Float64
}

// Row encodes r in Columns order. Absent numbers are empty strings.
func (r Record) Row() []string {
	return []string{
		r.Point,
		r.Local.Format(LocalLayout),
		r.UTC.UTC().Format(UTCLayout),
		r.City,
		r.Country,
		r.Timezone,
		r.AQI.String(),
		r.CO.String(),
		r.NO2.String(),
		r.O3.String(),
		r.PM10.String(),
		r.PM25.String(),
		r.SO2.String(),
		r.Clouds.String(),
		r.Precipitation.String(),
		r.Pressure.String(),
		r.Humidity.String(),
		r.Temperature.String(),
		r.WindSpeed.String(),
	}
}

// ValidateHeader checks that header equals Columns.
func ValidateHeader(header []string) error {
	if len(header) != len(Columns) {
		return fmt.Errorf("%w: got %d fields, want %d", ErrHeaderMismatch, len(header), len(Columns))
	}
	for i, name := range Columns {
		if strings.TrimPrefix(header[i], "\ufeff") != name {
			return fmt.Errorf("%w: field %d is %q, want %q", ErrHeaderMismatch, i, header[i], name)
		}
	}
	return nil
}

// FromRow decodes a row written by Row.
func FromRow(row []string) (Record, error) {
	if len(row) != len(Columns) {
		return Record{}, fmt.Errorf("%w: got %d, want %d", ErrRowWidth, len(row), len(Columns))
	}

	utc, err := time.Parse(UTCLayout, row[2])
	if err != nil {
		return Record{}, fmt.Errorf("parsing UTC Time %q: %w", row[2], err)
	}
	utc = utc.UTC()

	r := Record{
		Point:    row[0],
		UTC:      utc,
		City:     row[3],
		Country:  row[4],
		Timezone: row[5],
	}

	loc, err := location(r.Timezone)
	if err != nil {
		return Record{}, err
	}
	r.Local = utc.In(loc)

	targets := []*nullable.Float64{
		&r.AQI, &r.CO, &r.NO2, &r.O3, &r.PM10, &r.PM25, &r.SO2,
		&r.Clouds, &r.Precipitation, &r.Pressure, &r.Humidity, &r.Temperature, &r.WindSpeed,
	}
	for i, dst := range targets {
		col := i + 6
		v, err := nullable.Parse(row[col])
		if err != nil {
			return Record{}, fmt.Errorf("parsing %s %q: %w", Columns[col], row[col], err)
		}
		*dst = v
	}

	return r, nil
}

var locations sync.Map

// location loads a zone once per name. An empty name is UTC.
func location(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	if loc, ok := locations.Load(name); ok {
		return loc.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", name, err)
	}
	locations.Store(name, loc)
	return loc, nil
}
