// Package airquality provides pollutant observations and AQI conversion.
package airquality

import (
	"time"

	"github.com/breatheroute/aqbackfill/pkg/nullable"
)

// Components holds raw concentrations as reported by the source, in µg/m³.
type Components struct {
	CO   nullable.Float64 `json:"co"`
	NO   nullable.Float64 `json:"no"`
	NO2  nullable.Float64 `json:"no2"`
	O3   nullable.Float64 `json:"o3"`
	SO2  nullable.Float64 `json:"so2"`
	PM25 nullable.Float64 `json:"pm2_5"`
	PM10 nullable.Float64 `json:"pm10"`
	NH3  nullable.Float64 `json:"nh3"`
}

// Observation is one hourly pollution reading at a point.
type Observation struct {
	// Time is the UTC instant of the reading (second resolution).
	Time time.Time

	Components Components

	// Category is the provider-native 1-5 scale, 0 when not reported.
	Category int

	// Index is the US/EPA AQI derived from PM2.5 and PM10.
	Index nullable.Float64
}

// NewObservation builds an observation and derives its standardized index.
func NewObservation(t time.Time, c Components, category int) Observation {
	return Observation{
		Time:       t.UTC(),
		Components: c,
		Category:   category,
		Index:      USIndexFromPM(c.PM25, c.PM10),
	}
}

// COMilligrams returns the CO concentration converted from µg/m³ to mg/m³.
func (o Observation) COMilligrams() nullable.Float64 {
	return o.Components.CO.Map(func(v float64) float64 { return v / 1000 })
}
