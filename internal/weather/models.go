// Package weather provides historical weather observations.
package weather

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/breatheroute/aqbackfill/pkg/nullable"
)

// Weather errors.
var (
	ErrUnknownGranularity = errors.New("unknown weather granularity")
)

// Granularity is the sampling resolution of a weather source.
type Granularity string

const (
	GranularityHourly Granularity = "hourly"
	GranularityDaily  Granularity = "daily"
)

// ParseGranularity parses "hourly" or "daily" (case-insensitive).
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case GranularityHourly, GranularityDaily:
		return g, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownGranularity, s)
	}
}

// Observation represents weather at a point for one hour or one day.
type Observation struct {
	// Time is the start of the covered hour or day.
	Time time.Time

	// Temperature in Celsius
	Temperature nullable.Float64

	// Humidity is relative humidity (0-100).
	Humidity nullable.Float64

	// WindSpeed in m/s
	WindSpeed nullable.Float64

	// Precipitation in mm
	Precipitation nullable.Float64

	// CloudCover percentage (0-100)
	CloudCover nullable.Float64

	// Pressure at mean sea level in hPa
	Pressure nullable.Float64
}
