// Package backfill runs the historical crawl: weather and pollution fetches
// per point, alignment, checkpointing and the combined output.
package backfill

import (
	"errors"
	"fmt"
	"time"

	"github.com/breatheroute/aqbackfill/internal/checkpoint"
	"github.com/breatheroute/aqbackfill/internal/dataset"
	"github.com/breatheroute/aqbackfill/internal/geo"
	"github.com/breatheroute/aqbackfill/internal/weather"
)

// DefaultCombinedName is the table holding every point's records.
const DefaultCombinedName = "air_quality_all_districts"

// ErrInvalidConfig is wrapped by every Config validation failure.
var ErrInvalidConfig = errors.New("invalid backfill configuration")

// Config describes one backfill run.
type Config struct {
	// Points are processed in this order. Names must be unique.
	Points []geo.Point

	// Start and End bound the requested range [Start, End).
	Start time.Time
	End   time.Time

	Labels dataset.Labels

	// Granularity of the weather series (default: hourly).
	Granularity weather.Granularity

	// WeatherZone keys daily weather days (default: UTC).
	WeatherZone *time.Location

	// CheckpointEvery is the periodic snapshot cadence in windows
	// (default: checkpoint.DefaultEvery).
	CheckpointEvery int

	// CombinedName names the combined table (default: DefaultCombinedName).
	CombinedName string

	// Resume picks up completed points and snapshots left by an earlier run.
	Resume bool
}

// DefaultPoints returns the twelve urban districts of Hanoi.
func DefaultPoints() []geo.Point {
	return []geo.Point{
		{Name: "Ba Dinh", Lat: 21.0338, Lon: 105.8142},
		{Name: "Hoan Kiem", Lat: 21.0285, Lon: 105.8542},
		{Name: "Tay Ho", Lat: 21.0680, Lon: 105.8220},
		{Name: "Cau Giay", Lat: 21.0362, Lon: 105.7906},
		{Name: "Dong Da", Lat: 21.0185, Lon: 105.8290},
		{Name: "Hai Ba Trung", Lat: 21.0064, Lon: 105.8602},
		{Name: "Hoang Mai", Lat: 20.9711, Lon: 105.8580},
		{Name: "Thanh Xuan", Lat: 20.9945, Lon: 105.8120},
		{Name: "Long Bien", Lat: 21.0500, Lon: 105.8890},
		{Name: "Bac Tu Liem", Lat: 21.0601, Lon: 105.7495},
		{Name: "Nam Tu Liem", Lat: 21.0106, Lon: 105.7646},
		{Name: "Ha Dong", Lat: 20.9593, Lon: 105.7655},
	}
}

// DefaultConfig returns the two-year Hanoi crawl.
func DefaultConfig() Config {
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	if err != nil {
		loc = time.FixedZone("Asia/Ho_Chi_Minh", 7*3600)
	}
	return Config{
		Points:          DefaultPoints(),
		Start:           time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		End:             time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Labels:          dataset.Labels{City: "Hanoi", Country: "VN", Location: loc},
		Granularity:     weather.GranularityHourly,
		WeatherZone:     time.UTC,
		CheckpointEvery: checkpoint.DefaultEvery,
		CombinedName:    DefaultCombinedName,
	}
}

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	if c.Granularity == "" {
		c.Granularity = weather.GranularityHourly
	}
	if c.WeatherZone == nil {
		c.WeatherZone = time.UTC
	}
	if c.Labels.Location == nil {
		c.Labels.Location = time.UTC
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = checkpoint.DefaultEvery
	}
	if c.CombinedName == "" {
		c.CombinedName = DefaultCombinedName
	}
	return c
}

// Validate checks the run description.
func (c Config) Validate() error {
	if len(c.Points) == 0 {
		return fmt.Errorf("%w: no points configured", ErrInvalidConfig)
	}
	if err := geo.ValidateAll(c.Points); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Start.IsZero() || c.End.IsZero() || !c.Start.Before(c.End) {
		return fmt.Errorf("%w: range [%s, %s) is empty", ErrInvalidConfig, c.Start, c.End)
	}
	if _, err := weather.ParseGranularity(string(c.withDefaults().Granularity)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
