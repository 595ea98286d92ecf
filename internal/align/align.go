// Package align joins pollution observations with the weather observation
// covering the same hour or day.
package align

import (
	"time"

	"github.com/breatheroute/aqbackfill/internal/airquality"
	"github.com/breatheroute/aqbackfill/internal/dataset"
	"github.com/breatheroute/aqbackfill/internal/geo"
	"github.com/breatheroute/aqbackfill/internal/timeseries"
	"github.com/breatheroute/aqbackfill/internal/weather"
)

// Options controls how weather is matched.
type Options struct {
	// Granularity of the weather series (default: hourly).
	Granularity weather.Granularity

	// WeatherZone is the zone whose calendar days key a daily weather
	// series (default: UTC). Ignored for hourly series.
	WeatherZone *time.Location
}

// Join produces one record per pollution observation in ascending time
// order. Hourly weather is matched on the exact instant; daily weather on
// the calendar day of the pollution instant in WeatherZone. Pollution with
// no match gets absent weather fields; weather with no pollution is dropped.
func Join(p geo.Point, labels dataset.Labels, pollution *timeseries.Series[airquality.Observation], wx *timeseries.Series[weather.Observation], opts Options) []dataset.Record {
	zone := opts.WeatherZone
	if zone == nil {
		zone = time.UTC
	}
	local := labels.Location
	if local == nil {
		local = time.UTC
	}
	daily := opts.Granularity == weather.GranularityDaily

	records := make([]dataset.Record, 0, pollution.Len())
	pollution.Each(func(t time.Time, obs airquality.Observation) {
		key := t
		if daily {
			key = startOfDay(t, zone)
		}

		rec := dataset.Record{
			Point:    p.Name,
			UTC:      t,
			Local:    t.In(local),
			City:     labels.City,
			Country:  labels.Country,
			Timezone: local.String(),
			AQI:      obs.Index,
			CO:       obs.COMilligrams(),
			NO2:      obs.Components.NO2,
			O3:       obs.Components.O3,
			PM10:     obs.Components.PM10,
			PM25:     obs.Components.PM25,
			SO2:      obs.Components.SO2,
		}

		if w, ok := wx.Get(key); ok {
			rec.Clouds = w.CloudCover
			rec.Precipitation = w.Precipitation
			rec.Pressure = w.Pressure
			rec.Humidity = w.Humidity
			rec.Temperature = w.Temperature
			rec.WindSpeed = w.WindSpeed
		}

		records = append(records, rec)
	})

	return records
}

func startOfDay(t time.Time, zone *time.Location) time.Time {
	y, m, d := t.In(zone).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, zone)
}
