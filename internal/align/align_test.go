package align_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/aqbackfill/internal/airquality"
	"github.com/breatheroute/aqbackfill/internal/align"
	"github.com/breatheroute/aqbackfill/internal/dataset"
	"github.com/breatheroute/aqbackfill/internal/geo"
	"github.com/breatheroute/aqbackfill/internal/timeseries"
	"github.com/breatheroute/aqbackfill/internal/weather"
	"github.com/breatheroute/aqbackfill/pkg/nullable"
)

var point = geo.Point{Name: "Hoan Kiem", Lat: 21.0285, Lon: 105.8542}

func labels(t *testing.T) dataset.Labels {
	t.Helper()
	hcm, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	require.NoError(t, err)
	return dataset.Labels{City: "Hanoi", Country: "VN", Location: hcm}
}

func pollutionAt(times ...time.Time) *timeseries.Series[airquality.Observation] {
	s := timeseries.New[airquality.Observation]()
	for _, ts := range times {
		s.Put(ts, airquality.NewObservation(ts, airquality.Components{
			CO:   nullable.Of(1500),
			NO2:  nullable.Of(20),
			PM25: nullable.Of(40),
			PM10: nullable.Of(60),
		}, 3))
	}
	return s
}

func TestJoin_HourlyExactMatch(t *testing.T) {
	ts := time.Date(2022, 1, 1, 5, 0, 0, 0, time.UTC)
	wx := timeseries.New[weather.Observation]()
	wx.Put(ts, weather.Observation{Time: ts, Temperature: nullable.Of(18), CloudCover: nullable.Of(90)})

	records := align.Join(point, labels(t), pollutionAt(ts), wx, align.Options{Granularity: weather.GranularityHourly})

	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, "Hoan Kiem", r.Point)
	assert.True(t, r.UTC.Equal(ts))
	assert.Equal(t, "2022-01-01 12:00:00", r.Local.Format(dataset.LocalLayout))
	assert.Equal(t, "Asia/Ho_Chi_Minh", r.Timezone)
	assert.Equal(t, "Hanoi", r.City)
	assert.Equal(t, nullable.Of(18), r.Temperature)
	assert.Equal(t, nullable.Of(90), r.Clouds)
	assert.Equal(t, nullable.Of(1.5), r.CO)
	assert.InDelta(t, 112.08, r.AQI.Value, 0.01)
}

func TestJoin_HourlyUnmatchedHasAbsentWeather(t *testing.T) {
	ts := time.Date(2022, 1, 1, 5, 0, 0, 0, time.UTC)
	wx := timeseries.New[weather.Observation]()
	wx.Put(ts.Add(time.Hour), weather.Observation{Temperature: nullable.Of(18)})

	records := align.Join(point, labels(t), pollutionAt(ts), wx, align.Options{})

	require.Len(t, records, 1)
	assert.False(t, records[0].Temperature.Valid)
	assert.False(t, records[0].WindSpeed.Valid)
	assert.True(t, records[0].PM25.Valid)
}

func TestJoin_NilWeather(t *testing.T) {
	ts := time.Date(2022, 1, 1, 5, 0, 0, 0, time.UTC)
	records := align.Join(point, labels(t), pollutionAt(ts, ts.Add(time.Hour)), nil, align.Options{})

	require.Len(t, records, 2)
	assert.False(t, records[1].Pressure.Valid)
}

func TestJoin_AscendingOrder(t *testing.T) {
	base := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	records := align.Join(point, labels(t), pollutionAt(base.Add(3*time.Hour), base, base.Add(time.Hour)), nil, align.Options{})

	require.Len(t, records, 3)
	assert.True(t, records[0].UTC.Equal(base))
	assert.True(t, records[1].UTC.Equal(base.Add(time.Hour)))
	assert.True(t, records[2].UTC.Equal(base.Add(3*time.Hour)))
}

func TestJoin_DailyTruncatesInWeatherZone(t *testing.T) {
	hcm := labels(t).Location

	wx := timeseries.New[weather.Observation]()
	jan1 := time.Date(2022, 1, 1, 0, 0, 0, 0, hcm)
	jan2 := time.Date(2022, 1, 2, 0, 0, 0, 0, hcm)
	wx.Put(jan1, weather.Observation{Time: jan1, Precipitation: nullable.Of(1)})
	wx.Put(jan2, weather.Observation{Time: jan2, Precipitation: nullable.Of(2)})

	// 16:00Z on Jan 1 is 23:00 local; 17:00Z is already Jan 2 local.
	late := time.Date(2022, 1, 1, 16, 0, 0, 0, time.UTC)
	next := time.Date(2022, 1, 1, 17, 0, 0, 0, time.UTC)

	records := align.Join(point, labels(t), pollutionAt(late, next), wx, align.Options{
		Granularity: weather.GranularityDaily,
		WeatherZone: hcm,
	})

	require.Len(t, records, 2)
	assert.Equal(t, nullable.Of(1), records[0].Precipitation)
	assert.Equal(t, nullable.Of(2), records[1].Precipitation)
}

func TestJoin_DailyDefaultsToUTCDays(t *testing.T) {
	wx := timeseries.New[weather.Observation]()
	jan1 := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	wx.Put(jan1, weather.Observation{Time: jan1, Temperature: nullable.Of(15)})

	ts := time.Date(2022, 1, 1, 23, 0, 0, 0, time.UTC)
	records := align.Join(point, labels(t), pollutionAt(ts), wx, align.Options{Granularity: weather.GranularityDaily})

	require.Len(t, records, 1)
	assert.Equal(t, nullable.Of(15), records[0].Temperature)
}
