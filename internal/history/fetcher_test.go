package history_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/aqbackfill/internal/airquality"
	"github.com/breatheroute/aqbackfill/internal/geo"
	"github.com/breatheroute/aqbackfill/internal/history"
	"github.com/breatheroute/aqbackfill/internal/timeseries"
	"github.com/breatheroute/aqbackfill/internal/weather"
	"github.com/breatheroute/aqbackfill/pkg/nullable"
)

var errUpstream = errors.New("upstream exhausted")

// hourlySource returns one observation per hour, failing on the listed window starts.
type hourlySource struct {
	mu     sync.Mutex
	calls  []time.Time
	failOn map[int64]bool
}

func (s *hourlySource) FetchHistory(_ context.Context, _, _ float64, from, to time.Time) ([]airquality.Observation, error) {
	s.mu.Lock()
	s.calls = append(s.calls, from)
	s.mu.Unlock()

	if s.failOn[from.Unix()] {
		return nil, errUpstream
	}
	var out []airquality.Observation
	for t := from; t.Before(to); t = t.Add(time.Hour) {
		out = append(out, airquality.NewObservation(t, airquality.Components{PM25: nullable.Of(10)}, 1))
	}
	return out, nil
}

type yearSource struct {
	calls int
	fail  bool
}

func (s *yearSource) FetchArchive(_ context.Context, _, _ float64, from, _ time.Time, _ weather.Granularity) ([]weather.Observation, error) {
	s.calls++
	if s.fail && s.calls == 2 {
		return nil, errUpstream
	}
	return []weather.Observation{{Time: from, Temperature: nullable.Of(20)}}, nil
}

var testPoint = geo.Point{Name: "Ba Dinh", Lat: 21.0338, Lon: 105.8142}

func TestPollutionFetcher_WalkInOrder(t *testing.T) {
	src := &hourlySource{}
	f := history.NewPollutionFetcher(history.PollutionFetcherConfig{Source: src, Pacing: -1})

	start := day(2022, 1, 1)
	windows := history.SplitDays(start, start.AddDate(0, 0, 3))

	var seen []int
	err := f.Walk(context.Background(), testPoint, windows, func(i int, w history.Window, obs *timeseries.Series[airquality.Observation]) error {
		seen = append(seen, i)
		assert.Equal(t, 24, obs.Len())
		for _, ts := range obs.Times() {
			assert.True(t, w.Contains(ts))
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2}, seen)
	require.Len(t, src.calls, 3)
	assert.True(t, src.calls[0].Before(src.calls[1]))
}

func TestPollutionFetcher_HaltsOnFailure(t *testing.T) {
	start := day(2022, 1, 1)
	src := &hourlySource{failOn: map[int64]bool{start.AddDate(0, 0, 2).Unix(): true}}
	f := history.NewPollutionFetcher(history.PollutionFetcherConfig{Source: src, Pacing: -1})

	series, err := f.FetchRange(context.Background(), testPoint, start, start.AddDate(0, 0, 5))

	var windowErr *history.WindowError
	require.ErrorAs(t, err, &windowErr)
	assert.Equal(t, 2, windowErr.Index)
	assert.Equal(t, "Ba Dinh", windowErr.Point)
	assert.ErrorIs(t, err, errUpstream)

	assert.Equal(t, 48, series.Len(), "windows before the failure are kept")
	assert.Len(t, src.calls, 3, "remaining windows are not fetched")
}

func TestPollutionFetcher_StopsOnCallbackError(t *testing.T) {
	src := &hourlySource{}
	f := history.NewPollutionFetcher(history.PollutionFetcherConfig{Source: src, Pacing: -1})
	stop := errors.New("stop")

	start := day(2022, 1, 1)
	err := f.Walk(context.Background(), testPoint, history.SplitDays(start, start.AddDate(0, 0, 4)),
		func(i int, _ history.Window, _ *timeseries.Series[airquality.Observation]) error {
			if i == 1 {
				return stop
			}
			return nil
		})

	assert.ErrorIs(t, err, stop)
	assert.Len(t, src.calls, 2)
}

func TestPollutionFetcher_CancellationBetweenWindows(t *testing.T) {
	src := &hourlySource{}
	f := history.NewPollutionFetcher(history.PollutionFetcherConfig{Source: src, Pacing: -1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := day(2022, 1, 1)
	err := f.Walk(ctx, testPoint, history.SplitDays(start, start.AddDate(0, 0, 10)),
		func(i int, _ history.Window, _ *timeseries.Series[airquality.Observation]) error {
			if i == 3 {
				cancel()
			}
			return nil
		})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, src.calls, 4)
}

func TestPollutionFetcher_Pacing(t *testing.T) {
	src := &hourlySource{}
	f := history.NewPollutionFetcher(history.PollutionFetcherConfig{Source: src, Pacing: 20 * time.Millisecond})

	start := day(2022, 1, 1)
	began := time.Now()
	_, err := f.FetchRange(context.Background(), testPoint, start, start.AddDate(0, 0, 3))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(began), 35*time.Millisecond)
}

func TestWeatherFetcher_OneCallPerYear(t *testing.T) {
	src := &yearSource{}
	f := history.NewWeatherFetcher(history.WeatherFetcherConfig{Source: src, Pacing: -1})
	assert.Equal(t, weather.GranularityHourly, f.Granularity())

	series, err := f.FetchRange(context.Background(), testPoint, day(2021, 1, 1), day(2024, 1, 1))
	require.NoError(t, err)

	assert.Equal(t, 3, src.calls)
	assert.Equal(t, 3, series.Len())
}

func TestWeatherFetcher_SegmentFailureFailsRange(t *testing.T) {
	src := &yearSource{fail: true}
	f := history.NewWeatherFetcher(history.WeatherFetcherConfig{Source: src, Pacing: -1})

	series, err := f.FetchRange(context.Background(), testPoint, day(2021, 1, 1), day(2024, 1, 1))

	assert.Nil(t, series)
	var windowErr *history.WindowError
	require.ErrorAs(t, err, &windowErr)
	assert.Equal(t, 1, windowErr.Index)
	assert.Equal(t, 2, src.calls)
}
