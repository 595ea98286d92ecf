package history

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/breatheroute/aqbackfill/internal/airquality"
	"github.com/breatheroute/aqbackfill/internal/geo"
	"github.com/breatheroute/aqbackfill/internal/timeseries"
	"github.com/breatheroute/aqbackfill/internal/weather"
)

// Default pacing between successive calls to the same source.
const (
	DefaultPollutionPacing = 250 * time.Millisecond
	DefaultWeatherPacing   = 300 * time.Millisecond
)

// PollutionSource returns the hourly pollution observations in [from, to).
type PollutionSource interface {
	FetchHistory(ctx context.Context, lat, lon float64, from, to time.Time) ([]airquality.Observation, error)
}

// WeatherSource returns weather observations covering [from, to).
type WeatherSource interface {
	FetchArchive(ctx context.Context, lat, lon float64, from, to time.Time, g weather.Granularity) ([]weather.Observation, error)
}

// WindowError reports a window that failed after the source gave up retrying.
type WindowError struct {
	Point  string
	Index  int
	Window Window
	Err    error
}

func (e *WindowError) Error() string {
	return fmt.Sprintf("fetching %s window %d %s: %v", e.Point, e.Index, e.Window, e.Err)
}

func (e *WindowError) Unwrap() error { return e.Err }

// newLimiter spaces calls at least pacing apart. The first call is not delayed.
func newLimiter(pacing time.Duration) *rate.Limiter {
	if pacing <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(pacing), 1)
}

// wait blocks on the limiter, preferring the context's own error on cancellation.
func wait(ctx context.Context, l *rate.Limiter) error {
	if err := l.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// PollutionFetcherConfig holds configuration for a PollutionFetcher.
type PollutionFetcherConfig struct {
	Source PollutionSource

	// Pacing is the minimum spacing between calls (default: DefaultPollutionPacing).
	// A negative value disables pacing.
	Pacing time.Duration

	Logger zerolog.Logger
}

// PollutionFetcher fetches pollution history one day window at a time.
type PollutionFetcher struct {
	source  PollutionSource
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewPollutionFetcher creates a new pollution fetcher.
func NewPollutionFetcher(cfg PollutionFetcherConfig) *PollutionFetcher {
	pacing := cfg.Pacing
	if pacing == 0 {
		pacing = DefaultPollutionPacing
	}
	return &PollutionFetcher{
		source:  cfg.Source,
		limiter: newLimiter(pacing),
		logger:  cfg.Logger,
	}
}

// WindowFunc receives the observations of one fetched window. index is the
// window's position in the slice passed to Walk. Returning an error stops the walk.
type WindowFunc func(index int, w Window, obs *timeseries.Series[airquality.Observation]) error

// Walk fetches windows in order and hands each result to fn. The context is
// checked before every window. A window that fails is logged and ends the
// walk with a *WindowError; windows already handed to fn are unaffected.
func (f *PollutionFetcher) Walk(ctx context.Context, p geo.Point, windows []Window, fn WindowFunc) error {
	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := wait(ctx, f.limiter); err != nil {
			return err
		}

		obs, err := f.source.FetchHistory(ctx, p.Lat, p.Lon, w.Start, w.End)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			f.logger.Error().
				Err(err).
				Str("point", p.Name).
				Int("window", i).
				Time("window_start", w.Start).
				Msg("pollution window failed, halting point")
			return &WindowError{Point: p.Name, Index: i, Window: w, Err: err}
		}

		series := timeseries.New[airquality.Observation]()
		for _, o := range obs {
			series.Put(o.Time, o)
		}

		f.logger.Debug().
			Str("point", p.Name).
			Int("window", i).
			Time("window_start", w.Start).
			Int("observations", series.Len()).
			Msg("pollution window fetched")

		if err := fn(i, w, series); err != nil {
			return err
		}
	}
	return nil
}

// FetchRange fetches [start, end) day by day and merges the windows. On
// failure it returns everything gathered before the failing window together
// with the error.
func (f *PollutionFetcher) FetchRange(ctx context.Context, p geo.Point, start, end time.Time) (*timeseries.Series[airquality.Observation], error) {
	merged := timeseries.New[airquality.Observation]()
	err := f.Walk(ctx, p, SplitDays(start, end), func(_ int, _ Window, obs *timeseries.Series[airquality.Observation]) error {
		merged.Merge(obs)
		return nil
	})
	return merged, err
}

// WeatherFetcherConfig holds configuration for a WeatherFetcher.
type WeatherFetcherConfig struct {
	Source WeatherSource

	// Granularity requested from the source (default: hourly).
	Granularity weather.Granularity

	// Pacing is the minimum spacing between calls (default: DefaultWeatherPacing).
	// A negative value disables pacing.
	Pacing time.Duration

	Logger zerolog.Logger
}

// WeatherFetcher fetches a weather archive one year window at a time.
type WeatherFetcher struct {
	source      WeatherSource
	granularity weather.Granularity
	limiter     *rate.Limiter
	logger      zerolog.Logger
}

// NewWeatherFetcher creates a new weather fetcher.
func NewWeatherFetcher(cfg WeatherFetcherConfig) *WeatherFetcher {
	pacing := cfg.Pacing
	if pacing == 0 {
		pacing = DefaultWeatherPacing
	}
	g := cfg.Granularity
	if g == "" {
		g = weather.GranularityHourly
	}
	return &WeatherFetcher{
		source:      cfg.Source,
		granularity: g,
		limiter:     newLimiter(pacing),
		logger:      cfg.Logger,
	}
}

// Granularity returns the resolution requested from the source.
func (f *WeatherFetcher) Granularity() weather.Granularity {
	return f.granularity
}

// FetchRange fetches [start, end) one year at a time. Any failed segment
// fails the whole range.
func (f *WeatherFetcher) FetchRange(ctx context.Context, p geo.Point, start, end time.Time) (*timeseries.Series[weather.Observation], error) {
	merged := timeseries.New[weather.Observation]()

	for i, w := range SplitYears(start, end) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := wait(ctx, f.limiter); err != nil {
			return nil, err
		}

		obs, err := f.source.FetchArchive(ctx, p.Lat, p.Lon, w.Start, w.End, f.granularity)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			f.logger.Error().
				Err(err).
				Str("point", p.Name).
				Int("segment", i).
				Time("segment_start", w.Start).
				Msg("weather segment failed")
			return nil, &WindowError{Point: p.Name, Index: i, Window: w, Err: err}
		}

		for _, o := range obs {
			merged.Put(o.Time, o)
		}
	}

	f.logger.Debug().
		Str("point", p.Name).
		Int("observations", merged.Len()).
		Msg("weather range fetched")

	return merged, nil
}
