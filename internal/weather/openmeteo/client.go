// Package openmeteo provides a client for the Open-Meteo ERA5 historical weather archive.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/aqbackfill/internal/provider/resilience"
	"github.com/breatheroute/aqbackfill/internal/weather"
	"github.com/breatheroute/aqbackfill/pkg/nullable"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "openmeteo"

	// DefaultBaseURL is the ERA5 archive endpoint.
	DefaultBaseURL = "https://archive-api.open-meteo.com/v1/era5"

	// DefaultTimeout bounds a single archive call. Year-long hourly
	// responses are large.
	DefaultTimeout = 60 * time.Second

	hourLayout = "2006-01-02T15:04"
	dateLayout = "2006-01-02"
)

// Caller executes a decoded JSON GET. *resilience.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, req resilience.Request, out any) error
}

// field maps an archive variable onto an observation field.
type field struct {
	name string
	set  func(o *weather.Observation, v nullable.Float64)
}

var hourlyFields = []field{
	{"temperature_2m", func(o *weather.Observation, v nullable.Float64) { o.Temperature = v }},
	{"relative_humidity_2m", func(o *weather.Observation, v nullable.Float64) { o.Humidity = v }},
	{"cloud_cover", func(o *weather.Observation, v nullable.Float64) { o.CloudCover = v }},
	{"pressure_msl", func(o *weather.Observation, v nullable.Float64) { o.Pressure = v }},
	{"precipitation", func(o *weather.Observation, v nullable.Float64) { o.Precipitation = v }},
	{"wind_speed_10m", func(o *weather.Observation, v nullable.Float64) { o.WindSpeed = v }},
}

var dailyFields = []field{
	{"temperature_2m_mean", func(o *weather.Observation, v nullable.Float64) { o.Temperature = v }},
	{"relative_humidity_2m_mean", func(o *weather.Observation, v nullable.Float64) { o.Humidity = v }},
	{"cloud_cover_mean", func(o *weather.Observation, v nullable.Float64) { o.CloudCover = v }},
	{"pressure_msl_mean", func(o *weather.Observation, v nullable.Float64) { o.Pressure = v }},
	{"precipitation_sum", func(o *weather.Observation, v nullable.Float64) { o.Precipitation = v }},
	{"wind_speed_10m_max", func(o *weather.Observation, v nullable.Float64) { o.WindSpeed = v }},
}

// ClientConfig holds configuration for the Open-Meteo client.
type ClientConfig struct {
	// APIKey is only needed for the commercial endpoint.
	APIKey string

	// BaseURL is the archive endpoint (defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient performs calls. If nil, a resilient client with defaults is used.
	HTTPClient Caller

	// Timeout for individual calls (default: DefaultTimeout).
	Timeout time.Duration

	// Location is the zone requested from the archive and used to
	// interpret returned timestamps (default: UTC).
	Location *time.Location

	Logger zerolog.Logger
}

// Client is an Open-Meteo archive client.
type Client struct {
	apiKey     string
	baseURL    string
	timeout    time.Duration
	location   *time.Location
	httpClient Caller
	logger     zerolog.Logger
}

// NewClient creates a new Open-Meteo client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		rc.Logger = cfg.Logger
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		timeout:    timeout,
		location:   loc,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// block is one of the parallel-array sections of an archive response.
type block struct {
	Time   []string
	Values map[string][]nullable.Float64
}

func (b *block) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	b.Values = make(map[string][]nullable.Float64, len(raw))
	for key, msg := range raw {
		if key == "time" {
			if err := json.Unmarshal(msg, &b.Time); err != nil {
				return fmt.Errorf("time: %w", err)
			}
			continue
		}
		var vals []nullable.Float64
		if err := json.Unmarshal(msg, &vals); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		b.Values[key] = vals
	}
	return nil
}

func (b *block) value(name string, i int) nullable.Float64 {
	vals := b.Values[name]
	if i >= len(vals) {
		return nullable.Null()
	}
	return vals[i]
}

type archiveResponse struct {
	Hourly *block `json:"hourly"`
	Daily  *block `json:"daily"`
}

// FetchArchive returns the observations covering [from, to) at the given
// granularity. The archive takes inclusive calendar dates in the client's zone.
func (c *Client) FetchArchive(ctx context.Context, lat, lon float64, from, to time.Time, g weather.Granularity) ([]weather.Observation, error) {
	fields, layout := hourlyFields, hourLayout
	if g == weather.GranularityDaily {
		fields, layout = dailyFields, dateLayout
	} else if g != weather.GranularityHourly {
		return nil, fmt.Errorf("%w: %q", weather.ErrUnknownGranularity, g)
	}

	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.name
	}

	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("start_date", from.In(c.location).Format(dateLayout))
	params.Set("end_date", to.Add(-time.Nanosecond).In(c.location).Format(dateLayout))
	params.Set(string(g), strings.Join(names, ","))
	params.Set("timezone", c.location.String())
	params.Set("wind_speed_unit", "ms")
	if c.apiKey != "" {
		params.Set("apikey", c.apiKey)
	}

	var resp archiveResponse
	if err := c.httpClient.Call(ctx, resilience.Request{
		Endpoint: c.baseURL,
		Params:   params,
		Timeout:  c.timeout,
	}, &resp); err != nil {
		return nil, err
	}

	b := resp.Hourly
	if g == weather.GranularityDaily {
		b = resp.Daily
	}
	if b == nil {
		return nil, &resilience.ParseError{Endpoint: c.baseURL, Err: fmt.Errorf("response has no %s block", g)}
	}

	observations := make([]weather.Observation, 0, len(b.Time))
	for i, ts := range b.Time {
		t, err := time.ParseInLocation(layout, ts, c.location)
		if err != nil {
			return nil, &resilience.ParseError{Endpoint: c.baseURL, Err: fmt.Errorf("time %q: %w", ts, err)}
		}
		if g == weather.GranularityHourly && (t.Before(from) || !t.Before(to)) {
			continue
		}

		obs := weather.Observation{Time: t}
		for _, f := range fields {
			f.set(&obs, b.value(f.name, i))
		}
		observations = append(observations, obs)
	}

	c.logger.Debug().
		Float64("lat", lat).
		Float64("lon", lon).
		Str("granularity", string(g)).
		Time("from", from).
		Time("to", to).
		Int("observations", len(observations)).
		Msg("fetched weather archive")

	return observations, nil
}
