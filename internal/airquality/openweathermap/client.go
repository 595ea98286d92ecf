// Package openweathermap provides a client for the OpenWeatherMap air pollution history API.
package openweathermap

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/aqbackfill/internal/airquality"
	"github.com/breatheroute/aqbackfill/internal/provider/resilience"
)

const (
	// ProviderName identifies this provider.
	ProviderName = "openweathermap"

	// DefaultBaseURL is the air pollution history endpoint.
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5/air_pollution/history"

	// DefaultTimeout bounds a single history call.
	DefaultTimeout = 20 * time.Second
)

// ErrMissingAPIKey is returned when the client is built without a key.
var ErrMissingAPIKey = errors.New("openweathermap: api key is required")

// Caller executes a decoded JSON GET. *resilience.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, req resilience.Request, out any) error
}

// ClientConfig holds configuration for the OpenWeatherMap client.
type ClientConfig struct {
	// APIKey is the OpenWeatherMap API key (required).
	APIKey string

	// BaseURL is the history endpoint (defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient performs calls. If nil, a resilient client with defaults is used.
	HTTPClient Caller

	// Timeout for individual calls (default: DefaultTimeout).
	Timeout time.Duration

	Logger zerolog.Logger
}

// Client is an OpenWeatherMap air pollution client.
type Client struct {
	apiKey     string
	baseURL    string
	timeout    time.Duration
	httpClient Caller
	logger     zerolog.Logger
}

// NewClient creates a new OpenWeatherMap client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
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
		httpClient: httpClient,
		logger:     cfg.Logger,
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// API response types.

type historyResponse struct {
	List []historyEntry `json:"list"`
}

type historyEntry struct {
	Dt   int64 `json:"dt"`
	Main struct {
		AQI int `json:"aqi"`
	} `json:"main"`
	Components airquality.Components `json:"components"`
}

// FetchHistory returns the hourly observations reported in [from, to).
// The API takes an inclusive end in epoch seconds, so to-1s is sent.
func (c *Client) FetchHistory(ctx context.Context, lat, lon float64, from, to time.Time) ([]airquality.Observation, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("start", strconv.FormatInt(from.Unix(), 10))
	params.Set("end", strconv.FormatInt(to.Unix()-1, 10))
	params.Set("appid", c.apiKey)

	var resp historyResponse
	if err := c.httpClient.Call(ctx, resilience.Request{
		Endpoint: c.baseURL,
		Params:   params,
		Timeout:  c.timeout,
	}, &resp); err != nil {
		return nil, err
	}

	observations := make([]airquality.Observation, 0, len(resp.List))
	for _, entry := range resp.List {
		t := time.Unix(entry.Dt, 0).UTC()
		if t.Before(from) || !t.Before(to) {
			continue
		}
		observations = append(observations, airquality.NewObservation(t, entry.Components, entry.Main.AQI))
	}

	c.logger.Debug().
		Float64("lat", lat).
		Float64("lon", lon).
		Time("from", from).
		Int("observations", len(observations)).
		Msg("fetched pollution history")

	return observations, nil
}
