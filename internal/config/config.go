// Package config loads backfill settings from the environment, an optional
// .env file and an optional YAML points file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/breatheroute/aqbackfill/internal/backfill"
	"github.com/breatheroute/aqbackfill/internal/database"
	"github.com/breatheroute/aqbackfill/internal/geo"
	"github.com/breatheroute/aqbackfill/internal/history"
	"github.com/breatheroute/aqbackfill/internal/store"
	"github.com/breatheroute/aqbackfill/internal/weather"
)

const dateLayout = "2006-01-02"

const (
	defaultOutputDir        = "."
	defaultMaxAttempts      = 5
	defaultBackoffBase      = 800 * time.Millisecond
	defaultPollutionTimeout = 20 * time.Second
	defaultWeatherTimeout   = 60 * time.Second
	defaultOTLPEndpoint     = "localhost:4317"
	defaultEnvironment      = "development"
)

// ConfigError reports an invalid or missing setting. It is raised before
// any work begins.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Config holds everything needed to wire a run.
type Config struct {
	Backfill backfill.Config

	PollutionAPIKey string
	WeatherAPIKey   string

	OutputDir    string
	OutputFormat store.Format

	PollutionPacing time.Duration
	WeatherPacing   time.Duration

	HTTPMaxAttempts  int
	HTTPBackoffBase  time.Duration
	PollutionTimeout time.Duration
	WeatherTimeout   time.Duration

	Database database.Config

	PubSubProjectID string
	PubSubTopic     string

	// StatusAddr enables the ops server when set.
	StatusAddr string

	OTelEnabled  bool
	OTLPEndpoint string
	Environment  string
	LogLevel     zerolog.Level
}

// Load reads .env if present and then the process environment.
func Load() (Config, error) {
	return LoadFile(".env")
}

// LoadFile reads the dotenv file at path, if it exists, and then the process
// environment. Variables already set in the environment win over the file.
func LoadFile(path string) (Config, error) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, &ConfigError{Field: path, Reason: err.Error()}
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment alone.
func FromEnv() (Config, error) {
	cfg := Config{
		Backfill:         backfill.DefaultConfig(),
		OutputDir:        env("BACKFILL_OUTPUT_DIR", defaultOutputDir),
		PollutionPacing:  history.DefaultPollutionPacing,
		WeatherPacing:    history.DefaultWeatherPacing,
		HTTPMaxAttempts:  defaultMaxAttempts,
		HTTPBackoffBase:  defaultBackoffBase,
		PollutionTimeout: defaultPollutionTimeout,
		WeatherTimeout:   defaultWeatherTimeout,
		Database:         database.ConfigFromEnv(),
		PubSubProjectID:  strings.TrimSpace(os.Getenv("PUBSUB_PROJECT_ID")),
		PubSubTopic:      strings.TrimSpace(os.Getenv("PUBSUB_TOPIC")),
		StatusAddr:       strings.TrimSpace(os.Getenv("STATUS_ADDR")),
		OTelEnabled:      os.Getenv("OTEL_ENABLED") == "true",
		OTLPEndpoint:     env("OTEL_EXPORTER_OTLP_ENDPOINT", defaultOTLPEndpoint),
		Environment:      env("APP_ENV", defaultEnvironment),
		LogLevel:         zerolog.InfoLevel,
	}
	b := &cfg.Backfill

	cfg.PollutionAPIKey = env("OWM_API_KEY", strings.TrimSpace(os.Getenv("API_KEY")))
	if cfg.PollutionAPIKey == "" {
		return cfg, &ConfigError{Field: "OWM_API_KEY", Reason: "is required"}
	}
	cfg.WeatherAPIKey = strings.TrimSpace(os.Getenv("OPEN_METEO_API_KEY"))

	if path := strings.TrimSpace(os.Getenv("BACKFILL_POINTS_FILE")); path != "" {
		points, err := LoadPoints(path)
		if err != nil {
			return cfg, err
		}
		b.Points = points
	}

	var err error
	if b.Start, err = date("BACKFILL_START", b.Start); err != nil {
		return cfg, err
	}
	if b.End, err = date("BACKFILL_END", b.End); err != nil {
		return cfg, err
	}
	if !b.Start.Before(b.End) {
		return cfg, &ConfigError{Field: "BACKFILL_END", Reason: "must be after BACKFILL_START"}
	}

	if v := strings.TrimSpace(os.Getenv("BACKFILL_TIMEZONE")); v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			return cfg, &ConfigError{Field: "BACKFILL_TIMEZONE", Reason: err.Error()}
		}
		b.Labels.Location = loc
	}
	b.Labels.City = env("BACKFILL_CITY", b.Labels.City)
	b.Labels.Country = env("BACKFILL_COUNTRY", b.Labels.Country)
	b.CombinedName = env("BACKFILL_COMBINED_NAME", b.CombinedName)

	if cfg.OutputFormat, err = store.ParseFormat(env("BACKFILL_OUTPUT_FORMAT", string(store.FormatCSV))); err != nil {
		return cfg, &ConfigError{Field: "BACKFILL_OUTPUT_FORMAT", Reason: err.Error()}
	}

	if b.CheckpointEvery, err = positiveInt("BACKFILL_CHECKPOINT_EVERY", b.CheckpointEvery); err != nil {
		return cfg, err
	}
	if cfg.HTTPMaxAttempts, err = positiveInt("HTTP_MAX_ATTEMPTS", cfg.HTTPMaxAttempts); err != nil {
		return cfg, err
	}

	if v := strings.TrimSpace(os.Getenv("BACKFILL_RESUME")); v != "" {
		if b.Resume, err = strconv.ParseBool(v); err != nil {
			return cfg, &ConfigError{Field: "BACKFILL_RESUME", Reason: err.Error()}
		}
	}
	if b.Resume && cfg.OutputFormat != store.FormatCSV {
		return cfg, &ConfigError{Field: "BACKFILL_RESUME", Reason: "requires csv output"}
	}

	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"BACKFILL_POLLUTION_PACING", &cfg.PollutionPacing},
		{"BACKFILL_WEATHER_PACING", &cfg.WeatherPacing},
		{"HTTP_BACKOFF_BASE", &cfg.HTTPBackoffBase},
		{"HTTP_POLLUTION_TIMEOUT", &cfg.PollutionTimeout},
		{"HTTP_WEATHER_TIMEOUT", &cfg.WeatherTimeout},
	} {
		if *d.dst, err = duration(d.key, *d.dst); err != nil {
			return cfg, err
		}
	}

	if v := strings.TrimSpace(os.Getenv("WEATHER_GRANULARITY")); v != "" {
		if b.Granularity, err = weather.ParseGranularity(v); err != nil {
			return cfg, &ConfigError{Field: "WEATHER_GRANULARITY", Reason: err.Error()}
		}
	}
	if v := strings.TrimSpace(os.Getenv("WEATHER_TIMEZONE")); v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			return cfg, &ConfigError{Field: "WEATHER_TIMEZONE", Reason: err.Error()}
		}
		b.WeatherZone = loc
	}

	if (cfg.PubSubProjectID == "") != (cfg.PubSubTopic == "") {
		return cfg, &ConfigError{Field: "PUBSUB_TOPIC", Reason: "PUBSUB_PROJECT_ID and PUBSUB_TOPIC must be set together"}
	}

	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		if cfg.LogLevel, err = zerolog.ParseLevel(strings.ToLower(v)); err != nil {
			return cfg, &ConfigError{Field: "LOG_LEVEL", Reason: err.Error()}
		}
	}

	if err := b.Validate(); err != nil {
		return cfg, &ConfigError{Field: "points", Reason: err.Error()}
	}

	return cfg, nil
}

type pointsFile struct {
	Points []geo.Point `yaml:"points"`
}

// LoadPoints reads a YAML file listing points:
//
//	points:
//	  - name: Ba Dinh
//	    lat: 21.0338
//	    lon: 105.8142
func LoadPoints(path string) ([]geo.Point, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Field: "BACKFILL_POINTS_FILE", Reason: err.Error()}
	}

	var f pointsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &ConfigError{Field: "BACKFILL_POINTS_FILE", Reason: fmt.Sprintf("parsing %s: %v", path, err)}
	}
	if len(f.Points) == 0 {
		return nil, &ConfigError{Field: "BACKFILL_POINTS_FILE", Reason: fmt.Sprintf("%s lists no points", path)}
	}
	if err := geo.ValidateAll(f.Points); err != nil {
		return nil, &ConfigError{Field: "BACKFILL_POINTS_FILE", Reason: err.Error()}
	}
	return f.Points, nil
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func date(key string, def time.Time) (time.Time, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return def, &ConfigError{Field: key, Reason: fmt.Sprintf("want YYYY-MM-DD, got %q", v)}
	}
	return t, nil
}

func duration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, &ConfigError{Field: key, Reason: err.Error()}
	}
	if d < 0 {
		return def, &ConfigError{Field: key, Reason: "must not be negative"}
	}
	return d, nil
}

func positiveInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def, &ConfigError{Field: key, Reason: fmt.Sprintf("want a positive integer, got %q", v)}
	}
	return n, nil
}
