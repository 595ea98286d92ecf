// Package main provides the entrypoint for the air quality backfill.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/breatheroute/aqbackfill/internal/airquality/openweathermap"
	"github.com/breatheroute/aqbackfill/internal/api"
	"github.com/breatheroute/aqbackfill/internal/api/middleware"
	"github.com/breatheroute/aqbackfill/internal/backfill"
	"github.com/breatheroute/aqbackfill/internal/config"
	"github.com/breatheroute/aqbackfill/internal/database"
	"github.com/breatheroute/aqbackfill/internal/history"
	"github.com/breatheroute/aqbackfill/internal/notify"
	"github.com/breatheroute/aqbackfill/internal/provider/resilience"
	"github.com/breatheroute/aqbackfill/internal/store"
	"github.com/breatheroute/aqbackfill/internal/telemetry"
	"github.com/breatheroute/aqbackfill/internal/weather/openmeteo"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "aqbackfill"

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitConfig      = 2
	exitInterrupted = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	runID := uuid.NewString()

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Str("run_id", runID).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return exitConfig
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)

	log.Info().
		Str("build_time", BuildTime).
		Int("points", len(cfg.Backfill.Points)).
		Str("output_dir", cfg.OutputDir).
		Str("output_format", string(cfg.OutputFormat)).
		Msg("starting backfill")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		InstanceID:     runID,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize telemetry")
		return exitFailure
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	registry := resilience.NewRegistry()

	pollutionSource, err := openweathermap.NewClient(openweathermap.ClientConfig{
		APIKey:     cfg.PollutionAPIKey,
		HTTPClient: newResilientClient(cfg, openweathermap.ProviderName, cfg.PollutionTimeout, registry, log),
		Timeout:    cfg.PollutionTimeout,
		Logger:     log,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to create pollution client")
		return exitConfig
	}

	weatherSource := openmeteo.NewClient(openmeteo.ClientConfig{
		APIKey:     cfg.WeatherAPIKey,
		HTTPClient: newResilientClient(cfg, openmeteo.ProviderName, cfg.WeatherTimeout, registry, log),
		Timeout:    cfg.WeatherTimeout,
		Location:   cfg.Backfill.WeatherZone,
		Logger:     log,
	})

	primary, err := newPrimaryStore(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to create output store")
		return exitConfig
	}

	var sinks store.Multi
	if cfg.Database.Enabled() {
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			log.Error().Err(err).Msg("failed to connect to database")
			return exitFailure
		}
		defer pool.Close()

		pg := store.NewPostgresStore(store.PostgresStoreConfig{DB: pool, Logger: log})
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Error().Err(err).Msg("failed to prepare database schema")
			return exitFailure
		}
		sinks = append(sinks, pg)
		log.Info().Str("table", store.DefaultTable).Msg("database sink enabled")
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.PubSubProjectID != "" {
		ps, err := notify.NewPubSubNotifier(ctx, notify.PubSubConfig{
			ProjectID: cfg.PubSubProjectID,
			Topic:     cfg.PubSubTopic,
			Logger:    log,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to create pubsub notifier")
			return exitFailure
		}
		defer func() {
			if err := ps.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close pubsub notifier")
			}
		}()
		notifier = ps
		log.Info().Str("topic", cfg.PubSubTopic).Msg("completion notices enabled")
	}

	metrics, err := backfill.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		return exitFailure
	}

	job, err := backfill.NewJob(backfill.JobConfig{
		Config: cfg.Backfill,
		Logger: log,
		Pollution: history.NewPollutionFetcher(history.PollutionFetcherConfig{
			Source: pollutionSource,
			Pacing: pacing(cfg.PollutionPacing),
			Logger: log,
		}),
		Weather: history.NewWeatherFetcher(history.WeatherFetcherConfig{
			Source:      weatherSource,
			Granularity: cfg.Backfill.Granularity,
			Pacing:      pacing(cfg.WeatherPacing),
			Logger:      log,
		}),
		Store:    primary,
		Sinks:    sinks,
		Notifier: notifier,
		Metrics:  metrics,
		Tracer:   tp.Tracer,
		RunID:    runID,
	})
	if err != nil {
		log.Error().Err(err).Msg("invalid backfill configuration")
		return exitConfig
	}

	if cfg.StatusAddr != "" {
		server, err := newStatusServer(cfg.StatusAddr, job, registry, log)
		if err != nil {
			log.Error().Err(err).Msg("failed to create status server")
			return exitFailure
		}
		go func() {
			log.Info().Str("addr", server.Addr).Msg("status server listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("status server error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("status server forced to shutdown")
			}
		}()
	}

	result, err := job.Run(ctx)
	if result != nil {
		for _, p := range result.Points {
			event := log.Info()
			if p.Status != backfill.StatusSuccess {
				event = log.Warn().Str("reason", p.Reason)
			}
			event.
				Str("point", p.Point).
				Str("status", string(p.Status)).
				Int("records", len(p.Records)).
				Int("windows_done", p.WindowsDone).
				Int("windows_total", p.WindowsTotal).
				Int("checkpoints", p.Checkpoints).
				Bool("resumed", p.Resumed).
				Dur("duration", p.Duration).
				Msg("point summary")
		}
	}

	switch {
	case errors.Is(err, backfill.ErrInterrupted):
		log.Warn().Msg("backfill interrupted, snapshot saved")
		return exitInterrupted
	case err != nil:
		log.Error().Err(err).Msg("backfill finished with write errors")
		return exitFailure
	}
	return exitOK
}

func newResilientClient(cfg config.Config, name string, timeout time.Duration, registry *resilience.Registry, log zerolog.Logger) *resilience.Client {
	rc := resilience.DefaultClientConfig(name)
	rc.Logger = log
	rc.Timeout = timeout
	rc.MaxAttempts = cfg.HTTPMaxAttempts
	rc.BackoffBase = cfg.HTTPBackoffBase
	rc.Registry = registry
	return resilience.NewClient(rc)
}

func newPrimaryStore(cfg config.Config, log zerolog.Logger) (store.Store, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, err
	}
	if cfg.OutputFormat == store.FormatParquet {
		return store.NewParquetStore(store.ParquetStoreConfig{Dir: cfg.OutputDir, Logger: log})
	}
	return store.NewCSVStore(store.CSVStoreConfig{Dir: cfg.OutputDir, Logger: log}), nil
}

func newStatusServer(addr string, job *backfill.Job, registry *resilience.Registry, log zerolog.Logger) (*http.Server, error) {
	metrics, err := middleware.NewMetrics()
	if err != nil {
		return nil, err
	}

	router := api.NewRouter(api.RouterConfig{
		Version:   Version,
		BuildTime: BuildTime,
		Logger:    log,
		Metrics:   metrics,
		Progress:  job.Progress(),
		Providers: registry,
	})

	return &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, nil
}

// pacing maps a configured zero to "no pacing"; the fetchers treat zero as
// their default.
func pacing(d time.Duration) time.Duration {
	if d == 0 {
		return -1
	}
	return d
}
