package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/breatheroute/aqbackfill/internal/airquality"
	"github.com/breatheroute/aqbackfill/internal/align"
	"github.com/breatheroute/aqbackfill/internal/checkpoint"
	"github.com/breatheroute/aqbackfill/internal/dataset"
	"github.com/breatheroute/aqbackfill/internal/geo"
	"github.com/breatheroute/aqbackfill/internal/history"
	"github.com/breatheroute/aqbackfill/internal/notify"
	"github.com/breatheroute/aqbackfill/internal/store"
	"github.com/breatheroute/aqbackfill/internal/timeseries"
	"github.com/breatheroute/aqbackfill/internal/weather"
)

const tracerName = "github.com/breatheroute/aqbackfill/internal/backfill"

// ErrResumeUnsupported is returned by NewJob when Resume is set but the
// store cannot read tables back.
var ErrResumeUnsupported = errors.New("resume requires a readable store")

// PollutionWalker fetches pollution day windows in order.
type PollutionWalker interface {
	Walk(ctx context.Context, p geo.Point, windows []history.Window, fn history.WindowFunc) error
}

// WeatherRanger fetches the weather series covering a range.
type WeatherRanger interface {
	FetchRange(ctx context.Context, p geo.Point, start, end time.Time) (*timeseries.Series[weather.Observation], error)
}

// JobConfig holds configuration for creating a Job.
type JobConfig struct {
	Config Config
	Logger zerolog.Logger

	Pollution PollutionWalker
	Weather   WeatherRanger

	// Store receives snapshots, per-point tables and the combined table.
	Store store.Store

	// Sinks additionally receive the combined table.
	Sinks store.Multi

	// Optional.
	Notifier notify.Notifier
	Metrics  *Metrics
	Tracer   trace.Tracer

	// RunID identifies the run (default: a random UUID).
	RunID string
}

// Job runs a backfill over the configured points.
type Job struct {
	config    Config
	logger    zerolog.Logger
	pollution PollutionWalker
	weather   WeatherRanger
	store     store.Store
	reader    store.Reader
	sinks     store.Multi
	notifier  notify.Notifier
	metrics   *Metrics
	tracer    trace.Tracer
	runID     string
	progress  *Progress
}

// NewJob validates cfg and creates a job.
func NewJob(cfg JobConfig) (*Job, error) {
	if err := cfg.Config.Validate(); err != nil {
		return nil, err
	}
	if cfg.Pollution == nil || cfg.Weather == nil {
		return nil, fmt.Errorf("%w: pollution and weather sources are required", ErrInvalidConfig)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}

	config := cfg.Config.withDefaults()

	reader, _ := cfg.Store.(store.Reader)
	if config.Resume && reader == nil {
		return nil, ErrResumeUnsupported
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	return &Job{
		config:    config,
		logger:    cfg.Logger.With().Str("run_id", runID).Logger(),
		pollution: cfg.Pollution,
		weather:   cfg.Weather,
		store:     cfg.Store,
		reader:    reader,
		sinks:     cfg.Sinks,
		notifier:  notifier,
		metrics:   cfg.Metrics,
		tracer:    tracer,
		runID:     runID,
		progress:  newProgress(runID, len(config.Points)),
	}, nil
}

// RunID returns the run identifier.
func (j *Job) RunID() string { return j.runID }

// Progress returns the live progress of the job.
func (j *Job) Progress() *Progress { return j.progress }

// Run processes every point in order and writes the combined table.
//
// The returned error is ErrInterrupted when ctx is cancelled, or the
// aggregated write failures of per-point and combined tables. The Result is
// populated in both cases.
func (j *Job) Run(ctx context.Context) (*Result, error) {
	result := &Result{RunID: j.runID, StartTime: time.Now()}
	defer j.progress.finished()

	ctx, span := j.tracer.Start(ctx, "backfill.run", trace.WithAttributes(
		attribute.String("run.id", j.runID),
		attribute.Int("points", len(j.config.Points)),
	))
	defer span.End()

	j.logger.Info().
		Int("points", len(j.config.Points)).
		Time("start", j.config.Start).
		Time("end", j.config.End).
		Bool("resume", j.config.Resume).
		Msg("starting backfill")

	var writeErrs *multierror.Error

	for _, p := range j.config.Points {
		if err := ctx.Err(); err != nil {
			result.finish()
			span.SetStatus(codes.Error, "interrupted")
			return result, fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
		}

		pr := j.runPoint(ctx, p)
		result.Points = append(result.Points, pr)
		j.progress.pointFinished(pr)
		j.metrics.pointDone(ctx, pr)
		j.announce(ctx, pr)

		if pr.Status == StatusInterrupted {
			result.finish()
			span.SetStatus(codes.Error, "interrupted")
			j.logger.Warn().Str("point", p.Name).Msg("backfill interrupted")
			return result, fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
		}
		if pr.WriteErr != nil {
			writeErrs = multierror.Append(writeErrs, pr.WriteErr)
		}
	}

	combined := combine(result.Points)
	if err := j.writeCombined(ctx, combined); err != nil {
		writeErrs = multierror.Append(writeErrs, err)
	} else {
		result.CombinedRecords = len(combined)
	}

	result.finish()

	j.logger.Info().
		Int("success", result.Count(StatusSuccess)).
		Int("partial", result.Count(StatusPartial)).
		Int("records", len(combined)).
		Dur("duration", result.Duration).
		Msg("backfill completed")

	if err := writeErrs.ErrorOrNil(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return result, err
	}
	return result, nil
}

// runPoint crawls one point. It never returns an error: every outcome is
// expressed in the PointResult.
func (j *Job) runPoint(ctx context.Context, p geo.Point) (pr PointResult) {
	start := time.Now()
	slug := p.Slug()
	logger := j.logger.With().Str("point", p.Name).Logger()

	ctx, span := j.tracer.Start(ctx, "backfill.point", trace.WithAttributes(
		attribute.String("point.name", p.Name),
		attribute.Float64("point.lat", p.Lat),
		attribute.Float64("point.lon", p.Lon),
	))
	defer span.End()

	windows := history.SplitDays(j.config.Start, j.config.End)
	pr = PointResult{
		Point:        p.Name,
		Table:        checkpoint.FinalName(slug),
		WindowsTotal: len(windows),
	}

	collector := checkpoint.New(checkpoint.Config{
		Slug:   slug,
		Store:  j.store,
		Every:  j.config.CheckpointEvery,
		Logger: j.logger,
	})

	defer func() {
		pr.Duration = time.Since(start)
		pr.Checkpoints = collector.Flushes()
		span.SetAttributes(
			attribute.String("point.status", string(pr.Status)),
			attribute.Int("point.records", len(pr.Records)),
		)
	}()

	j.progress.startPoint(p.Name, len(windows))

	skip := 0
	if j.config.Resume {
		done, records, resumedSkip := j.resume(ctx, slug, windows, logger)
		if done {
			pr.Status = StatusSuccess
			pr.Resumed = true
			pr.Records = records
			pr.WindowsDone = len(windows)
			logger.Info().Int("records", len(records)).Msg("point already complete, skipping")
			return pr
		}
		if records != nil {
			collector.Restore(records)
			skip = resumedSkip
			pr.Resumed = true
			j.progress.resumed(skip, len(records))
		}
	}
	pr.WindowsDone = skip

	logger.Info().
		Int("windows", len(windows)).
		Int("skipped", skip).
		Msg("processing point")

	wx, err := j.weather.FetchRange(ctx, p, j.config.Start, j.config.End)
	if err != nil {
		if ctx.Err() != nil {
			return j.interrupted(ctx, slug, collector, pr, logger)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "weather failed")
		logger.Error().Err(err).Msg("weather fetch failed, skipping pollution for point")
		pr.Status = StatusPartial
		pr.Reason = "weather fetch failed"
		pr.Err = err
		pr.Records = collector.Records()
		return pr
	}

	opts := align.Options{Granularity: j.config.Granularity, WeatherZone: j.config.WeatherZone}
	total := len(windows)

	err = j.pollution.Walk(ctx, p, windows[skip:], func(i int, w history.Window, obs *timeseries.Series[airquality.Observation]) error {
		index := skip + i
		_, wspan := j.tracer.Start(ctx, "backfill.window", trace.WithAttributes(
			attribute.Int("window.index", index),
			attribute.String("window.start", w.Start.Format(time.RFC3339)),
		))
		defer wspan.End()

		records := align.Join(p, j.config.Labels, obs, wx, opts)
		collector.Accumulate(records...)
		wspan.SetAttributes(attribute.Int("window.records", len(records)))

		processed := index + 1
		pr.WindowsDone = processed
		j.progress.windowDone(processed, len(records))
		j.metrics.windowDone(ctx, p.Name, len(records))

		flushed, err := collector.MaybeFlush(ctx, processed, total)
		if err != nil {
			logger.Warn().Err(err).Int("window", index).Msg("checkpoint failed, continuing")
		} else if flushed {
			j.progress.checkpointed()
			j.metrics.checkpointed(ctx, p.Name)
		}
		return nil
	})

	if err != nil {
		if ctx.Err() != nil {
			return j.interrupted(ctx, slug, collector, pr, logger)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "pollution failed")
		pr.Status = StatusPartial
		pr.Err = err
		pr.Reason = partialReason(err, skip)
		logger.Warn().
			Err(err).
			Int("windows_done", pr.WindowsDone).
			Int("windows_total", total).
			Msg("point halted early, keeping records so far")
	} else {
		pr.Status = StatusSuccess
	}

	records, werr := collector.FlushFinal(ctx)
	pr.Records = records
	if werr != nil {
		pr.WriteErr = werr
		logger.Error().Err(werr).Msg("failed to write point table")
	}
	return pr
}

func (j *Job) interrupted(ctx context.Context, slug string, c *checkpoint.Collector, pr PointResult, logger zerolog.Logger) PointResult {
	pr.Status = StatusInterrupted
	pr.Table = checkpoint.InterruptedName(slug)
	pr.Records = c.Records()
	pr.Err = context.Cause(ctx)

	if err := c.FlushInterrupted(context.WithoutCancel(ctx)); err != nil {
		pr.WriteErr = err
		logger.Error().Err(err).Msg("failed to save interrupted snapshot")
	}
	return pr
}

// resume inspects earlier output for slug. done reports a completed table;
// otherwise records holds the newest snapshot (nil if none) and skip the
// number of leading windows it already covers.
func (j *Job) resume(ctx context.Context, slug string, windows []history.Window, logger zerolog.Logger) (done bool, records []dataset.Record, skip int) {
	final, err := j.reader.Read(ctx, checkpoint.FinalName(slug))
	if err == nil {
		return true, final, 0
	}
	if !errors.Is(err, store.ErrNotFound) {
		logger.Warn().Err(err).Msg("failed to read point table, starting over")
		return false, nil, 0
	}

	var newest time.Time
	for _, name := range []string{checkpoint.InterruptedName(slug), checkpoint.CheckpointName(slug)} {
		snap, err := j.reader.Read(ctx, name)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				logger.Warn().Err(err).Str("table", name).Msg("failed to read snapshot, ignoring")
			}
			continue
		}
		last, ok := lastUTC(snap)
		if !ok {
			continue
		}
		if records == nil || last.After(newest) {
			records, newest = snap, last
		}
	}
	if records == nil {
		return false, nil, 0
	}

	for skip < len(windows) && !windows[skip].Start.After(newest) {
		skip++
	}

	logger.Info().
		Time("last_record", newest).
		Int("records", len(records)).
		Int("windows_skipped", skip).
		Msg("resuming from snapshot")
	return false, records, skip
}

func (j *Job) writeCombined(ctx context.Context, records []dataset.Record) error {
	name := j.config.CombinedName
	var errs *multierror.Error

	if err := j.store.Write(ctx, name, records); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("writing combined table %s: %w", name, err))
	}
	if len(j.sinks) > 0 {
		if err := j.sinks.Write(ctx, name, records); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("writing combined table %s to sinks: %w", name, err))
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		j.logger.Error().Err(err).Str("table", name).Msg("combined table write failed")
		return err
	}
	j.logger.Info().Str("table", name).Int("records", len(records)).Msg("combined table saved")
	return nil
}

func (j *Job) announce(ctx context.Context, pr PointResult) {
	c := notify.Completion{
		RunID:        j.runID,
		Point:        pr.Point,
		Table:        pr.Table,
		Status:       string(pr.Status),
		Records:      len(pr.Records),
		WindowsDone:  pr.WindowsDone,
		WindowsTotal: pr.WindowsTotal,
		Reason:       pr.Reason,
		CompletedAt:  time.Now().UTC(),
	}
	if err := j.notifier.PointCompleted(context.WithoutCancel(ctx), c); err != nil {
		j.logger.Warn().Err(err).Str("point", pr.Point).Msg("failed to publish completion")
	}
}

// combine concatenates the records of every point that produced any, in point order.
func combine(points []PointResult) []dataset.Record {
	n := 0
	for _, p := range points {
		n += len(p.Records)
	}
	out := make([]dataset.Record, 0, n)
	for _, p := range points {
		out = append(out, p.Records...)
	}
	return out
}

func lastUTC(records []dataset.Record) (time.Time, bool) {
	var last time.Time
	for _, r := range records {
		if r.UTC.After(last) {
			last = r.UTC
		}
	}
	return last, !last.IsZero()
}

func partialReason(err error, offset int) string {
	var we *history.WindowError
	if errors.As(err, &we) {
		return fmt.Sprintf("window %d (%s) failed", offset+we.Index, we.Window.Start.Format("2006-01-02"))
	}
	return err.Error()
}
