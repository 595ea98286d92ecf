package backfill

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/breatheroute/aqbackfill/internal/backfill"

// Metrics holds the OpenTelemetry instruments of a run.
type Metrics struct {
	windows       metric.Int64Counter
	records       metric.Int64Counter
	checkpoints   metric.Int64Counter
	points        metric.Int64Counter
	pointDuration metric.Float64Histogram
}

// NewMetrics creates the run instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsFromMeter(otel.Meter(meterName))
}

// NewMetricsFromMeter creates the run instruments on meter.
func NewMetricsFromMeter(meter metric.Meter) (*Metrics, error) {
	windows, err := meter.Int64Counter(
		"backfill.windows.total",
		metric.WithDescription("Pollution windows fetched"),
		metric.WithUnit("{window}"),
	)
	if err != nil {
		return nil, err
	}

	records, err := meter.Int64Counter(
		"backfill.records.total",
		metric.WithDescription("Joined records accumulated"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	checkpoints, err := meter.Int64Counter(
		"backfill.checkpoints.total",
		metric.WithDescription("Periodic snapshots written"),
		metric.WithUnit("{checkpoint}"),
	)
	if err != nil {
		return nil, err
	}

	points, err := meter.Int64Counter(
		"backfill.points.total",
		metric.WithDescription("Points finished, by status"),
		metric.WithUnit("{point}"),
	)
	if err != nil {
		return nil, err
	}

	pointDuration, err := meter.Float64Histogram(
		"backfill.point.duration",
		metric.WithDescription("Time spent on one point"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		windows:       windows,
		records:       records,
		checkpoints:   checkpoints,
		points:        points,
		pointDuration: pointDuration,
	}, nil
}

// A nil *Metrics records nothing.

func (m *Metrics) windowDone(ctx context.Context, point string, records int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("point", point))
	m.windows.Add(ctx, 1, attrs)
	m.records.Add(ctx, int64(records), attrs)
}

func (m *Metrics) checkpointed(ctx context.Context, point string) {
	if m == nil {
		return
	}
	m.checkpoints.Add(ctx, 1, metric.WithAttributes(attribute.String("point", point)))
}

func (m *Metrics) pointDone(ctx context.Context, pr PointResult) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("point", pr.Point),
		attribute.String("status", string(pr.Status)),
	)
	m.points.Add(ctx, 1, attrs)
	m.pointDuration.Record(ctx, pr.Duration.Seconds(), attrs)
}
