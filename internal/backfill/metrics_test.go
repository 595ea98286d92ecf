package backfill_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/breatheroute/aqbackfill/internal/backfill"
	"github.com/breatheroute/aqbackfill/internal/store"
)

func TestNewMetrics(t *testing.T) {
	metrics, err := backfill.NewMetrics()
	require.NoError(t, err)
	assert.NotNil(t, metrics)
}

func TestMetrics_RecordedDuringRun(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	metrics, err := backfill.NewMetricsFromMeter(provider.Meter("test"))
	require.NoError(t, err)

	cfg := testConfig(7, baDinh)
	job := newJob(t, cfg, &fakePollution{}, &fakeWeather{}, store.NewCSVStore(store.CSVStoreConfig{Dir: t.TempDir()}),
		func(jc *backfill.JobConfig) { jc.Metrics = metrics })

	_, err = job.Run(context.Background())
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	histograms := map[string]uint64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					histograms[m.Name] += dp.Count
				}
			}
		}
	}

	assert.Equal(t, int64(7), sums["backfill.windows.total"])
	assert.Equal(t, int64(7*24), sums["backfill.records.total"])
	assert.Equal(t, int64(1), sums["backfill.checkpoints.total"])
	assert.Equal(t, int64(1), sums["backfill.points.total"])
	assert.Equal(t, uint64(1), histograms["backfill.point.duration"])
}

func TestProgress_SnapshotWhileIdle(t *testing.T) {
	job := newJob(t, testConfig(1, baDinh, tayHo), &fakePollution{}, &fakeWeather{}, store.NewCSVStore(store.CSVStoreConfig{Dir: t.TempDir()}))

	snap := job.Progress().Snapshot()
	assert.Equal(t, "run-1", snap.RunID)
	assert.Equal(t, 2, snap.PointsTotal)
	assert.Zero(t, snap.PointsDone)
	assert.False(t, snap.Finished)
	assert.False(t, snap.StartedAt.IsZero())
}
