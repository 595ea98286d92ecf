package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/breatheroute/aqbackfill/internal/telemetry"
)

func TestInit_Disabled(t *testing.T) {
	ctx := context.Background()

	provider, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "aqbackfill",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		OTLPEndpoint:   "localhost:4317",
		InstanceID:     "run-1",
		Enabled:        false,
	})

	require.NoError(t, err)
	assert.NotNil(t, provider.Tracer)
	assert.NotNil(t, provider.Meter)
	assert.Nil(t, provider.TracerProvider)
	assert.Nil(t, provider.MeterProvider)
	assert.NoError(t, provider.Shutdown(ctx))
}

func TestInit_EnabledShutsDown(t *testing.T) {
	ctx := context.Background()

	// The gRPC exporters connect lazily, so Init succeeds without a collector.
	provider, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:  "aqbackfill",
		Environment:  "test",
		OTLPEndpoint: "127.0.0.1:1",
		InstanceID:   "run-1",
		Enabled:      true,
	})
	require.NoError(t, err)
	require.NotNil(t, provider.TracerProvider)
	require.NotNil(t, provider.MeterProvider)

	shutdownCtx, cancel := context.WithCancel(ctx)
	cancel()
	_ = provider.Shutdown(shutdownCtx)
}

func TestProvider_Shutdown_NilProviders(t *testing.T) {
	provider := &telemetry.Provider{}
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestProvider_Shutdown_StoppedProviders(t *testing.T) {
	ctx := context.Background()
	provider := &telemetry.Provider{
		TracerProvider: sdktrace.NewTracerProvider(),
		MeterProvider:  sdkmetric.NewMeterProvider(),
	}
	require.NoError(t, provider.Shutdown(ctx))
}
