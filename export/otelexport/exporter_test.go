package otelexport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"golang.org/x/sync/errgroup"

	"github.com/bogdad/metriki"
)

func testReaderAndExporter(t *testing.T, registry *metriki.MetricsRegistry) (*sdkmetric.ManualReader, *Exporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})

	exporter, err := New(provider.Meter("metriki-test"), registry)
	require.NoError(t, err)
	return reader, exporter
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func sumValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()

	m, ok := findMetric(rm, name)
	require.True(t, ok, "metric %s not found", name)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", name)
	require.Len(t, sum.DataPoints, 1)
	return sum.DataPoints[0].Value
}

func gaugeValue(t *testing.T, rm metricdata.ResourceMetrics, name string) float64 {
	t.Helper()

	m, ok := findMetric(rm, name)
	require.True(t, ok, "metric %s not found", name)
	g, ok := m.Data.(metricdata.Gauge[float64])
	require.True(t, ok, "metric %s is not a float64 gauge", name)
	require.Len(t, g.DataPoints, 1)
	return g.DataPoints[0].Value
}

func TestExporterNilArguments(t *testing.T) {
	registry := metriki.NewRegistry()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	_, err := New(nil, registry)
	assert.ErrorIs(t, err, ErrNilMeter)

	_, err = New(provider.Meter("t"), nil)
	assert.ErrorIs(t, err, ErrNilRegistry)
}

func TestExporterFlushAllKinds(t *testing.T) {
	registry := metriki.NewRegistry()
	now := time.Now()

	c, err := registry.Counter("jobs.active")
	require.NoError(t, err)
	c.Inc(5)
	c.Dec(2)

	_, err = registry.Gauge("queue.depth", func() float64 { return 3.5 })
	require.NoError(t, err)

	m, err := registry.Meter("http.requests", now)
	require.NoError(t, err)
	m.Mark(4)

	h, err := registry.Histogram("payload.bytes")
	require.NoError(t, err)
	h.Update(100)
	h.Update(300)

	tmr, err := registry.Timer("db.query", now)
	require.NoError(t, err)
	tmr.Start().Stop()

	reader, exporter := testReaderAndExporter(t, registry)
	require.NoError(t, exporter.Flush(context.Background()))
	rm := collect(t, reader)

	assert.Equal(t, int64(3), sumValue(t, rm, "jobs.active"))
	assert.Equal(t, 3.5, gaugeValue(t, rm, "queue.depth"))
	assert.Equal(t, int64(4), sumValue(t, rm, "http.requests.count"))

	// Rate gauges exist even while the averages are still zero.
	_, ok := findMetric(rm, "http.requests.m1_rate")
	assert.True(t, ok)

	assert.Equal(t, int64(2), sumValue(t, rm, "payload.bytes.count"))
	assert.Equal(t, 200.0, gaugeValue(t, rm, "payload.bytes.mean"))
	assert.Equal(t, 300.0, gaugeValue(t, rm, "payload.bytes.max"))

	assert.Equal(t, int64(1), sumValue(t, rm, "db.query.count"))
	_, ok = findMetric(rm, "db.query.p999")
	assert.True(t, ok)
}

func TestExporterCountsAccumulateAsDeltas(t *testing.T) {
	registry := metriki.NewRegistry()
	m, err := registry.Meter("events", time.Now())
	require.NoError(t, err)

	reader, exporter := testReaderAndExporter(t, registry)

	m.Mark(3)
	require.NoError(t, exporter.Flush(context.Background()))

	m.Mark(2)
	require.NoError(t, exporter.Flush(context.Background()))

	// Two flushes push deltas of 3 and 2; the cumulative sum is the
	// lifetime count.
	rm := collect(t, reader)
	assert.Equal(t, int64(5), sumValue(t, rm, "events.count"))
}

func TestExporterCounterGoesDown(t *testing.T) {
	registry := metriki.NewRegistry()
	c, err := registry.Counter("inflight")
	require.NoError(t, err)

	reader, exporter := testReaderAndExporter(t, registry)

	c.Inc(5)
	require.NoError(t, exporter.Flush(context.Background()))
	c.Dec(2)
	require.NoError(t, exporter.Flush(context.Background()))

	rm := collect(t, reader)
	assert.Equal(t, int64(3), sumValue(t, rm, "inflight"))
}

func TestExporterReregisteredName(t *testing.T) {
	registry := metriki.NewRegistry()
	m, err := registry.Meter("churn", time.Now())
	require.NoError(t, err)
	m.Mark(5)

	reader, exporter := testReaderAndExporter(t, registry)
	require.NoError(t, exporter.Flush(context.Background()))

	// Remove and re-register: the lifetime count restarts below the last
	// seen value, and the fresh total is pushed as the next delta.
	registry.Remove("churn")
	m2, err := registry.Meter("churn", time.Now())
	require.NoError(t, err)
	m2.Mark(2)
	require.NoError(t, exporter.Flush(context.Background()))

	rm := collect(t, reader)
	assert.Equal(t, int64(7), sumValue(t, rm, "churn.count"))
}

func TestExporterRunStopsOnCancel(t *testing.T) {
	registry := metriki.NewRegistry()
	c, err := registry.Counter("ticks")
	require.NoError(t, err)
	c.Inc(1)

	reader, exporter := testReaderAndExporter(t, registry)

	ctx, cancel := context.WithCancel(context.Background())
	var g errgroup.Group
	g.Go(func() error {
		return exporter.Run(ctx, time.Millisecond)
	})

	// Give the loop a few cycles, then stop it.
	time.Sleep(20 * time.Millisecond)
	cancel()

	err = g.Wait()
	assert.True(t, errors.Is(err, context.Canceled), "Run returned %v", err)

	rm := collect(t, reader)
	assert.Equal(t, int64(1), sumValue(t, rm, "ticks"))
}
