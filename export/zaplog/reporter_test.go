package zaplog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/bogdad/metriki"
)

func observedReporter(t *testing.T, registry *metriki.MetricsRegistry, opts ...Option) (*Reporter, *observer.ObservedLogs) {
	t.Helper()

	core, logs := observer.New(zapcore.InfoLevel)
	r, err := New(registry, zap.New(core), opts...)
	require.NoError(t, err)
	return r, logs
}

func TestReporterNilArguments(t *testing.T) {
	registry := metriki.NewRegistry()

	_, err := New(nil, zap.NewNop())
	assert.ErrorIs(t, err, ErrNilRegistry)

	_, err = New(registry, nil)
	assert.ErrorIs(t, err, ErrNilLogger)
}

func TestReporterFlushLogsEveryMetric(t *testing.T) {
	registry := metriki.NewRegistry()
	now := time.Now()

	c, err := registry.Counter("jobs.active")
	require.NoError(t, err)
	c.Inc(3)

	m, err := registry.Meter("http.requests", now)
	require.NoError(t, err)
	m.Mark(2)

	tmr, err := registry.Timer("db.query", now)
	require.NoError(t, err)
	tmr.Start().Stop()

	r, logs := observedReporter(t, registry, WithInstanceID("node-1"))
	r.Flush()

	entries := logs.All()
	require.Len(t, entries, 3)

	byMetric := make(map[string]map[string]interface{}, len(entries))
	for _, e := range entries {
		assert.Equal(t, "metrics report", e.Message)
		ctx := e.ContextMap()
		assert.Equal(t, "node-1", ctx["instance"])
		byMetric[ctx["metric"].(string)] = ctx
	}

	counter, ok := byMetric["jobs.active"]
	require.True(t, ok)
	assert.Equal(t, "counter", counter["kind"])
	assert.Equal(t, int64(3), counter["count"])

	meter, ok := byMetric["http.requests"]
	require.True(t, ok)
	assert.Equal(t, int64(2), meter["count"])
	assert.Contains(t, meter, "m15_rate")

	timer, ok := byMetric["db.query"]
	require.True(t, ok)
	assert.Equal(t, int64(1), timer["count"])
	assert.Contains(t, timer, "p999")
	assert.Contains(t, timer, "stddev")
}

func TestReporterHistogramFields(t *testing.T) {
	registry := metriki.NewRegistry()
	h, err := registry.Histogram("payload.bytes")
	require.NoError(t, err)
	h.Update(100)
	h.Update(300)

	r, logs := observedReporter(t, registry)
	r.Flush()

	entries := logs.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "histogram", ctx["kind"])
	assert.Equal(t, int64(2), ctx["count"])
	assert.Equal(t, 200.0, ctx["mean"])
	assert.Equal(t, int64(300), ctx["max"])
	assert.Equal(t, int64(100), ctx["min"])
}

func TestReporterGeneratesInstanceID(t *testing.T) {
	registry := metriki.NewRegistry()
	_, err := registry.Counter("a")
	require.NoError(t, err)

	r1, logs1 := observedReporter(t, registry)
	r2, logs2 := observedReporter(t, registry)
	r1.Flush()
	r2.Flush()

	id1 := logs1.All()[0].ContextMap()["instance"].(string)
	id2 := logs2.All()[0].ContextMap()["instance"].(string)
	assert.NotEmpty(t, id1)
	assert.NotEqual(t, id1, id2)
}

func TestReporterRunFlushesUntilCancelled(t *testing.T) {
	registry := metriki.NewRegistry()
	c, err := registry.Counter("ticks")
	require.NoError(t, err)
	c.Inc(1)

	r, logs := observedReporter(t, registry, WithInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	var g errgroup.Group
	g.Go(func() error {
		return r.Run(ctx)
	})

	// Let a few cycles land, then stop.
	deadline := time.After(time.Second)
	for logs.Len() < 3 {
		select {
		case <-deadline:
			t.Fatal("reporter produced no output within a second")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	err = g.Wait()
	assert.True(t, errors.Is(err, context.Canceled), "Run returned %v", err)
	assert.GreaterOrEqual(t, logs.Len(), 3)
}

func TestReporterEmptyRegistryFlushesNothing(t *testing.T) {
	r, logs := observedReporter(t, metriki.NewRegistry())
	r.Flush()
	assert.Equal(t, 0, logs.Len())
}
