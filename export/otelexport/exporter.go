// Package otelexport bridges a metriki registry into the OpenTelemetry
// metrics API. Each flush reads one registry snapshot and pushes every value
// through instruments created on demand from the supplied meter, so the
// bridge works with whatever reader or exporter the host application has
// configured.
//
// Snapshot fields map to instruments as follows: monotonically growing
// counts become Int64Counter deltas, counters that can move both ways become
// Int64UpDownCounter deltas, and everything else (gauge values, rates,
// latency statistics) is recorded as Float64Gauge data points. Instrument
// names are the registry names with a dotted suffix per field, such as
// "http.requests.m1_rate".
package otelexport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/bogdad/metriki"
)

// DefaultInterval is the flush cadence used by Run when none is configured.
const DefaultInterval = 10 * time.Second

var (
	// ErrNilMeter indicates New was called without an OpenTelemetry meter.
	ErrNilMeter = errors.New("otelexport: nil meter")

	// ErrNilRegistry indicates New was called without a registry.
	ErrNilRegistry = errors.New("otelexport: nil registry")
)

// Exporter pushes registry snapshots through an OpenTelemetry meter. It is
// safe for concurrent use; flushes are serialized internally.
type Exporter struct {
	registry *metriki.MetricsRegistry
	meter    metric.Meter

	mu             sync.RWMutex
	counters       map[string]metric.Int64Counter
	upDownCounters map[string]metric.Int64UpDownCounter
	gauges         map[string]metric.Float64Gauge

	flushMu    sync.Mutex
	lastCounts map[string]int64
}

// New returns an exporter that reads from registry and records through
// meter.
func New(meter metric.Meter, registry *metriki.MetricsRegistry) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if registry == nil {
		return nil, ErrNilRegistry
	}
	return &Exporter{
		registry:       registry,
		meter:          meter,
		counters:       make(map[string]metric.Int64Counter),
		upDownCounters: make(map[string]metric.Int64UpDownCounter),
		gauges:         make(map[string]metric.Float64Gauge),
		lastCounts:     make(map[string]int64),
	}, nil
}

// Flush reads one snapshot of every registered metric and records it. It
// returns the first instrument error encountered; values already recorded in
// the same pass are not rolled back.
func (e *Exporter) Flush(ctx context.Context) error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	for name, snap := range e.registry.Snapshots() {
		var err error
		switch s := snap.(type) {
		case metriki.CounterSnapshot:
			err = e.recordUpDown(ctx, name, s.Count)
		case metriki.GaugeSnapshot:
			err = e.recordGauge(ctx, name, s.Value)
		case metriki.MeterSnapshot:
			err = e.recordMeter(ctx, name, s)
		case *metriki.HistogramSnapshot:
			err = e.recordHistogram(ctx, name, s)
		case metriki.TimerSnapshot:
			err = e.recordTimer(ctx, name, s)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Run flushes on the given interval until ctx is cancelled, then returns
// ctx.Err(). A non-positive interval selects DefaultInterval. Instrument
// errors abort the loop; they indicate a name the configured meter rejects
// and would repeat every cycle.
func (e *Exporter) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.Flush(ctx); err != nil {
				return err
			}
		}
	}
}

func (e *Exporter) recordMeter(ctx context.Context, name string, s metriki.MeterSnapshot) error {
	if err := e.recordCount(ctx, name+".count", s.Count); err != nil {
		return err
	}
	return e.recordRates(ctx, name, s.M1Rate, s.M5Rate, s.M15Rate)
}

func (e *Exporter) recordHistogram(ctx context.Context, name string, s *metriki.HistogramSnapshot) error {
	fields := map[string]float64{
		".mean":   s.Mean(),
		".max":    float64(s.Max()),
		".min":    float64(s.Min()),
		".stddev": s.StdDev(),
		".p50":    s.Quantile(0.5),
		".p75":    s.Quantile(0.75),
		".p90":    s.Quantile(0.9),
		".p99":    s.Quantile(0.99),
		".p999":   s.Quantile(0.999),
	}
	for suffix, v := range fields {
		if err := e.recordGauge(ctx, name+suffix, v); err != nil {
			return err
		}
	}
	return e.recordCount(ctx, name+".count", s.Count())
}

func (e *Exporter) recordTimer(ctx context.Context, name string, s metriki.TimerSnapshot) error {
	if err := e.recordCount(ctx, name+".count", s.Count); err != nil {
		return err
	}
	if err := e.recordRates(ctx, name, s.M1Rate, s.M5Rate, s.M15Rate); err != nil {
		return err
	}
	fields := map[string]float64{
		".mean":   s.Mean,
		".max":    float64(s.Max),
		".min":    float64(s.Min),
		".stddev": s.Stddev,
		".p50":    s.P50,
		".p75":    s.P75,
		".p90":    s.P90,
		".p99":    s.P99,
		".p999":   s.P999,
	}
	for suffix, v := range fields {
		if err := e.recordGauge(ctx, name+suffix, v); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) recordRates(ctx context.Context, name string, m1, m5, m15 float64) error {
	if err := e.recordGauge(ctx, name+".m1_rate", m1); err != nil {
		return err
	}
	if err := e.recordGauge(ctx, name+".m5_rate", m5); err != nil {
		return err
	}
	return e.recordGauge(ctx, name+".m15_rate", m15)
}

// recordCount converts a monotonic lifetime count into the delta since the
// previous flush, which is what a counter instrument accumulates. A count
// that went backwards means the name was removed and re-registered; the new
// lifetime total is recorded as the delta in that case.
func (e *Exporter) recordCount(ctx context.Context, name string, count int64) error {
	c, err := e.int64Counter(name)
	if err != nil {
		return err
	}

	delta := count - e.lastCounts[name]
	if delta < 0 {
		delta = count
	}
	e.lastCounts[name] = count

	if delta > 0 {
		c.Add(ctx, delta)
	}
	return nil
}

// recordUpDown feeds a counter that may decrease, so deltas are applied with
// their sign.
func (e *Exporter) recordUpDown(ctx context.Context, name string, count int64) error {
	c, err := e.int64UpDownCounter(name)
	if err != nil {
		return err
	}

	delta := count - e.lastCounts[name]
	e.lastCounts[name] = count

	if delta != 0 {
		c.Add(ctx, delta)
	}
	return nil
}

func (e *Exporter) recordGauge(ctx context.Context, name string, value float64) error {
	g, err := e.float64Gauge(name)
	if err != nil {
		return err
	}
	g.Record(ctx, value)
	return nil
}

func (e *Exporter) int64Counter(name string) (metric.Int64Counter, error) {
	e.mu.RLock()
	if c, exists := e.counters[name]; exists {
		e.mu.RUnlock()
		return c, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if c, exists := e.counters[name]; exists {
		return c, nil
	}
	c, err := e.meter.Int64Counter(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	e.counters[name] = c
	return c, nil
}

func (e *Exporter) int64UpDownCounter(name string) (metric.Int64UpDownCounter, error) {
	e.mu.RLock()
	if c, exists := e.upDownCounters[name]; exists {
		e.mu.RUnlock()
		return c, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if c, exists := e.upDownCounters[name]; exists {
		return c, nil
	}
	c, err := e.meter.Int64UpDownCounter(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create up-down counter %s: %w", name, err)
	}
	e.upDownCounters[name] = c
	return c, nil
}

func (e *Exporter) float64Gauge(name string) (metric.Float64Gauge, error) {
	e.mu.RLock()
	if g, exists := e.gauges[name]; exists {
		e.mu.RUnlock()
		return g, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if g, exists := e.gauges[name]; exists {
		return g, nil
	}
	g, err := e.meter.Float64Gauge(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create gauge %s: %w", name, err)
	}
	e.gauges[name] = g
	return g, nil
}
