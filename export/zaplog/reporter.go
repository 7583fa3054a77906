// Package zaplog periodically writes registry snapshots to a zap logger, one
// entry per metric per cycle. It is the lowest-friction way to see metriki
// output: no collection endpoint, no pipeline, just structured log lines
// that downstream aggregation can parse.
package zaplog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bogdad/metriki"
)

// DefaultInterval is the reporting cadence used when none is configured.
const DefaultInterval = 30 * time.Second

var (
	// ErrNilLogger indicates New was called without a logger.
	ErrNilLogger = errors.New("zaplog: nil logger")

	// ErrNilRegistry indicates New was called without a registry.
	ErrNilRegistry = errors.New("zaplog: nil registry")
)

// Reporter logs every registered metric's snapshot on a fixed interval. It
// is safe to run one Reporter per registry per process; each carries an
// instance id so lines from multiple processes can be told apart after
// aggregation.
type Reporter struct {
	registry *metriki.MetricsRegistry
	logger   *zap.Logger
	interval time.Duration
	instance string
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithInterval sets the reporting cadence. Non-positive values keep the
// default.
func WithInterval(d time.Duration) Option {
	return func(r *Reporter) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithInstanceID overrides the generated instance id attached to every line.
func WithInstanceID(id string) Option {
	return func(r *Reporter) {
		if id != "" {
			r.instance = id
		}
	}
}

// New returns a reporter writing snapshots of registry to logger.
func New(registry *metriki.MetricsRegistry, logger *zap.Logger, opts ...Option) (*Reporter, error) {
	if registry == nil {
		return nil, ErrNilRegistry
	}
	if logger == nil {
		return nil, ErrNilLogger
	}

	r := &Reporter{
		registry: registry,
		logger:   logger,
		interval: DefaultInterval,
		instance: uuid.NewString(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Flush logs one snapshot of every registered metric immediately.
func (r *Reporter) Flush() {
	for name, snap := range r.registry.Snapshots() {
		fields := append([]zap.Field{
			zap.String("instance", r.instance),
			zap.String("metric", name),
			zap.Stringer("kind", snap.Kind()),
		}, snapshotFields(snap)...)
		r.logger.Info("metrics report", fields...)
	}
}

// Run flushes on the configured interval until ctx is cancelled, then
// returns ctx.Err().
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Flush()
		}
	}
}

// snapshotFields flattens one snapshot into log fields named after the
// serialized form of the metric.
func snapshotFields(snap metriki.Snapshot) []zap.Field {
	switch s := snap.(type) {
	case metriki.CounterSnapshot:
		return []zap.Field{zap.Int64("count", s.Count)}

	case metriki.GaugeSnapshot:
		return []zap.Field{zap.Float64("value", s.Value)}

	case metriki.MeterSnapshot:
		return []zap.Field{
			zap.Int64("count", s.Count),
			zap.Float64("m1_rate", s.M1Rate),
			zap.Float64("m5_rate", s.M5Rate),
			zap.Float64("m15_rate", s.M15Rate),
		}

	case *metriki.HistogramSnapshot:
		return []zap.Field{
			zap.Int64("count", s.Count()),
			zap.Float64("mean", s.Mean()),
			zap.Int64("max", s.Max()),
			zap.Int64("min", s.Min()),
			zap.Float64("stddev", s.StdDev()),
			zap.Float64("p50", s.Quantile(0.5)),
			zap.Float64("p75", s.Quantile(0.75)),
			zap.Float64("p90", s.Quantile(0.9)),
			zap.Float64("p99", s.Quantile(0.99)),
			zap.Float64("p999", s.Quantile(0.999)),
		}

	case metriki.TimerSnapshot:
		return []zap.Field{
			zap.Int64("count", s.Count),
			zap.Float64("m1_rate", s.M1Rate),
			zap.Float64("m5_rate", s.M5Rate),
			zap.Float64("m15_rate", s.M15Rate),
			zap.Float64("mean", s.Mean),
			zap.Int64("max", s.Max),
			zap.Int64("min", s.Min),
			zap.Float64("stddev", s.Stddev),
			zap.Float64("p50", s.P50),
			zap.Float64("p75", s.P75),
			zap.Float64("p90", s.P90),
			zap.Float64("p99", s.P99),
			zap.Float64("p999", s.P999),
		}

	default:
		return nil
	}
}
