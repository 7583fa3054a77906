package metriki

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// MetricsRegistry is a concurrent name-to-metric store with get-or-create
// semantics. All accessors are safe for concurrent use; racing callers
// asking for the same name always receive the same instrument, and exactly
// one instrument is ever created per name.
//
// Names are opaque non-empty strings. The registry imposes no naming scheme;
// dotted paths such as "http.requests" are conventional.
type MetricsRegistry struct {
	mu      sync.RWMutex
	metrics map[string]Metric

	logger *zap.Logger
}

// RegistryOption configures a MetricsRegistry.
type RegistryOption func(*MetricsRegistry)

// WithLogger sets the logger for instrument lifecycle events, logged at
// debug level. The default is a no-op logger.
func WithLogger(logger *zap.Logger) RegistryOption {
	return func(r *MetricsRegistry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *MetricsRegistry {
	r := &MetricsRegistry{
		metrics: make(map[string]Metric),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Counter returns the counter registered under name, creating it on first
// use.
func (r *MetricsRegistry) Counter(name string) (*Counter, error) {
	m, err := r.getOrCreate(name, KindCounter, func() Metric { return NewCounter() })
	if err != nil {
		return nil, err
	}
	return m.(*Counter), nil
}

// Gauge returns the gauge registered under name, creating it with fn on
// first use. If the name already holds a gauge, the existing one is returned
// and fn is ignored.
func (r *MetricsRegistry) Gauge(name string, fn func() float64) (*Gauge, error) {
	m, err := r.getOrCreate(name, KindGauge, func() Metric { return NewGauge(fn) })
	if err != nil {
		return nil, err
	}
	return m.(*Gauge), nil
}

// CachedGauge returns the gauge registered under name, creating it with fn
// and the given cache ttl on first use.
func (r *MetricsRegistry) CachedGauge(name string, fn func() float64, ttl time.Duration) (*Gauge, error) {
	m, err := r.getOrCreate(name, KindGauge, func() Metric { return NewCachedGauge(fn, ttl) })
	if err != nil {
		return nil, err
	}
	return m.(*Gauge), nil
}

// Meter returns the meter registered under name, creating it on first use
// with the given creation time.
func (r *MetricsRegistry) Meter(name string, createdAt time.Time) (*Meter, error) {
	m, err := r.getOrCreate(name, KindMeter, func() Metric { return NewMeter(createdAt) })
	if err != nil {
		return nil, err
	}
	return m.(*Meter), nil
}

// Histogram returns the histogram registered under name, creating it on
// first use.
func (r *MetricsRegistry) Histogram(name string) (*Histogram, error) {
	m, err := r.getOrCreate(name, KindHistogram, func() Metric { return NewHistogram() })
	if err != nil {
		return nil, err
	}
	return m.(*Histogram), nil
}

// Timer returns the timer registered under name, creating it on first use
// with the given creation time.
func (r *MetricsRegistry) Timer(name string, createdAt time.Time) (*Timer, error) {
	m, err := r.getOrCreate(name, KindTimer, func() Metric { return NewTimer(createdAt) })
	if err != nil {
		return nil, err
	}
	return m.(*Timer), nil
}

// getOrCreate looks name up under the read lock first; most calls after
// startup are hits and never contend with creation. On a miss it re-checks
// under the write lock before building, so two racing creators cannot both
// insert.
func (r *MetricsRegistry) getOrCreate(name string, kind Kind, build func() Metric) (Metric, error) {
	if name == "" {
		return nil, ErrEmptyName
	}

	r.mu.RLock()
	existing, ok := r.metrics[name]
	r.mu.RUnlock()
	if ok {
		return checkKind(name, kind, existing)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.metrics[name]; ok {
		return checkKind(name, kind, existing)
	}

	m := build()
	r.metrics[name] = m
	r.logger.Debug("metric registered",
		zap.String("name", name),
		zap.Stringer("kind", kind))
	return m, nil
}

func checkKind(name string, requested Kind, m Metric) (Metric, error) {
	if m.Kind() != requested {
		return nil, &KindMismatchError{
			Name:       name,
			Requested:  requested,
			Registered: m.Kind(),
		}
	}
	return m, nil
}

// Remove deletes the metric registered under name, if any. Callers still
// holding the removed instrument may keep updating it; it is simply no
// longer visible to Snapshots, and the name is free to be registered again.
func (r *MetricsRegistry) Remove(name string) {
	r.mu.Lock()
	if _, ok := r.metrics[name]; ok {
		delete(r.metrics, name)
		r.logger.Debug("metric removed", zap.String("name", name))
	}
	r.mu.Unlock()
}

// Len returns the number of registered metrics.
func (r *MetricsRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.metrics)
}

// Snapshots materializes a point-in-time snapshot of every registered
// metric. The registry lock is held only long enough to copy the entry set;
// each instrument then synchronizes individually, so a slow gauge function
// never blocks writers on other metrics. Each snapshot is internally
// consistent, but the map as a whole is not an atomic view across metrics.
func (r *MetricsRegistry) Snapshots() map[string]Snapshot {
	r.mu.RLock()
	entries := make(map[string]Metric, len(r.metrics))
	for name, m := range r.metrics {
		entries[name] = m
	}
	r.mu.RUnlock()

	out := make(map[string]Snapshot, len(entries))
	for name, m := range entries {
		out[name] = m.snapshot()
	}
	return out
}
