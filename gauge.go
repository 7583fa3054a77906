package metriki

import (
	"sync"
	"time"
)

// Gauge reads a value on demand from a user-supplied function, such as the
// current queue depth or heap size. The function is called on the reader's
// goroutine, so it should be cheap; for expensive reads use NewCachedGauge.
//
// A Gauge is safe for concurrent use as long as the supplied function is.
type Gauge struct {
	fn  func() float64
	ttl time.Duration

	mu      sync.Mutex
	cached  float64
	expires time.Time
}

// NewGauge returns a gauge that calls fn on every read. A nil fn is treated
// as a function that always returns zero.
func NewGauge(fn func() float64) *Gauge {
	return NewCachedGauge(fn, 0)
}

// NewCachedGauge returns a gauge that caches the result of fn for ttl after
// each read. Readers arriving inside the window get the cached value without
// invoking fn; the first reader past the deadline refreshes it. A ttl of zero
// or less disables caching.
func NewCachedGauge(fn func() float64, ttl time.Duration) *Gauge {
	if fn == nil {
		fn = func() float64 { return 0 }
	}
	return &Gauge{fn: fn, ttl: ttl}
}

// Value returns the gauge's current value.
func (g *Gauge) Value() float64 {
	if g.ttl <= 0 {
		return g.fn()
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	if now.Before(g.expires) {
		return g.cached
	}
	g.cached = g.fn()
	g.expires = now.Add(g.ttl)
	return g.cached
}

// Snapshot returns the current value as an immutable snapshot.
func (g *Gauge) Snapshot() GaugeSnapshot {
	return GaugeSnapshot{Value: g.Value()}
}

// Kind implements Metric.
func (g *Gauge) Kind() Kind { return KindGauge }

func (g *Gauge) snapshot() Snapshot { return g.Snapshot() }
