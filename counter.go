package metriki

import "sync/atomic"

// Counter is an exact value that moves up and down, such as the number of
// in-flight requests or open connections. It is safe for concurrent use.
type Counter struct {
	value atomic.Int64
}

// NewCounter returns a counter starting at zero.
func NewCounter() *Counter {
	return &Counter{}
}

// Inc adds n to the counter. n may be negative.
func (c *Counter) Inc(n int64) {
	c.value.Add(n)
}

// Dec subtracts n from the counter.
func (c *Counter) Dec(n int64) {
	c.value.Add(-n)
}

// Count returns the current value.
func (c *Counter) Count() int64 {
	return c.value.Load()
}

// Snapshot returns the current value as an immutable snapshot.
func (c *Counter) Snapshot() CounterSnapshot {
	return CounterSnapshot{Count: c.value.Load()}
}

// Kind implements Metric.
func (c *Counter) Kind() Kind { return KindCounter }

func (c *Counter) snapshot() Snapshot { return c.Snapshot() }
