package metriki

import (
	"sync/atomic"
	"time"
)

// Timer tracks both the rate and the latency of an operation: a Meter marked
// when a measurement session starts and a Histogram fed the elapsed wall
// time, in whole milliseconds, when it stops. It is safe for concurrent use.
type Timer struct {
	rate    *Meter
	latency *Histogram
}

// NewTimer returns a timer whose rate meter carries the given creation time.
func NewTimer(createdAt time.Time) *Timer {
	return &Timer{
		rate:    NewMeter(createdAt),
		latency: NewHistogram(),
	}
}

// Start begins a measurement session, marking the rate meter immediately.
// The returned handle records its latency sample at most once, so it is safe
// to both stop early and defer:
//
//	handle := timer.Start()
//	defer handle.Stop()
//
// The rate is marked at start and the latency recorded at stop. A reader
// observing the timer mid-session sees the session in the rate but not yet
// in the latency distribution.
func (t *Timer) Start() *TimerHandle {
	return t.StartAt(time.Now())
}

// StartAt begins a session whose work began at the given instant. The rate
// meter is still marked now; only the latency measurement is backdated.
func (t *Timer) StartAt(start time.Time) *TimerHandle {
	t.rate.Mark(1)
	return &TimerHandle{timer: t, start: start}
}

// StartDetached begins a session that is not tied to any scope, for work
// that completes on another goroutine or in a later callback. The rate meter
// is marked now; the latency sample is recorded only if Stop is eventually
// called. A handle that is dropped without Stop leaves the rate permanently
// one ahead of the latency sample count, which read-side consumers must
// tolerate.
func (t *Timer) StartDetached() *DetachedTimerHandle {
	t.rate.Mark(1)
	return &DetachedTimerHandle{timer: t, start: time.Now()}
}

// Scoped times a single call to f against t and returns f's result. The
// elapsed time is recorded even if f panics.
func Scoped[R any](t *Timer, f func() R) R {
	h := t.Start()
	defer h.Stop()
	return f()
}

// Rate returns the underlying meter. Marking it directly skews the timer's
// rate away from its latency sample count; prefer Start and Stop.
func (t *Timer) Rate() *Meter {
	return t.rate
}

// Latency returns a snapshot of the latency distribution in milliseconds.
func (t *Timer) Latency() *HistogramSnapshot {
	return t.latency.Snapshot()
}

// Snapshot flattens the rate meter and the latency distribution into a
// single immutable record.
func (t *Timer) Snapshot() TimerSnapshot {
	rate := t.rate.Snapshot()
	lat := t.latency.Snapshot()
	return TimerSnapshot{
		Count:   rate.Count,
		M1Rate:  rate.M1Rate,
		M5Rate:  rate.M5Rate,
		M15Rate: rate.M15Rate,
		Mean:    lat.Mean(),
		Max:     lat.Max(),
		Min:     lat.Min(),
		Stddev:  lat.StdDev(),
		P50:     lat.Quantile(0.5),
		P75:     lat.Quantile(0.75),
		P90:     lat.Quantile(0.9),
		P99:     lat.Quantile(0.99),
		P999:    lat.Quantile(0.999),
	}
}

// Kind implements Metric.
func (t *Timer) Kind() Kind { return KindTimer }

func (t *Timer) snapshot() Snapshot { return t.Snapshot() }

// TimerHandle is a scoped measurement session created by Timer.Start. Stop
// records the elapsed time exactly once; extra calls are no-ops.
type TimerHandle struct {
	timer *Timer
	start time.Time
	done  atomic.Bool
}

// Stop ends the session and records the elapsed wall time, in whole
// milliseconds, into the timer's latency histogram. Only the first call
// records.
func (h *TimerHandle) Stop() {
	if !h.done.CompareAndSwap(false, true) {
		return
	}
	h.timer.latency.Update(time.Since(h.start).Milliseconds())
}

// DetachedTimerHandle is an unscoped measurement session created by
// Timer.StartDetached. It may be passed between goroutines; Stop records the
// elapsed time exactly once.
type DetachedTimerHandle struct {
	timer *Timer
	start time.Time
	done  atomic.Bool
}

// Stop ends the session and records the elapsed wall time, in whole
// milliseconds, into the timer's latency histogram. Only the first call
// records; a handle that is never stopped records nothing.
func (h *DetachedTimerHandle) Stop() {
	if !h.done.CompareAndSwap(false, true) {
		return
	}
	h.timer.latency.Update(time.Since(h.start).Milliseconds())
}
