/*
Package metriki is an in-process metrics instrumentation core. Application
code creates named instruments through a MetricsRegistry, updates them from
any goroutine, and hands read-side consumers (log reporters, OpenTelemetry or
Prometheus bridges, debug endpoints) a point-in-time snapshot of everything
registered.

Five instrument kinds are provided:

  - Counter: an exact value that can move up and down
  - Gauge: a value read on demand from a user function
  - Meter: an event rate with 1/5/15-minute moving averages
  - Histogram: a value distribution with quantile estimation
  - Timer: a Meter and a Histogram composed to track both the rate and the
    latency of an operation

Instruments are obtained by name with get-or-create semantics:

	registry := metriki.NewRegistry()

	requests, err := registry.Meter("http.requests", time.Now())
	if err != nil {
		return err
	}
	requests.Mark(1)

Concurrent callers asking for the same name always receive the same
instrument. Asking for a name that is already held by a different kind fails
with a KindMismatchError.

Timers hand out measurement sessions. The scoped form records exactly once
and is meant to be deferred:

	handle := timer.Start()
	defer handle.Stop()

For work that completes on another goroutine, StartDetached returns a handle
that records only when Stop is explicitly called.

All instruments are safe for concurrent use. Updates are cheap and designed
for hot paths; aggregation work such as sorting reservoir samples is deferred
to snapshot time on the reader's goroutine.

A process-wide registry is available through GlobalRegistry for code that has
no convenient way to thread a registry through its call graph. Libraries
should prefer accepting a *MetricsRegistry explicitly.
*/
package metriki
