package metriki

// Kind identifies one of the metric kinds a registry can hold.
type Kind uint8

const (
	KindCounter Kind = iota
	KindGauge
	KindMeter
	KindHistogram
	KindTimer
)

// String returns the lowercase name of the kind, suitable for log fields and
// error messages.
func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindGauge:
		return "gauge"
	case KindMeter:
		return "meter"
	case KindHistogram:
		return "histogram"
	case KindTimer:
		return "timer"
	default:
		return "unknown"
	}
}

// Metric is the union of instrument types stored by a MetricsRegistry:
// *Counter, *Gauge, *Meter, *Histogram and *Timer. The unexported method
// keeps the set closed, so registry code can switch over kinds exhaustively.
type Metric interface {
	// Kind reports which instrument this is.
	Kind() Kind

	// snapshot materializes the current value for read-side consumers.
	snapshot() Snapshot
}
