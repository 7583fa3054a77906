package metriki

import (
	"encoding/json"
	"math"
	"sort"
)

// Snapshot is an immutable point-in-time view of one metric, the unit of
// exchange between instruments and read-side consumers. The concrete types
// are CounterSnapshot, GaugeSnapshot, MeterSnapshot, *HistogramSnapshot and
// TimerSnapshot.
//
// Snapshots marshal to JSON with a fixed key set and key order per kind;
// reporters and dashboards rely on that layout staying stable.
type Snapshot interface {
	Kind() Kind

	metricSnapshot()
}

// CounterSnapshot is the materialized value of a Counter.
type CounterSnapshot struct {
	Count int64 `json:"count"`
}

func (CounterSnapshot) Kind() Kind      { return KindCounter }
func (CounterSnapshot) metricSnapshot() {}

// GaugeSnapshot is the materialized value of a Gauge.
type GaugeSnapshot struct {
	Value float64 `json:"value"`
}

func (GaugeSnapshot) Kind() Kind      { return KindGauge }
func (GaugeSnapshot) metricSnapshot() {}

// MeterSnapshot is the materialized value of a Meter: the exact event count
// and the three moving average rates in events per second.
type MeterSnapshot struct {
	Count   int64   `json:"count"`
	M1Rate  float64 `json:"m1_rate"`
	M5Rate  float64 `json:"m5_rate"`
	M15Rate float64 `json:"m15_rate"`
}

func (MeterSnapshot) Kind() Kind      { return KindMeter }
func (MeterSnapshot) metricSnapshot() {}

// TimerSnapshot flattens a timer's rate meter and latency distribution into
// one record. Count and the rates come from the meter; the remaining fields
// describe the latency histogram in milliseconds. Field order is part of the
// serialization contract.
type TimerSnapshot struct {
	Count   int64   `json:"count"`
	M1Rate  float64 `json:"m1_rate"`
	M5Rate  float64 `json:"m5_rate"`
	M15Rate float64 `json:"m15_rate"`
	Mean    float64 `json:"mean"`
	Max     int64   `json:"max"`
	Min     int64   `json:"min"`
	Stddev  float64 `json:"stddev"`
	P50     float64 `json:"p50"`
	P75     float64 `json:"p75"`
	P90     float64 `json:"p90"`
	P99     float64 `json:"p99"`
	P999    float64 `json:"p999"`
}

func (TimerSnapshot) Kind() Kind      { return KindTimer }
func (TimerSnapshot) metricSnapshot() {}

// HistogramSnapshot is an immutable view of a Histogram at one instant: a
// sorted copy of the surviving reservoir samples plus exact statistics over
// every observation made up to that point. It does not change when the live
// histogram moves on.
//
// Count, Sum, Min, Max, Mean and StdDev are exact. Quantile is estimated
// from the reservoir and therefore approximate once the histogram has seen
// more observations than the reservoir holds.
type HistogramSnapshot struct {
	values []int64 // sorted ascending
	count  int64
	sum    int64
	min    int64
	max    int64
	mean   float64
	stddev float64
}

func newHistogramSnapshot(values []int64, count, sum int64, sumSq float64, min, max int64) *HistogramSnapshot {
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	s := &HistogramSnapshot{
		values: values,
		count:  count,
		sum:    sum,
		min:    min,
		max:    max,
	}
	if count > 0 {
		s.mean = float64(sum) / float64(count)
	}
	if count > 1 {
		n := float64(count)
		variance := (sumSq - float64(sum)*float64(sum)/n) / (n - 1)
		if variance > 0 {
			s.stddev = math.Sqrt(variance)
		}
	}
	return s
}

// Count returns the exact number of observations, including those evicted
// from the reservoir.
func (s *HistogramSnapshot) Count() int64 { return s.count }

// Sum returns the exact sum of all observations.
func (s *HistogramSnapshot) Sum() int64 { return s.sum }

// Min returns the exact minimum observation, or 0 if there are none.
func (s *HistogramSnapshot) Min() int64 { return s.min }

// Max returns the exact maximum observation, or 0 if there are none.
func (s *HistogramSnapshot) Max() int64 { return s.max }

// Mean returns the exact mean of all observations, or 0 if there are none.
func (s *HistogramSnapshot) Mean() float64 { return s.mean }

// StdDev returns the sample standard deviation of all observations, or 0 for
// fewer than two.
func (s *HistogramSnapshot) StdDev() float64 { return s.stddev }

// Size returns the number of samples retained in the reservoir at snapshot
// time.
func (s *HistogramSnapshot) Size() int { return len(s.values) }

// Quantile returns the value at quantile q, linearly interpolated between
// the two nearest retained samples. q is clamped to [0, 1]. An empty
// snapshot returns 0.
func (s *HistogramSnapshot) Quantile(q float64) float64 {
	if len(s.values) == 0 {
		return 0
	}
	if q < 0 {
		q = 0
	} else if q > 1 {
		q = 1
	}

	rank := q * float64(len(s.values)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return float64(s.values[lo])
	}
	frac := rank - float64(lo)
	return float64(s.values[lo]) + frac*(float64(s.values[hi])-float64(s.values[lo]))
}

func (*HistogramSnapshot) Kind() Kind      { return KindHistogram }
func (*HistogramSnapshot) metricSnapshot() {}

// histogramJSON fixes the marshaled key order. It must stay in sync with
// the histogram section of TimerSnapshot.
type histogramJSON struct {
	Mean   float64 `json:"mean"`
	Max    int64   `json:"max"`
	Min    int64   `json:"min"`
	Stddev float64 `json:"stddev"`
	P50    float64 `json:"p50"`
	P75    float64 `json:"p75"`
	P90    float64 `json:"p90"`
	P99    float64 `json:"p99"`
	P999   float64 `json:"p999"`
}

// MarshalJSON implements json.Marshaler.
func (s *HistogramSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(histogramJSON{
		Mean:   s.mean,
		Max:    s.max,
		Min:    s.min,
		Stddev: s.stddev,
		P50:    s.Quantile(0.5),
		P75:    s.Quantile(0.75),
		P90:    s.Quantile(0.9),
		P99:    s.Quantile(0.99),
		P999:   s.Quantile(0.999),
	})
}
