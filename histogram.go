package metriki

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Reservoir parameters for the forward-decaying priority sample. Capacity
// bounds memory per histogram; alpha biases retention toward roughly the
// last five minutes of observations.
const (
	reservoirCapacity = 1028
	reservoirAlpha    = 0.015

	// Weights grow as exp(alpha * age) and would overflow float64 after a
	// few hours of uptime, so priorities are renormalized on this interval.
	rescaleInterval = time.Hour
)

// weightedSample is one reservoir entry: an observed value and the priority
// that decides its survival once the reservoir is full.
type weightedSample struct {
	value    int64
	priority float64
}

// Histogram records a distribution of int64 observations. Quantiles are
// estimated from a fixed-size reservoir biased toward recent data, while
// count, min, max, mean and standard deviation are exact over every
// observation ever made. It is safe for concurrent use.
type Histogram struct {
	mu sync.Mutex

	// samples is a min-heap ordered by priority; samples[0] is always the
	// next eviction candidate.
	samples     []weightedSample
	landmark    time.Time
	nextRescale time.Time

	// Exact running statistics over all observations, including those the
	// reservoir has evicted.
	count int64
	sum   int64
	sumSq float64
	min   int64
	max   int64
}

// NewHistogram returns an empty histogram.
func NewHistogram() *Histogram {
	return newHistogramAt(time.Now())
}

func newHistogramAt(now time.Time) *Histogram {
	return &Histogram{
		samples:     make([]weightedSample, 0, reservoirCapacity),
		landmark:    now,
		nextRescale: now.Add(rescaleInterval),
	}
}

// Update records one observation.
func (h *Histogram) Update(v int64) {
	h.updateAt(v, time.Now())
}

func (h *Histogram) updateAt(v int64, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.rescaleIfDue(now)

	// Exact statistics cover every observation, whether or not the sample
	// survives the reservoir.
	if h.count == 0 || v < h.min {
		h.min = v
	}
	if h.count == 0 || v > h.max {
		h.max = v
	}
	h.count++
	h.sum += v
	h.sumSq += float64(v) * float64(v)

	r := rand.Float64()
	for r == 0 {
		r = rand.Float64()
	}
	priority := math.Exp(reservoirAlpha*now.Sub(h.landmark).Seconds()) / r

	if len(h.samples) < reservoirCapacity {
		h.samples = append(h.samples, weightedSample{value: v, priority: priority})
		h.siftUp(len(h.samples) - 1)
		return
	}
	if priority > h.samples[0].priority {
		h.samples[0] = weightedSample{value: v, priority: priority}
		h.siftDown(0)
	}
}

// rescaleIfDue moves the landmark forward and renormalizes every stored
// priority against it. Scaling by a common positive factor preserves the
// relative order of priorities, so the heap stays valid and no sample is
// lost. Callers must hold h.mu.
func (h *Histogram) rescaleIfDue(now time.Time) {
	if now.Before(h.nextRescale) {
		return
	}

	factor := math.Exp(-reservoirAlpha * now.Sub(h.landmark).Seconds())
	for i := range h.samples {
		h.samples[i].priority *= factor
	}
	h.landmark = now
	h.nextRescale = now.Add(rescaleInterval)
}

func (h *Histogram) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if h.samples[parent].priority <= h.samples[i].priority {
			return
		}
		h.samples[parent], h.samples[i] = h.samples[i], h.samples[parent]
		i = parent
	}
}

func (h *Histogram) siftDown(i int) {
	n := len(h.samples)
	for {
		smallest := i
		if l := 2*i + 1; l < n && h.samples[l].priority < h.samples[smallest].priority {
			smallest = l
		}
		if r := 2*i + 2; r < n && h.samples[r].priority < h.samples[smallest].priority {
			smallest = r
		}
		if smallest == i {
			return
		}
		h.samples[i], h.samples[smallest] = h.samples[smallest], h.samples[i]
		i = smallest
	}
}

// Snapshot copies the reservoir and the exact statistics under the lock and
// returns an immutable view. Sorting and derived statistics are computed on
// the caller's goroutine, outside the critical section, so writers are
// blocked only for the copy.
func (h *Histogram) Snapshot() *HistogramSnapshot {
	h.mu.Lock()
	values := make([]int64, len(h.samples))
	for i, s := range h.samples {
		values[i] = s.value
	}
	count, sum, sumSq := h.count, h.sum, h.sumSq
	min, max := h.min, h.max
	h.mu.Unlock()

	return newHistogramSnapshot(values, count, sum, sumSq, min, max)
}

// Kind implements Metric.
func (h *Histogram) Kind() Kind { return KindHistogram }

func (h *Histogram) snapshot() Snapshot { return h.Snapshot() }
