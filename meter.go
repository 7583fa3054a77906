package metriki

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Rates advance in fixed ticks against 1-, 5- and 15-minute windows, the
// same scheme as UNIX load averages.
const meterTickInterval = 5 * time.Second

var (
	alphaM1  = ewmaAlpha(1 * time.Minute)
	alphaM5  = ewmaAlpha(5 * time.Minute)
	alphaM15 = ewmaAlpha(15 * time.Minute)
)

func ewmaAlpha(window time.Duration) float64 {
	return 1 - math.Exp(-meterTickInterval.Seconds()/window.Seconds())
}

// ewma is a single exponentially-weighted moving average accumulator. It is
// not safe for concurrent use on its own; Meter serializes access through
// its mutex.
type ewma struct {
	alpha  float64
	rate   float64 // events per second
	seeded bool
}

// tick folds one tick interval's instantaneous rate into the average. The
// first tick seeds the average directly so a fresh meter reports its observed
// rate instead of climbing up from zero.
func (e *ewma) tick(instantRate float64) {
	if !e.seeded {
		e.rate = instantRate
		e.seeded = true
		return
	}
	e.rate += e.alpha * (instantRate - e.rate)
}

// Meter measures the rate of events over time: an exact lifetime count plus
// 1-, 5- and 15-minute exponentially-weighted moving averages of events per
// second. It is safe for concurrent use.
type Meter struct {
	count     atomic.Int64
	createdAt time.Time

	mu        sync.Mutex
	lastTick  time.Time
	uncounted int64 // events observed since the last completed tick
	m1        ewma
	m5        ewma
	m15       ewma
}

// NewMeter returns a meter whose rates start ticking now. createdAt records
// when the measured quantity came into existence and is reported alongside
// snapshots; it does not affect rate math.
func NewMeter(createdAt time.Time) *Meter {
	return newMeterAt(createdAt, time.Now())
}

func newMeterAt(createdAt, now time.Time) *Meter {
	return &Meter{
		createdAt: createdAt,
		lastTick:  now,
		m1:        ewma{alpha: alphaM1},
		m5:        ewma{alpha: alphaM5},
		m15:       ewma{alpha: alphaM15},
	}
}

// Mark records n events occurring now.
func (m *Meter) Mark(n int64) {
	m.markAt(n, time.Now())
}

func (m *Meter) markAt(n int64, now time.Time) {
	m.count.Add(n)

	m.mu.Lock()
	m.tickIfDue(now)
	m.uncounted += n
	m.mu.Unlock()
}

// Count returns the exact number of events marked over the meter's lifetime.
// It is independent of the tick schedule: events are counted here even when
// no tick has run yet.
func (m *Meter) Count() int64 {
	return m.count.Load()
}

// CreatedAt returns the creation time passed to NewMeter.
func (m *Meter) CreatedAt() time.Time {
	return m.createdAt
}

// M1Rate returns the one-minute moving average rate in events per second.
func (m *Meter) M1Rate() float64 {
	m1, _, _ := m.ratesAt(time.Now())
	return m1
}

// M5Rate returns the five-minute moving average rate in events per second.
func (m *Meter) M5Rate() float64 {
	_, m5, _ := m.ratesAt(time.Now())
	return m5
}

// M15Rate returns the fifteen-minute moving average rate in events per
// second.
func (m *Meter) M15Rate() float64 {
	_, _, m15 := m.ratesAt(time.Now())
	return m15
}

// Snapshot returns the count and all three rates as an immutable snapshot.
func (m *Meter) Snapshot() MeterSnapshot {
	return m.snapshotAt(time.Now())
}

func (m *Meter) snapshotAt(now time.Time) MeterSnapshot {
	m1, m5, m15 := m.ratesAt(now)
	return MeterSnapshot{
		Count:   m.count.Load(),
		M1Rate:  m1,
		M5Rate:  m5,
		M15Rate: m15,
	}
}

func (m *Meter) ratesAt(now time.Time) (m1, m5, m15 float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickIfDue(now)
	return m.m1.rate, m.m5.rate, m.m15.rate
}

// tickIfDue advances the averages by every whole tick interval elapsed since
// the last tick. The first elapsed tick consumes the events accumulated since
// then; the remaining ticks see an empty interval, which is what decays an
// idle meter toward zero. Callers must hold m.mu.
func (m *Meter) tickIfDue(now time.Time) {
	elapsed := now.Sub(m.lastTick)
	if elapsed < meterTickInterval {
		return
	}

	ticks := int64(elapsed / meterTickInterval)
	for i := int64(0); i < ticks; i++ {
		instant := float64(m.uncounted) / meterTickInterval.Seconds()
		m.uncounted = 0
		m.m1.tick(instant)
		m.m5.tick(instant)
		m.m15.tick(instant)
	}
	m.lastTick = m.lastTick.Add(time.Duration(ticks) * meterTickInterval)
}

// Kind implements Metric.
func (m *Meter) Kind() Kind { return KindMeter }

func (m *Meter) snapshot() Snapshot { return m.Snapshot() }
