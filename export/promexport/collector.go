// Package promexport exposes a metriki registry to Prometheus. Collector
// implements prometheus.Collector by materializing one registry snapshot per
// scrape and emitting const metrics from it, so no background state is kept
// and scrapes always observe fresh values.
//
// Counters become Prometheus gauges because they may decrease. Meter and
// timer lifetime counts become counters with a _total suffix, moving average
// rates become gauges, and distributions become summaries with the p50
// through p999 quantiles plus _min, _max and _stddev gauges.
package promexport

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bogdad/metriki"
)

// Collector adapts a metriki registry to the prometheus.Collector interface.
// It is unchecked: the metric set changes as names are registered and
// removed, so no descriptors are announced up front.
type Collector struct {
	registry  *metriki.MetricsRegistry
	namespace string
}

// Option configures a Collector.
type Option func(*Collector)

// WithNamespace prefixes every emitted metric name, joined with an
// underscore.
func WithNamespace(ns string) Option {
	return func(c *Collector) {
		c.namespace = sanitize(ns)
	}
}

// NewCollector returns a collector reading from registry.
func NewCollector(registry *metriki.MetricsRegistry, opts ...Option) *Collector {
	c := &Collector{registry: registry}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Register attaches a new collector for registry to reg. It returns the
// collector so callers can unregister it later.
func Register(reg prometheus.Registerer, registry *metriki.MetricsRegistry, opts ...Option) (*Collector, error) {
	c := NewCollector(registry, opts...)
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Describe implements prometheus.Collector. It sends nothing, marking the
// collector as unchecked.
func (c *Collector) Describe(chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.emitBuildInfo(ch)

	for name, snap := range c.registry.Snapshots() {
		fq := prometheus.BuildFQName(c.namespace, "", sanitize(name))

		switch s := snap.(type) {
		case metriki.CounterSnapshot:
			c.emitGauge(ch, fq, "Value of the "+name+" counter.", float64(s.Count))

		case metriki.GaugeSnapshot:
			c.emitGauge(ch, fq, "Current value of the "+name+" gauge.", s.Value)

		case metriki.MeterSnapshot:
			c.emitCount(ch, fq, name, s.Count)
			c.emitRates(ch, fq, name, s.M1Rate, s.M5Rate, s.M15Rate)

		case *metriki.HistogramSnapshot:
			c.emitSummary(ch, fq, name, uint64(s.Count()), float64(s.Sum()), map[float64]float64{
				0.5:   s.Quantile(0.5),
				0.75:  s.Quantile(0.75),
				0.9:   s.Quantile(0.9),
				0.99:  s.Quantile(0.99),
				0.999: s.Quantile(0.999),
			})
			c.emitSpread(ch, fq, name, float64(s.Min()), float64(s.Max()), s.StdDev())

		case metriki.TimerSnapshot:
			c.emitCount(ch, fq, name, s.Count)
			c.emitRates(ch, fq, name, s.M1Rate, s.M5Rate, s.M15Rate)

			// The exact latency sum is not part of the snapshot; mean times
			// session count reconstructs it, up to sessions still in flight.
			lq := fq + "_latency_ms"
			c.emitSummary(ch, lq, name, uint64(s.Count), s.Mean*float64(s.Count), map[float64]float64{
				0.5:   s.P50,
				0.75:  s.P75,
				0.9:   s.P90,
				0.99:  s.P99,
				0.999: s.P999,
			})
			c.emitSpread(ch, lq, name, float64(s.Min), float64(s.Max), s.Stddev)
		}
	}
}

// emitBuildInfo follows the Prometheus convention of a constant 1-valued
// gauge carrying version labels.
func (c *Collector) emitBuildInfo(ch chan<- prometheus.Metric) {
	desc := prometheus.NewDesc(
		prometheus.BuildFQName(c.namespace, "", "metriki_build_info"),
		"Version of the metriki library producing these metrics.",
		nil,
		prometheus.Labels{"version": metriki.Version},
	)
	ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, 1)
}

func (c *Collector) emitGauge(ch chan<- prometheus.Metric, fq, help string, v float64) {
	desc := prometheus.NewDesc(fq, help, nil, nil)
	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, v)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(desc, err)
		return
	}
	ch <- m
}

func (c *Collector) emitCount(ch chan<- prometheus.Metric, fq, name string, count int64) {
	desc := prometheus.NewDesc(fq+"_total", "Lifetime count of "+name+".", nil, nil)
	m, err := prometheus.NewConstMetric(desc, prometheus.CounterValue, float64(count))
	if err != nil {
		ch <- prometheus.NewInvalidMetric(desc, err)
		return
	}
	ch <- m
}

func (c *Collector) emitRates(ch chan<- prometheus.Metric, fq, name string, m1, m5, m15 float64) {
	for suffix, v := range map[string]float64{
		"_m1_rate":  m1,
		"_m5_rate":  m5,
		"_m15_rate": m15,
	} {
		c.emitGauge(ch, fq+suffix, "Moving average rate of "+name+" in events per second.", v)
	}
}

func (c *Collector) emitSummary(ch chan<- prometheus.Metric, fq, name string, count uint64, sum float64, q map[float64]float64) {
	desc := prometheus.NewDesc(fq, "Distribution summary of "+name+".", nil, nil)
	m, err := prometheus.NewConstSummary(desc, count, sum, q)
	if err != nil {
		ch <- prometheus.NewInvalidMetric(desc, err)
		return
	}
	ch <- m
}

func (c *Collector) emitSpread(ch chan<- prometheus.Metric, fq, name string, min, max, stddev float64) {
	c.emitGauge(ch, fq+"_min", "Minimum observed value of "+name+".", min)
	c.emitGauge(ch, fq+"_max", "Maximum observed value of "+name+".", max)
	c.emitGauge(ch, fq+"_stddev", "Standard deviation of "+name+".", stddev)
}

// sanitize rewrites a dotted metriki name into the character set Prometheus
// accepts. Runs of invalid characters collapse to single underscores; a
// leading digit gets an underscore prefix.
func sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	lastUnderscore := false
	for i, r := range name {
		valid := r == '_' || r == ':' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9')
		if !valid {
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
			continue
		}
		if i == 0 && r >= '0' && r <= '9' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
		lastUnderscore = r == '_'
	}
	return b.String()
}
