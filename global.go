package metriki

import "sync"

var (
	globalOnce sync.Once
	globalReg  *MetricsRegistry
)

// GlobalRegistry returns the process-wide registry, constructing it on first
// use. Every caller for the life of the process sees the same instance, and
// there is no way to replace or reset it; tests sharing it must use distinct
// metric names. Libraries should prefer accepting a *MetricsRegistry
// explicitly and fall back to the global one only by documented default.
func GlobalRegistry() *MetricsRegistry {
	globalOnce.Do(func() {
		globalReg = NewRegistry()
	})
	return globalReg
}
