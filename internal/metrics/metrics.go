// Package metrics holds the service's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the compile service.
type Metrics struct {
	CompileTotal    *prometheus.CounterVec
	CompileDuration prometheus.Histogram
	LockWait        prometheus.Histogram
	CacheResult     *prometheus.CounterVec
	BuildLockHeld   prometheus.Gauge
	ActiveSessions  prometheus.Gauge
}

// NewMetrics creates and registers every collector against the default
// registerer.
func NewMetrics() *Metrics {
	return NewMetricsFor(prometheus.DefaultRegisterer)
}

// NewMetricsFor creates and registers every collector against reg. Tests
// pass a fresh prometheus.NewRegistry() so repeated construction within
// one process never collides with the global default registerer.
func NewMetricsFor(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CompileTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fastled_compile_total",
				Help: "Total number of compile requests by outcome",
			},
			[]string{"outcome"}, // attempted, succeeded, failed
		),
		CompileDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fastled_compile_duration_seconds",
				Help:    "Wall-clock duration of toolchain invocations",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),
		LockWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fastled_build_lock_wait_seconds",
				Help:    "Time spent waiting to acquire the build lock",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		CacheResult: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fastled_sketch_cache_result_total",
				Help: "Sketch cache lookups by result",
			},
			[]string{"result"}, // hit, miss, bypassed
		),
		BuildLockHeld: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fastled_build_lock_held",
				Help: "1 if the build lock is currently held, else 0",
			},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "fastled_active_sessions",
				Help: "Number of sessions currently registered",
			},
		),
	}
}
