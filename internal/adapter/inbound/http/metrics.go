// Package http provides the HTTP transport adapter for the tagging
// service: the build-event endpoint, health, and metrics.
package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for tagmill.
// Pass to components that need to record metrics.
type Metrics struct {
	EventsTotal   *prometheus.CounterVec
	EventDuration prometheus.Histogram
	CatalogRules  prometheus.GaugeFunc
	HistoryDrops  prometheus.CounterFunc
	CacheEntries  prometheus.GaugeFunc
}

// MetricsSources exposes the live values GaugeFunc/CounterFunc metrics
// read from. Nil funcs register as constant zero.
type MetricsSources struct {
	CatalogSize  func() int
	CacheSize    func() int
	HistoryDrops func() int64
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer, src MetricsSources) *Metrics {
	return &Metrics{
		EventsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tagmill",
				Name:      "events_total",
				Help:      "Build events processed, by outcome",
			},
			[]string{"outcome"},
		),
		EventDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "tagmill",
				Name:      "event_duration_seconds",
				Help:      "Build event handling duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		CatalogRules: promauto.With(reg).NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "tagmill",
				Name:      "catalog_rules",
				Help:      "Rules in the loaded catalog",
			},
			intSource(src.CatalogSize),
		),
		HistoryDrops: promauto.With(reg).NewCounterFunc(
			prometheus.CounterOpts{
				Namespace: "tagmill",
				Name:      "history_drops_total",
				Help:      "History records dropped due to backpressure",
			},
			int64Source(src.HistoryDrops),
		),
		CacheEntries: promauto.With(reg).NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "tagmill",
				Name:      "cache_entries",
				Help:      "Memoized resolutions in the decision cache",
			},
			intSource(src.CacheSize),
		),
	}
}

func intSource(f func() int) func() float64 {
	if f == nil {
		return func() float64 { return 0 }
	}
	return func() float64 { return float64(f()) }
}

func int64Source(f func() int64) func() float64 {
	if f == nil {
		return func() float64 { return 0 }
	}
	return func() float64 { return float64(f()) }
}
