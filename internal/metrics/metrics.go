// Package metrics declares the Prometheus collectors of the discovery
// pipeline.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Provider calls by market and outcome (ok, empty, error, timeout, panic)
	ProviderRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dealscout_provider_requests_total",
		Help: "Marketplace provider calls by outcome",
	}, []string{"market", "outcome"})

	ProviderLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dealscout_provider_latency_seconds",
		Help:    "Latency of marketplace provider calls",
		Buckets: []float64{.1, .25, .5, 1, 2, 4, 8, 15},
	}, []string{"market"})

	// Search result cache lookups by result (hit, miss, error)
	SearchCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dealscout_search_cache_lookups_total",
		Help: "Search result cache lookups",
	}, []string{"result"})

	// Persist attempts by result (created, existing, error)
	DealsPersisted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dealscout_deals_persisted_total",
		Help: "Deal persist attempts by result",
	}, []string{"result"})

	AnalysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dealscout_analysis_duration_seconds",
		Help:    "Duration of deal quality analyses",
		Buckets: prometheus.DefBuckets,
	})

	// Monitor ticks by outcome (ok, error, skipped, panic)
	MonitorTicks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dealscout_monitor_ticks_total",
		Help: "Monitor loop ticks by outcome",
	}, []string{"outcome"})

	// Notification deliveries by sender and result (sent, failed)
	NotificationsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dealscout_notifications_total",
		Help: "Notification deliveries by sender and result",
	}, []string{"sender", "result"})
)

var initOnce sync.Once

// Init registers the collectors with the default registry. It is safe to
// call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			ProviderRequests,
			ProviderLatency,
			SearchCacheLookups,
			DealsPersisted,
			AnalysisDuration,
			MonitorTicks,
			NotificationsSent,
		)
	})
}
