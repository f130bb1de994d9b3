// Package metrics exposes Prometheus instrumentation for searchd and an
// asynchronous outcome recorder that stays off the request path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every Prometheus collector searchd registers.
type Metrics struct {
	SearchRequestsTotal *prometheus.CounterVec // by query kind
	SearchLatency       prometheus.Histogram

	CacheHitsTotal   *prometheus.CounterVec // by namespace
	CacheMissesTotal *prometheus.CounterVec // by namespace

	ProviderCallsTotal *prometheus.CounterVec // by provider, outcome
	CircuitState       *prometheus.GaugeVec   // by provider: 0 closed, 1 half-open, 2 open

	RecorderDroppedTotal prometheus.Counter
}

// New registers all collectors against the given registerer.
// Tests pass a fresh prometheus.NewRegistry() to avoid duplicate
// registration panics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SearchRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_requests_total",
				Help: "Total number of search requests by query kind",
			},
			[]string{"kind"},
		),

		SearchLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "End-to-end search latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),

		CacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits by namespace",
			},
			[]string{"namespace"},
		),

		CacheMissesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses by namespace",
			},
			[]string{"namespace"},
		),

		ProviderCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "provider_calls_total",
				Help: "Total number of market data provider calls by outcome",
			},
			[]string{"provider", "outcome"},
		),

		CircuitState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "provider_circuit_state",
				Help: "Circuit breaker position per provider (0 closed, 1 half-open, 2 open)",
			},
			[]string{"provider"},
		),

		RecorderDroppedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "metrics_recorder_dropped_total",
				Help: "Outcome records dropped because the recorder buffer was full",
			},
		),
	}
}
