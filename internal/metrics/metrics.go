// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the service registers. A single value is
// created at startup and shared by the scheduler and handlers.
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal       prometheus.Counter
	CycleDuration     prometheus.Histogram
	FetchesTotal      *prometheus.CounterVec
	EventsInserted    prometheus.Counter
	RateLimitPauses   prometheus.Counter
	AccountsTracked   prometheus.Gauge
	FetchesInFlight   prometheus.Gauge
	RateLimitRemained prometheus.Gauge
}

// Fetch outcome label values.
const (
	OutcomeEvents      = "events"
	OutcomeNotModified = "not_modified"
	OutcomeEmpty       = "empty"
	OutcomeThrottled   = "throttled"
	OutcomeError       = "error"
)

// New builds the collector set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "starfeed_poll_cycles_total",
			Help: "Completed polling cycles.",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "starfeed_poll_cycle_duration_seconds",
			Help:    "Wall-clock duration of polling cycles.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		FetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "starfeed_account_fetches_total",
			Help: "Per-account fetch attempts by outcome.",
		}, []string{"outcome"}),
		EventsInserted: factory.NewCounter(prometheus.CounterOpts{
			Name: "starfeed_events_inserted_total",
			Help: "Star events newly persisted.",
		}),
		RateLimitPauses: factory.NewCounter(prometheus.CounterOpts{
			Name: "starfeed_rate_limit_pauses_total",
			Help: "Times the upstream told us to back off.",
		}),
		AccountsTracked: factory.NewGauge(prometheus.GaugeOpts{
			Name: "starfeed_accounts_tracked",
			Help: "Accounts currently tracked.",
		}),
		FetchesInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "starfeed_fetches_in_flight",
			Help: "Account fetches currently running.",
		}),
		RateLimitRemained: factory.NewGauge(prometheus.GaugeOpts{
			Name: "starfeed_rate_limit_remaining",
			Help: "Last observed upstream rate-limit remaining quota.",
		}),
	}
}

// Registry returns the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
