package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for registry fetches and the record cache.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	FetchDuration *prometheus.HistogramVec
	CacheLookups  *prometheus.CounterVec
	BreakerOpened prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "healthconsent_registry_fetch_duration_seconds",
			Help:    "Latency of central registry calls, labeled by outcome",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "healthconsent_registry_cache_lookups_total",
			Help: "Patient record cache lookups, labeled by result (hit or miss)",
		}, []string{"result"}),
		BreakerOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "healthconsent_registry_breaker_opened_total",
			Help: "Times the registry circuit breaker opened",
		}),
	}
}

func (m *Metrics) ObserveFetch(outcome string, start time.Time) {
	if m != nil {
		m.FetchDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheLookups.WithLabelValues("hit").Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheLookups.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) IncBreakerOpened() {
	if m != nil {
		m.BreakerOpened.Inc()
	}
}
