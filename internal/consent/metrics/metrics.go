package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the consent lifecycle and evaluator.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ConsentsGranted     *prometheus.CounterVec
	ConsentsRevoked     *prometheus.CounterVec
	ConsentsSuperseded  *prometheus.CounterVec
	ConsentsExpired     *prometheus.CounterVec
	Evaluations         *prometheus.CounterVec
	ConsentGrantLatency prometheus.Histogram
	ShardLockWait       prometheus.Histogram
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConsentsGranted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "healthconsent_consents_granted_total",
			Help: "Consents granted, labeled by kind",
		}, []string{"kind"}),
		ConsentsRevoked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "healthconsent_consents_revoked_total",
			Help: "Consents revoked by the patient, labeled by kind",
		}, []string{"kind"}),
		ConsentsSuperseded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "healthconsent_consents_superseded_total",
			Help: "Active consents revoked because a new grant replaced them, labeled by kind",
		}, []string{"kind"}),
		ConsentsExpired: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "healthconsent_consents_expired_total",
			Help: "Consents transitioned to expired during evaluation, labeled by kind",
		}, []string{"kind"}),
		Evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "healthconsent_consent_evaluations_total",
			Help: "Consent evaluations, labeled by outcome (authorized or reason code)",
		}, []string{"outcome"}),
		ConsentGrantLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthconsent_consent_grant_latency_seconds",
			Help:    "Latency of consent grant operations in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		ShardLockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthconsent_consent_shard_lock_wait_seconds",
			Help:    "Time spent waiting for the per-pair consent lock",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncGranted(kind string) {
	if m != nil {
		m.ConsentsGranted.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) IncRevoked(kind string) {
	if m != nil {
		m.ConsentsRevoked.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) IncSuperseded(kind string) {
	if m != nil {
		m.ConsentsSuperseded.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) IncExpired(kind string) {
	if m != nil {
		m.ConsentsExpired.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) IncEvaluation(outcome string) {
	if m != nil {
		m.Evaluations.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveGrantLatency(start time.Time) {
	if m != nil {
		m.ConsentGrantLatency.Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) ObserveShardLockWait(d time.Duration) {
	if m != nil {
		m.ShardLockWait.Observe(d.Seconds())
	}
}
