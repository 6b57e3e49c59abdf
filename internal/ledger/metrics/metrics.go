package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the access ledger.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RecordsAppended *prometheus.CounterVec
	AppendFailures  prometheus.Counter
	AppendDuration  prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RecordsAppended: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "healthconsent_ledger_records_appended_total",
			Help: "Access records written, labeled by result",
		}, []string{"result"}),
		AppendFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "healthconsent_ledger_append_failures_total",
			Help: "Access records that could not be persisted",
		}),
		AppendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "healthconsent_ledger_append_duration_seconds",
			Help:    "Time taken to persist an access record",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncAppended(result string) {
	if m != nil {
		m.RecordsAppended.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncAppendFailure() {
	if m != nil {
		m.AppendFailures.Inc()
	}
}

func (m *Metrics) ObserveAppend(seconds float64) {
	if m != nil {
		m.AppendDuration.Observe(seconds)
	}
}
