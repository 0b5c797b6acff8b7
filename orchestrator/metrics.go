package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "relayer"

type Metrics struct {
	FlowOutcomes *prometheus.CounterVec
	FlowDuration *prometheus.HistogramVec
	InFlight     prometheus.Gauge
	Duplicates   *prometheus.CounterVec
}

// NewMetrics registers the flow metrics with reg. A nil reg leaves them
// unregistered, which tests use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FlowOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "flow_outcomes_total",
			Help:      "Finished flows by direction and final state.",
		}, []string{"direction", "state"}),
		FlowDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "flow_duration_seconds",
			Help:      "Time from admission to the final state.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"direction"}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "flows_in_flight",
			Help:      "Flows admitted and not yet finished.",
		}),
		Duplicates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "duplicate_requests_total",
			Help:      "Submissions rejected because the request was already in flight.",
		}, []string{"direction"}),
	}
}
