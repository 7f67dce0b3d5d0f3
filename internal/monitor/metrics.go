package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "guardbench"

// Metrics holds the trial instruments
type Metrics struct {
	trialLatency *prometheus.HistogramVec
	trialsTotal  *prometheus.CounterVec
	checkLatency *prometheus.HistogramVec
}

// NewMetrics registers the trial instruments with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		trialLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "trial_latency_seconds",
			Help:      "Caller-observed trial latency by configuration and outcome",
			Buckets:   prometheus.ExponentialBuckets(0.05, 1.5, 16), // 50ms to ~22s
		}, []string{"configuration", "outcome"}),
		trialsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "trials_total",
			Help:      "Completed trials by configuration and outcome",
		}, []string{"configuration", "outcome"}),
		checkLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "local_check_seconds",
			Help:      "Local regex check time per trial",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10), // 10µs to ~2.6s
		}, []string{"configuration"}),
	}
}
